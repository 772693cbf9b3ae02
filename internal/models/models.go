package models

import "time"

const (
	AppointmentStatusConfirmed = "confirmed"
	AppointmentStatusCancelled = "cancelled"
	AppointmentStatusPending   = "pending"

	PressureLight  = "light"
	PressureMedium = "medium"
	PressureDeep   = "deep"

	SpecialDateHoliday     = "holiday"
	SpecialDateCustomHours = "custom_hours"

	UserRoleAdmin = "admin"
)

var validStatuses = map[string]struct{}{
	AppointmentStatusConfirmed: {},
	AppointmentStatusCancelled: {},
	AppointmentStatusPending:   {},
}

func IsValidStatus(value string) bool {
	_, ok := validStatuses[value]
	return ok
}

// Appointment is the decrypted, in-memory form of a booking. Client name,
// email, phone, focus areas, pressure and the special request are stored
// encrypted at rest; date/time/duration/status stay plaintext so overlap
// and range queries can run against them.
type Appointment struct {
	ID              string    `json:"id"`
	ClientName      string    `json:"clientName"`
	ClientEmail     string    `json:"clientEmail"`
	ClientPhone     string    `json:"clientPhone"`
	Date            string    `json:"date"`
	StartTime       string    `json:"startTime"`
	EndTime         string    `json:"endTime"`
	Duration        int       `json:"duration"`
	FocusAreas      []string  `json:"focusAreas,omitempty"`
	Pressure        string    `json:"pressure,omitempty"`
	SpecialRequest  string    `json:"specialRequest,omitempty"`
	Status          string    `json:"status"`
	CalendarEventID string    `json:"calendarEventId,omitempty"`
	CreatedBy       string    `json:"createdBy,omitempty"`
	SourceIP        string    `json:"-"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// SpecialDate overrides the weekly schedule for a single calendar date.
// Available=false blocks the whole day; Available=true with times replaces
// the weekday's normal blocks.
type SpecialDate struct {
	Date      string    `bson:"_id" json:"date"`
	Type      string    `bson:"type" json:"type"`
	Available bool      `bson:"available" json:"available"`
	StartTime string    `bson:"start_time,omitempty" json:"startTime,omitempty"`
	EndTime   string    `bson:"end_time,omitempty" json:"endTime,omitempty"`
	Notes     string    `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

type User struct {
	ID           string    `bson:"_id,omitempty" json:"id"`
	Username     string    `bson:"username" json:"username"`
	Email        string    `bson:"email,omitempty" json:"email,omitempty"`
	PasswordHash string    `bson:"password_hash" json:"-"`
	Role         string    `bson:"role" json:"role"`
	CreatedAt    time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updatedAt"`
}
