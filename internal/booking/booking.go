// Package booking is the one place a new appointment comes to life: input
// validation, the authoritative slot recheck, encrypted persistence, and
// the best-effort calendar and email collaborators around it.
package booking

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"haven-backend/internal/models"
	"haven-backend/internal/schedule"
	"haven-backend/internal/store"
	"haven-backend/internal/validation"
)

const collaboratorTimeout = 8 * time.Second

type Input struct {
	Name           string   `json:"name" validate:"required,max=120"`
	Email          string   `json:"email" validate:"required,email,max=254"`
	Phone          string   `json:"phone" validate:"required,phone"`
	Date           string   `json:"date" validate:"required,date"`
	StartTime      string   `json:"startTime" validate:"required,clock"`
	EndTime        string   `json:"endTime" validate:"omitempty,clock"`
	Duration       int      `json:"duration" validate:"required,gt=0"`
	FocusAreas     []string `json:"focusAreas" validate:"omitempty,max=10,dive,required,max=60"`
	Pressure       string   `json:"pressure" validate:"required,oneof=light medium deep"`
	SpecialRequest string   `json:"specialRequest" validate:"omitempty,max=2000"`

	CreatedBy string `json:"-"`
	SourceIP  string `json:"-"`
	UserAgent string `json:"-"`
}

// Records is the slice of the record store a booking needs.
type Records interface {
	CreateAppointment(ctx context.Context, actor store.Actor, appt models.Appointment, breakMinutes int) (string, error)
	ReservedIntervals(ctx context.Context, date string) ([]schedule.Interval, error)
	GetSpecialDate(ctx context.Context, date string) (*models.SpecialDate, error)
}

type ScheduleSource interface {
	Schedule(ctx context.Context) (schedule.Config, error)
}

// Calendar is the external calendar collaborator. Both calls are
// best-effort and time-bounded; provider downtime never blocks a booking.
type Calendar interface {
	CreateEvent(ctx context.Context, appt models.Appointment) (string, error)
	DeleteEvent(ctx context.Context, eventID string) error
}

// Mailer reports failures as booleans, never as errors the transaction
// would have to handle.
type Mailer interface {
	SendClientConfirmation(ctx context.Context, appt models.Appointment) bool
	SendTherapistNotification(ctx context.Context, appt models.Appointment) bool
}

type Service struct {
	records   Records
	schedules ScheduleSource
	calendar  Calendar
	mailer    Mailer
	val       *validation.Validator
	log       *slog.Logger
	loc       *time.Location
	now       func() time.Time
}

func NewService(records Records, schedules ScheduleSource, calendar Calendar, mailer Mailer, val *validation.Validator, log *slog.Logger, loc *time.Location) *Service {
	return &Service{
		records:   records,
		schedules: schedules,
		calendar:  calendar,
		mailer:    mailer,
		val:       val,
		log:       log,
		loc:       loc,
		now:       time.Now,
	}
}

// Create validates and persists a new appointment and returns its id.
// Returns *ValidationError, ErrSlotUnavailable or *StorageError.
func (s *Service) Create(ctx context.Context, in Input) (string, error) {
	in = normalize(in)

	fields := map[string]string{}
	if err := s.val.Struct(in); err != nil {
		for _, ve := range s.val.ValidationErrors(err) {
			fields[ve.Field()] = ve.Tag()
		}
	}

	if _, ok := fields["Date"]; !ok {
		past, err := schedule.IsDatePast(in.Date, s.loc, s.now())
		if err != nil {
			fields["Date"] = "date"
		} else if past {
			fields["Date"] = "past"
		}
	}
	if in.EndTime != "" && fields["StartTime"] == "" && fields["EndTime"] == "" {
		if expectedEnd(in.StartTime, in.Duration) != in.EndTime {
			fields["EndTime"] = "mismatch"
		}
	}

	cfg, err := s.schedules.Schedule(ctx)
	if err != nil {
		// A settings outage must not mask field failures already found.
		if len(fields) > 0 {
			return "", &ValidationError{Fields: fields}
		}
		return "", &StorageError{Err: err}
	}
	if _, ok := fields["Duration"]; !ok && !cfg.DurationOffered(in.Duration) {
		fields["Duration"] = "not_offered"
	}
	if len(fields) > 0 {
		return "", &ValidationError{Fields: fields}
	}

	special, err := s.records.GetSpecialDate(ctx, in.Date)
	if err != nil {
		return "", &StorageError{Err: err}
	}
	reserved, err := s.records.ReservedIntervals(ctx, in.Date)
	if err != nil {
		return "", &StorageError{Err: err}
	}

	// Authoritative recheck; any slot list the client saw may be stale.
	bookable, err := schedule.SlotBookable(cfg, in.Date, in.StartTime, in.Duration, special, reserved, s.loc)
	if err != nil {
		return "", &ValidationError{Fields: map[string]string{"StartTime": "clock"}}
	}
	if !bookable {
		return "", ErrSlotUnavailable
	}
	if sameDay(in.Date, s.loc, s.now()) {
		pastSlot, err := schedule.IsSlotPast(in.Date, in.StartTime, s.loc, s.now())
		if err != nil || pastSlot {
			return "", ErrSlotUnavailable
		}
	}

	appt := models.Appointment{
		ClientName:     in.Name,
		ClientEmail:    in.Email,
		ClientPhone:    in.Phone,
		Date:           in.Date,
		StartTime:      in.StartTime,
		EndTime:        expectedEnd(in.StartTime, in.Duration),
		Duration:       in.Duration,
		FocusAreas:     in.FocusAreas,
		Pressure:       in.Pressure,
		SpecialRequest: in.SpecialRequest,
		Status:         models.AppointmentStatusConfirmed,
		CreatedBy:      in.CreatedBy,
		SourceIP:       in.SourceIP,
	}

	// The calendar event is created before the insert so the stored record
	// carries its reference id. If the insert then fails, the event is
	// removed again; an orphaned calendar entry is worse than none.
	eventID := s.createCalendarEvent(ctx, appt)
	appt.CalendarEventID = eventID

	actor := store.Actor{ID: in.CreatedBy, IP: in.SourceIP, UserAgent: in.UserAgent}
	id, err := s.records.CreateAppointment(ctx, actor, appt, cfg.BreakMinutes)
	if err != nil {
		s.deleteCalendarEvent(eventID)
		if errors.Is(err, store.ErrSlotTaken) {
			return "", ErrSlotUnavailable
		}
		return "", &StorageError{Err: err}
	}
	appt.ID = id

	s.sendNotifications(appt)

	s.log.Info("booking created",
		slog.String("appointment_id", id),
		slog.String("date", appt.Date),
		slog.String("start_time", appt.StartTime),
		slog.Int("duration", appt.Duration),
	)
	return id, nil
}

func (s *Service) createCalendarEvent(ctx context.Context, appt models.Appointment) string {
	if s.calendar == nil {
		return ""
	}
	callCtx, cancel := context.WithTimeout(ctx, collaboratorTimeout)
	defer cancel()

	eventID, err := s.calendar.CreateEvent(callCtx, appt)
	if err != nil {
		s.log.Warn("calendar event creation failed, booking proceeds without",
			slog.String("date", appt.Date),
			slog.String("start_time", appt.StartTime),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return eventID
}

func (s *Service) deleteCalendarEvent(eventID string) {
	if s.calendar == nil || eventID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
	defer cancel()

	if err := s.calendar.DeleteEvent(ctx, eventID); err != nil {
		s.log.Warn("calendar event compensation failed",
			slog.String("event_id", eventID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) sendNotifications(appt models.Appointment) {
	if s.mailer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
	defer cancel()

	if !s.mailer.SendClientConfirmation(ctx, appt) {
		s.log.Warn("client confirmation email failed",
			slog.String("appointment_id", appt.ID),
		)
	}
	if !s.mailer.SendTherapistNotification(ctx, appt) {
		s.log.Warn("therapist notification email failed",
			slog.String("appointment_id", appt.ID),
		)
	}
}

func normalize(in Input) Input {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	in.Date = strings.TrimSpace(in.Date)
	in.StartTime = strings.TrimSpace(in.StartTime)
	in.EndTime = strings.TrimSpace(in.EndTime)
	in.Pressure = strings.ToLower(strings.TrimSpace(in.Pressure))
	in.SpecialRequest = strings.TrimSpace(in.SpecialRequest)

	areas := make([]string, 0, len(in.FocusAreas))
	for _, a := range in.FocusAreas {
		a = strings.TrimSpace(a)
		if a != "" {
			areas = append(areas, a)
		}
	}
	in.FocusAreas = areas
	return in
}

func expectedEnd(startTime string, duration int) string {
	start, err := schedule.ParseClockToMinutes(startTime)
	if err != nil {
		return ""
	}
	return schedule.MinutesToClock(start + duration)
}

func sameDay(dateStr string, loc *time.Location, now time.Time) bool {
	date, err := schedule.ParseDate(dateStr, loc)
	if err != nil {
		return false
	}
	localNow := now.In(loc)
	return date.Year() == localNow.Year() && date.YearDay() == localNow.YearDay()
}
