// Package store owns the persisted appointment and special-date records.
// Protected client fields go through the encryption codec on every write
// and read, and every create/read/update/delete emits an audit entry.
package store

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"haven-backend/internal/audit"
	"haven-backend/internal/crypto"
	"haven-backend/internal/models"
	"haven-backend/internal/schedule"
)

var (
	ErrSlotTaken = errors.New("slot already booked")
	ErrNotFound  = errors.New("appointment not found")
)

// Actor identifies who performs an operation, for the audit trail.
// An empty ID means an anonymous client or the system itself.
type Actor struct {
	ID        string
	IP        string
	UserAgent string
}

type Store struct {
	appointments *mongo.Collection
	specialDates *mongo.Collection
	codec        *crypto.Codec
	trail        *audit.Trail
	log          *slog.Logger
	loc          *time.Location
}

func New(appointments, specialDates *mongo.Collection, codec *crypto.Codec, trail *audit.Trail, log *slog.Logger, loc *time.Location) *Store {
	return &Store{
		appointments: appointments,
		specialDates: specialDates,
		codec:        codec,
		trail:        trail,
		log:          log,
		loc:          loc,
	}
}

// storedAppointment is the at-rest shape: client_* and the request fields
// hold ciphertext blobs, scheduling columns stay plaintext for queries.
type storedAppointment struct {
	ID              string    `bson:"_id,omitempty"`
	ClientName      string    `bson:"client_name,omitempty"`
	ClientEmail     string    `bson:"client_email,omitempty"`
	ClientPhone     string    `bson:"client_phone,omitempty"`
	Date            string    `bson:"date"`
	StartTime       string    `bson:"start_time"`
	EndTime         string    `bson:"end_time"`
	Duration        int       `bson:"duration"`
	FocusAreas      string    `bson:"focus_areas,omitempty"`
	Pressure        string    `bson:"pressure,omitempty"`
	SpecialRequest  string    `bson:"special_request,omitempty"`
	Status          string    `bson:"status"`
	CalendarEventID string    `bson:"calendar_event_id,omitempty"`
	CreatedBy       string    `bson:"created_by,omitempty"`
	SourceIP        string    `bson:"source_ip,omitempty"`
	SlotKeys        []int     `bson:"slot_keys,omitempty"`
	CreatedAt       time.Time `bson:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at"`
}

// slotKeys lists the minute marks covered by [startMin, endMin+break).
// Two confirmed appointments whose break-extended intervals overlap always
// share at least one mark, so the unique {date, slot_keys} index rejects
// the second insert atomically. Minute granularity keeps that guarantee
// for any block start, duration and break, aligned or not.
func slotKeys(startMin, endMin, breakMinutes int) []int {
	to := endMin + breakMinutes
	keys := make([]int, 0, to-startMin)
	for m := startMin; m < to; m++ {
		keys = append(keys, m)
	}
	return keys
}

// CreateAppointment encrypts the protected fields and inserts the record.
// A unique-index collision on the covered slot marks means another booking
// won the race and is reported as ErrSlotTaken.
func (s *Store) CreateAppointment(ctx context.Context, actor Actor, appt models.Appointment, breakMinutes int) (string, error) {
	startMin, err := schedule.ParseClockToMinutes(appt.StartTime)
	if err != nil {
		return "", err
	}
	endMin := startMin + appt.Duration

	now := time.Now().In(s.loc)
	doc, err := s.encryptAppointment(appt)
	if err != nil {
		return "", err
	}
	doc.ID = primitive.NewObjectID().Hex()
	doc.EndTime = schedule.MinutesToClock(endMin)
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = models.AppointmentStatusConfirmed
	}
	if doc.Status == models.AppointmentStatusConfirmed {
		doc.SlotKeys = slotKeys(startMin, endMin, breakMinutes)
	}

	if _, err := s.appointments.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", ErrSlotTaken
		}
		return "", err
	}

	s.auditLog(ctx, audit.Record{
		Action:     audit.ActionAppointmentCreated,
		ActorID:    actor.ID,
		ObjectID:   doc.ID,
		ObjectType: audit.ObjectTypeAppointment,
		Detail: map[string]any{
			"date":       doc.Date,
			"start_time": doc.StartTime,
			"duration":   doc.Duration,
			"status":     doc.Status,
		},
		IP:        actor.IP,
		UserAgent: actor.UserAgent,
	})

	return doc.ID, nil
}

// GetAppointment returns the decrypted record and audits the access.
func (s *Store) GetAppointment(ctx context.Context, actor Actor, id string) (models.Appointment, error) {
	var doc storedAppointment
	if err := s.appointments.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Appointment{}, ErrNotFound
		}
		return models.Appointment{}, err
	}

	s.auditLog(ctx, audit.Record{
		Action:     audit.ActionAppointmentRead,
		ActorID:    actor.ID,
		ObjectID:   doc.ID,
		ObjectType: audit.ObjectTypeAppointment,
		IP:         actor.IP,
		UserAgent:  actor.UserAgent,
	})

	return s.decryptAppointment(doc), nil
}

// UpdateAppointmentStatus moves a record between confirmed, cancelled and
// pending. Leaving confirmed releases the covered slot marks; re-confirming
// reclaims them and can lose a race like any other booking.
func (s *Store) UpdateAppointmentStatus(ctx context.Context, actor Actor, id, status string, breakMinutes int) (models.Appointment, error) {
	var current storedAppointment
	if err := s.appointments.FindOne(ctx, bson.M{"_id": id}).Decode(&current); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Appointment{}, ErrNotFound
		}
		return models.Appointment{}, err
	}

	set := bson.M{"status": status, "updated_at": time.Now().In(s.loc)}
	update := bson.M{"$set": set}
	if status == models.AppointmentStatusConfirmed {
		startMin, err := schedule.ParseClockToMinutes(current.StartTime)
		if err != nil {
			return models.Appointment{}, err
		}
		set["slot_keys"] = slotKeys(startMin, startMin+current.Duration, breakMinutes)
	} else {
		update["$unset"] = bson.M{"slot_keys": ""}
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated storedAppointment
	if err := s.appointments.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&updated); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.Appointment{}, ErrSlotTaken
		}
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Appointment{}, ErrNotFound
		}
		return models.Appointment{}, err
	}

	s.auditLog(ctx, audit.Record{
		Action:     audit.ActionAppointmentUpdated,
		ActorID:    actor.ID,
		ObjectID:   id,
		ObjectType: audit.ObjectTypeAppointment,
		Detail: map[string]any{
			"status_from": current.Status,
			"status_to":   status,
		},
		IP:        actor.IP,
		UserAgent: actor.UserAgent,
	})

	return s.decryptAppointment(updated), nil
}

// SetCalendarEventID attaches the external calendar reference after a
// successful event creation.
func (s *Store) SetCalendarEventID(ctx context.Context, id, eventID string) error {
	res, err := s.appointments.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"calendar_event_id": eventID, "updated_at": time.Now().In(s.loc)}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAppointment(ctx context.Context, actor Actor, id string) error {
	var doc storedAppointment
	if err := s.appointments.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return err
	}

	s.auditLog(ctx, audit.Record{
		Action:     audit.ActionAppointmentDeleted,
		ActorID:    actor.ID,
		ObjectID:   id,
		ObjectType: audit.ObjectTypeAppointment,
		Detail: map[string]any{
			"date":       doc.Date,
			"start_time": doc.StartTime,
		},
		IP:        actor.IP,
		UserAgent: actor.UserAgent,
	})
	return nil
}

type ListFilter struct {
	Date   string
	Status string
}

func (s *Store) ListAppointments(ctx context.Context, actor Actor, filter ListFilter, limit, offset int64) ([]models.Appointment, int64, error) {
	query := bson.M{}
	if filter.Date != "" {
		query["date"] = filter.Date
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: 1}, {Key: "start_time", Value: 1}}).
		SetLimit(limit).
		SetSkip(offset)

	cursor, err := s.appointments.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	items := make([]models.Appointment, 0)
	for cursor.Next(ctx) {
		var doc storedAppointment
		if err := cursor.Decode(&doc); err != nil {
			return nil, 0, err
		}
		items = append(items, s.decryptAppointment(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, 0, err
	}

	total, err := s.appointments.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	s.auditLog(ctx, audit.Record{
		Action:     audit.ActionAppointmentRead,
		ActorID:    actor.ID,
		ObjectType: audit.ObjectTypeAppointment,
		Detail: map[string]any{
			"scope": "list",
			"date":  filter.Date,
			"count": len(items),
		},
		IP:        actor.IP,
		UserAgent: actor.UserAgent,
	})

	return items, total, nil
}

// ReservedIntervals returns the raw [start,end) minute intervals of the
// confirmed appointments on a date. Runs on plaintext columns only.
func (s *Store) ReservedIntervals(ctx context.Context, date string) ([]schedule.Interval, error) {
	cursor, err := s.appointments.Find(ctx, bson.M{
		"date":   date,
		"status": models.AppointmentStatusConfirmed,
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	intervals := make([]schedule.Interval, 0)
	for cursor.Next(ctx) {
		var doc storedAppointment
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		start, err := schedule.ParseClockToMinutes(doc.StartTime)
		if err != nil {
			continue
		}
		intervals = append(intervals, schedule.Interval{Start: start, End: start + doc.Duration})
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return intervals, nil
}

// CheckSlotOverlap reports whether [startMin, endMin) conflicts with any
// confirmed appointment on the date, both sides extended by the break.
// Advisory: the unique index remains the authority at insert time.
func (s *Store) CheckSlotOverlap(ctx context.Context, date string, startMin, endMin, breakMinutes int) (bool, error) {
	reserved, err := s.ReservedIntervals(ctx, date)
	if err != nil {
		return false, err
	}
	candidate := schedule.Interval{Start: startMin, End: endMin + breakMinutes}
	for _, r := range reserved {
		if schedule.Overlaps(candidate, schedule.Interval{Start: r.Start, End: r.End + breakMinutes}) {
			return true, nil
		}
	}
	return false, nil
}

// GetSpecialDate returns the override for a date, or nil when none exists.
func (s *Store) GetSpecialDate(ctx context.Context, date string) (*models.SpecialDate, error) {
	var sd models.SpecialDate
	if err := s.specialDates.FindOne(ctx, bson.M{"_id": date}).Decode(&sd); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &sd, nil
}

// UpsertSpecialDate writes the single override record for a date; the date
// is the document id, so one record per date is structural.
func (s *Store) UpsertSpecialDate(ctx context.Context, actor Actor, sd models.SpecialDate) error {
	if sd.CreatedAt.IsZero() {
		sd.CreatedAt = time.Now().In(s.loc)
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.specialDates.ReplaceOne(ctx, bson.M{"_id": sd.Date}, sd, opts); err != nil {
		return err
	}

	s.auditLog(ctx, audit.Record{
		Action:     audit.ActionSpecialDateSet,
		ActorID:    actor.ID,
		ObjectID:   sd.Date,
		ObjectType: audit.ObjectTypeSpecialDate,
		Detail: map[string]any{
			"type":      sd.Type,
			"available": sd.Available,
		},
		IP:        actor.IP,
		UserAgent: actor.UserAgent,
	})
	return nil
}

func (s *Store) DeleteSpecialDate(ctx context.Context, actor Actor, date string) error {
	res, err := s.specialDates.DeleteOne(ctx, bson.M{"_id": date})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}

	s.auditLog(ctx, audit.Record{
		Action:     audit.ActionSpecialDateRemoved,
		ActorID:    actor.ID,
		ObjectID:   date,
		ObjectType: audit.ObjectTypeSpecialDate,
		IP:         actor.IP,
		UserAgent:  actor.UserAgent,
	})
	return nil
}

func (s *Store) ListSpecialDates(ctx context.Context, from string) ([]models.SpecialDate, error) {
	query := bson.M{}
	if from != "" {
		query["_id"] = bson.M{"$gte": from}
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := s.specialDates.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	items := make([]models.SpecialDate, 0)
	for cursor.Next(ctx) {
		var sd models.SpecialDate
		if err := cursor.Decode(&sd); err != nil {
			return nil, err
		}
		items = append(items, sd)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) encryptAppointment(appt models.Appointment) (storedAppointment, error) {
	doc := storedAppointment{
		Date:            appt.Date,
		StartTime:       appt.StartTime,
		EndTime:         appt.EndTime,
		Duration:        appt.Duration,
		Status:          appt.Status,
		CalendarEventID: appt.CalendarEventID,
		CreatedBy:       appt.CreatedBy,
		SourceIP:        appt.SourceIP,
	}

	var err error
	if doc.ClientName, err = s.codec.Encrypt(appt.ClientName); err != nil {
		return storedAppointment{}, err
	}
	if doc.ClientEmail, err = s.codec.Encrypt(appt.ClientEmail); err != nil {
		return storedAppointment{}, err
	}
	if doc.ClientPhone, err = s.codec.Encrypt(appt.ClientPhone); err != nil {
		return storedAppointment{}, err
	}
	if doc.FocusAreas, err = s.codec.Encrypt(joinFocusAreas(appt.FocusAreas)); err != nil {
		return storedAppointment{}, err
	}
	if doc.Pressure, err = s.codec.Encrypt(appt.Pressure); err != nil {
		return storedAppointment{}, err
	}
	if doc.SpecialRequest, err = s.codec.Encrypt(appt.SpecialRequest); err != nil {
		return storedAppointment{}, err
	}
	return doc, nil
}

// decryptAppointment degrades each unreadable field to empty instead of
// failing the read; every degradation is logged so corrupt blobs or a key
// mismatch stay visible.
func (s *Store) decryptAppointment(doc storedAppointment) models.Appointment {
	return models.Appointment{
		ID:              doc.ID,
		ClientName:      s.decryptField(doc.ID, "client_name", doc.ClientName),
		ClientEmail:     s.decryptField(doc.ID, "client_email", doc.ClientEmail),
		ClientPhone:     s.decryptField(doc.ID, "client_phone", doc.ClientPhone),
		Date:            doc.Date,
		StartTime:       doc.StartTime,
		EndTime:         doc.EndTime,
		Duration:        doc.Duration,
		FocusAreas:      splitFocusAreas(s.decryptField(doc.ID, "focus_areas", doc.FocusAreas)),
		Pressure:        s.decryptField(doc.ID, "pressure", doc.Pressure),
		SpecialRequest:  s.decryptField(doc.ID, "special_request", doc.SpecialRequest),
		Status:          doc.Status,
		CalendarEventID: doc.CalendarEventID,
		CreatedBy:       doc.CreatedBy,
		SourceIP:        doc.SourceIP,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
}

func (s *Store) decryptField(id, field, value string) string {
	out, err := s.codec.Decrypt(value)
	if err != nil {
		s.log.Warn("field decrypt failed, returning empty value",
			slog.String("appointment_id", id),
			slog.String("field", field),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return out
}

func (s *Store) auditLog(ctx context.Context, rec audit.Record) {
	if s.trail == nil {
		return
	}
	if _, err := s.trail.Log(ctx, rec); err != nil {
		s.log.Warn("audit write failed",
			slog.String("action", rec.Action),
			slog.String("error", err.Error()),
		)
	}
}

func joinFocusAreas(areas []string) string {
	cleaned := make([]string, 0, len(areas))
	for _, a := range areas {
		a = strings.TrimSpace(a)
		if a != "" {
			cleaned = append(cleaned, a)
		}
	}
	return strings.Join(cleaned, "\n")
}

func splitFocusAreas(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, "\n")
}
