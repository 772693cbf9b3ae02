package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"haven-backend/internal/models"
	"haven-backend/internal/schedule"
	"haven-backend/internal/store"
	"haven-backend/internal/validation"
)

type fakeRecords struct {
	createErr   error
	createdID   string
	created     []models.Appointment
	reserved    []schedule.Interval
	special     *models.SpecialDate
	reservedErr error
}

func (f *fakeRecords) CreateAppointment(ctx context.Context, actor store.Actor, appt models.Appointment, breakMinutes int) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, appt)
	if f.createdID == "" {
		return "appt-1", nil
	}
	return f.createdID, nil
}

func (f *fakeRecords) ReservedIntervals(ctx context.Context, date string) ([]schedule.Interval, error) {
	if f.reservedErr != nil {
		return nil, f.reservedErr
	}
	return f.reserved, nil
}

func (f *fakeRecords) GetSpecialDate(ctx context.Context, date string) (*models.SpecialDate, error) {
	return f.special, nil
}

type fakeSchedules struct {
	cfg schedule.Config
	err error
}

func (f *fakeSchedules) Schedule(ctx context.Context) (schedule.Config, error) {
	return f.cfg, f.err
}

type fakeCalendar struct {
	eventID   string
	createErr error
	deleted   []string
	created   int
}

func (f *fakeCalendar) CreateEvent(ctx context.Context, appt models.Appointment) (string, error) {
	f.created++
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.eventID, nil
}

func (f *fakeCalendar) DeleteEvent(ctx context.Context, eventID string) error {
	f.deleted = append(f.deleted, eventID)
	return nil
}

type fakeMailer struct {
	clientOK    bool
	therapistOK bool
	clientSent  int
	notifySent  int
}

func (f *fakeMailer) SendClientConfirmation(ctx context.Context, appt models.Appointment) bool {
	f.clientSent++
	return f.clientOK
}

func (f *fakeMailer) SendTherapistNotification(ctx context.Context, appt models.Appointment) bool {
	f.notifySent++
	return f.therapistOK
}

func testScheduleConfig() schedule.Config {
	blocks := map[int][]schedule.Block{}
	working := map[int]bool{}
	for day := 1; day <= 5; day++ {
		working[day] = true
		blocks[day] = []schedule.Block{{From: "09:00", To: "18:00"}}
	}
	return schedule.Config{
		WorkingDays:         working,
		Blocks:              blocks,
		BreakMinutes:        15,
		SlotIntervalMinutes: 30,
		Durations:           []schedule.DurationOption{{Minutes: 60, Price: 100}},
	}
}

func newTestService(records *fakeRecords, cal *fakeCalendar, mailer *fakeMailer) *Service {
	var calendar Calendar
	if cal != nil {
		calendar = cal
	}
	var m Mailer
	if mailer != nil {
		m = mailer
	}
	svc := NewService(
		records,
		&fakeSchedules{cfg: testScheduleConfig()},
		calendar,
		m,
		validation.New(),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		time.UTC,
	)
	// Fixed clock: Monday 2026-02-02 is in the future.
	svc.now = func() time.Time {
		return time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	}
	return svc
}

func validInput() Input {
	return Input{
		Name:      "Marie Dupont",
		Email:     "marie@example.com",
		Phone:     "+15145550199",
		Date:      "2026-02-02",
		StartTime: "09:00",
		Duration:  60,
		Pressure:  models.PressureMedium,
		SourceIP:  "203.0.113.9",
	}
}

func TestCreateHappyPath(t *testing.T) {
	records := &fakeRecords{}
	cal := &fakeCalendar{eventID: "evt-42"}
	mailer := &fakeMailer{clientOK: true, therapistOK: true}
	svc := newTestService(records, cal, mailer)

	id, err := svc.Create(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if id != "appt-1" {
		t.Fatalf("unexpected id %q", id)
	}
	if len(records.created) != 1 {
		t.Fatalf("expected one persisted appointment, got %d", len(records.created))
	}

	appt := records.created[0]
	if appt.Status != models.AppointmentStatusConfirmed {
		t.Fatalf("expected confirmed status, got %q", appt.Status)
	}
	if appt.EndTime != "10:00" {
		t.Fatalf("expected end time derived from duration, got %q", appt.EndTime)
	}
	if appt.CalendarEventID != "evt-42" {
		t.Fatalf("expected calendar reference on the stored record, got %q", appt.CalendarEventID)
	}
	if mailer.clientSent != 1 || mailer.notifySent != 1 {
		t.Fatalf("expected both emails attempted, got %d/%d", mailer.clientSent, mailer.notifySent)
	}
	if len(cal.deleted) != 0 {
		t.Fatalf("no compensation expected on success")
	}
}

func TestCreateListsAllInvalidFields(t *testing.T) {
	svc := newTestService(&fakeRecords{}, nil, nil)

	_, err := svc.Create(context.Background(), Input{
		Email:     "not-an-email",
		Phone:     "nope",
		Date:      "bad",
		StartTime: "later",
		Duration:  33,
		Pressure:  "crushing",
	})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, field := range []string{"Name", "Email", "Phone", "Date", "StartTime", "Pressure", "Duration"} {
		if _, ok := verr.Fields[field]; !ok {
			t.Fatalf("expected field %s in error, got %v", field, verr.Fields)
		}
	}
}

func TestCreateRejectsNonPaddedStartTime(t *testing.T) {
	svc := newTestService(&fakeRecords{}, nil, nil)
	in := validInput()
	in.StartTime = "9:00"

	_, err := svc.Create(context.Background(), in)
	if errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected field-level rejection, got slot unavailable")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := verr.Fields["StartTime"]; !ok {
		t.Fatalf("expected StartTime in error, got %v", verr.Fields)
	}
}

func TestCreateFieldErrorsSurviveScheduleOutage(t *testing.T) {
	svc := NewService(
		&fakeRecords{},
		&fakeSchedules{err: errors.New("settings down")},
		nil,
		nil,
		validation.New(),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		time.UTC,
	)
	in := validInput()
	in.Email = "not-an-email"

	_, err := svc.Create(context.Background(), in)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := verr.Fields["Email"]; !ok {
		t.Fatalf("expected Email in error, got %v", verr.Fields)
	}
}

func TestCreateRejectsUnofferedDuration(t *testing.T) {
	svc := newTestService(&fakeRecords{}, nil, nil)
	in := validInput()
	in.Duration = 45

	_, err := svc.Create(context.Background(), in)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Fields["Duration"] != "not_offered" {
		t.Fatalf("expected not_offered duration, got %v", verr.Fields)
	}
}

func TestCreateRejectsPastDate(t *testing.T) {
	svc := newTestService(&fakeRecords{}, nil, nil)
	in := validInput()
	in.Date = "2026-01-01"

	_, err := svc.Create(context.Background(), in)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Fields["Date"] != "past" {
		t.Fatalf("expected past date error, got %v", verr.Fields)
	}
}

func TestCreateRejectsEndTimeMismatch(t *testing.T) {
	svc := newTestService(&fakeRecords{}, nil, nil)
	in := validInput()
	in.EndTime = "11:00"

	_, err := svc.Create(context.Background(), in)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Fields["EndTime"] != "mismatch" {
		t.Fatalf("expected end time mismatch, got %v", verr.Fields)
	}
}

func TestCreateSlotUnavailableWhenReserved(t *testing.T) {
	records := &fakeRecords{reserved: []schedule.Interval{{Start: 540, End: 600}}}
	cal := &fakeCalendar{eventID: "evt-1"}
	svc := newTestService(records, cal, nil)

	_, err := svc.Create(context.Background(), validInput())
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
	if cal.created != 0 {
		t.Fatalf("no calendar event should be created for an unavailable slot")
	}
}

func TestCreateSlotUnavailableOnBlockedDate(t *testing.T) {
	records := &fakeRecords{special: &models.SpecialDate{
		Date: "2026-02-02", Type: models.SpecialDateHoliday, Available: false,
	}}
	svc := newTestService(records, nil, nil)

	_, err := svc.Create(context.Background(), validInput())
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
}

func TestCreateCompensatesCalendarOnStorageFailure(t *testing.T) {
	records := &fakeRecords{createErr: errors.New("write failed")}
	cal := &fakeCalendar{eventID: "evt-9"}
	mailer := &fakeMailer{clientOK: true, therapistOK: true}
	svc := newTestService(records, cal, mailer)

	_, err := svc.Create(context.Background(), validInput())
	var serr *StorageError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if len(cal.deleted) != 1 || cal.deleted[0] != "evt-9" {
		t.Fatalf("expected compensating delete of evt-9, got %v", cal.deleted)
	}
	if mailer.clientSent != 0 {
		t.Fatalf("no emails expected after storage failure")
	}
}

func TestCreateMapsSlotTakenRace(t *testing.T) {
	records := &fakeRecords{createErr: store.ErrSlotTaken}
	cal := &fakeCalendar{eventID: "evt-5"}
	svc := newTestService(records, cal, nil)

	_, err := svc.Create(context.Background(), validInput())
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable for a lost race, got %v", err)
	}
	if len(cal.deleted) != 1 {
		t.Fatalf("expected compensating delete after lost race, got %v", cal.deleted)
	}
}

func TestCreateProceedsWithoutCalendar(t *testing.T) {
	records := &fakeRecords{}
	cal := &fakeCalendar{createErr: errors.New("provider down")}
	svc := newTestService(records, cal, nil)

	id, err := svc.Create(context.Background(), validInput())
	if err != nil {
		t.Fatalf("calendar outage must not block booking, got %v", err)
	}
	if id == "" {
		t.Fatalf("expected an id")
	}
	if records.created[0].CalendarEventID != "" {
		t.Fatalf("expected no calendar reference, got %q", records.created[0].CalendarEventID)
	}
}

func TestCreateIgnoresEmailFailures(t *testing.T) {
	records := &fakeRecords{}
	mailer := &fakeMailer{clientOK: false, therapistOK: false}
	svc := newTestService(records, nil, mailer)

	if _, err := svc.Create(context.Background(), validInput()); err != nil {
		t.Fatalf("email failures must not surface, got %v", err)
	}
	if mailer.clientSent != 1 || mailer.notifySent != 1 {
		t.Fatalf("expected both emails attempted, got %d/%d", mailer.clientSent, mailer.notifySent)
	}
}

func TestCreateNormalizesInput(t *testing.T) {
	records := &fakeRecords{}
	svc := newTestService(records, nil, nil)
	in := validInput()
	in.Name = "  Marie Dupont  "
	in.Email = " MARIE@Example.com "
	in.FocusAreas = []string{" neck ", "", "shoulders"}

	if _, err := svc.Create(context.Background(), in); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	appt := records.created[0]
	if appt.ClientName != "Marie Dupont" {
		t.Fatalf("expected trimmed name, got %q", appt.ClientName)
	}
	if appt.ClientEmail != "marie@example.com" {
		t.Fatalf("expected lowercased email, got %q", appt.ClientEmail)
	}
	if len(appt.FocusAreas) != 2 || appt.FocusAreas[0] != "neck" {
		t.Fatalf("expected cleaned focus areas, got %v", appt.FocusAreas)
	}
}
