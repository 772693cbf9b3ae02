package schedule

import (
	"testing"
	"time"

	"haven-backend/internal/models"
)

func mustLoadLoc(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func testConfig() Config {
	blocks := map[int][]Block{}
	for day := 1; day <= 5; day++ {
		blocks[day] = []Block{{From: "09:00", To: "18:00"}}
	}
	return Config{
		WorkingDays:         map[int]bool{1: true, 2: true, 3: true, 4: true, 5: true},
		Blocks:              blocks,
		BreakMinutes:        15,
		SlotIntervalMinutes: 30,
		Durations: []DurationOption{
			{Minutes: 60, Price: 100},
			{Minutes: 90, Price: 140},
		},
	}
}

// 2026-02-02 is a Monday, 2026-02-01 a Sunday, 2026-02-07 a Saturday.

func TestComputeAvailableSlotsWeekdayBoundaries(t *testing.T) {
	loc := mustLoadLoc(t)
	availability, err := ComputeAvailableSlots(testConfig(), "2026-02-02", 60, nil, nil, loc)
	if err != nil {
		t.Fatalf("ComputeAvailableSlots error: %v", err)
	}
	if !availability.Available {
		t.Fatalf("expected working day to be available")
	}
	if len(availability.Slots) == 0 {
		t.Fatalf("expected slots, got none")
	}

	first := availability.Slots[0]
	if first.Start != "09:00" || first.End != "10:00" {
		t.Fatalf("unexpected first slot: %+v", first)
	}

	// Block 09:00-18:00, duration 60, break 15: the latest start is 16:45,
	// so the appointment ends 17:45 and its break runs exactly to 18:00.
	last := availability.Slots[len(availability.Slots)-1]
	if last.Start != "16:45" || last.End != "17:45" {
		t.Fatalf("unexpected last slot: %+v", last)
	}
}

func TestComputeAvailableSlotsProperties(t *testing.T) {
	loc := mustLoadLoc(t)
	cfg := testConfig()
	availability, err := ComputeAvailableSlots(cfg, "2026-02-03", 90, nil, nil, loc)
	if err != nil {
		t.Fatalf("ComputeAvailableSlots error: %v", err)
	}
	blockEnd, _ := ParseClockToMinutes("18:00")
	for _, s := range availability.Slots {
		start, err := ParseClockToMinutes(s.Start)
		if err != nil {
			t.Fatalf("bad slot start %q: %v", s.Start, err)
		}
		end, err := ParseClockToMinutes(s.End)
		if err != nil {
			t.Fatalf("bad slot end %q: %v", s.End, err)
		}
		if end-start != 90 {
			t.Fatalf("slot %v is not 90 minutes", s)
		}
		if end+cfg.BreakMinutes > blockEnd {
			t.Fatalf("slot %v does not leave its break inside the block", s)
		}
	}
}

func TestComputeAvailableSlotsNonWorkingDay(t *testing.T) {
	loc := mustLoadLoc(t)
	availability, err := ComputeAvailableSlots(testConfig(), "2026-02-01", 60, nil, nil, loc)
	if err != nil {
		t.Fatalf("ComputeAvailableSlots error: %v", err)
	}
	if availability.Available {
		t.Fatalf("expected Sunday to be unavailable")
	}
	if len(availability.Slots) != 0 {
		t.Fatalf("expected no slots, got %d", len(availability.Slots))
	}
}

func TestComputeAvailableSlotsBlockedSpecialDate(t *testing.T) {
	loc := mustLoadLoc(t)
	special := &models.SpecialDate{Date: "2026-02-02", Type: models.SpecialDateHoliday, Available: false}
	availability, err := ComputeAvailableSlots(testConfig(), "2026-02-02", 60, special, nil, loc)
	if err != nil {
		t.Fatalf("ComputeAvailableSlots error: %v", err)
	}
	if availability.Available || len(availability.Slots) != 0 {
		t.Fatalf("expected holiday to be fully blocked, got %+v", availability)
	}
}

func TestComputeAvailableSlotsSpecialDateOverridesSaturday(t *testing.T) {
	loc := mustLoadLoc(t)
	special := &models.SpecialDate{
		Date:      "2026-02-07",
		Type:      models.SpecialDateCustomHours,
		Available: true,
		StartTime: "10:00",
		EndTime:   "14:00",
	}
	availability, err := ComputeAvailableSlots(testConfig(), "2026-02-07", 60, special, nil, loc)
	if err != nil {
		t.Fatalf("ComputeAvailableSlots error: %v", err)
	}
	if !availability.Available || len(availability.Slots) == 0 {
		t.Fatalf("expected override to open the Saturday, got %+v", availability)
	}

	windowStart, _ := ParseClockToMinutes("10:00")
	windowEnd, _ := ParseClockToMinutes("14:00")
	for _, s := range availability.Slots {
		start, _ := ParseClockToMinutes(s.Start)
		end, _ := ParseClockToMinutes(s.End)
		if start < windowStart || end > windowEnd {
			t.Fatalf("slot %v escapes the override window", s)
		}
	}
	if availability.Slots[0].Start != "10:00" {
		t.Fatalf("unexpected first override slot: %+v", availability.Slots[0])
	}
	if availability.Slots[len(availability.Slots)-1].Start != "12:45" {
		t.Fatalf("unexpected last override slot: %+v", availability.Slots[len(availability.Slots)-1])
	}
}

func TestComputeAvailableSlotsRespectsBreakBuffer(t *testing.T) {
	loc := mustLoadLoc(t)
	cfg := testConfig()
	// Existing confirmed appointment 10:00-11:00.
	reserved := []Interval{{Start: 600, End: 660}}

	availability, err := ComputeAvailableSlots(cfg, "2026-02-02", 60, nil, reserved, loc)
	if err != nil {
		t.Fatalf("ComputeAvailableSlots error: %v", err)
	}

	for _, s := range availability.Slots {
		start, _ := ParseClockToMinutes(s.Start)
		end := start + 60
		// Neither interval, extended by the break, may touch the other.
		if start < 660+cfg.BreakMinutes && 600 < end+cfg.BreakMinutes {
			t.Fatalf("slot %v violates the break buffer around 10:00-11:00", s)
		}
	}

	// 09:00 would end at 10:00 with its break running into the existing
	// appointment's start; it must be gone. 11:30 is the first grid start
	// clearing the existing appointment's break.
	for _, s := range availability.Slots {
		if s.Start == "09:00" || s.Start == "10:00" || s.Start == "10:30" || s.Start == "11:00" {
			t.Fatalf("slot %v should have been filtered", s)
		}
	}
	found := false
	for _, s := range availability.Slots {
		if s.Start == "11:30" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected 11:30 to be available, slots: %+v", availability.Slots)
	}
}

func TestComputeAvailableSlotsSkipsTightBlock(t *testing.T) {
	loc := mustLoadLoc(t)
	cfg := testConfig()
	// 75 minutes fits 60+15 exactly; the block is still skipped so the
	// trailing break after the last appointment is always preserved.
	cfg.Blocks[1] = []Block{{From: "09:00", To: "10:15"}}

	availability, err := ComputeAvailableSlots(cfg, "2026-02-02", 60, nil, nil, loc)
	if err != nil {
		t.Fatalf("ComputeAvailableSlots error: %v", err)
	}
	if len(availability.Slots) != 0 {
		t.Fatalf("expected exact-fit block to yield no slots, got %+v", availability.Slots)
	}
}

func TestSlotBookable(t *testing.T) {
	loc := mustLoadLoc(t)
	cfg := testConfig()

	ok, err := SlotBookable(cfg, "2026-02-02", "09:00", 60, nil, nil, loc)
	if err != nil {
		t.Fatalf("SlotBookable error: %v", err)
	}
	if !ok {
		t.Fatalf("expected 09:00 to be bookable")
	}

	// Off-grid start.
	ok, err = SlotBookable(cfg, "2026-02-02", "09:10", 60, nil, nil, loc)
	if err != nil {
		t.Fatalf("SlotBookable error: %v", err)
	}
	if ok {
		t.Fatalf("expected 09:10 to be rejected")
	}

	// Taken by an existing appointment.
	reserved := []Interval{{Start: 540, End: 600}}
	ok, err = SlotBookable(cfg, "2026-02-02", "09:00", 60, nil, reserved, loc)
	if err != nil {
		t.Fatalf("SlotBookable error: %v", err)
	}
	if ok {
		t.Fatalf("expected occupied 09:00 to be rejected")
	}

	// Non-working day.
	ok, err = SlotBookable(cfg, "2026-02-01", "09:00", 60, nil, nil, loc)
	if err != nil {
		t.Fatalf("SlotBookable error: %v", err)
	}
	if ok {
		t.Fatalf("expected Sunday slot to be rejected")
	}
}

func TestFilterPastSlots(t *testing.T) {
	loc := mustLoadLoc(t)
	now := time.Date(2026, 2, 2, 10, 0, 0, 0, loc)
	slots := []Slot{
		{Start: "09:00", End: "10:00"},
		{Start: "10:30", End: "11:30"},
	}
	filtered, err := FilterPastSlots("2026-02-02", slots, loc, now)
	if err != nil {
		t.Fatalf("FilterPastSlots error: %v", err)
	}
	if len(filtered) != 1 || filtered[0].Start != "10:30" {
		t.Fatalf("unexpected filtered slots: %+v", filtered)
	}
}

func TestIsDatePast(t *testing.T) {
	loc := mustLoadLoc(t)
	now := time.Date(2026, 2, 4, 10, 0, 0, 0, loc)
	past, err := IsDatePast("2026-02-03", loc, now)
	if err != nil {
		t.Fatalf("IsDatePast error: %v", err)
	}
	if !past {
		t.Fatalf("expected date to be past")
	}

	past, err = IsDatePast("2026-02-04", loc, now)
	if err != nil {
		t.Fatalf("IsDatePast error: %v", err)
	}
	if past {
		t.Fatalf("expected date to be not past")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	bad := testConfig()
	bad.SlotIntervalMinutes = 0
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for zero interval")
	}

	bad = testConfig()
	bad.Blocks[1] = []Block{{From: "10:00", To: "09:00"}}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for inverted block")
	}

	bad = testConfig()
	bad.Durations = nil
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for empty duration catalog")
	}
}

func TestConfigDurationOffered(t *testing.T) {
	cfg := testConfig()
	if !cfg.DurationOffered(60) || !cfg.DurationOffered(90) {
		t.Fatalf("expected 60 and 90 to be offered")
	}
	if cfg.DurationOffered(45) {
		t.Fatalf("expected 45 to be rejected")
	}
	if cfg.DefaultDuration() != 60 {
		t.Fatalf("unexpected default duration %d", cfg.DefaultDuration())
	}
}
