package schedule

import (
	"errors"
	"fmt"
	"time"

	"haven-backend/internal/models"
)

var (
	ErrInvalidDate     = errors.New("invalid date format")
	ErrInvalidTime     = errors.New("invalid time format")
	ErrInvalidDuration = errors.New("invalid duration")
)

// Block is a contiguous working window within a day, half-open [From, To).
type Block struct {
	From string `bson:"from" json:"from"`
	To   string `bson:"to" json:"to"`
}

type DurationOption struct {
	Minutes int `bson:"minutes" json:"minutes"`
	Price   int `bson:"price" json:"price"`
}

// Config is the typed projection of the schedule settings: which weekdays
// are worked, the blocks per weekday, the mandatory break after every
// appointment, the candidate-start grid step, and the offered durations.
type Config struct {
	WorkingDays         map[int]bool     `json:"workingDays"`
	Blocks              map[int][]Block  `json:"blocks"`
	BreakMinutes        int              `json:"breakMinutes"`
	SlotIntervalMinutes int              `json:"slotIntervalMinutes"`
	Durations           []DurationOption `json:"durations"`
}

func (c Config) Validate() error {
	if c.BreakMinutes < 0 {
		return fmt.Errorf("break minutes must be >= 0, got %d", c.BreakMinutes)
	}
	if c.SlotIntervalMinutes <= 0 {
		return fmt.Errorf("slot interval must be > 0, got %d", c.SlotIntervalMinutes)
	}
	if len(c.Durations) == 0 {
		return errors.New("at least one duration must be offered")
	}
	for _, d := range c.Durations {
		if d.Minutes <= 0 {
			return fmt.Errorf("offered duration must be > 0, got %d", d.Minutes)
		}
	}
	for day := range c.WorkingDays {
		if day < 0 || day > 6 {
			return fmt.Errorf("working day out of range: %d", day)
		}
	}
	for day, blocks := range c.Blocks {
		if day < 0 || day > 6 {
			return fmt.Errorf("block weekday out of range: %d", day)
		}
		for _, b := range blocks {
			from, err := ParseClockToMinutes(b.From)
			if err != nil {
				return fmt.Errorf("block %d: %w", day, err)
			}
			to, err := ParseClockToMinutes(b.To)
			if err != nil {
				return fmt.Errorf("block %d: %w", day, err)
			}
			if to <= from {
				return fmt.Errorf("block %d: end %s not after start %s", day, b.To, b.From)
			}
		}
	}
	return nil
}

// DurationOffered reports whether minutes is in the offered catalog.
func (c Config) DurationOffered(minutes int) bool {
	for _, d := range c.Durations {
		if d.Minutes == minutes {
			return true
		}
	}
	return false
}

func (c Config) DefaultDuration() int {
	if len(c.Durations) == 0 {
		return 60
	}
	return c.Durations[0].Minutes
}

// Slot is a bookable interval of exactly the requested duration.
type Slot struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Label string `json:"label"`
}

// Availability is the engine's result for one (date, duration) pair.
// Available stays false for non-working and blocked dates; a fully booked
// working day is Available=true with zero slots.
type Availability struct {
	Available bool   `json:"available"`
	Slots     []Slot `json:"slots"`
}

type Interval struct {
	Start int
	End   int
}

func Overlaps(a, b Interval) bool {
	return a.Start < b.End && b.Start < a.End
}

func ParseDate(dateStr string, loc *time.Location) (time.Time, error) {
	date, err := time.ParseInLocation("2006-01-02", dateStr, loc)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return date, nil
}

func ParseDateTime(dateStr, timeStr string, loc *time.Location) (time.Time, error) {
	if _, err := time.Parse("15:04", timeStr); err != nil {
		return time.Time{}, ErrInvalidTime
	}
	if _, err := ParseDate(dateStr, loc); err != nil {
		return time.Time{}, err
	}

	parsed, err := time.ParseInLocation("2006-01-02 15:04", dateStr+" "+timeStr, loc)
	if err != nil {
		return time.Time{}, ErrInvalidTime
	}

	return parsed, nil
}

func ParseClockToMinutes(timeStr string) (int, error) {
	tm, err := time.Parse("15:04", timeStr)
	if err != nil {
		return 0, ErrInvalidTime
	}
	return tm.Hour()*60 + tm.Minute(), nil
}

func MinutesToClock(minutes int) string {
	h := minutes / 60
	m := minutes % 60
	return fmt.Sprintf("%02d:%02d", h, m)
}

func IsDatePast(dateStr string, loc *time.Location, now time.Time) (bool, error) {
	date, err := ParseDate(dateStr, loc)
	if err != nil {
		return false, err
	}
	startToday := time.Date(now.In(loc).Year(), now.In(loc).Month(), now.In(loc).Day(), 0, 0, 0, 0, loc)
	return date.Before(startToday), nil
}

func IsSlotPast(dateStr, timeStr string, loc *time.Location, now time.Time) (bool, error) {
	slot, err := ParseDateTime(dateStr, timeStr, loc)
	if err != nil {
		return false, err
	}
	return !slot.After(now.In(loc)), nil
}

// dayBlocks resolves the working windows for a date. A SpecialDate that
// marks the day unavailable wins over everything; one with override times
// replaces the weekday's normal blocks even on a non-working weekday.
func dayBlocks(cfg Config, weekday int, special *models.SpecialDate) []Block {
	if special != nil {
		if !special.Available {
			return nil
		}
		if special.StartTime != "" && special.EndTime != "" {
			return []Block{{From: special.StartTime, To: special.EndTime}}
		}
	}
	if !cfg.WorkingDays[weekday] {
		return nil
	}
	return cfg.Blocks[weekday]
}

// ComputeAvailableSlots derives the free slots for a date and duration.
// It is a pure function of its inputs: callers fetch the SpecialDate and
// the reserved intervals (confirmed appointments, raw [start,end) minutes)
// and the result may be cached by (date, duration).
func ComputeAvailableSlots(cfg Config, dateStr string, duration int, special *models.SpecialDate, reserved []Interval, loc *time.Location) (Availability, error) {
	if duration <= 0 {
		return Availability{}, ErrInvalidDuration
	}
	date, err := ParseDate(dateStr, loc)
	if err != nil {
		return Availability{}, err
	}

	blocks := dayBlocks(cfg, int(date.Weekday()), special)
	if len(blocks) == 0 {
		return Availability{Available: false, Slots: []Slot{}}, nil
	}

	slots := make([]Slot, 0)
	for _, b := range blocks {
		from, err := ParseClockToMinutes(b.From)
		if err != nil {
			return Availability{}, err
		}
		to, err := ParseClockToMinutes(b.To)
		if err != nil {
			return Availability{}, err
		}

		// The last appointment of a block must still leave its full break
		// inside the block, so exact-fit blocks are skipped entirely.
		latestStart := to - (duration + cfg.BreakMinutes)
		if latestStart <= from {
			continue
		}

		candidates := make([]int, 0)
		for cursor := from; cursor <= latestStart; cursor += cfg.SlotIntervalMinutes {
			candidates = append(candidates, cursor)
		}
		// latestStart is always a candidate, even when the grid from the
		// block start does not land on it; the tail of a block stays
		// bookable.
		if len(candidates) == 0 || candidates[len(candidates)-1] != latestStart {
			candidates = append(candidates, latestStart)
		}

		for _, cursor := range candidates {
			end := cursor + duration
			if conflictsReserved(cursor, end, cfg.BreakMinutes, reserved) {
				continue
			}
			slots = append(slots, Slot{
				Start: MinutesToClock(cursor),
				End:   MinutesToClock(end),
				Label: MinutesToClock(cursor) + " - " + MinutesToClock(end),
			})
		}
	}

	return Availability{Available: true, Slots: slots}, nil
}

// conflictsReserved applies the break buffer symmetrically: a candidate and
// an existing appointment conflict when the two intervals, each extended by
// the break on its end, intersect. Anything less would let a new booking
// start inside the break after an existing one, or end inside the break
// before it.
func conflictsReserved(start, end, breakMinutes int, reserved []Interval) bool {
	candidate := Interval{Start: start, End: end + breakMinutes}
	for _, r := range reserved {
		if Overlaps(candidate, Interval{Start: r.Start, End: r.End + breakMinutes}) {
			return true
		}
	}
	return false
}

// SlotBookable re-runs the availability computation for a single candidate
// start time. The slot listing a client saw earlier is advisory only; this
// is the authoritative recheck before an insert.
func SlotBookable(cfg Config, dateStr, timeStr string, duration int, special *models.SpecialDate, reserved []Interval, loc *time.Location) (bool, error) {
	availability, err := ComputeAvailableSlots(cfg, dateStr, duration, special, reserved, loc)
	if err != nil {
		return false, err
	}
	if !availability.Available {
		return false, nil
	}
	for _, s := range availability.Slots {
		if s.Start == timeStr {
			return true, nil
		}
	}
	return false, nil
}

// FilterPastSlots drops slots whose start time has already passed; used
// for same-day availability requests.
func FilterPastSlots(dateStr string, slots []Slot, loc *time.Location, now time.Time) ([]Slot, error) {
	filtered := make([]Slot, 0, len(slots))
	for _, s := range slots {
		past, err := IsSlotPast(dateStr, s.Start, loc, now)
		if err != nil {
			return nil, err
		}
		if !past {
			filtered = append(filtered, s)
		}
	}
	return filtered, nil
}
