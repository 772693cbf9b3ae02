// Package settings is the configuration store: named settings persisted as
// key/value documents, with code-level defaults and a strongly typed
// projection of the schedule configuration.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"haven-backend/internal/schedule"
)

const (
	KeyWorkingDays    = "working_days"
	KeyScheduleBlocks = "schedule_blocks"
	KeyBreakMinutes   = "break_minutes"
	KeySlotInterval   = "slot_interval_minutes"
	KeyDurations      = "durations"
)

type Service struct {
	col *mongo.Collection
}

func New(col *mongo.Collection) *Service {
	return &Service{col: col}
}

type settingDoc struct {
	Key   string        `bson:"_id"`
	Value bson.RawValue `bson:"value"`
}

// Get decodes the stored value for key into out. The second return is
// false when the key is absent and the caller's default should stand.
func (s *Service) Get(ctx context.Context, key string, out interface{}) (bool, error) {
	var doc settingDoc
	if err := s.col.FindOne(ctx, bson.M{"_id": key}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, err
	}
	if err := doc.Value.Unmarshal(out); err != nil {
		return false, fmt.Errorf("setting %s: %w", key, err)
	}
	return true, nil
}

func (s *Service) Set(ctx context.Context, key string, value interface{}) error {
	opts := options.Update().SetUpsert(true)
	_, err := s.col.UpdateOne(ctx, bson.M{"_id": key}, bson.M{"$set": bson.M{"value": value}}, opts)
	return err
}

// DefaultSchedule is used when no settings have been stored yet:
// Monday-Friday 09:00-18:00, 15-minute break, 30-minute grid.
func DefaultSchedule() schedule.Config {
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
		Durations: []schedule.DurationOption{
			{Minutes: 60, Price: 100},
			{Minutes: 90, Price: 140},
			{Minutes: 120, Price: 180},
		},
	}
}

// Schedule assembles the typed schedule configuration from the stored
// settings, falling back to defaults per key, and validates the result.
func (s *Service) Schedule(ctx context.Context) (schedule.Config, error) {
	cfg := DefaultSchedule()

	var days []int
	if ok, err := s.Get(ctx, KeyWorkingDays, &days); err != nil {
		return schedule.Config{}, err
	} else if ok {
		working := map[int]bool{}
		for _, d := range days {
			working[d] = true
		}
		cfg.WorkingDays = working
	}

	var rawBlocks map[string][]schedule.Block
	if ok, err := s.Get(ctx, KeyScheduleBlocks, &rawBlocks); err != nil {
		return schedule.Config{}, err
	} else if ok {
		blocks, err := decodeBlockKeys(rawBlocks)
		if err != nil {
			return schedule.Config{}, err
		}
		cfg.Blocks = blocks
	}

	var breakMinutes int
	if ok, err := s.Get(ctx, KeyBreakMinutes, &breakMinutes); err != nil {
		return schedule.Config{}, err
	} else if ok {
		cfg.BreakMinutes = breakMinutes
	}

	var interval int
	if ok, err := s.Get(ctx, KeySlotInterval, &interval); err != nil {
		return schedule.Config{}, err
	} else if ok {
		cfg.SlotIntervalMinutes = interval
	}

	var durations []schedule.DurationOption
	if ok, err := s.Get(ctx, KeyDurations, &durations); err != nil {
		return schedule.Config{}, err
	} else if ok {
		cfg.Durations = durations
	}

	if err := cfg.Validate(); err != nil {
		return schedule.Config{}, fmt.Errorf("stored schedule settings invalid: %w", err)
	}
	return cfg, nil
}

// UpdateSchedule validates and persists a full schedule configuration.
func (s *Service) UpdateSchedule(ctx context.Context, cfg schedule.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	days := make([]int, 0, len(cfg.WorkingDays))
	for day, on := range cfg.WorkingDays {
		if on {
			days = append(days, day)
		}
	}
	if err := s.Set(ctx, KeyWorkingDays, days); err != nil {
		return err
	}
	if err := s.Set(ctx, KeyScheduleBlocks, encodeBlockKeys(cfg.Blocks)); err != nil {
		return err
	}
	if err := s.Set(ctx, KeyBreakMinutes, cfg.BreakMinutes); err != nil {
		return err
	}
	if err := s.Set(ctx, KeySlotInterval, cfg.SlotIntervalMinutes); err != nil {
		return err
	}
	return s.Set(ctx, KeyDurations, cfg.Durations)
}

// bson maps key on strings, weekdays live as "0".."6".

func encodeBlockKeys(blocks map[int][]schedule.Block) map[string][]schedule.Block {
	out := make(map[string][]schedule.Block, len(blocks))
	for day, b := range blocks {
		out[strconv.Itoa(day)] = b
	}
	return out
}

func decodeBlockKeys(raw map[string][]schedule.Block) (map[int][]schedule.Block, error) {
	out := make(map[int][]schedule.Block, len(raw))
	for key, b := range raw {
		day, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("schedule block weekday %q: %w", key, err)
		}
		out[day] = b
	}
	return out, nil
}
