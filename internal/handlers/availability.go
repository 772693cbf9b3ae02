package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"haven-backend/internal/schedule"
	"haven-backend/internal/transport"
)

var errInvalidDuration = errors.New("invalid duration")

type availabilityQuery struct {
	Date string `validate:"required,date"`
}

func (s *Server) GetAvailability(w http.ResponseWriter, r *http.Request) {
	log := s.logWithRequest(r)
	q := availabilityQuery{Date: r.URL.Query().Get("date")}
	if err := s.Val.Struct(q); err != nil {
		log.Warn("availability: invalid query")
		details := validationDetails(s.Val.ValidationErrors(err))
		transport.WriteError(w, http.StatusBadRequest, "validation_error", "invalid query", details)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	cfg, err := s.Settings.Schedule(ctx)
	if err != nil {
		log.Error("availability: schedule load error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "storage_error", "availability error", nil)
		return
	}

	duration, err := parseDurationParam(r.URL.Query().Get("duration"), cfg.DefaultDuration())
	if err != nil || !cfg.DurationOffered(duration) {
		log.Warn("availability: invalid duration")
		transport.WriteError(w, http.StatusBadRequest, "validation_error", "invalid duration", nil)
		return
	}

	cacheKey := "availability:" + q.Date + ":" + strconv.Itoa(duration)
	if s.Cache != nil {
		if cached, ok, err := s.Cache.Get(r.Context(), cacheKey); err == nil && ok {
			log.Info("availability: cache hit", slog.String("date", q.Date))
			writeCachedJSON(w, http.StatusOK, cached)
			return
		}
	}

	past, err := schedule.IsDatePast(q.Date, s.Cfg.Timezone, time.Now())
	if err != nil {
		log.Warn("availability: invalid date", slog.String("date", q.Date))
		transport.WriteError(w, http.StatusBadRequest, "validation_error", "invalid date", nil)
		return
	}
	if past {
		log.Warn("availability: date in the past", slog.String("date", q.Date))
		transport.WriteError(w, http.StatusBadRequest, "validation_error", "date in the past", nil)
		return
	}

	avail, err := s.computeAvailability(ctx, cfg, q.Date, duration)
	if err != nil {
		log.Error("availability: compute error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "storage_error", "availability error", nil)
		return
	}

	response := map[string]interface{}{
		"date":      q.Date,
		"timezone":  s.Cfg.Timezone.String(),
		"duration":  duration,
		"available": avail.Available,
		"slots":     avail.Slots,
	}

	if payload, err := encodeJSON(response); err == nil && s.Cache != nil {
		_ = s.Cache.Set(r.Context(), cacheKey, payload, time.Duration(s.Cfg.CacheTTLSeconds)*time.Second)
	}

	log.Info("availability: ok",
		slog.String("date", q.Date),
		slog.Int("duration", duration),
		slog.Bool("available", avail.Available),
		slog.Int("slots", len(avail.Slots)),
	)
	transport.WriteJSON(w, http.StatusOK, response)
}

// GetNextAvailability scans forward from today and returns the first date
// within 30 days that still has at least one free slot.
func (s *Server) GetNextAvailability(w http.ResponseWriter, r *http.Request) {
	log := s.logWithRequest(r)

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	cfg, err := s.Settings.Schedule(ctx)
	if err != nil {
		log.Error("availability next: schedule load error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "storage_error", "availability error", nil)
		return
	}

	duration, err := parseDurationParam(r.URL.Query().Get("duration"), cfg.DefaultDuration())
	if err != nil || !cfg.DurationOffered(duration) {
		log.Warn("availability next: invalid duration")
		transport.WriteError(w, http.StatusBadRequest, "validation_error", "invalid duration", nil)
		return
	}

	now := time.Now().In(s.Cfg.Timezone)
	for day := 0; day < 30; day++ {
		date := now.AddDate(0, 0, day).Format("2006-01-02")
		avail, err := s.computeAvailability(ctx, cfg, date, duration)
		if err != nil {
			log.Error("availability next: compute error", slog.String("date", date), slog.String("error", err.Error()))
			transport.WriteError(w, http.StatusInternalServerError, "storage_error", "availability error", nil)
			return
		}
		if len(avail.Slots) > 0 {
			log.Info("availability next: ok", slog.String("date", date), slog.Int("slots", len(avail.Slots)))
			transport.WriteJSON(w, http.StatusOK, map[string]interface{}{
				"date":     date,
				"timezone": s.Cfg.Timezone.String(),
				"duration": duration,
				"slots":    avail.Slots,
			})
			return
		}
	}

	log.Info("availability next: nothing within window", slog.Int("duration", duration))
	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"date":     nil,
		"duration": duration,
		"slots":    []schedule.Slot{},
	})
}

func (s *Server) computeAvailability(ctx context.Context, cfg schedule.Config, date string, duration int) (schedule.Availability, error) {
	special, err := s.Store.GetSpecialDate(ctx, date)
	if err != nil {
		return schedule.Availability{}, err
	}
	reserved, err := s.Store.ReservedIntervals(ctx, date)
	if err != nil {
		return schedule.Availability{}, err
	}
	avail, err := schedule.ComputeAvailableSlots(cfg, date, duration, special, reserved, s.Cfg.Timezone)
	if err != nil {
		return schedule.Availability{}, err
	}
	if dateIsToday(date, s.Cfg.Timezone) {
		slots, err := schedule.FilterPastSlots(date, avail.Slots, s.Cfg.Timezone, time.Now())
		if err == nil {
			avail.Slots = slots
		}
	}
	return avail, nil
}

func parseDurationParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0, errInvalidDuration
	}
	return parsed, nil
}

func dateIsToday(dateStr string, loc *time.Location) bool {
	date, err := schedule.ParseDate(dateStr, loc)
	if err != nil {
		return false
	}
	now := time.Now().In(loc)
	return date.Year() == now.Year() && date.YearDay() == now.YearDay()
}
