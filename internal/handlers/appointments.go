package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"haven-backend/internal/booking"
	"haven-backend/internal/store"
	"haven-backend/internal/transport"
)

func (s *Server) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	log := s.logWithRequest(r)
	var in booking.Input
	if err := decodeJSON(r, &in); err != nil {
		log.Warn("appointments create: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "validation_error", "invalid json", nil)
		return
	}
	in.SourceIP = requestIP(r)
	in.UserAgent = r.UserAgent()

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	id, err := s.Booking.Create(ctx, in)
	if err != nil {
		var verr *booking.ValidationError
		var serr *booking.StorageError
		switch {
		case errors.As(err, &verr):
			log.Warn("appointments create: validation error")
			transport.WriteError(w, http.StatusBadRequest, "validation_error", "validation error", verr.Fields)
		case errors.Is(err, booking.ErrSlotUnavailable):
			log.Warn("appointments create: slot unavailable",
				slog.String("date", in.Date), slog.String("start_time", in.StartTime))
			transport.WriteError(w, http.StatusConflict, "slot_unavailable", "slot not available", nil)
		case errors.As(err, &serr):
			log.Error("appointments create: storage error", slog.String("error", err.Error()))
			transport.WriteError(w, http.StatusInternalServerError, "storage_error", "booking failed", nil)
		default:
			log.Error("appointments create: error", slog.String("error", err.Error()))
			transport.WriteError(w, http.StatusInternalServerError, "storage_error", "booking failed", nil)
		}
		return
	}

	if s.Cache != nil {
		_ = s.Cache.DeletePrefix(r.Context(), "availability:"+in.Date+":")
	}

	log.Info("appointments create: booked",
		slog.String("appointment_id", id),
		slog.String("date", in.Date),
		slog.String("start_time", in.StartTime),
	)
	transport.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"id":     id,
		"status": "confirmed",
	})
}

func (s *Server) GetAppointment(w http.ResponseWriter, r *http.Request) {
	log := s.logWithRequest(r)
	id := chi.URLParam(r, "id")
	if id == "" {
		log.Warn("appointments get: missing id")
		transport.WriteError(w, http.StatusBadRequest, "validation_error", "missing id", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	appt, err := s.Store.GetAppointment(ctx, actorFromRequest(r), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("appointments get: not found", slog.String("appointment_id", id))
			transport.WriteError(w, http.StatusNotFound, "not_found", "appointment not found", nil)
			return
		}
		log.Error("appointments get: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "storage_error", "database error", nil)
		return
	}

	log.Info("appointments get: ok", slog.String("appointment_id", id))
	transport.WriteJSON(w, http.StatusOK, appt)
}

func (s *Server) GetDurations(w http.ResponseWriter, r *http.Request) {
	log := s.logWithRequest(r)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	cfg, err := s.Settings.Schedule(ctx)
	if err != nil {
		log.Error("durations: schedule load error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "storage_error", "database error", nil)
		return
	}

	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"durations": cfg.Durations,
	})
}
