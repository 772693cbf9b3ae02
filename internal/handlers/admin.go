package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"haven-backend/internal/audit"
	"haven-backend/internal/httpx"
	"haven-backend/internal/models"
	"haven-backend/internal/schedule"
	"haven-backend/internal/store"
	"haven-backend/internal/transport"
)

type AdminListQuery struct {
	Date   string `validate:"omitempty,date"`
	Status string `validate:"omitempty,oneof=confirmed cancelled pending"`
}

type AdminStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=confirmed cancelled pending"`
}

type AdminSpecialDateRequest struct {
	Date      string `json:"date" validate:"required,date"`
	Type      string `json:"type" validate:"required,oneof=holiday custom_hours"`
	Available bool   `json:"available"`
	StartTime string `json:"startTime" validate:"omitempty,clock"`
	EndTime   string `json:"endTime" validate:"omitempty,clock"`
	Notes     string `json:"notes" validate:"omitempty,max=500"`
}

func (s *Server) AdminListAppointments(w http.ResponseWriter, r *http.Request) {
	log := s.logWithRequest(r)
	q := AdminListQuery{
		Date:   r.URL.Query().Get("date"),
		Status: r.URL.Query().Get("status"),
	}
	if err := s.Val.Struct(q); err != nil {
		log.Warn("admin appointments list: invalid query")
		details := validationDetails(s.Val.ValidationErrors(err))
		transport.WriteError(w, http.StatusBadRequest, "validation_error", "invalid query", details)
		return
	}

	limit, offset, err := httpx.ParseLimitOffset(r.URL.Query(), 50, 200)
	if err != nil {
		log.Warn("admin appointments list: invalid pagination")
		transport.WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	appts, total, err := s.Store.ListAppointments(ctx, actorFromRequest(r), store.ListFilter{Date: q.Date, Status: q.Status}, limit, offset)
	if err != nil {
		log.Error("admin appointments list: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "storage_error", "database error", nil)
		return
	}

	log.Info("admin appointments list: ok", slog.Int("count", len(appts)), slog.Int64("total", total))
	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"appointments": appts,
		"total":        total,
		"limit":        limit,
		"offset":       offset,
	})
}

func (s *Server) AdminUpdateAppointmentStatus(w http.ResponseWriter, r *http.Request) {
	log := s.logWithRequest(r)
	id := chi.URLParam(r, "id")
	if id == "" {
		log.Warn("admin appointments status: missing id")
		transport.WriteError(w, http.StatusBadRequest, "validation_error", "missing id", nil)
		return
	}

	var req AdminStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		log.Warn("admin appointments status: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "validation_error", "invalid json", nil)
		return
	}
	if err := s.Val.Struct(req); err != nil {
		log.Warn("admin appointments status: validation error")
		details := validationDetails(s.Val.ValidationErrors(err))
		transport.WriteError(w, http.StatusBadRequest, "validation_error", "validation error", details)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	cfg, err := s.Settings.Schedule(ctx)
	if err != nil {
		log.Error("admin appointments status: schedule load error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "storage_error", "database error", nil)
		return
	}

	appt, err := s.Store.UpdateAppointmentStatus(ctx, actorFromRequest(r), id, req.Status, cfg.BreakMinutes)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			log.Warn("admin appointments status: not found", slog.String("appointment_id", id))
			transport.WriteError(w, http.StatusNotFound, "not_found", "appointment not found", nil)
		case errors.Is(err, store.ErrSlotTaken):
			log.Warn("admin appointments status: slot taken", slog.String("appointment_id", id))
			transport.WriteError(w, http.StatusConflict, "slot_unavailable", "slot not available", nil)
		default:
			log.Error("admin appointments status: database error", slog.String("error", err.Error()))
			transport.WriteError(w, http.StatusInternalServerError, "storage_error", "database error", nil)
		}
		return
	}

	if s.Cache != nil {
		_ = s.Cache.DeletePrefix(r.Context(), "availability:"+appt.Date+":")
	}

	log.Info("admin appointments status: ok",
		slog.String("appointment_id", id),
		slog.String("status", req.Status),
	)
	transport.WriteJSON(w, http.StatusOK, appt)
}

func (s *Server) AdminDeleteAppointment(w http.ResponseWriter, r *http.Request) {
	log := s.logWithRequest(r)
	id := chi.URLParam(r, "id")
	if id == "" {
		log.Warn("admin appointments delete: missing id")
		transport.WriteError(w, http.StatusBadRequest, "validation_error", "missing id", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	if err := s.Store.DeleteAppointment(ctx, actorFromRequest(r), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("admin appointments delete: not found", slog.String("appointment_id", id))
			transport.WriteError(w, http.StatusNotFound, "not_found", "appointment not found", nil)
			return
		}
		log.Error("admin appointments delete: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "storage_error", "database error", nil)
		return
	}

	if s.Cache != nil {
		_ = s.Cache.DeletePrefix(r.Context(), "availability:")
	}

	log.Info("admin appointments delete: ok", slog.String("appointment_id", id))
	transport.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) AdminListSpecialDates(w http.ResponseWriter, r *http.Request) {
	log := s.logWithRequest(r)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	from := r.URL.Query().Get("from")
	dates, err := s.Store.ListSpecialDates(ctx, from)
	if err != nil {
		log.Error("admin special dates list: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "storage_error", "database error", nil)
		return
	}

	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{"specialDates": dates})
}

func (s *Server) AdminSetSpecialDate(w http.ResponseWriter, r *http.Request) {
	log := s.logWithRequest(r)
	var req AdminSpecialDateRequest
	if err := decodeJSON(r, &req); err != nil {
		log.Warn("admin special dates set: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "validation_error", "invalid json", nil)
		return
	}
	if err := s.Val.Struct(req); err != nil {
		log.Warn("admin special dates set: validation error")
		details := validationDetails(s.Val.ValidationErrors(err))
		transport.WriteError(w, http.StatusBadRequest, "validation_error", "validation error", details)
		return
	}
	if req.Available && (req.StartTime == "" || req.EndTime == "") {
		log.Warn("admin special dates set: missing override times")
		transport.WriteError(w, http.StatusBadRequest, "validation_error", "available dates need startTime and endTime", nil)
		return
	}
	if req.Available {
		startMin, err1 := schedule.ParseClockToMinutes(req.StartTime)
		endMin, err2 := schedule.ParseClockToMinutes(req.EndTime)
		if err1 != nil || err2 != nil || endMin <= startMin {
			log.Warn("admin special dates set: invalid override window")
			transport.WriteError(w, http.StatusBadRequest, "validation_error", "endTime must be after startTime", nil)
			return
		}
	}

	sd := models.SpecialDate{
		Date:      req.Date,
		Type:      req.Type,
		Available: req.Available,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Notes:     req.Notes,
		CreatedAt: time.Now().In(s.Cfg.Timezone),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.Store.UpsertSpecialDate(ctx, actorFromRequest(r), sd); err != nil {
		log.Error("admin special dates set: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "storage_error", "database error", nil)
		return
	}

	if s.Cache != nil {
		_ = s.Cache.DeletePrefix(r.Context(), "availability:"+req.Date+":")
	}

	log.Info("admin special dates set: ok", slog.String("date", req.Date), slog.Bool("available", req.Available))
	transport.WriteJSON(w, http.StatusOK, sd)
}

func (s *Server) AdminDeleteSpecialDate(w http.ResponseWriter, r *http.Request) {
	log := s.logWithRequest(r)
	date := chi.URLParam(r, "date")
	if date == "" {
		log.Warn("admin special dates delete: missing date")
		transport.WriteError(w, http.StatusBadRequest, "validation_error", "missing date", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.Store.DeleteSpecialDate(ctx, actorFromRequest(r), date); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("admin special dates delete: not found", slog.String("date", date))
			transport.WriteError(w, http.StatusNotFound, "not_found", "special date not found", nil)
			return
		}
		log.Error("admin special dates delete: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "storage_error", "database error", nil)
		return
	}

	if s.Cache != nil {
		_ = s.Cache.DeletePrefix(r.Context(), "availability:"+date+":")
	}

	log.Info("admin special dates delete: ok", slog.String("date", date))
	transport.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) AdminQueryAudit(w http.ResponseWriter, r *http.Request) {
	log := s.logWithRequest(r)

	limit, offset, err := httpx.ParseLimitOffset(r.URL.Query(), 50, 500)
	if err != nil {
		log.Warn("admin audit: invalid pagination")
		transport.WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}

	filter := audit.Filter{
		Action:     r.URL.Query().Get("action"),
		ActorID:    r.URL.Query().Get("actorId"),
		ObjectID:   r.URL.Query().Get("objectId"),
		ObjectType: r.URL.Query().Get("objectType"),
		IP:         r.URL.Query().Get("ip"),
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err := time.ParseInLocation("2006-01-02", raw, s.Cfg.Timezone)
		if err != nil {
			transport.WriteError(w, http.StatusBadRequest, "validation_error", "invalid from date", nil)
			return
		}
		filter.From = from
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err := time.ParseInLocation("2006-01-02", raw, s.Cfg.Timezone)
		if err != nil {
			transport.WriteError(w, http.StatusBadRequest, "validation_error", "invalid to date", nil)
			return
		}
		filter.To = to.AddDate(0, 0, 1)
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	entries, total, err := s.Audit.Query(ctx, filter, limit, offset)
	if err != nil {
		log.Error("admin audit: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "storage_error", "database error", nil)
		return
	}

	log.Info("admin audit: ok", slog.Int("count", len(entries)), slog.Int64("total", total))
	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

func (s *Server) AdminUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	log := s.logWithRequest(r)
	var cfg schedule.Config
	if err := decodeJSON(r, &cfg); err != nil {
		log.Warn("admin settings schedule: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "validation_error", "invalid json", nil)
		return
	}
	if err := cfg.Validate(); err != nil {
		log.Warn("admin settings schedule: invalid schedule", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	if err := s.Settings.UpdateSchedule(ctx, cfg); err != nil {
		log.Error("admin settings schedule: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "storage_error", "database error", nil)
		return
	}

	actor := actorFromRequest(r)
	if _, err := s.Audit.Log(ctx, audit.Record{
		Action:     audit.ActionSettingsUpdated,
		ActorID:    actor.ID,
		ObjectID:   "schedule",
		ObjectType: audit.ObjectTypeSettings,
		IP:         actor.IP,
		UserAgent:  actor.UserAgent,
	}); err != nil {
		log.Warn("admin settings schedule: audit write failed", slog.String("error", err.Error()))
	}

	if s.Cache != nil {
		_ = s.Cache.DeletePrefix(r.Context(), "availability:")
	}

	log.Info("admin settings schedule: ok")
	transport.WriteJSON(w, http.StatusOK, cfg)
}
