package handlers

import (
	"log/slog"
	"net/http"

	"go.mongodb.org/mongo-driver/mongo"

	"haven-backend/internal/audit"
	"haven-backend/internal/auth"
	"haven-backend/internal/booking"
	"haven-backend/internal/cache"
	"haven-backend/internal/config"
	"haven-backend/internal/middleware"
	"haven-backend/internal/settings"
	"haven-backend/internal/store"
	"haven-backend/internal/validation"
)

type Server struct {
	Cfg      *config.Config
	Settings *settings.Service
	Store    *store.Store
	Booking  *booking.Service
	Audit    *audit.Trail
	Users    *mongo.Collection
	Val      *validation.Validator
	Log      *slog.Logger
	Cache    cache.Cache
	Auth     *auth.Manager
}

func (s *Server) logWithRequest(r *http.Request) *slog.Logger {
	if r == nil {
		return s.Log
	}
	if id := middleware.RequestIDFromContext(r.Context()); id != "" {
		return s.Log.With(slog.String("request_id", id))
	}
	return s.Log
}
