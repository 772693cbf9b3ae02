package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"haven-backend/internal/audit"
	"haven-backend/internal/auth"
	"haven-backend/internal/booking"
	"haven-backend/internal/cache"
	"haven-backend/internal/calendar"
	"haven-backend/internal/config"
	"haven-backend/internal/crypto"
	"haven-backend/internal/db"
	"haven-backend/internal/handlers"
	"haven-backend/internal/middleware"
	"haven-backend/internal/notifications"
	"haven-backend/internal/settings"
	"haven-backend/internal/store"
	"haven-backend/internal/validation"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

var errEncryptionKeyRequired = errors.New("ENCRYPTION_KEY is required outside development")

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	key, err := encryptionKey(cfg, logger)
	if err != nil {
		logger.Error("encryption key error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	codec, err := crypto.NewCodec(key)
	if err != nil {
		logger.Error("encryption codec error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, cols, err := db.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		logger.Error("mongo connection failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("mongo connected")
	defer client.Disconnect(context.Background())

	if err := db.EnsureIndexes(ctx, cols); err != nil {
		logger.Error("index creation failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var cacheStore cache.Cache = cache.NewNoop()
	if cfg.RedisURL != "" || cfg.RedisAddr != "" {
		var redisCache *cache.RedisCache
		var err error
		if cfg.RedisURL != "" {
			redisCache, err = cache.NewRedisFromURL(cfg.RedisURL)
		} else {
			redisCache = cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		}
		if err != nil {
			logger.Error("redis connection failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := redisCache.Ping(ctx); err != nil {
			logger.Error("redis connection failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("redis connected")
		cacheStore = redisCache
	}

	var jwtManager *auth.Manager
	if cfg.JWTSecret != "" {
		jwtManager = &auth.Manager{
			Secret:     []byte(cfg.JWTSecret),
			AccessTTL:  time.Duration(cfg.AccessTTLMinutes) * time.Minute,
			RefreshTTL: time.Duration(cfg.RefreshTTLMinutes) * time.Minute,
			Issuer:     "haven-backend",
		}
	}

	trail := audit.New(cols.AuditLog, cols.AuditCounters)
	recordStore := store.New(cols.Appointments, cols.SpecialDates, codec, trail, logger, cfg.Timezone)
	settingsService := settings.New(cols.Settings)
	val := validation.New()

	var calendarClient booking.Calendar
	if c := calendar.NewClient(cfg.CalendarBaseURL, cfg.CalendarAPIKey, cfg.CalendarID); c != nil {
		calendarClient = c
		logger.Info("calendar sync enabled")
	} else {
		logger.Info("calendar sync disabled")
	}

	var mailer booking.Mailer
	if brevo := notifications.NewBrevoClient(cfg.BrevoAPIKey, cfg.BrevoSenderEmail, cfg.BrevoSenderName, cfg.BrevoSandbox); brevo != nil {
		mailer = notifications.NewMailer(brevo, cfg.TherapistEmail, cfg.TherapistName, logger)
		logger.Info("brevo mailer enabled", slog.String("sender", cfg.BrevoSenderEmail), slog.Bool("sandbox", cfg.BrevoSandbox))
	} else {
		logger.Info("brevo mailer disabled")
	}

	bookingService := booking.NewService(recordStore, settingsService, calendarClient, mailer, val, logger, cfg.Timezone)

	server := &handlers.Server{
		Cfg:      cfg,
		Settings: settingsService,
		Store:    recordStore,
		Booking:  bookingService,
		Audit:    trail,
		Users:    cols.Users,
		Val:      val,
		Log:      logger,
		Cache:    cacheStore,
		Auth:     jwtManager,
	}

	if _, err := trail.Log(ctx, audit.Record{
		Action:     audit.ActionSystemStartup,
		ObjectType: audit.ObjectTypeSystem,
	}); err != nil {
		logger.Warn("startup audit entry failed", slog.String("error", err.Error()))
	}

	retentionCtx, retentionCancel := context.WithCancel(context.Background())
	defer retentionCancel()
	go runRetentionLoop(retentionCtx, trail, cfg.AuditRetentionDays, logger)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.FrontendOrigins))
	r.Use(chiMiddleware.Timeout(30 * time.Second))

	bookingsLimiter := middleware.NewRateLimiter(cfg.RateLimitBookings, time.Duration(cfg.RateLimitWindowSec)*time.Second)

	r.Route("/api", func(api chi.Router) {
		api.Get("/availability", server.GetAvailability)
		api.Get("/availability/next", server.GetNextAvailability)
		api.Get("/durations", server.GetDurations)
		api.With(bookingsLimiter.Middleware).Post("/appointments", server.CreateAppointment)
		api.Get("/appointments/{id}", server.GetAppointment)

		api.Route("/admin", func(admin chi.Router) {
			admin.Post("/login", server.AdminLogin)
			admin.Post("/refresh", server.AdminRefresh)
			admin.Post("/logout", server.AdminLogout)

			// chi requires middlewares before routes; auth endpoints above
			// stay public, everything else goes through AdminAuth.
			admin.Group(func(protected chi.Router) {
				protected.Use(middleware.AdminAuth(cfg.AdminAPIKey, jwtManager))
				protected.Post("/register", server.AdminRegister)
				protected.Get("/appointments", server.AdminListAppointments)
				protected.Patch("/appointments/{id}/status", server.AdminUpdateAppointmentStatus)
				protected.Delete("/appointments/{id}", server.AdminDeleteAppointment)
				protected.Get("/special-dates", server.AdminListSpecialDates)
				protected.Post("/special-dates", server.AdminSetSpecialDate)
				protected.Delete("/special-dates/{date}", server.AdminDeleteSpecialDate)
				protected.Get("/audit", server.AdminQueryAudit)
				protected.Put("/settings/schedule", server.AdminUpdateSchedule)
			})
		})
	})

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: r,
	}

	go func() {
		logger.Info("server started", slog.String("addr", cfg.ServerAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	retentionCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if _, err := trail.Log(shutdownCtx, audit.Record{
		Action:     audit.ActionSystemShutdown,
		ObjectType: audit.ObjectTypeSystem,
	}); err != nil {
		logger.Warn("shutdown audit entry failed", slog.String("error", err.Error()))
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
}

// encryptionKey loads the field-encryption key. Production refuses to
// start without one; development falls back to an ephemeral key so local
// setups work, at the cost of unreadable records across restarts.
func encryptionKey(cfg *config.Config, logger *slog.Logger) ([]byte, error) {
	if cfg.EncryptionKeyHex != "" {
		return crypto.KeyFromHex(cfg.EncryptionKeyHex)
	}
	if cfg.Env != "development" {
		return nil, errEncryptionKeyRequired
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	logger.Warn("ENCRYPTION_KEY not set, using ephemeral key", slog.String("hint", hex.EncodeToString(key[:4])))
	return key, nil
}

func runRetentionLoop(ctx context.Context, trail *audit.Trail, retentionDays int, logger *slog.Logger) {
	if retentionDays <= 0 {
		return
	}
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		deleted, err := trail.Cleanup(runCtx, retentionDays)
		if err != nil {
			logger.Error("audit retention cleanup failed", slog.String("error", err.Error()))
			cancel()
			continue
		}
		if deleted > 0 {
			if _, err := trail.Log(runCtx, audit.Record{
				Action:     audit.ActionRetentionCleanup,
				ObjectType: audit.ObjectTypeSystem,
				Detail:     map[string]any{"deleted": deleted, "retention_days": retentionDays},
			}); err != nil {
				logger.Warn("retention audit entry failed", slog.String("error", err.Error()))
			}
		}
		logger.Info("audit retention cleanup done", slog.Int64("deleted", deleted))
		cancel()
	}
}
