package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"haven-backend/internal/audit"
	"haven-backend/internal/auth"
	"haven-backend/internal/models"
	"haven-backend/internal/transport"
)

type AdminLoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type AdminLoginResponse struct {
	Status string `json:"status"`
}

type AdminRegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=60"`
	Password string `json:"password" validate:"required,min=10,max=128"`
	Email    string `json:"email" validate:"omitempty,email"`
}

func (s *Server) AdminLogin(w http.ResponseWriter, r *http.Request) {
	log := s.logWithRequest(r)
	var req AdminLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		log.Warn("admin login: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "validation_error", "invalid json", nil)
		return
	}
	if err := s.Val.Struct(req); err != nil {
		log.Warn("admin login: validation error")
		details := validationDetails(s.Val.ValidationErrors(err))
		transport.WriteError(w, http.StatusBadRequest, "validation_error", "validation error", details)
		return
	}

	if s.Auth == nil {
		log.Warn("admin login: not configured")
		transport.WriteError(w, http.StatusServiceUnavailable, "unauthorized", "admin auth not configured", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	user, ok := s.authenticate(ctx, log, req.Username, req.Password)
	if !ok {
		log.Warn("admin login: invalid credentials", slog.String("username", req.Username))
		transport.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials", nil)
		return
	}

	accessToken, err := s.Auth.NewAccessToken(user.ID, user.Username, user.Role)
	if err != nil {
		transport.WriteError(w, http.StatusInternalServerError, "storage_error", "token error", nil)
		return
	}
	refreshToken, err := s.Auth.NewRefreshToken(user.ID, user.Username, user.Role)
	if err != nil {
		transport.WriteError(w, http.StatusInternalServerError, "storage_error", "token error", nil)
		return
	}

	if _, err := s.Audit.Log(ctx, audit.Record{
		Action:     audit.ActionOperatorLogin,
		ActorID:    user.ID,
		ObjectID:   user.Username,
		ObjectType: audit.ObjectTypeSystem,
		IP:         requestIP(r),
		UserAgent:  r.UserAgent(),
	}); err != nil {
		log.Warn("admin login: audit write failed", slog.String("error", err.Error()))
	}

	setAuthCookies(w, accessToken, refreshToken, s.Auth.AccessTTL, s.Auth.RefreshTTL, s.Cfg.CookieSecure)
	log.Info("admin login: ok", slog.String("username", req.Username))
	transport.WriteJSON(w, http.StatusOK, AdminLoginResponse{Status: "ok"})
}

// authenticate checks the users collection first, then falls back to the
// env-configured bootstrap operator so a fresh deployment can log in
// before any user document exists.
func (s *Server) authenticate(ctx context.Context, log *slog.Logger, username, password string) (models.User, bool) {
	if s.Users != nil {
		var user models.User
		err := s.Users.FindOne(ctx, bson.M{"username": username}).Decode(&user)
		if err == nil {
			if auth.ComparePassword(user.PasswordHash, password) == nil {
				return user, true
			}
			return models.User{}, false
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			log.Error("admin login: database error", slog.String("error", err.Error()))
			return models.User{}, false
		}
	}

	if s.Cfg.AdminPassword != "" && username == s.Cfg.AdminUser && password == s.Cfg.AdminPassword {
		return models.User{Username: username, Role: models.UserRoleAdmin}, true
	}
	return models.User{}, false
}

func (s *Server) AdminRefresh(w http.ResponseWriter, r *http.Request) {
	log := s.logWithRequest(r)
	if s.Auth == nil {
		log.Warn("admin refresh: not configured")
		transport.WriteError(w, http.StatusServiceUnavailable, "unauthorized", "admin auth not configured", nil)
		return
	}

	refreshCookie, err := r.Cookie("haven_refresh")
	if err != nil || refreshCookie.Value == "" {
		log.Warn("admin refresh: missing refresh token")
		transport.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing refresh token", nil)
		return
	}

	claims, err := s.Auth.Parse(refreshCookie.Value)
	if err != nil || claims.Role != "admin" {
		log.Warn("admin refresh: invalid refresh token")
		transport.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid refresh token", nil)
		return
	}

	accessToken, err := s.Auth.NewAccessToken(claims.Subject, claims.Username, claims.Role)
	if err != nil {
		transport.WriteError(w, http.StatusInternalServerError, "storage_error", "token error", nil)
		return
	}
	refreshToken, err := s.Auth.NewRefreshToken(claims.Subject, claims.Username, claims.Role)
	if err != nil {
		transport.WriteError(w, http.StatusInternalServerError, "storage_error", "token error", nil)
		return
	}

	setAuthCookies(w, accessToken, refreshToken, s.Auth.AccessTTL, s.Auth.RefreshTTL, s.Cfg.CookieSecure)
	log.Info("admin refresh: ok")
	transport.WriteJSON(w, http.StatusOK, AdminLoginResponse{Status: "ok"})
}

func (s *Server) AdminLogout(w http.ResponseWriter, r *http.Request) {
	log := s.logWithRequest(r)
	clearAuthCookies(w, s.Cfg.CookieSecure)
	log.Info("admin logout: ok")
	transport.WriteJSON(w, http.StatusOK, AdminLoginResponse{Status: "ok"})
}

func (s *Server) AdminRegister(w http.ResponseWriter, r *http.Request) {
	log := s.logWithRequest(r)
	var req AdminRegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		log.Warn("admin register: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "validation_error", "invalid json", nil)
		return
	}
	if err := s.Val.Struct(req); err != nil {
		log.Warn("admin register: validation error")
		details := validationDetails(s.Val.ValidationErrors(err))
		transport.WriteError(w, http.StatusBadRequest, "validation_error", "validation error", details)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Error("admin register: hash error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "storage_error", "register failed", nil)
		return
	}

	user := models.User{
		ID:           primitive.NewObjectID().Hex(),
		Username:     strings.ToLower(strings.TrimSpace(req.Username)),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		Role:         models.UserRoleAdmin,
		CreatedAt:    time.Now().In(s.Cfg.Timezone),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, err := s.Users.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			log.Warn("admin register: username exists", slog.String("username", user.Username))
			transport.WriteError(w, http.StatusConflict, "validation_error", "username already exists", nil)
			return
		}
		log.Error("admin register: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "storage_error", "register failed", nil)
		return
	}

	log.Info("admin register: ok", slog.String("username", user.Username))
	transport.WriteJSON(w, http.StatusCreated, map[string]string{
		"id":       user.ID,
		"username": user.Username,
	})
}

func setAuthCookies(w http.ResponseWriter, access, refresh string, accessTTL, refreshTTL time.Duration, secure bool) {
	accessCookie := &http.Cookie{
		Name:     "haven_access",
		Value:    access,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(accessTTL.Seconds()),
	}
	refreshCookie := &http.Cookie{
		Name:     "haven_refresh",
		Value:    refresh,
		Path:     "/api/admin",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(refreshTTL.Seconds()),
	}
	http.SetCookie(w, accessCookie)
	http.SetCookie(w, refreshCookie)
}

func clearAuthCookies(w http.ResponseWriter, secure bool) {
	expire := time.Now().Add(-1 * time.Hour)
	accessCookie := &http.Cookie{
		Name:     "haven_access",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  expire,
		MaxAge:   -1,
	}
	refreshCookie := &http.Cookie{
		Name:     "haven_refresh",
		Value:    "",
		Path:     "/api/admin",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  expire,
		MaxAge:   -1,
	}
	http.SetCookie(w, accessCookie)
	http.SetCookie(w, refreshCookie)
}
