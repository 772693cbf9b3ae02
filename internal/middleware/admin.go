package middleware

import (
	"context"
	"net/http"

	"haven-backend/internal/auth"
	"haven-backend/internal/transport"
)

const accessCookieName = "haven_access"

type operatorKey struct{}

// Operator identifies the authenticated admin for audit attribution.
type Operator struct {
	ID       string
	Username string
}

func OperatorFromContext(ctx context.Context) Operator {
	if v := ctx.Value(operatorKey{}); v != nil {
		if op, ok := v.(Operator); ok {
			return op
		}
	}
	return Operator{}
}

func AdminAuth(adminKey string, manager *auth.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminKey == "" && manager == nil {
				transport.WriteError(w, http.StatusServiceUnavailable, "unavailable", "admin auth not configured", nil)
				return
			}

			if adminKey != "" && r.Header.Get("X-Admin-Key") == adminKey {
				ctx := context.WithValue(r.Context(), operatorKey{}, Operator{Username: "api-key"})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if manager != nil {
				cookie, err := r.Cookie(accessCookieName)
				if err == nil && cookie.Value != "" {
					claims, err := manager.Parse(cookie.Value)
					if err == nil && claims.Role == "admin" {
						op := Operator{ID: claims.Subject, Username: claims.Username}
						ctx := context.WithValue(r.Context(), operatorKey{}, op)
						next.ServeHTTP(w, r.WithContext(ctx))
						return
					}
				}
			}

			transport.WriteError(w, http.StatusUnauthorized, "unauthorized", "unauthorized", nil)
		})
	}
}
