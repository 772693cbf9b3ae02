package handlers

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"haven-backend/internal/httpx"
	"haven-backend/internal/middleware"
	"haven-backend/internal/store"
)

func decodeJSON(r *http.Request, v interface{}) error {
	return httpx.DecodeJSON(r.Body, v)
}

func writeCachedJSON(w http.ResponseWriter, status int, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(payload)
}

func encodeJSON(payload interface{}) ([]byte, error) {
	return json.Marshal(payload)
}

// actorFromRequest builds the audit actor for the current request. For
// admin routes the operator comes from the auth middleware; public
// routes leave ID empty (anonymous client).
func actorFromRequest(r *http.Request) store.Actor {
	op := middleware.OperatorFromContext(r.Context())
	id := op.ID
	if id == "" {
		id = op.Username
	}
	return store.Actor{
		ID:        id,
		IP:        requestIP(r),
		UserAgent: r.UserAgent(),
	}
}

func requestIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		parts := strings.Split(xf, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
