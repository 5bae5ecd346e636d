package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const (
	callerKey    contextKey = "caller"
	requestIDKey contextKey = "request_id"
)

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestID)
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// callerAuthMiddleware extracts the opaque caller identity established
// by the external auth collaborator. The bearer token subject is the
// identity; no session mechanics live here.
func (h *Handler) callerAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			h.sendError(w, "Missing bearer token", http.StatusUnauthorized, "UNAUTHORIZED")
			return
		}
		caller := strings.TrimSpace(auth[7:])
		if caller == "" {
			h.sendError(w, "Empty bearer token", http.StatusUnauthorized, "UNAUTHORIZED")
			return
		}
		ctx := context.WithValue(r.Context(), callerKey, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.limiter.allow(callerFromContext(r.Context()), time.Now()) {
			h.sendError(w, "Rate limit exceeded", http.StatusTooManyRequests, "RATE_LIMITED")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func callerFromContext(ctx context.Context) string {
	if v := ctx.Value(callerKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
