package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/keen-eye/survey-engine/internal/models"
)

var offlineIDPattern = regexp.MustCompile(`^` + models.OfflinePrefix +
	`\d+-[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// sessionIDMiddleware validates the {id} URL parameter and stores it in the
// request context. Ids are either database UUIDs or offline-<unixms>-<uuid>.
func (s *Server) sessionIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			respondError(w, http.StatusBadRequest, "validation_error", "session id is required")
			return
		}

		if !validSessionID(id) {
			respondError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}

		ctx := ContextWithSessionID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func validSessionID(id string) bool {
	if offlineIDPattern.MatchString(id) {
		return true
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// RequireAPIKey guards a route with a static key. An empty key leaves the
// route open.
// Supports formats: "Bearer <key>" or "<key>" in Authorization header
// Also supports X-API-Key header
func RequireAPIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := extractAPIKey(r)
			if provided == "" {
				respondError(w, http.StatusUnauthorized, "missing_api_key", "provide Authorization header with Bearer token or X-API-Key header")
				return
			}

			if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
				slog.Warn("invalid api key attempt", "key_prefix", maskKey(provided), "remote_addr", r.RemoteAddr)
				respondError(w, http.StatusUnauthorized, "invalid_api_key", "the provided api key is not valid")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractAPIKey extracts API key from request headers
func extractAPIKey(r *http.Request) string {
	// Try Authorization header first
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		if strings.HasPrefix(authHeader, "Bearer ") {
			return strings.TrimPrefix(authHeader, "Bearer ")
		}
		return authHeader
	}

	// Fallback to X-API-Key header
	return r.Header.Get("X-API-Key")
}

// maskKey returns first 8 chars of key for safe logging
func maskKey(key string) string {
	if len(key) < 8 {
		return "***"
	}
	return key[:8] + "..."
}
