package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/keen-eye/survey-engine/internal/scoring"
	"github.com/keen-eye/survey-engine/internal/survey"
)

const maxBodyBytes = 64 << 10

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// respondServiceError maps survey errors to HTTP statuses
func respondServiceError(w http.ResponseWriter, err error, action, id string) {
	switch {
	case errors.Is(err, survey.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "not_found", "session not found")
	case errors.Is(err, survey.ErrTrialNotFound):
		respondError(w, http.StatusNotFound, "trial_not_found", err.Error())
	case errors.Is(err, survey.ErrInvalidAnswer):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, survey.ErrAlreadyAnswered):
		respondError(w, http.StatusConflict, "already_answered", err.Error())
	case errors.Is(err, survey.ErrSessionCompleted):
		respondError(w, http.StatusConflict, "session_completed", "session is already completed")
	case errors.Is(err, survey.ErrSessionIncomplete):
		respondError(w, http.StatusConflict, "session_incomplete", err.Error())
	case errors.Is(err, scoring.ErrNoAnswers), errors.Is(err, scoring.ErrMalformedAnswer):
		slog.Error("stored answers cannot be scored", "error", err, "id", id)
		respondError(w, http.StatusUnprocessableEntity, "invalid_answers", err.Error())
	default:
		slog.Error("failed to "+action, "error", err, "id", id)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to "+action)
	}
}

// decodeJSON reads a JSON body into v and validates it. An empty body leaves
// v at its zero value when allowEmpty is set.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}, allowEmpty bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
			return false
		}
	}

	if err := s.validate.Struct(v); err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	g, ctx := errgroup.WithContext(r.Context())

	g.Go(func() error {
		return s.surveys.Ping(ctx)
	})
	if s.stats != nil {
		g.Go(func() error {
			if err := s.stats.Ping(ctx); err != nil {
				return fmt.Errorf("stats ping failed: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		slog.Warn("readiness check failed", "error", err)
		respondError(w, http.StatusServiceUnavailable, "not_ready", "service not ready")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
