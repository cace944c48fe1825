package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/keen-eye/survey-engine/internal/device"
	"github.com/keen-eye/survey-engine/internal/export"
	"github.com/keen-eye/survey-engine/internal/models"
)

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req models.StartSessionRequest
	if !s.decodeJSON(w, r, &req, true) {
		return
	}

	info := device.Detect(req.Screen, r.UserAgent(), s.now())

	state, err := s.surveys.Start(r.Context(), info)
	if err != nil {
		respondServiceError(w, err, "start session", "")
		return
	}

	respondJSON(w, http.StatusCreated, models.StartSessionResponse{
		ID:         state.Session.ID,
		Offline:    state.Session.Offline,
		DeviceInfo: state.Session.DeviceInfo,
		Trials:     state.Trials,
		StartedAt:  state.Session.StartedAt,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := SessionIDFromContext(r.Context())

	view, err := s.surveys.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, "get session", id)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	id := SessionIDFromContext(r.Context())

	var req models.SubmitAnswerRequest
	if !s.decodeJSON(w, r, &req, false) {
		return
	}

	resp, err := s.surveys.SubmitAnswer(r.Context(), id, req.QuestionID, req.UserAnswer, req.ResponseTimeMs)
	if err != nil {
		respondServiceError(w, err, "submit answer", id)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	id := SessionIDFromContext(r.Context())

	result, err := s.surveys.Result(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, "get result", id)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleExportSession(w http.ResponseWriter, r *http.Request) {
	id := SessionIDFromContext(r.Context())

	result, err := s.surveys.Result(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, "export session", id)
		return
	}

	view, err := s.surveys.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, "export session", id)
		return
	}

	f, err := export.Build(id, result, view.Answers)
	if err != nil {
		respondServiceError(w, err, "export session", id)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="survey-%s.xlsx"`, id))
	w.WriteHeader(http.StatusOK)
	if err := f.Write(w); err != nil {
		slog.Warn("failed to stream workbook", "error", err, "id", id)
	}
}
