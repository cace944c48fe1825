package api

import (
	"log/slog"
	"net/http"
	"strconv"
)

func (s *Server) handleGetCatalog(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.surveys.Catalog().Info())
}

// handleStats returns population aggregates. With ?score=N it also reports
// the share of completed sessions that scored below N.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		respondError(w, http.StatusServiceUnavailable, "stats_unavailable", "statistics require a database")
		return
	}

	stats, err := s.stats.Stats(r.Context())
	if err != nil {
		slog.Error("failed to get stats", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to get stats")
		return
	}

	scoreStr := r.URL.Query().Get("score")
	if scoreStr == "" {
		respondJSON(w, http.StatusOK, stats)
		return
	}

	score, err := strconv.Atoi(scoreStr)
	if err != nil || score < 0 || score > 100 {
		respondError(w, http.StatusBadRequest, "validation_error", "score must be an integer between 0 and 100")
		return
	}

	rank, err := s.stats.ScoreRank(r.Context(), score)
	if err != nil {
		slog.Error("failed to rank score", "error", err, "score", score)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to rank score")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"stats": stats,
		"score": score,
		"rank":  rank,
	})
}
