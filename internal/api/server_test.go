package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/keen-eye/survey-engine/internal/cache"
	"github.com/keen-eye/survey-engine/internal/catalog"
	"github.com/keen-eye/survey-engine/internal/config"
	"github.com/keen-eye/survey-engine/internal/models"
	"github.com/keen-eye/survey-engine/internal/quiz"
	"github.com/keen-eye/survey-engine/internal/scoring"
	"github.com/keen-eye/survey-engine/internal/survey"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

type stubStats struct {
	stats *models.PopulationStats
	rank  *float64
	err   error
}

func (s *stubStats) Stats(ctx context.Context) (*models.PopulationStats, error) {
	return s.stats, s.err
}

func (s *stubStats) ScoreRank(ctx context.Context, score int) (*float64, error) {
	return s.rank, s.err
}

func (s *stubStats) Ping(ctx context.Context) error {
	return s.err
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *survey.Manager) {
	t.Helper()

	cat := catalog.Default()
	gen, err := quiz.NewGenerator(cat, rand.NewPCG(3, 5))
	require.NoError(t, err)

	mgr := survey.NewManager(gen, scoring.NewCatalogEngine(cat), cache.NewMemoryStore(time.Hour), nil, survey.Options{})
	t.Cleanup(func() { mgr.Close() })

	return NewServer(config.ServerConfig{Host: "127.0.0.1", Port: 8080}, mgr, opts...), mgr
}

func do(t *testing.T, s *Server, method, path string, body interface{}, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func startSession(t *testing.T, s *Server) models.StartSessionResponse {
	t.Helper()

	rec, env := do(t, s, http.MethodPost, "/api/v1/sessions", models.StartSessionRequest{
		Screen: &models.ScreenReport{Width: 1920, Height: 1080, PixelRatio: 1, ColorDepth: 24},
	}, "User-Agent", "Mozilla/5.0 Chrome/126.0.0.0 Safari/537.36")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp models.StartSessionResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	return resp
}

func TestHealthAndReady(t *testing.T) {
	s, _ := newTestServer(t)

	rec, env := do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	rec, _ = do(t, s, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	failing, _ := newTestServer(t, WithStats(&stubStats{err: errors.New("db down")}))
	rec, env = do(t, failing, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not_ready", env.Error.Code)
}

func TestGetCatalog(t *testing.T) {
	s, _ := newTestServer(t)

	rec, env := do(t, s, http.MethodGet, "/api/v1/catalog", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var info models.CatalogInfo
	require.NoError(t, json.Unmarshal(env.Data, &info))
	assert.Equal(t, 25, info.TotalQuestions)
	assert.Len(t, info.Categories, 3)
	assert.Len(t, info.Resolutions, 5)
}

func TestStartSession(t *testing.T) {
	s, _ := newTestServer(t)

	resp := startSession(t, s)
	assert.True(t, resp.Offline)
	assert.True(t, models.IsOfflineID(resp.ID))
	assert.Len(t, resp.Trials, 25)
	assert.Equal(t, models.DeviceDesktop, resp.DeviceInfo.DeviceType)
	assert.Equal(t, "chrome", resp.DeviceInfo.Browser)
}

func TestStartSessionWithoutBody(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestStartSessionRejectsBadScreen(t *testing.T) {
	s, _ := newTestServer(t)

	rec, env := do(t, s, http.MethodPost, "/api/v1/sessions", map[string]interface{}{
		"screen": map[string]interface{}{"width": -5, "height": 100},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Code)
	assert.Contains(t, env.Error.Message, "width")
}

func TestSubmitAnswerStatusMapping(t *testing.T) {
	s, _ := newTestServer(t)
	sess := startSession(t, s)
	base := "/api/v1/sessions/" + sess.ID
	first := sess.Trials[0]

	tests := []struct {
		name   string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"unknown session", "/api/v1/sessions/offline-1700000000000-5e8a1c2b-3d4f-4a6b-8c9d-0e1f2a3b4c5d/answers", models.SubmitAnswerRequest{QuestionID: 1, UserAnswer: models.SideLeft}, http.StatusNotFound, "not_found"},
		{"malformed id", "/api/v1/sessions/not-a-session/answers", models.SubmitAnswerRequest{QuestionID: 1, UserAnswer: models.SideLeft}, http.StatusNotFound, "not_found"},
		{"bad side", base + "/answers", map[string]interface{}{"question_id": first.ID, "user_answer": "up"}, http.StatusBadRequest, "validation_error"},
		{"missing question", base + "/answers", map[string]interface{}{"user_answer": "left"}, http.StatusBadRequest, "validation_error"},
		{"unknown trial", base + "/answers", models.SubmitAnswerRequest{QuestionID: 999, UserAnswer: models.SideLeft}, http.StatusNotFound, "trial_not_found"},
		{"accepted", base + "/answers", models.SubmitAnswerRequest{QuestionID: first.ID, UserAnswer: first.CorrectAnswer, ResponseTimeMs: 800}, http.StatusOK, ""},
		{"duplicate", base + "/answers", models.SubmitAnswerRequest{QuestionID: first.ID, UserAnswer: first.CorrectAnswer}, http.StatusConflict, "already_answered"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := do(t, s, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.code != "" {
				require.NotNil(t, env.Error)
				assert.Equal(t, tt.code, env.Error.Code)
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, base+"/answers", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_request")
}

func TestFullSurveyOverHTTP(t *testing.T) {
	s, _ := newTestServer(t)
	sess := startSession(t, s)
	base := "/api/v1/sessions/" + sess.ID

	rec, env := do(t, s, http.MethodGet, base+"/result", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "session_incomplete", env.Error.Code)

	var progress models.SubmitAnswerResponse
	for _, trial := range sess.Trials {
		rec, env := do(t, s, http.MethodPost, base+"/answers", models.SubmitAnswerRequest{
			QuestionID:     trial.ID,
			UserAnswer:     trial.CorrectAnswer,
			ResponseTimeMs: 1000,
		})
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(env.Data, &progress))
	}
	assert.True(t, progress.Complete)

	rec, env = do(t, s, http.MethodGet, base+"/result", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result models.Result
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 100, result.Score)
	assert.Equal(t, "Desktop", result.DeviceLabel)

	rec, env = do(t, s, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view models.SessionView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, models.SessionCompleted, view.Session.Status)
	assert.Equal(t, 25, view.Answered)

	rec, env = do(t, s, http.MethodPost, base+"/answers", models.SubmitAnswerRequest{QuestionID: 1, UserAnswer: models.SideLeft})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "session_completed", env.Error.Code)

	rec, _ = do(t, s, http.MethodGet, base+"/export.xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), sess.ID)

	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Summary", "DetectionRates", "Answers"}, f.GetSheetList())
}

func TestStatsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec, env := do(t, s, http.MethodGet, "/api/v1/stats", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "stats_unavailable", env.Error.Code)

	rank := 0.6
	stub := &stubStats{
		stats: &models.PopulationStats{Summary: models.PopulationSummary{Sessions: 10, Completed: 8}},
		rank:  &rank,
	}
	s, _ = newTestServer(t, WithStats(stub))

	rec, env = do(t, s, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats models.PopulationStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 8, stats.Summary.Completed)

	rec, env = do(t, s, http.MethodGet, "/api/v1/stats?score=75", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ranked struct {
		Score int      `json:"score"`
		Rank  *float64 `json:"rank"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &ranked))
	assert.Equal(t, 75, ranked.Score)
	require.NotNil(t, ranked.Rank)
	assert.InDelta(t, 0.6, *ranked.Rank, 1e-9)

	rec, _ = do(t, s, http.MethodGet, "/api/v1/stats?score=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsRequireAPIKey(t *testing.T) {
	cat := catalog.Default()
	gen, err := quiz.NewGenerator(cat, nil)
	require.NoError(t, err)
	mgr := survey.NewManager(gen, scoring.NewCatalogEngine(cat), cache.NewMemoryStore(time.Hour), nil, survey.Options{})

	s := NewServer(config.ServerConfig{AdminAPIKey: "sk_test_1234567890"}, mgr,
		WithStats(&stubStats{stats: &models.PopulationStats{}}))

	rec, env := do(t, s, http.MethodGet, "/api/v1/stats", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing_api_key", env.Error.Code)

	rec, env = do(t, s, http.MethodGet, "/api/v1/stats", nil, "X-API-Key", "sk_wrong_000000")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_api_key", env.Error.Code)

	rec, _ = do(t, s, http.MethodGet, "/api/v1/stats", nil, "Authorization", "Bearer sk_test_1234567890")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServesImages(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "product-01_720p.jpg"), []byte("jpeg"), 0o644))

	s, _ := newTestServer(t, WithImagesDir(dir))

	req := httptest.NewRequest(http.MethodGet, "/images/product-01_720p.jpg", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jpeg", rec.Body.String())
}

func TestRunnerWebSocket(t *testing.T) {
	s, _ := newTestServer(t)
	sess := startSession(t, s)

	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/sessions/" + sess.ID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// a message that is not an answer is rejected without losing the trial
	var first RunnerMessage
	require.NoError(t, conn.ReadJSON(&first))
	require.Equal(t, msgTrial, first.Type)
	require.NoError(t, conn.WriteJSON(RunnerMessage{Type: "hello"}))
	var rejected RunnerMessage
	require.NoError(t, conn.ReadJSON(&rejected))
	assert.Equal(t, msgError, rejected.Type)

	trial := first
	for i := 0; i < len(sess.Trials); i++ {
		if i > 0 {
			require.NoError(t, conn.ReadJSON(&trial))
		}
		require.Equal(t, msgTrial, trial.Type)
		require.NotNil(t, trial.Trial)
		assert.Equal(t, i+1, trial.Index)
		assert.Equal(t, trial.Trial.ImagePath(models.SideLeft), trial.LeftImage)

		require.NoError(t, conn.WriteJSON(RunnerMessage{
			Type: msgAnswer,
			Answer: &models.SubmitAnswerRequest{
				UserAnswer:     trial.Trial.CorrectAnswer,
				ResponseTimeMs: 700,
			},
		}))

		var progress RunnerMessage
		require.NoError(t, conn.ReadJSON(&progress))
		require.Equal(t, msgProgress, progress.Type)
		assert.Equal(t, i+1, progress.Progress.Answered)
	}

	var final RunnerMessage
	require.NoError(t, conn.ReadJSON(&final))
	require.Equal(t, msgResult, final.Type)
	assert.Equal(t, 100, final.Result.Score)
}

func TestRunnerSkipsTrialAnsweredOverHTTP(t *testing.T) {
	s, _ := newTestServer(t)
	sess := startSession(t, s)
	base := "/api/v1/sessions/" + sess.ID

	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + base + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first RunnerMessage
	require.NoError(t, conn.ReadJSON(&first))
	require.Equal(t, msgTrial, first.Type)
	require.Equal(t, sess.Trials[0].ID, first.Trial.ID)

	// another tab answers the trial the runner is waiting on
	rec, _ := do(t, s, http.MethodPost, base+"/answers", models.SubmitAnswerRequest{
		QuestionID: first.Trial.ID, UserAnswer: first.Trial.CorrectAnswer, ResponseTimeMs: 900,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, conn.WriteJSON(RunnerMessage{
		Type:   msgAnswer,
		Answer: &models.SubmitAnswerRequest{UserAnswer: first.Trial.CorrectAnswer, ResponseTimeMs: 700},
	}))

	var refused RunnerMessage
	require.NoError(t, conn.ReadJSON(&refused))
	assert.Equal(t, msgError, refused.Type)
	assert.Contains(t, refused.Error, "already answered")

	// the socket stays open and moves on
	var next RunnerMessage
	require.NoError(t, conn.ReadJSON(&next))
	require.Equal(t, msgTrial, next.Type)
	assert.Equal(t, 2, next.Index)
	assert.Equal(t, sess.Trials[1].ID, next.Trial.ID)

	require.NoError(t, conn.WriteJSON(RunnerMessage{
		Type:   msgAnswer,
		Answer: &models.SubmitAnswerRequest{UserAnswer: next.Trial.CorrectAnswer, ResponseTimeMs: 700},
	}))
	var progress RunnerMessage
	require.NoError(t, conn.ReadJSON(&progress))
	require.Equal(t, msgProgress, progress.Type)
	assert.Equal(t, 2, progress.Progress.Answered)
}

func TestValidSessionID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"5e8a1c2b-3d4f-4a6b-8c9d-0e1f2a3b4c5d", true},
		{models.NewOfflineID(time.Now()), true},
		{"offline-1700000000000-5e8a1c2b-3d4f-4a6b-8c9d-0e1f2a3b4c5d", true},
		{"offline-1700000000000", false},
		{"offline-", false},
		{"offline-abc-5e8a1c2b-3d4f-4a6b-8c9d-0e1f2a3b4c5d", false},
		{"not-a-session", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.valid, validSessionID(tt.id))
		})
	}
}
