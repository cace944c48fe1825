// Package survey runs survey sessions: it hands out trials, records answers
// in the answer store and scores the session once every trial is answered.
package survey

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/keen-eye/survey-engine/internal/cache"
	"github.com/keen-eye/survey-engine/internal/catalog"
	"github.com/keen-eye/survey-engine/internal/models"
	"github.com/keen-eye/survey-engine/internal/quiz"
	"github.com/keen-eye/survey-engine/internal/scoring"
	"github.com/keen-eye/survey-engine/internal/storage"
)

// Common errors
var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrTrialNotFound     = errors.New("trial not found in session")
	ErrAlreadyAnswered   = errors.New("trial already answered")
	ErrSessionCompleted  = errors.New("session is already completed")
	ErrInvalidAnswer     = errors.New("invalid answer")
	ErrSessionIncomplete = errors.New("session has unanswered trials")
)

const lockStripes = 64

// Service defines the interface for running survey sessions
type Service interface {
	Start(ctx context.Context, device models.DeviceInfo) (*models.SessionState, error)
	Get(ctx context.Context, id string) (*models.SessionView, error)
	SubmitAnswer(ctx context.Context, id string, questionID int, choice models.Side, responseTimeMs int64) (*models.SubmitAnswerResponse, error)
	Result(ctx context.Context, id string) (*models.Result, error)
	ExpireStale(ctx context.Context, olderThan time.Duration) (int64, error)
	Catalog() *catalog.Catalog
	Ping(ctx context.Context) error
	Close() error
}

// Options holds optional Manager settings
type Options struct {
	// MirrorTimeout bounds each background database write
	MirrorTimeout time.Duration
	// Now overrides the clock
	Now func() time.Time
}

// Manager implements Service. The answer store is the source of truth; the
// repository, when present, receives best-effort mirrors of every write.
type Manager struct {
	generator *quiz.Generator
	engine    *scoring.Engine
	store     cache.Store
	repo      storage.Repository

	mirrorTimeout time.Duration
	now           func() time.Time

	locks   [lockStripes]sync.Mutex
	mirrors sync.WaitGroup
}

// NewManager creates a Manager. repo may be nil, in which case every session
// runs offline.
func NewManager(generator *quiz.Generator, engine *scoring.Engine, store cache.Store, repo storage.Repository, opts Options) *Manager {
	if opts.MirrorTimeout <= 0 {
		opts.MirrorTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Manager{
		generator:     generator,
		engine:        engine,
		store:         store,
		repo:          repo,
		mirrorTimeout: opts.MirrorTimeout,
		now:           opts.Now,
	}
}

// Catalog returns the catalog trials are generated from
func (m *Manager) Catalog() *catalog.Catalog {
	return m.generator.Catalog()
}

// Ping checks the answer store and, when configured, the database
func (m *Manager) Ping(ctx context.Context) error {
	if err := m.store.Ping(ctx); err != nil {
		return fmt.Errorf("store ping failed: %w", err)
	}

	if m.repo != nil {
		if err := m.repo.Ping(ctx); err != nil {
			return fmt.Errorf("database ping failed: %w", err)
		}
	}

	return nil
}

// Start opens a session and generates its trials. When the database cannot
// hand out an id the session continues offline.
func (m *Manager) Start(ctx context.Context, device models.DeviceInfo) (*models.SessionState, error) {
	now := m.now().UTC()
	id, offline := m.newSessionID(ctx, device, now)

	trials := m.generator.Generate()
	state := &models.SessionState{
		Session: models.Session{
			ID:             id,
			Offline:        offline,
			Status:         models.SessionInProgress,
			DeviceInfo:     device,
			StartedAt:      now,
			TotalQuestions: len(trials),
		},
		Trials: trials,
	}

	if err := m.store.CreateState(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	slog.Info("session started",
		"session_id", id,
		"offline", offline,
		"trials", len(trials),
		"device_type", device.DeviceType,
	)

	return state, nil
}

func (m *Manager) newSessionID(ctx context.Context, device models.DeviceInfo, now time.Time) (string, bool) {
	if m.repo == nil {
		return models.NewOfflineID(now), true
	}

	id, err := m.repo.CreateSession(ctx, device, now)
	if err != nil {
		offlineID := models.NewOfflineID(now)
		slog.Warn("database unavailable, continuing offline",
			"session_id", offlineID,
			"error", err,
		)
		return offlineID, true
	}

	return id, false
}

// Get returns the session with its trials and answers. Sessions no longer in
// the answer store are looked up in the database.
func (m *Manager) Get(ctx context.Context, id string) (*models.SessionView, error) {
	state, err := m.store.LoadState(ctx, id)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			return nil, fmt.Errorf("failed to load session: %w", err)
		}
		return m.getArchived(ctx, id)
	}

	answers, err := m.store.Answers(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load answers: %w", err)
	}

	return &models.SessionView{
		Session:  state.Session,
		Trials:   state.Trials,
		Answers:  answers,
		Answered: len(answers),
		Total:    len(state.Trials),
	}, nil
}

func (m *Manager) getArchived(ctx context.Context, id string) (*models.SessionView, error) {
	if m.repo == nil || models.IsOfflineID(id) {
		return nil, ErrSessionNotFound
	}

	session, err := m.repo.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	answers, err := m.repo.ListAnswers(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}

	total := session.TotalQuestions
	if total == 0 {
		total = m.Catalog().TotalTrials()
	}

	return &models.SessionView{
		Session:  *session,
		Trials:   []models.Trial{},
		Answers:  answers,
		Answered: len(answers),
		Total:    total,
	}, nil
}

// SubmitAnswer records the user's choice for one trial. Answering the last
// trial finalizes the session.
func (m *Manager) SubmitAnswer(ctx context.Context, id string, questionID int, choice models.Side, responseTimeMs int64) (*models.SubmitAnswerResponse, error) {
	if !choice.Valid() {
		return nil, fmt.Errorf("%w: user answer must be left or right, got %q", ErrInvalidAnswer, choice)
	}
	if responseTimeMs < 0 {
		return nil, fmt.Errorf("%w: negative response time", ErrInvalidAnswer)
	}

	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	state, err := m.loadState(ctx, id)
	if err != nil {
		return nil, err
	}
	if state.Session.IsTerminal() {
		return nil, ErrSessionCompleted
	}

	trial, ok := state.Trial(questionID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrTrialNotFound, questionID)
	}

	answers, err := m.store.Answers(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load answers: %w", err)
	}
	for _, a := range answers {
		if a.QuestionID == questionID {
			return nil, fmt.Errorf("%w: %d", ErrAlreadyAnswered, questionID)
		}
	}

	answer := models.NewAnswer(id, trial, choice, responseTimeMs, m.now().UTC())
	answered, err := m.store.AppendAnswer(ctx, id, answer)
	if err != nil {
		return nil, fmt.Errorf("failed to record answer: %w", err)
	}

	if !state.Session.Offline && m.repo != nil {
		m.mirror("record_answer", id, func(ctx context.Context) error {
			return m.repo.RecordAnswer(ctx, answer)
		})
	}

	total := len(state.Trials)
	resp := &models.SubmitAnswerResponse{
		Answered:  answered,
		Remaining: max(total-answered, 0),
		Complete:  answered >= total,
	}

	if resp.Complete {
		if _, err := m.finalize(ctx, state, append(answers, answer)); err != nil {
			return nil, err
		}
	}

	return resp, nil
}

// Result scores a session whose trials have all been answered
func (m *Manager) Result(ctx context.Context, id string) (*models.Result, error) {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	state, err := m.store.LoadState(ctx, id)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			return nil, fmt.Errorf("failed to load session: %w", err)
		}
		return m.archivedResult(ctx, id)
	}

	answers, err := m.store.Answers(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load answers: %w", err)
	}

	if state.Session.Status == models.SessionCompleted && state.Session.CompletedAt != nil {
		return m.engine.Score(answers, state.Session.DeviceInfo, *state.Session.CompletedAt)
	}

	if len(answers) < len(state.Trials) {
		return nil, fmt.Errorf("%w: %d of %d answered", ErrSessionIncomplete, len(answers), len(state.Trials))
	}

	// every trial answered but the session was never finalized
	return m.finalize(ctx, state, answers)
}

func (m *Manager) archivedResult(ctx context.Context, id string) (*models.Result, error) {
	view, err := m.getArchived(ctx, id)
	if err != nil {
		return nil, err
	}
	session := view.Session
	if session.Status != models.SessionCompleted || session.CompletedAt == nil {
		return nil, fmt.Errorf("%w: %d of %d answered", ErrSessionIncomplete, view.Answered, view.Total)
	}

	if view.Answered == view.Total {
		return m.engine.Score(view.Answers, session.DeviceInfo, *session.CompletedAt)
	}

	// some answer mirrors were lost; the finalized record is authoritative
	if session.Analysis == nil {
		return nil, fmt.Errorf("%w: %d of %d answers archived", ErrSessionIncomplete, view.Answered, view.Total)
	}

	slog.Warn("archived answers incomplete, using finalized record",
		"session_id", id,
		"archived", view.Answered,
		"total", view.Total,
	)

	result := m.engine.Summarize(*session.Analysis)
	if session.Score != nil {
		result.Score = *session.Score
		result.Grade = m.engine.Rules().Grade(result.Score)
	}
	if session.Percentile != nil {
		result.Percentile = *session.Percentile
		result.TopPercent = 100 - result.Percentile
	}
	return result, nil
}

// finalize scores the session, marks it completed and mirrors the aggregate
// record. Caller holds the session lock.
func (m *Manager) finalize(ctx context.Context, state *models.SessionState, answers []models.Answer) (*models.Result, error) {
	completedAt := m.now().UTC()

	result, err := m.engine.Score(answers, state.Session.DeviceInfo, completedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to score session: %w", err)
	}

	s := &state.Session
	s.Status = models.SessionCompleted
	s.CompletedAt = &completedAt
	s.CorrectCount = result.Analysis.CorrectCount
	s.Score = &result.Score
	s.Percentile = &result.Percentile
	s.Analysis = &result.Analysis

	if err := m.store.SaveState(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	slog.Info("session completed",
		"session_id", s.ID,
		"score", result.Score,
		"percentile", result.Percentile,
		"recommendation", result.Recommendation,
	)

	if !s.Offline && m.repo != nil {
		fin := models.Finalization{CompletedAt: completedAt, Result: result}
		m.mirror("finalize_session", s.ID, func(ctx context.Context) error {
			return m.repo.FinalizeSession(ctx, s.ID, fin)
		})
	}

	return result, nil
}

// ExpireStale marks database sessions older than olderThan as abandoned and
// purges expired entries from an in-memory store
func (m *Manager) ExpireStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	if p, ok := m.store.(interface{ Purge() int }); ok {
		if n := p.Purge(); n > 0 {
			slog.Debug("purged expired sessions from memory", "count", n)
		}
	}

	if m.repo == nil {
		return 0, nil
	}

	n, err := m.repo.ExpireStaleSessions(ctx, m.now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to expire sessions: %w", err)
	}
	return n, nil
}

// Close waits for pending database mirrors
func (m *Manager) Close() error {
	m.mirrors.Wait()
	return nil
}

func (m *Manager) loadState(ctx context.Context, id string) (*models.SessionState, error) {
	state, err := m.store.LoadState(ctx, id)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			if m.repo != nil && !models.IsOfflineID(id) {
				if s, rerr := m.repo.GetSession(ctx, id); rerr == nil && s != nil && s.IsTerminal() {
					return nil, ErrSessionCompleted
				}
			}
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return state, nil
}

// mirror runs a database write in the background. Failures are logged and
// never reach the caller.
func (m *Manager) mirror(op, sessionID string, fn func(ctx context.Context) error) {
	m.mirrors.Add(1)
	go func() {
		defer m.mirrors.Done()

		ctx, cancel := context.WithTimeout(context.Background(), m.mirrorTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			slog.Warn("database mirror failed",
				"op", op,
				"session_id", sessionID,
				"error", err,
			)
		}
	}()
}

func (m *Manager) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &m.locks[h.Sum32()%lockStripes]
}
