package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/keen-eye/survey-engine/internal/models"
)

type memoryEntry struct {
	state     *models.SessionState
	answers   []models.Answer
	expiresAt time.Time
}

// MemoryStore implements Store in process memory. It is used when Redis is
// not configured or unreachable; its contents do not survive a restart.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// live returns the entry for id unless it is missing or expired. Caller holds mu.
func (s *MemoryStore) live(id string) (*memoryEntry, bool) {
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	if s.now().After(e.expiresAt) {
		delete(s.entries, id)
		return nil, false
	}
	return e, true
}

// CreateState stores a copy of a new session's state
func (s *MemoryStore) CreateState(ctx context.Context, state *models.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.live(state.Session.ID); ok {
		return fmt.Errorf("%w: %s", ErrExists, state.Session.ID)
	}
	s.put(state)
	return nil
}

// SaveState stores a copy of the session state
func (s *MemoryStore) SaveState(ctx context.Context, state *models.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.put(state)
	return nil
}

// put stores a copy of state and resets its expiry. Caller holds mu.
func (s *MemoryStore) put(state *models.SessionState) {
	cp := *state
	cp.Trials = append([]models.Trial(nil), state.Trials...)

	e, ok := s.live(state.Session.ID)
	if !ok {
		e = &memoryEntry{}
		s.entries[state.Session.ID] = e
	}
	e.state = &cp
	e.expiresAt = s.now().Add(s.ttl)
}

// LoadState returns a copy of the session state
func (s *MemoryStore) LoadState(ctx context.Context, sessionID string) (*models.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(sessionID)
	if !ok || e.state == nil {
		return nil, ErrNotFound
	}

	cp := *e.state
	cp.Trials = append([]models.Trial(nil), e.state.Trials...)
	return &cp, nil
}

// AppendAnswer appends to the session's answer list
func (s *MemoryStore) AppendAnswer(ctx context.Context, sessionID string, answer models.Answer) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(sessionID)
	if !ok {
		e = &memoryEntry{}
		s.entries[sessionID] = e
	}
	e.answers = append(e.answers, answer)
	e.expiresAt = s.now().Add(s.ttl)
	return len(e.answers), nil
}

// Answers returns a copy of the session's answers in submission order
func (s *MemoryStore) Answers(ctx context.Context, sessionID string) ([]models.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(sessionID)
	if !ok {
		return []models.Answer{}, nil
	}
	return append([]models.Answer{}, e.answers...), nil
}

// Delete removes a session
func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID)
	return nil
}

// Purge drops expired sessions and returns how many were removed
func (s *MemoryStore) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored sessions, expired ones included
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Ping always succeeds
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}
