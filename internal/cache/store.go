// Package cache keeps the working copy of each survey session: its trial list
// and the append-only answer sequence scoring is derived from.
package cache

import (
	"context"
	"errors"

	"github.com/keen-eye/survey-engine/internal/models"
)

// Store errors
var (
	ErrNotFound = errors.New("session not found in store")
	ErrExists   = errors.New("session already exists in store")
)

// Store defines the interface for session state caching
type Store interface {
	// CreateState stores a new session and fails with ErrExists when the id
	// is already live
	CreateState(ctx context.Context, state *models.SessionState) error
	SaveState(ctx context.Context, state *models.SessionState) error
	LoadState(ctx context.Context, sessionID string) (*models.SessionState, error)

	// AppendAnswer appends to the session's answer list and returns its new length
	AppendAnswer(ctx context.Context, sessionID string, answer models.Answer) (int, error)
	Answers(ctx context.Context, sessionID string) ([]models.Answer, error)

	Delete(ctx context.Context, sessionID string) error
	Ping(ctx context.Context) error
	Close() error
}
