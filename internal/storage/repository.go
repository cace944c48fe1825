package storage

import (
	"context"
	"time"

	"github.com/keen-eye/survey-engine/internal/models"
)

// Repository defines the interface for survey persistence
type Repository interface {
	// Sessions
	CreateSession(ctx context.Context, device models.DeviceInfo, startedAt time.Time) (string, error)
	FinalizeSession(ctx context.Context, id string, f models.Finalization) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ExpireStaleSessions(ctx context.Context, before time.Time) (int64, error)

	// Answers
	RecordAnswer(ctx context.Context, answer models.Answer) error
	ListAnswers(ctx context.Context, sessionID string) ([]models.Answer, error)

	// Health
	Ping(ctx context.Context) error
	Close() error
}
