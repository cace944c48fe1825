package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keen-eye/survey-engine/internal/models"
)

// querier is the subset of *pgxpool.Pool the repository queries through
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
	db   querier
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 2
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool, db: pool}, nil
}

// Pool exposes the connection pool for migrations
func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}

// --- Sessions ---

// CreateSession inserts a new in-progress session and returns its id
func (r *PostgresRepository) CreateSession(ctx context.Context, device models.DeviceInfo, startedAt time.Time) (string, error) {
	deviceJSON, err := json.Marshal(device)
	if err != nil {
		return "", fmt.Errorf("failed to marshal device info: %w", err)
	}

	id := uuid.New().String()
	query := `
		INSERT INTO test_sessions (id, device_info, status, started_at, device_type)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = r.db.Exec(ctx, query,
		id,
		deviceJSON,
		string(models.SessionInProgress),
		startedAt,
		nullString(device.DeviceType),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	return id, nil
}

// FinalizeSession writes the aggregate record of a completed session. A
// session that is already completed is left untouched.
func (r *PostgresRepository) FinalizeSession(ctx context.Context, id string, f models.Finalization) error {
	if f.Result == nil {
		return fmt.Errorf("failed to finalize session %s: missing result", id)
	}
	a := f.Result.Analysis

	ratesJSON, err := json.Marshal(a.DetectionRates)
	if err != nil {
		return fmt.Errorf("failed to marshal detection rates: %w", err)
	}
	categoriesJSON, err := json.Marshal(a.CategoryScores)
	if err != nil {
		return fmt.Errorf("failed to marshal category scores: %w", err)
	}
	rtJSON, err := json.Marshal(a.ResponseTime)
	if err != nil {
		return fmt.Errorf("failed to marshal response time stats: %w", err)
	}

	query := `
		UPDATE test_sessions
		SET status = $2, completed_at = $3, total_questions = $4, correct_count = $5,
		    accuracy = $6, consistency_score = $7, retest_count = $8, detection_rates = $9,
		    category_scores = $10, avg_response_time = $11, response_time = $12,
		    score = $13, percentile = $14, recommendation = $15, device_type = $16
		WHERE id = $1 AND status <> $2
	`

	result, err := r.db.Exec(ctx, query,
		id,
		string(models.SessionCompleted),
		f.CompletedAt,
		a.TotalQuestions,
		a.CorrectCount,
		a.Accuracy,
		a.ConsistencyScore,
		a.RetestCount,
		ratesJSON,
		categoriesJSON,
		a.AvgResponseTime,
		rtJSON,
		f.Result.Score,
		f.Result.Percentile,
		string(f.Result.Recommendation),
		nullString(f.Result.DeviceType),
	)
	if err != nil {
		return fmt.Errorf("failed to finalize session: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("session not found or already completed: %s", id)
	}

	return nil
}

// GetSession retrieves a session by ID; returns nil when it does not exist
func (r *PostgresRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	query := `
		SELECT id, device_info, status, started_at, completed_at, total_questions, correct_count,
		       accuracy, consistency_score, retest_count, detection_rates, category_scores,
		       avg_response_time, response_time, score, percentile
		FROM test_sessions
		WHERE id = $1
	`

	var s models.Session
	var statusStr string
	var completedAt sql.NullTime
	var total, correct, retests, score, percentile *int
	var accuracy, consistency, avgRT *float64
	var deviceJSON, ratesJSON, categoriesJSON, rtJSON []byte

	err := r.db.QueryRow(ctx, query, id).Scan(
		&s.ID,
		&deviceJSON,
		&statusStr,
		&s.StartedAt,
		&completedAt,
		&total,
		&correct,
		&accuracy,
		&consistency,
		&retests,
		&ratesJSON,
		&categoriesJSON,
		&avgRT,
		&rtJSON,
		&score,
		&percentile,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	s.Status = models.SessionStatus(statusStr)
	s.Score = score
	s.Percentile = percentile
	s.TotalQuestions = derefInt(total)
	s.CorrectCount = derefInt(correct)

	if err := unmarshalOptional(deviceJSON, &s.DeviceInfo); err != nil {
		return nil, fmt.Errorf("failed to unmarshal device info: %w", err)
	}

	if completedAt.Valid {
		s.CompletedAt = &completedAt.Time

		a := &models.Analysis{
			DeviceInfo:       s.DeviceInfo,
			TotalQuestions:   s.TotalQuestions,
			CorrectCount:     s.CorrectCount,
			ConsistencyScore: consistency,
			RetestCount:      derefInt(retests),
			CompletedAt:      completedAt.Time,
		}
		if accuracy != nil {
			a.Accuracy = *accuracy
		}
		if avgRT != nil {
			a.AvgResponseTime = *avgRT
		}
		if err := unmarshalOptional(ratesJSON, &a.DetectionRates); err != nil {
			return nil, fmt.Errorf("failed to unmarshal detection rates: %w", err)
		}
		if err := unmarshalOptional(categoriesJSON, &a.CategoryScores); err != nil {
			return nil, fmt.Errorf("failed to unmarshal category scores: %w", err)
		}
		if err := unmarshalOptional(rtJSON, &a.ResponseTime); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response time stats: %w", err)
		}
		s.Analysis = a
	}

	return &s, nil
}

// ExpireStaleSessions marks in-progress sessions started before the cutoff as abandoned
func (r *PostgresRepository) ExpireStaleSessions(ctx context.Context, before time.Time) (int64, error) {
	query := `
		UPDATE test_sessions
		SET status = $1
		WHERE status = $2 AND started_at < $3
	`

	result, err := r.db.Exec(ctx, query,
		string(models.SessionAbandoned),
		string(models.SessionInProgress),
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire sessions: %w", err)
	}

	return result.RowsAffected(), nil
}

// --- Answers ---

// RecordAnswer inserts one answer. Re-recording the same question is ignored.
func (r *PostgresRepository) RecordAnswer(ctx context.Context, a models.Answer) error {
	query := `
		INSERT INTO test_answers (session_id, question_number, category, image_id, left_resolution, right_resolution,
		                          correct_answer, user_answer, response_time_ms, is_retest, answered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (session_id, question_number) DO NOTHING
	`

	_, err := r.db.Exec(ctx, query,
		a.SessionID,
		a.QuestionID,
		string(a.Category),
		nullString(a.ImageID),
		string(a.LeftImage),
		string(a.RightImage),
		string(a.CorrectAnswer),
		string(a.UserAnswer),
		a.ResponseTimeMs,
		a.IsRetest,
		a.AnsweredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record answer: %w", err)
	}

	return nil
}

// ListAnswers returns a session's answers in the order they were given
func (r *PostgresRepository) ListAnswers(ctx context.Context, sessionID string) ([]models.Answer, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return []models.Answer{}, nil
	}

	query := `
		SELECT session_id, question_number, category, image_id, left_resolution, right_resolution,
		       correct_answer, user_answer, response_time_ms, is_retest, answered_at
		FROM test_answers
		WHERE session_id = $1
		ORDER BY answered_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	defer rows.Close()

	answers := []models.Answer{}
	for rows.Next() {
		var a models.Answer
		var category, left, right, correct, user string
		var imageID sql.NullString

		err := rows.Scan(
			&a.SessionID,
			&a.QuestionID,
			&category,
			&imageID,
			&left,
			&right,
			&correct,
			&user,
			&a.ResponseTimeMs,
			&a.IsRetest,
			&a.AnsweredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}

		a.Category = models.Category(category)
		a.ImageID = imageID.String
		a.LeftImage = models.Resolution(left)
		a.RightImage = models.Resolution(right)
		a.CorrectAnswer = models.Side(correct)
		a.UserAnswer = models.Side(user)

		answers = append(answers, a)
	}

	return answers, rows.Err()
}

// Helper functions for nullable values

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func unmarshalOptional(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
