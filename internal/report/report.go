// Package report runs read-only aggregate queries over finished sessions.
package report

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/keen-eye/survey-engine/internal/models"
)

// PairKeyer canonicalises an unordered tier pair
type PairKeyer interface {
	PairKey(a, b models.Resolution) string
}

// Reporter computes population statistics
type Reporter struct {
	db    *sqlx.DB
	pairs PairKeyer
}

// Open connects to PostgreSQL through lib/pq
func Open(dsn string, pairs PairKeyer) (*Reporter, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect report database: %w", err)
	}
	return New(db, pairs), nil
}

// New wraps an existing connection
func New(db *sqlx.DB, pairs PairKeyer) *Reporter {
	return &Reporter{db: db, pairs: pairs}
}

// Stats collects every population aggregate
func (r *Reporter) Stats(ctx context.Context) (*models.PopulationStats, error) {
	summary, err := r.Summary(ctx)
	if err != nil {
		return nil, err
	}

	distribution, err := r.Distribution(ctx)
	if err != nil {
		return nil, err
	}

	devices, err := r.Devices(ctx)
	if err != nil {
		return nil, err
	}

	rates, err := r.DetectionRates(ctx)
	if err != nil {
		return nil, err
	}

	return &models.PopulationStats{
		Summary:        *summary,
		Distribution:   distribution,
		Devices:        devices,
		DetectionRates: rates,
	}, nil
}

// Summary returns session counts and mean outcomes of completed sessions
func (r *Reporter) Summary(ctx context.Context) (*models.PopulationSummary, error) {
	var s models.PopulationSummary
	err := r.db.GetContext(ctx, &s, `
		SELECT
			COUNT(*) AS sessions,
			COUNT(*) FILTER (WHERE status = 'completed') AS completed,
			COUNT(*) FILTER (WHERE status = 'abandoned') AS abandoned,
			COALESCE(AVG(score) FILTER (WHERE status = 'completed'), 0) AS mean_score,
			COALESCE(AVG(accuracy) FILTER (WHERE status = 'completed'), 0) AS mean_accuracy,
			COALESCE(AVG(avg_response_time) FILTER (WHERE status = 'completed'), 0) AS mean_response_time
		FROM test_sessions
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query summary: %w", err)
	}
	return &s, nil
}

// Distribution counts completed sessions per percentile band, highest first
func (r *Reporter) Distribution(ctx context.Context) ([]models.PercentileCount, error) {
	counts := []models.PercentileCount{}
	err := r.db.SelectContext(ctx, &counts, `
		SELECT percentile, COUNT(*) AS count
		FROM test_sessions
		WHERE status = 'completed' AND percentile IS NOT NULL
		GROUP BY percentile
		ORDER BY percentile DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query distribution: %w", err)
	}
	return counts, nil
}

// Devices breaks completed sessions down by device type
func (r *Reporter) Devices(ctx context.Context) ([]models.DeviceCount, error) {
	devices := []models.DeviceCount{}
	err := r.db.SelectContext(ctx, &devices, `
		SELECT COALESCE(device_type, 'unknown') AS device_type,
		       COUNT(*) AS count,
		       COALESCE(AVG(score), 0) AS mean_score
		FROM test_sessions
		WHERE status = 'completed'
		GROUP BY 1
		ORDER BY count DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	return devices, nil
}

type pairRow struct {
	Left    string `db:"left_resolution"`
	Right   string `db:"right_resolution"`
	Total   int    `db:"total"`
	Correct int    `db:"correct"`
}

// DetectionRates folds every recorded answer into per-pair tallies keyed the
// same way as a single session's detection rates
func (r *Reporter) DetectionRates(ctx context.Context) (map[string]models.PairTally, error) {
	var rows []pairRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT left_resolution, right_resolution,
		       COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE user_answer = correct_answer) AS correct
		FROM test_answers
		GROUP BY left_resolution, right_resolution
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query detection rates: %w", err)
	}

	rates := make(map[string]models.PairTally)
	for _, row := range rows {
		key := r.pairs.PairKey(models.Resolution(row.Left), models.Resolution(row.Right))
		t := rates[key]
		t.Total += row.Total
		t.Correct += row.Correct
		rates[key] = t
	}
	for key, t := range rates {
		if t.Total > 0 {
			t.Accuracy = float64(t.Correct) / float64(t.Total)
		}
		rates[key] = t
	}
	return rates, nil
}

// ScoreRank returns the share of completed sessions that scored below score,
// or nil when there are none
func (r *Reporter) ScoreRank(ctx context.Context, score int) (*float64, error) {
	var row struct {
		Below int `db:"below"`
		Total int `db:"total"`
	}
	err := r.db.GetContext(ctx, &row, `
		SELECT COUNT(*) FILTER (WHERE score < $1) AS below, COUNT(*) AS total
		FROM test_sessions
		WHERE status = 'completed'
	`, score)
	if err != nil {
		return nil, fmt.Errorf("failed to query score rank: %w", err)
	}

	if row.Total == 0 {
		return nil, nil
	}
	rank := float64(row.Below) / float64(row.Total)
	return &rank, nil
}

// Ping checks database connectivity
func (r *Reporter) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the connection
func (r *Reporter) Close() error {
	return r.db.Close()
}
