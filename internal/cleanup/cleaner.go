package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// Expirer abandons sessions that were never finished
type Expirer interface {
	ExpireStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Cleaner handles periodic expiry of stale survey sessions
type Cleaner struct {
	sessions Expirer
	interval time.Duration
	maxAge   time.Duration
}

// NewCleaner creates a new cleanup worker. Sessions started more than maxAge
// ago and still in progress are marked abandoned.
func NewCleaner(sessions Expirer, interval, maxAge time.Duration) *Cleaner {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}

	return &Cleaner{
		sessions: sessions,
		interval: interval,
		maxAge:   maxAge,
	}
}

// Start begins the cleanup worker in a goroutine
func (c *Cleaner) Start(ctx context.Context) {
	go c.run(ctx)
}

// run is the main loop for the cleanup worker
func (c *Cleaner) run(ctx context.Context) {
	slog.Info("cleanup worker started", "interval", c.interval, "max_age", c.maxAge)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Run immediately on start
	c.cleanup(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup worker stopped")
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

// cleanup runs one expiry cycle and returns the number of abandoned sessions
func (c *Cleaner) cleanup(ctx context.Context) int64 {
	slog.Debug("running cleanup cycle")

	n, err := c.sessions.ExpireStale(ctx, c.maxAge)
	if err != nil {
		slog.Error("failed to expire stale sessions", "error", err)
		return 0
	}

	if n == 0 {
		slog.Debug("no stale sessions found")
		return 0
	}

	slog.Info("stale sessions abandoned", "count", n, "max_age", c.maxAge)
	return n
}
