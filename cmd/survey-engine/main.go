package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keen-eye/survey-engine/internal/api"
	"github.com/keen-eye/survey-engine/internal/cache"
	"github.com/keen-eye/survey-engine/internal/catalog"
	"github.com/keen-eye/survey-engine/internal/cleanup"
	"github.com/keen-eye/survey-engine/internal/config"
	"github.com/keen-eye/survey-engine/internal/logging"
	"github.com/keen-eye/survey-engine/internal/quiz"
	"github.com/keen-eye/survey-engine/internal/report"
	"github.com/keen-eye/survey-engine/internal/scoring"
	"github.com/keen-eye/survey-engine/internal/storage"
	"github.com/keen-eye/survey-engine/internal/survey"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logCloser := logging.Setup(logging.Config{
		Level: cfg.Log.Level,
		File:  cfg.Log.File,
	})
	defer logCloser.Close()

	slog.Info("starting survey-engine",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"database", cfg.Database.Enabled,
		"redis", cfg.Redis.Enabled,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	// Load the image catalog
	cat, err := catalog.Load(cfg.Catalog.File)
	if err != nil {
		slog.Error("failed to load catalog", "file", cfg.Catalog.File, "error", err)
		os.Exit(1)
	}

	generator, err := quiz.NewGenerator(cat, nil)
	if err != nil {
		slog.Error("failed to create question generator", "error", err)
		os.Exit(1)
	}
	engine := scoring.NewCatalogEngine(cat)

	store := openStore(initCtx, cfg)
	defer store.Close()

	// The database is optional: without it sessions run offline
	var (
		repo  storage.Repository
		stats api.StatsProvider
	)
	if cfg.Database.Enabled {
		pg, err := openRepository(initCtx, cfg.Database)
		if err != nil {
			slog.Warn("database unavailable, sessions will run offline", "error", err)
		} else {
			defer pg.Close()
			repo = pg

			reporter, err := report.Open(cfg.Database.DSN, engine)
			if err != nil {
				slog.Warn("statistics disabled", "error", err)
			} else {
				defer reporter.Close()
				stats = reporter
			}
		}
	}

	manager := survey.NewManager(generator, engine, store, repo, survey.Options{})

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start cleanup worker
	cleaner := cleanup.NewCleaner(manager, cfg.Cleanup.Interval, cfg.Session.TTL)
	cleaner.Start(ctx)

	// Setup HTTP server
	opts := []api.Option{api.WithImagesDir(cfg.Catalog.ImagesDir)}
	if stats != nil {
		opts = append(opts, api.WithStats(stats))
	}
	server := api.NewServer(cfg.Server, manager, opts...)
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Cancel context to stop background workers
	cancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Wait for pending database writes
	if err := manager.Close(); err != nil {
		slog.Error("manager close error", "error", err)
	}

	slog.Info("survey-engine stopped")
}

// openStore connects to Redis, falling back to an in-process store
func openStore(ctx context.Context, cfg *config.Config) cache.Store {
	if cfg.Redis.Enabled {
		store, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Session.TTL,
		})
		if err == nil {
			slog.Info("redis connected successfully", "address", cfg.Redis.Address)
			return store
		}
		slog.Warn("redis unavailable, using in-memory answer store", "error", err)
	}
	return cache.NewMemoryStore(cfg.Session.TTL)
}

// openRepository connects to PostgreSQL and applies pending migrations
func openRepository(ctx context.Context, cfg config.DatabaseConfig) (*storage.PostgresRepository, error) {
	repo, err := storage.NewPostgresRepository(ctx, storage.PostgresConfig{
		DSN:          cfg.DSN,
		MaxOpenConns: int32(cfg.MaxConns),
	})
	if err != nil {
		return nil, err
	}

	if cfg.MigrationsEnabled {
		slog.Info("running database migrations")
		if err := storage.RunMigrations(ctx, repo.Pool(), storage.Migrations()); err != nil {
			repo.Close()
			return nil, err
		}
	}

	slog.Info("database connected successfully")
	return repo, nil
}
