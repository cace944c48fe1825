package api

import (
	"context"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/keen-eye/survey-engine/internal/config"
	"github.com/keen-eye/survey-engine/internal/models"
	"github.com/keen-eye/survey-engine/internal/survey"
)

// StatsProvider serves population statistics
type StatsProvider interface {
	Stats(ctx context.Context) (*models.PopulationStats, error)
	ScoreRank(ctx context.Context, score int) (*float64, error)
	Ping(ctx context.Context) error
}

// Server represents the HTTP API server
type Server struct {
	config    config.ServerConfig
	router    *chi.Mux
	surveys   survey.Service
	stats     StatsProvider
	imagesDir string
	validate  *validator.Validate
	now       func() time.Time
}

// Option configures optional Server collaborators
type Option func(*Server)

// WithStats enables the population statistics endpoint
func WithStats(stats StatsProvider) Option {
	return func(s *Server) {
		s.stats = stats
	}
}

// WithImagesDir serves survey images from dir under /images
func WithImagesDir(dir string) Option {
	return func(s *Server) {
		s.imagesDir = dir
	}
}

// WithClock overrides the clock used for device snapshots
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, surveys survey.Service, opts ...Option) *Server {
	s := &Server{
		config:   cfg,
		surveys:  surveys,
		validate: newValidator(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(s.config.AllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	timeout := middleware.Timeout(60 * time.Second)

	r.Group(func(r chi.Router) {
		r.Use(timeout)

		r.Get("/health", s.handleHealth)
		r.Get("/ready", s.handleReady)

		if s.imagesDir != "" {
			r.Handle("/images/*", http.StripPrefix("/images/", http.FileServer(http.Dir(s.imagesDir))))
		}
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.With(timeout).Get("/catalog", s.handleGetCatalog)

		r.Route("/sessions", func(r chi.Router) {
			r.With(timeout).Post("/", s.handleStartSession)

			r.Route("/{id}", func(r chi.Router) {
				r.Use(s.sessionIDMiddleware)

				// The trial runner holds its connection for the whole survey
				r.Get("/ws", s.handleRunnerWS)

				r.Group(func(r chi.Router) {
					r.Use(timeout)
					r.Get("/", s.handleGetSession)
					r.Post("/answers", s.handleSubmitAnswer)
					r.Get("/result", s.handleGetResult)
					r.Get("/export.xlsx", s.handleExportSession)
				})
			})
		})

		r.With(timeout, RequireAPIKey(s.config.AdminAPIKey)).Get("/stats", s.handleStats)
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func allowedOrigins(list string) []string {
	var origins []string
	for _, o := range strings.Split(list, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// newValidator reports field errors by their JSON names
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
