// Package httpapi exposes the admission engine over HTTP: per-key
// checks, rule administration, metrics, and health endpoints.
package httpapi

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ajiwo/throttler"
	"github.com/ajiwo/throttler/metrics"
	"github.com/ajiwo/throttler/stores"
)

// Limiter is the slice of the engine the API serves.
type Limiter interface {
	DecideN(ctx context.Context, key string, n uint64) (throttler.Outcome, error)
	Peek(ctx context.Context, key string) (throttler.Status, error)
	Reset(ctx context.Context, key string) error
	SetRule(key string, rule throttler.Rule) error
	DeleteRule(key string) (throttler.Rule, bool, error)
	Rules() map[string]throttler.Rule
	DefaultRule() throttler.Rule
	Probe() stores.HealthReport
}

// Config wires the API's collaborators.
type Config struct {
	Limiter Limiter
	Metrics *metrics.Collector

	// Logger receives one line per request. Nil means silent.
	Logger *slog.Logger

	// Version is reported by the health endpoint.
	Version string

	// StoreMode names the backing store for the health endpoint:
	// "local", "redis" or "postgres".
	StoreMode string
}

// NewRouter builds the API router with request IDs, request logging,
// panic recovery and permissive CORS applied to every route.
func NewRouter(cfg Config) chi.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	collector := cfg.Metrics
	if collector == nil {
		collector = metrics.New()
	}
	mode := cfg.StoreMode
	if mode == "" {
		mode = "local"
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	a := &api{
		limiter: cfg.Limiter,
		metrics: collector,
		mode:    mode,
		version: version,
		started: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Route("/rate-limit/{key}", func(r chi.Router) {
		r.Post("/check", a.check)
		r.Get("/", a.status)
		r.Post("/", a.setRule)
		r.Delete("/", a.deleteRule)
	})
	r.Get("/rate-limits", a.listRules)
	r.Get("/metrics", a.metricsSnapshot)
	r.Get("/health", a.health)
	r.Get("/ready", a.ready)

	return r
}

type api struct {
	limiter Limiter
	metrics *metrics.Collector
	mode    string
	version string
	started time.Time
}
