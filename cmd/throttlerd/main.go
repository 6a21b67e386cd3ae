// Command throttlerd serves token bucket admission decisions over HTTP.
//
// All configuration comes from THROTTLER_* environment variables (a
// .env file works too). With no THROTTLER_STORE_URL the daemon keeps
// buckets in process memory; with a redis:// or postgres:// URL every
// replica sharing the store agrees on one balance per key.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/ajiwo/throttler"
	"github.com/ajiwo/throttler/httpapi"
	"github.com/ajiwo/throttler/internal/config"
	"github.com/ajiwo/throttler/internal/logging"
	"github.com/ajiwo/throttler/metrics"

	_ "github.com/ajiwo/throttler/stores/postgres"
	_ "github.com/ajiwo/throttler/stores/redis"
)

// version is stamped by the release build.
var version = "dev"

const (
	exitOK         = 0
	exitBadConfig  = 2
	exitStoreDown  = 3
	exitServeError = 1
)

type settings struct {
	BindAddr                string  `env:"THROTTLER_BIND_ADDR" envDefault:"0.0.0.0:8080"`
	StoreURL                string  `env:"THROTTLER_STORE_URL"`
	DefaultCapacity         uint64  `env:"THROTTLER_DEFAULT_CAPACITY" envDefault:"100"`
	DefaultRefillRate       float64 `env:"THROTTLER_DEFAULT_REFILL_RATE" envDefault:"50"`
	DefaultWindowSeconds    int64   `env:"THROTTLER_DEFAULT_WINDOW_SECONDS" envDefault:"60"`
	MaxCapacity             uint64  `env:"THROTTLER_MAX_CAPACITY" envDefault:"10000"`
	EvictionIntervalSeconds int64   `env:"THROTTLER_EVICTION_INTERVAL_SECONDS" envDefault:"60"`
	FallbackPolicy          string  `env:"THROTTLER_FALLBACK_POLICY" envDefault:"closed"`
}

func main() {
	os.Exit(run())
}

func run() int {
	logger := logging.New(logging.WithAttr(slog.String("service", "throttlerd")))

	s, err := config.Load[settings]()
	if err != nil {
		logger.Error("configuration failed", slog.String("error", err.Error()))
		return exitBadConfig
	}

	opts := []throttler.Option{
		throttler.WithDefaultRule(throttler.Rule{
			Capacity:   s.DefaultCapacity,
			RefillRate: s.DefaultRefillRate,
			Window:     time.Duration(s.DefaultWindowSeconds) * time.Second,
			Enabled:    true,
		}),
		throttler.WithFallbackPolicy(throttler.FallbackPolicy(s.FallbackPolicy)),
		throttler.WithMaxCapacity(s.MaxCapacity),
		throttler.WithEvictionInterval(time.Duration(s.EvictionIntervalSeconds) * time.Second),
		throttler.WithLogger(logger),
	}
	if s.StoreURL != "" {
		opts = append(opts, throttler.WithStoreURL(s.StoreURL))
	}

	engine, err := throttler.New(context.Background(), opts...)
	if err != nil {
		switch {
		case errors.Is(err, throttler.ErrBadConfig):
			logger.Error("invalid configuration", slog.String("error", err.Error()))
			return exitBadConfig
		case errors.Is(err, throttler.ErrStoreUnavailable):
			logger.Error("shared store unreachable and fallback disabled",
				slog.String("error", err.Error()))
			return exitStoreDown
		default:
			logger.Error("engine startup failed", slog.String("error", err.Error()))
			return exitServeError
		}
	}
	defer func() { _ = engine.Close() }()

	mode := storeMode(s.StoreURL)
	logger.Info("throttlerd starting",
		slog.String("version", version),
		slog.String("addr", s.BindAddr),
		slog.String("store", mode),
		slog.String("fallback_policy", s.FallbackPolicy),
	)

	router := httpapi.NewRouter(httpapi.Config{
		Limiter:   engine,
		Metrics:   metrics.New(),
		Logger:    logger,
		Version:   version,
		StoreMode: mode,
	})

	srv := httpapi.NewServer(s.BindAddr, router, logger)
	if err := srv.Run(context.Background()); err != nil {
		logger.Error("server failed", slog.String("error", err.Error()))
		return exitServeError
	}

	logger.Info("throttlerd stopped")
	return exitOK
}

// storeMode names the backing store for logs and the health endpoint.
func storeMode(storeURL string) string {
	if storeURL == "" {
		return "local"
	}
	u, err := url.Parse(storeURL)
	if err != nil {
		return "unknown"
	}
	switch u.Scheme {
	case "redis", "rediss":
		return "redis"
	case "postgres", "postgresql":
		return "postgres"
	}
	return u.Scheme
}
