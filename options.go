package throttler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ajiwo/throttler/clock"
	"github.com/ajiwo/throttler/stores"
)

// Option is a functional option for configuring the admission engine
type Option func(*Config) error

// WithDefaultRule sets the rule applied to keys without an explicit one
func WithDefaultRule(rule Rule) Option {
	return func(config *Config) error {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("default rule: %w", err)
		}
		config.DefaultRule = rule
		return nil
	}
}

// WithStoreURL configures the engine to share state through the store
// at the given URL. Supported schemes are registered by the store
// packages; blank-import stores/redis or stores/postgres to enable them.
func WithStoreURL(url string) Option {
	return func(config *Config) error {
		if url == "" {
			return fmt.Errorf("store URL cannot be empty")
		}
		config.StoreURL = url
		return nil
	}
}

// WithStore configures the engine to use an already-built store. It
// takes precedence over WithStoreURL.
func WithStore(store stores.Store) Option {
	return func(config *Config) error {
		if store == nil {
			return fmt.Errorf("store cannot be nil")
		}
		config.Store = store
		return nil
	}
}

// WithFallbackPolicy sets what happens when the shared store is down:
// FallbackClosed denies, FallbackOpenLocal serves degraded admissions
// from the in-process store.
func WithFallbackPolicy(policy FallbackPolicy) Option {
	return func(config *Config) error {
		config.FallbackPolicy = policy
		return nil
	}
}

// WithStoreTimeout sets the per-operation deadline on store calls
func WithStoreTimeout(timeout time.Duration) Option {
	return func(config *Config) error {
		config.StoreTimeout = timeout
		return nil
	}
}

// WithEvictionInterval configures how often idle local buckets are
// swept. Negative disables sweeping.
func WithEvictionInterval(interval time.Duration) Option {
	return func(config *Config) error {
		config.EvictionInterval = interval
		return nil
	}
}

// WithProbeInterval configures how often the shared store is pinged
// for the health report. Negative disables the probe loop.
func WithProbeInterval(interval time.Duration) Option {
	return func(config *Config) error {
		config.ProbeInterval = interval
		return nil
	}
}

// WithMaxCapacity caps the capacity of any rule, including the default.
// Zero removes the ceiling.
func WithMaxCapacity(capacity uint64) Option {
	return func(config *Config) error {
		config.MaxCapacity = capacity
		return nil
	}
}

// WithLogger sets the logger for degradation and store-failure logs
func WithLogger(logger *slog.Logger) Option {
	return func(config *Config) error {
		config.Logger = logger
		return nil
	}
}

// WithLocalClock overrides the clock driving in-process buckets.
// Intended for tests.
func WithLocalClock(c clock.Clock) Option {
	return func(config *Config) error {
		config.LocalClock = c
		return nil
	}
}

// WithStoreClock overrides the clock feeding timestamps to the shared
// store. Intended for tests.
func WithStoreClock(c clock.Clock) Option {
	return func(config *Config) error {
		config.StoreClock = c
		return nil
	}
}
