package throttler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ajiwo/throttler/clock"
	"github.com/ajiwo/throttler/internal/failover"
	"github.com/ajiwo/throttler/rules"
	"github.com/ajiwo/throttler/stores"
)

// FallbackPolicy decides what happens to admissions when the shared
// store is unreachable.
type FallbackPolicy string

const (
	// FallbackClosed denies admissions while the store is down. This is
	// the strict default.
	FallbackClosed FallbackPolicy = "closed"

	// FallbackOpenLocal serves admissions from the in-process store
	// while the store is down, flagging each outcome as degraded.
	FallbackOpenLocal FallbackPolicy = "open-local"
)

// Config defines the configuration for an admission engine. Construct
// it through New and the With... options rather than by hand.
type Config struct {
	// DefaultRule applies to every key without an explicit rule.
	DefaultRule rules.Rule

	// StoreURL selects the shared store (redis://, postgres://).
	// Empty means local-only mode.
	StoreURL string

	// Store overrides StoreURL with an already-built store.
	Store stores.Store

	// FallbackPolicy fires on store errors. Default closed.
	FallbackPolicy FallbackPolicy

	// StoreTimeout is the per-operation deadline on store calls.
	// Default 200ms.
	StoreTimeout time.Duration

	// EvictionInterval is how often the local store sweeps idle
	// buckets. Default 60s; negative disables sweeping.
	EvictionInterval time.Duration

	// ProbeInterval is how often the shared store is pinged for the
	// health report. Default 5s; negative disables the probe loop.
	ProbeInterval time.Duration

	// ProbeTimeout bounds each health ping. Default 2s.
	ProbeTimeout time.Duration

	// FailThreshold is how many consecutive failures mark the store
	// unreachable. Default 3.
	FailThreshold int

	// MaxCapacity caps the capacity of any rule, including the default.
	// Zero means no ceiling.
	MaxCapacity uint64

	// LocalClock drives the in-process buckets and eviction. Defaults
	// to the monotonic clock. Override only in tests.
	LocalClock clock.Clock

	// StoreClock drives the shared-store refill math. Defaults to wall
	// time so all replicas agree. Override only in tests.
	StoreClock clock.Clock

	// Logger receives warn-level degradation and store-failure logs.
	// nil means no logging.
	Logger *slog.Logger
}

func defaultConfig() Config {
	return Config{
		DefaultRule: rules.Rule{
			Capacity:   100,
			RefillRate: 50,
			Window:     time.Minute,
			Enabled:    true,
		},
		FallbackPolicy:   FallbackClosed,
		StoreTimeout:     200 * time.Millisecond,
		EvictionInterval: time.Minute,
		ProbeInterval:    5 * time.Second,
		ProbeTimeout:     2 * time.Second,
		FailThreshold:    3,
	}
}

// Validate validates the entire configuration.
func (c Config) Validate() error {
	if err := c.DefaultRule.Validate(); err != nil {
		return fmt.Errorf("%w: default rule: %w", ErrBadConfig, err)
	}
	if c.MaxCapacity > 0 && c.DefaultRule.Capacity > c.MaxCapacity {
		return fmt.Errorf("%w: default rule capacity %d exceeds maximum capacity %d",
			ErrBadConfig, c.DefaultRule.Capacity, c.MaxCapacity)
	}
	if _, err := failover.ParsePolicy(string(c.FallbackPolicy)); err != nil {
		return fmt.Errorf("%w: %w", ErrBadConfig, err)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("%w: store timeout must be positive, got %v", ErrBadConfig, c.StoreTimeout)
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("%w: probe timeout must be positive, got %v", ErrBadConfig, c.ProbeTimeout)
	}
	if c.FailThreshold < 1 {
		return fmt.Errorf("%w: fail threshold must be at least 1, got %d", ErrBadConfig, c.FailThreshold)
	}
	return nil
}
