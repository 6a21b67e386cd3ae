// Package throttler provides token bucket admission control with
// per-key rules. State lives in a sharded in-process store, or in a
// shared Redis or PostgreSQL store when replicas must agree, with a
// configurable local fallback for store outages.
package throttler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ajiwo/throttler/bucket"
	"github.com/ajiwo/throttler/internal/failover"
	"github.com/ajiwo/throttler/internal/healthprobe"
	"github.com/ajiwo/throttler/rules"
	"github.com/ajiwo/throttler/stores"
	"github.com/ajiwo/throttler/stores/local"
)

// Rule configures one key's bucket: capacity, refill rate, window and
// enabled flag.
type Rule = rules.Rule

// Never is the RetryAfterMs value of a denial that no amount of waiting
// can satisfy (the rule's refill rate credits nothing).
const Never = bucket.Never

// Outcome is the result of one admission decision.
type Outcome struct {
	Allowed      bool
	Remaining    uint64 // whole tokens left after the decision
	Limit        uint64 // the rule's capacity
	WindowMs     int64
	RetryAfterMs uint64 // when denied, time until the requested tokens have refilled
	Degraded     bool   // served by the local fallback while the shared store was down
}

// Status is a read-only view of one key's bucket.
type Status struct {
	Remaining uint64
	Limit     uint64
	WindowMs  int64
	Degraded  bool
}

// Engine makes admission decisions
type Engine struct {
	config  Config
	table   *rules.Table
	store   stores.Store
	wrapped *failover.Store // nil in local-only mode
	logger  *slog.Logger
}

// New creates an admission engine with functional options. The context
// bounds the initial store connection only.
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	// Create default configuration
	config := defaultConfig()

	// Apply provided options
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadConfig, err)
		}
	}

	// Create the engine with the final configuration
	return newEngine(ctx, config)
}

// newEngine creates a new admission engine
func newEngine(ctx context.Context, config Config) (*Engine, error) {
	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	loc := local.New(local.Config{
		EvictionInterval: config.EvictionInterval,
		Clock:            config.LocalClock,
	})

	engine := &Engine{
		config: config,
		table:  rules.NewTable(config.DefaultRule),
		logger: logger,
	}

	primary, err := openPrimary(ctx, config, logger)
	if err != nil {
		_ = loc.Close()
		if errors.Is(err, stores.ErrInvalidConfig) || errors.Is(err, stores.ErrSchemeNotRegistered) {
			return nil, fmt.Errorf("%w: %w", ErrBadConfig, err)
		}
		return nil, err
	}

	// Local-only mode: the in-process store is authoritative.
	if primary == nil {
		engine.store = loc
		return engine, nil
	}

	policy, _ := failover.ParsePolicy(string(config.FallbackPolicy))
	probe := healthprobe.New(primary.Ping, healthprobe.Config{
		Interval:      config.ProbeInterval,
		Timeout:       config.ProbeTimeout,
		FailThreshold: int32(config.FailThreshold),
	})
	engine.wrapped = failover.New(primary, loc, policy, probe, logger)
	engine.store = engine.wrapped
	return engine, nil
}

// openPrimary connects the configured shared store, if any. When the
// store is down and the policy is open-local, the store is reopened
// without the startup liveness check: the engine starts degraded and
// recovers through the probe once the store answers.
func openPrimary(ctx context.Context, config Config, logger *slog.Logger) (stores.Store, error) {
	if config.Store != nil {
		return config.Store, nil
	}
	if config.StoreURL == "" {
		return nil, nil
	}

	opts := stores.OpenOptions{Clock: config.StoreClock, Logger: logger}
	primary, err := stores.Open(ctx, config.StoreURL, opts)
	if err == nil {
		return primary, nil
	}
	if !stores.IsUnavailable(err) || config.FallbackPolicy != FallbackOpenLocal {
		return nil, err
	}

	logger.Warn("shared store unreachable at startup, starting degraded",
		slog.String("error", err.Error()),
	)
	opts.ConnectAttempts = -1
	return stores.Open(ctx, config.StoreURL, opts)
}

// Decide runs one admission for key at a cost of one token.
func (e *Engine) Decide(ctx context.Context, key string) (Outcome, error) {
	return e.DecideN(ctx, key, 1)
}

// DecideN runs one admission for key at a cost of n tokens. A cost of
// zero never changes the balance and is admitted whenever the key's
// rule is enabled. A cost above the rule's capacity is denied with the
// plain refill estimate in RetryAfterMs.
func (e *Engine) DecideN(ctx context.Context, key string, n uint64) (Outcome, error) {
	if err := ValidateKey(key); err != nil {
		return Outcome{}, err
	}

	rule, _ := e.table.Get(key)
	// A disabled rule bypasses accounting, not validation.
	if !rule.Enabled {
		return Outcome{
			Allowed:   true,
			Remaining: rule.Capacity,
			Limit:     rule.Capacity,
			WindowMs:  rule.WindowMs(),
		}, nil
	}

	tctx, cancel := context.WithTimeout(ctx, e.config.StoreTimeout)
	defer cancel()

	res, err := e.store.Consume(tctx, key, rule, float64(n))
	if err != nil {
		return Outcome{}, e.wrapStoreError("consume", key, err)
	}

	after := bucket.Bucket{
		Capacity:     rule.Capacity,
		RefillRate:   rule.RefillRate,
		Tokens:       res.Tokens,
		LastRefillMs: res.LastRefillMs,
	}
	outcome := Outcome{
		Allowed:   res.Allowed,
		Remaining: after.Available(),
		Limit:     rule.Capacity,
		WindowMs:  rule.WindowMs(),
		Degraded:  res.Degraded,
	}
	if !res.Allowed {
		outcome.RetryAfterMs = after.TimeUntil(float64(n))
	}
	return outcome, nil
}

// Peek reports the key's current balance without consuming anything.
func (e *Engine) Peek(ctx context.Context, key string) (Status, error) {
	if err := ValidateKey(key); err != nil {
		return Status{}, err
	}

	rule, _ := e.table.Get(key)
	if !rule.Enabled {
		return Status{
			Remaining: rule.Capacity,
			Limit:     rule.Capacity,
			WindowMs:  rule.WindowMs(),
		}, nil
	}

	tctx, cancel := context.WithTimeout(ctx, e.config.StoreTimeout)
	defer cancel()

	res, err := e.store.Peek(tctx, key, rule)
	if err != nil {
		return Status{}, e.wrapStoreError("peek", key, err)
	}

	after := bucket.Bucket{
		Capacity:     rule.Capacity,
		RefillRate:   rule.RefillRate,
		Tokens:       res.Tokens,
		LastRefillMs: res.LastRefillMs,
	}
	return Status{
		Remaining: after.Available(),
		Limit:     rule.Capacity,
		WindowMs:  rule.WindowMs(),
		Degraded:  res.Degraded,
	}, nil
}

// Reset restores the key's bucket to full by deleting its state.
func (e *Engine) Reset(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	tctx, cancel := context.WithTimeout(ctx, e.config.StoreTimeout)
	defer cancel()

	if err := e.store.Reset(tctx, key); err != nil {
		return e.wrapStoreError("reset", key, err)
	}
	return nil
}

// SetRule installs or replaces the rule for key. It takes effect on the
// key's next admission; the existing bucket is not mutated.
func (e *Engine) SetRule(key string, rule Rule) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrBadConfig, err)
	}
	if e.config.MaxCapacity > 0 && rule.Capacity > e.config.MaxCapacity {
		return fmt.Errorf("%w: rule capacity %d exceeds maximum capacity %d",
			ErrBadConfig, rule.Capacity, e.config.MaxCapacity)
	}
	e.table.Set(key, rule)
	e.logger.Debug("rule set",
		slog.String("key", key),
		slog.Uint64("capacity", rule.Capacity),
		slog.Float64("refill_rate", rule.RefillRate),
		slog.Duration("window", rule.Window),
		slog.Bool("enabled", rule.Enabled),
	)
	return nil
}

// DeleteRule removes the key's explicit rule and returns it. Later
// admissions for the key fall back to the default rule.
func (e *Engine) DeleteRule(key string) (Rule, bool, error) {
	if err := ValidateKey(key); err != nil {
		return Rule{}, false, err
	}
	rule, ok := e.table.Delete(key)
	if ok {
		e.logger.Debug("rule deleted", slog.String("key", key))
	}
	return rule, ok, nil
}

// LookupRule returns the rule admissions for key would use and whether
// it was explicitly set.
func (e *Engine) LookupRule(key string) (Rule, bool) {
	return e.table.Get(key)
}

// Rules returns a snapshot of all explicitly set rules.
func (e *Engine) Rules() map[string]Rule {
	return e.table.All()
}

// DefaultRule returns the rule applied to keys without an explicit one.
func (e *Engine) DefaultRule() Rule {
	return e.table.Default()
}

// Probe reports store reachability and fallback state. It never
// mutates anything and is safe to call at any cadence.
func (e *Engine) Probe() stores.HealthReport {
	if e.wrapped != nil {
		return e.wrapped.Report()
	}
	return stores.HealthReport{StoreReachable: true}
}

// Close releases the engine's stores. The engine must not be used
// afterwards.
func (e *Engine) Close() error {
	return e.store.Close()
}

// wrapStoreError keeps unavailability recognizable for the fallback
// taxonomy and folds everything else into ErrInternal.
func (e *Engine) wrapStoreError(op, key string, err error) error {
	if stores.IsUnavailable(err) {
		return fmt.Errorf("%s %q: %w", op, key, err)
	}
	return fmt.Errorf("%w: %s %q: %w", ErrInternal, op, key, err)
}
