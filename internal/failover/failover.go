// Package failover wraps the shared store with the policy applied when
// it is unreachable: fail closed and surface the error, or keep
// admitting from the process-local store with results flagged degraded.
// The primary is tried on every request, so recovery needs no explicit
// reset.
package failover

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ajiwo/throttler/internal/healthprobe"
	"github.com/ajiwo/throttler/rules"
	"github.com/ajiwo/throttler/stores"
)

// Policy selects the behavior when the shared store is unavailable.
type Policy int

const (
	// PolicyClosed surfaces StoreUnavailable to the caller.
	PolicyClosed Policy = iota
	// PolicyOpenLocal serves admissions from the local store, flagged
	// degraded, until the shared store answers again.
	PolicyOpenLocal
)

// ErrUnknownPolicy is returned by ParsePolicy for unrecognized names.
var ErrUnknownPolicy = errors.New("unknown fallback policy")

// ParsePolicy maps the configuration names "closed" and "open-local".
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "closed":
		return PolicyClosed, nil
	case "open-local":
		return PolicyOpenLocal, nil
	}
	return PolicyClosed, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

func (p Policy) String() string {
	if p == PolicyOpenLocal {
		return "open-local"
	}
	return "closed"
}

// Store routes operations to the primary store and applies the fallback
// policy on unavailability. Operational errors (bad data, protocol
// misuse) pass through untouched; only unreachability triggers the
// policy.
type Store struct {
	primary  stores.Store
	fallback stores.Store
	policy   Policy
	probe    *healthprobe.Probe
	logger   *slog.Logger
}

// New wires the wrapper and starts the health probe. Close stops it.
func New(primary, fallback stores.Store, policy Policy, probe *healthprobe.Probe, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	probe.Start()
	return &Store{
		primary:  primary,
		fallback: fallback,
		policy:   policy,
		probe:    probe,
		logger:   logger,
	}
}

func (s *Store) Consume(ctx context.Context, key string, rule rules.Rule, n float64) (stores.Result, error) {
	res, err := s.primary.Consume(ctx, key, rule, n)
	if err == nil {
		s.probe.MarkSuccess()
		return res, nil
	}
	if !stores.IsUnavailable(err) {
		return stores.Result{}, err
	}

	s.probe.MarkFailure(err)
	s.logger.Warn("shared store unavailable during consume",
		slog.String("key", key),
		slog.String("policy", s.policy.String()),
		slog.String("error", err.Error()),
	)
	if s.policy != PolicyOpenLocal {
		return stores.Result{}, err
	}

	res, ferr := s.fallback.Consume(ctx, key, rule, n)
	if ferr != nil {
		return stores.Result{}, ferr
	}
	res.Degraded = true
	return res, nil
}

func (s *Store) Peek(ctx context.Context, key string, rule rules.Rule) (stores.Result, error) {
	res, err := s.primary.Peek(ctx, key, rule)
	if err == nil {
		s.probe.MarkSuccess()
		return res, nil
	}
	if !stores.IsUnavailable(err) {
		return stores.Result{}, err
	}

	s.probe.MarkFailure(err)
	s.logger.Warn("shared store unavailable during peek",
		slog.String("key", key),
		slog.String("policy", s.policy.String()),
		slog.String("error", err.Error()),
	)
	if s.policy != PolicyOpenLocal {
		return stores.Result{}, err
	}

	res, ferr := s.fallback.Peek(ctx, key, rule)
	if ferr != nil {
		return stores.Result{}, ferr
	}
	res.Degraded = true
	return res, nil
}

// Reset clears the key on both sides so a later failover cannot revive
// a stale local bucket. With the primary unreachable under the
// open-local policy the reset still succeeds: the local copy is
// cleared and the shared entry expires by TTL or is overwritten by the
// first consume after recovery. Under the closed policy the primary's
// error surfaces.
func (s *Store) Reset(ctx context.Context, key string) error {
	perr := s.primary.Reset(ctx, key)
	if perr == nil {
		s.probe.MarkSuccess()
	} else if stores.IsUnavailable(perr) {
		s.probe.MarkFailure(perr)
		s.logger.Warn("shared store unavailable during reset",
			slog.String("key", key),
			slog.String("policy", s.policy.String()),
			slog.String("error", perr.Error()),
		)
		if s.policy == PolicyOpenLocal {
			perr = nil
		}
	}

	if ferr := s.fallback.Reset(ctx, key); ferr != nil && perr == nil {
		perr = ferr
	}
	return perr
}

func (s *Store) Ping(ctx context.Context) error {
	err := s.primary.Ping(ctx)
	if err == nil {
		s.probe.MarkSuccess()
	} else if stores.IsUnavailable(err) {
		s.probe.MarkFailure(err)
	}
	return err
}

// Close stops the probe and closes both stores.
func (s *Store) Close() error {
	s.probe.Stop()
	return errors.Join(s.primary.Close(), s.fallback.Close())
}

// Report composes the probe's view with the configured policy.
func (s *Store) Report() stores.HealthReport {
	snap := s.probe.Snapshot()
	return stores.HealthReport{
		StoreReachable: snap.Reachable,
		FallbackActive: s.policy == PolicyOpenLocal && !snap.Reachable,
		LastError:      snap.LastError,
		LastSuccess:    snap.LastSuccess,
		PingLatency:    snap.PingLatency,
	}
}
