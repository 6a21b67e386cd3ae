// Package healthprobe tracks reachability of the shared store. A
// background loop pings the store on a fixed cadence, and the request
// path feeds in its own successes and failures, so the view stays
// current even between pings.
package healthprobe

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds probe tuning.
type Config struct {
	Interval      time.Duration // ping frequency; zero means 5s, negative disables the loop
	Timeout       time.Duration // per-ping deadline; zero means 2s
	FailThreshold int32         // consecutive failures before the store counts as unreachable; zero means 3
}

// Snapshot is the probe's current view of the store.
type Snapshot struct {
	Reachable   bool
	LastError   string    // empty when healthy
	LastSuccess time.Time // zero if the store has never responded
	PingLatency time.Duration
}

// Probe monitors one store. The zero value is not usable; construct
// with New.
type Probe struct {
	ping          func(context.Context) error
	interval      time.Duration
	timeout       time.Duration
	failThreshold int32

	reachable     atomic.Bool
	consecFails   atomic.Int32
	lastSuccessNs atomic.Int64
	pingLatencyNs atomic.Int64

	mu      sync.Mutex
	lastErr error

	done chan struct{}
	stop sync.Once
}

// New creates a probe over the given ping function. The store is
// presumed reachable until failures say otherwise.
func New(ping func(context.Context) error, cfg Config) *Probe {
	p := &Probe{
		ping:          ping,
		interval:      cfg.Interval,
		timeout:       cfg.Timeout,
		failThreshold: cfg.FailThreshold,
		done:          make(chan struct{}),
	}
	if p.interval == 0 {
		p.interval = 5 * time.Second
	}
	if p.timeout <= 0 {
		p.timeout = 2 * time.Second
	}
	if p.failThreshold <= 0 {
		p.failThreshold = 3
	}
	p.reachable.Store(true)
	return p
}

// Start launches the ping loop. A negative interval disables it; the
// request path can still feed MarkSuccess and MarkFailure.
func (p *Probe) Start() {
	if p.interval < 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.done:
				return
			case <-ticker.C:
				p.check()
			}
		}
	}()
}

// Stop ends the ping loop. Safe to call more than once.
func (p *Probe) Stop() {
	p.stop.Do(func() { close(p.done) })
}

func (p *Probe) check() {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	start := time.Now()
	if err := p.ping(ctx); err != nil {
		p.MarkFailure(err)
		return
	}
	p.pingLatencyNs.Store(int64(time.Since(start)))
	p.MarkSuccess()
}

// MarkSuccess records a successful store operation, restoring
// reachability immediately.
func (p *Probe) MarkSuccess() {
	p.consecFails.Store(0)
	p.reachable.Store(true)
	p.lastSuccessNs.Store(time.Now().UnixNano())
	p.mu.Lock()
	p.lastErr = nil
	p.mu.Unlock()
}

// MarkFailure records a failed store operation. Reachability flips only
// after the configured number of consecutive failures, so one flaky
// round trip does not flap the health state.
func (p *Probe) MarkFailure(err error) {
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
	if p.consecFails.Add(1) >= p.failThreshold {
		p.reachable.Store(false)
	}
}

// Reachable reports the current reachability verdict.
func (p *Probe) Reachable() bool {
	return p.reachable.Load()
}

// Snapshot returns the probe's current view. Never mutates state.
func (p *Probe) Snapshot() Snapshot {
	p.mu.Lock()
	lastErr := p.lastErr
	p.mu.Unlock()

	snap := Snapshot{
		Reachable:   p.reachable.Load(),
		PingLatency: time.Duration(p.pingLatencyNs.Load()),
	}
	if ns := p.lastSuccessNs.Load(); ns > 0 {
		snap.LastSuccess = time.Unix(0, ns)
	}
	if lastErr != nil {
		snap.LastError = lastErr.Error()
	}
	return snap
}
