// Package bucket implements the token bucket algorithm as a pure value
// type. A Bucket carries no locks and performs no I/O; callers serialize
// access (per-shard mutexes locally, store-side atomicity remotely) and
// supply every timestamp, which keeps the math deterministic under test.
package bucket

import "math"

const (
	// maxElapsedMs bounds refill catch-up at one hour. Without the cap an
	// idle bucket would grant a giant catch-up burst after a long pause or
	// a clock jump, violating its stated rate.
	maxElapsedMs = int64(3600000)

	// maxWaitMs caps TimeUntil at 24 hours.
	maxWaitMs = uint64(86400000)
)

// Never is returned by TimeUntil when the requested tokens can never
// accumulate because the refill rate is not positive.
const Never = uint64(math.MaxUint64)

// Bucket is the per-key token bucket state. Tokens is fractional so slow
// refill rates (e.g. 0.1 tokens/s) accumulate without systematic drift.
type Bucket struct {
	Capacity     uint64
	RefillRate   float64 // tokens per second
	Tokens       float64
	LastRefillMs int64
}

// New returns a full bucket anchored at nowMs.
func New(capacity uint64, refillRate float64, nowMs int64) Bucket {
	return Bucket{
		Capacity:     capacity,
		RefillRate:   refillRate,
		Tokens:       float64(capacity),
		LastRefillMs: nowMs,
	}
}

// Refill credits tokens for the time elapsed since the last refill.
//
// Elapsed time is clamped to [0, 1h]: a clock running backwards yields no
// refill and, because the method returns before touching state, cannot move
// LastRefillMs backwards either. A non-finite or non-positive credit is
// treated as zero.
func (b *Bucket) Refill(nowMs int64) {
	elapsed := nowMs - b.LastRefillMs
	if elapsed <= 0 {
		return
	}
	if elapsed > maxElapsedMs {
		elapsed = maxElapsedMs
	}

	added := b.RefillRate * float64(elapsed) / 1000
	if math.IsNaN(added) || math.IsInf(added, 0) || added < 0 {
		added = 0
	}

	b.Tokens = math.Min(b.Tokens+added, float64(b.Capacity))
	b.LastRefillMs = nowMs
}

// TryConsume refills the bucket and then takes n tokens if they are
// available. The compare is inclusive: a request for exactly the available
// amount is admitted, preserving the bucket's documented capacity.
func (b *Bucket) TryConsume(n float64, nowMs int64) bool {
	b.Refill(nowMs)
	if b.Tokens >= n {
		b.Tokens -= n
		return true
	}
	return false
}

// Available returns the whole tokens currently held.
func (b *Bucket) Available() uint64 {
	if b.Tokens <= 0 {
		return 0
	}
	return uint64(math.Floor(b.Tokens))
}

// TimeUntil returns the milliseconds until n tokens will be available with
// no further consumption: zero when they already are, Never when the refill
// rate is not positive, otherwise the refill wait capped at 24 hours.
func (b *Bucket) TimeUntil(n float64) uint64 {
	if b.Tokens >= n {
		return 0
	}
	// NaN rates fail this comparison too and report Never.
	if !(b.RefillRate > 0) {
		return Never
	}

	ms := math.Ceil((n - b.Tokens) / b.RefillRate * 1000)
	if math.IsNaN(ms) || ms < 0 {
		return 0
	}
	if ms > float64(maxWaitMs) {
		return maxWaitMs
	}
	return uint64(ms)
}
