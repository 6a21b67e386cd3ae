// Package stores defines the storage contract shared by the local
// in-process store and the distributed stores, plus the scheme registry
// used to open a store from a URL.
package stores

import (
	"context"
	"time"

	"github.com/ajiwo/throttler/rules"
)

// KeyPrefix namespaces bucket entries in shared key-value stores.
const KeyPrefix = "throttler:"

// Store is the per-key bucket state machine. Implementations must make
// Consume atomic per key: concurrent calls on the same key never lose
// updates.
type Store interface {
	// Consume refills the key's bucket according to rule, then attempts
	// to take n tokens. The returned snapshot reflects the state after
	// the attempt whether or not it was admitted. An absent key is
	// created as a full bucket first.
	Consume(ctx context.Context, key string, rule rules.Rule, n float64) (Result, error)

	// Peek reports the bucket state with refill applied but nothing
	// consumed. Absent keys report a full bucket.
	Peek(ctx context.Context, key string, rule rules.Rule) (Result, error)

	// Reset removes the key's bucket so the next consume recreates it full.
	Reset(ctx context.Context, key string) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}

// Result is the post-operation bucket snapshot returned by Consume and Peek.
type Result struct {
	Allowed      bool
	Tokens       float64 // tokens remaining, fractional
	LastRefillMs int64
	Degraded     bool // true when served by a fallback instead of the primary store
}

// HealthReport describes the current store health as observed by the
// failover layer and its background probe.
type HealthReport struct {
	StoreReachable bool
	FallbackActive bool
	LastError      string        // most recent failure, empty when healthy
	LastSuccess    time.Time     // zero if the store has never responded
	PingLatency    time.Duration // duration of the most recent successful ping
}
