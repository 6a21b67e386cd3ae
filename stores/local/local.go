// Package local implements the process-local bucket store. The key
// space is split across sharded maps so contention stays between shard
// neighbors instead of serializing the whole process.
package local

import (
	"context"
	"hash/maphash"
	"math"
	"sync"
	"time"

	"github.com/ajiwo/throttler/bucket"
	"github.com/ajiwo/throttler/clock"
	"github.com/ajiwo/throttler/rules"
	"github.com/ajiwo/throttler/stores"
)

// numShards must be a power of two so shard selection is a mask.
const numShards = 64

const defaultEvictionInterval = time.Minute

var hashSeed = maphash.MakeSeed()

type entry struct {
	bucket   bucket.Bucket
	windowMs int64 // eviction horizon recorded from the rule at last touch
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*entry
}

// Config tunes the local store. The zero value is usable.
type Config struct {
	// EvictionInterval is how often the sweeper scans for idle full
	// buckets. Zero means the 60s default; negative disables sweeping.
	EvictionInterval time.Duration

	// Clock supplies milliseconds for refill math. Nil means a
	// monotonic clock anchored at process start, immune to wall-clock
	// adjustments.
	Clock clock.Clock
}

// Store holds one bucket per key, sharded by key hash.
type Store struct {
	shards [numShards]shard
	clock  clock.Clock
	done   chan struct{}
	closed sync.Once
}

// New creates a local store and starts its eviction sweeper unless
// cfg.EvictionInterval is negative.
func New(cfg Config) *Store {
	s := &Store{
		clock: cfg.Clock,
		done:  make(chan struct{}),
	}
	if s.clock == nil {
		s.clock = clock.NewMono()
	}
	for i := range s.shards {
		s.shards[i].buckets = make(map[string]*entry)
	}

	interval := cfg.EvictionInterval
	if interval == 0 {
		interval = defaultEvictionInterval
	}
	if interval > 0 {
		go s.sweep(interval)
	}
	return s
}

func (s *Store) shardFor(key string) *shard {
	return &s.shards[maphash.String(hashSeed, key)&(numShards-1)]
}

// Consume looks up or creates the key's bucket under the shard mutex,
// syncs it with the rule's current parameters, and attempts to take n
// tokens. New buckets start full.
func (s *Store) Consume(_ context.Context, key string, rule rules.Rule, n float64) (stores.Result, error) {
	now := s.clock.NowMs()
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.buckets[key]
	if !ok {
		e = &entry{bucket: bucket.New(rule.Capacity, rule.RefillRate, now)}
		sh.buckets[key] = e
	}
	syncRule(e, rule)

	allowed := e.bucket.TryConsume(n, now)
	return stores.Result{
		Allowed:      allowed,
		Tokens:       e.bucket.Tokens,
		LastRefillMs: e.bucket.LastRefillMs,
	}, nil
}

// Peek returns the refilled state of the key's bucket without storing
// anything. Absent keys report a full bucket.
func (s *Store) Peek(_ context.Context, key string, rule rules.Rule) (stores.Result, error) {
	now := s.clock.NowMs()
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.buckets[key]
	if !ok {
		return stores.Result{Tokens: float64(rule.Capacity), LastRefillMs: now}, nil
	}

	b := e.bucket
	if b.Capacity != rule.Capacity || b.RefillRate != rule.RefillRate {
		b.Capacity = rule.Capacity
		b.RefillRate = rule.RefillRate
		b.Tokens = math.Min(b.Tokens, float64(rule.Capacity))
	}
	b.Refill(now)
	return stores.Result{Tokens: b.Tokens, LastRefillMs: b.LastRefillMs}, nil
}

// Reset deletes the key's bucket so the next consume recreates it full.
func (s *Store) Reset(_ context.Context, key string) error {
	sh := s.shardFor(key)
	sh.mu.Lock()
	delete(sh.buckets, key)
	sh.mu.Unlock()
	return nil
}

// Ping always succeeds; the local store has no external dependency.
func (s *Store) Ping(context.Context) error { return nil }

// Close stops the eviction sweeper. Safe to call more than once.
func (s *Store) Close() error {
	s.closed.Do(func() { close(s.done) })
	return nil
}

// Len reports the number of live buckets across all shards.
func (s *Store) Len() int {
	total := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		total += len(sh.buckets)
		sh.mu.Unlock()
	}
	return total
}

func (s *Store) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.evictIdle()
		}
	}
}

// evictIdle removes buckets idle past twice their window that have
// also refilled completely. Evicting a bucket that still owes a
// deficit would forgive it, so drained buckets stay until they earn
// their capacity back.
func (s *Store) evictIdle() {
	now := s.clock.NowMs()
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for key, e := range sh.buckets {
			idle := now - e.bucket.LastRefillMs
			if idle <= 2*e.windowMs {
				continue
			}
			if virtualTokens(e.bucket, idle) < float64(e.bucket.Capacity) {
				continue
			}
			delete(sh.buckets, key)
		}
		sh.mu.Unlock()
	}
}

// virtualTokens projects the bucket balance after idle milliseconds of
// uncapped refill. Eviction cares whether the bucket has earned back
// its full capacity, however long that took, so the catch-up cap used
// by admission does not apply here.
func virtualTokens(b bucket.Bucket, idleMs int64) float64 {
	added := b.RefillRate * float64(idleMs) / 1000
	if math.IsNaN(added) || math.IsInf(added, 0) || added < 0 {
		added = 0
	}
	return b.Tokens + added
}

// syncRule rewrites the bucket's parameters when the rule changed since
// the last touch; tokens above the new capacity are clamped down. The
// recorded window always tracks the rule so eviction uses the current
// horizon.
func syncRule(e *entry, rule rules.Rule) {
	e.windowMs = rule.WindowMs()
	if e.bucket.Capacity == rule.Capacity && e.bucket.RefillRate == rule.RefillRate {
		return
	}
	e.bucket.Capacity = rule.Capacity
	e.bucket.RefillRate = rule.RefillRate
	e.bucket.Tokens = math.Min(e.bucket.Tokens, float64(rule.Capacity))
}
