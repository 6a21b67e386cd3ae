// Package metrics counts admission decisions per key. The collector is
// storage for the metrics endpoint, not an exporter; counters live in
// memory and reset with the process.
package metrics

import (
	"sync"
	"time"
)

// Counters holds the decision tallies for one key.
type Counters struct {
	Total     uint64 `json:"total_requests"`
	Allowed   uint64 `json:"allowed_requests"`
	Throttled uint64 `json:"throttled_requests"`
	LastReset int64  `json:"last_reset"` // Unix seconds when counting (re)started
}

// Collector aggregates per-key counters. Safe for concurrent use.
type Collector struct {
	mu   sync.RWMutex
	keys map[string]*Counters
}

// New returns an empty collector.
func New() *Collector {
	return &Collector{keys: make(map[string]*Counters)}
}

// Record tallies one decision for key.
func (c *Collector) Record(key string, allowed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	counters, ok := c.keys[key]
	if !ok {
		counters = &Counters{LastReset: time.Now().Unix()}
		c.keys[key] = counters
	}
	counters.Total++
	if allowed {
		counters.Allowed++
	} else {
		counters.Throttled++
	}
}

// Key returns a copy of the counters for key and whether any exist.
func (c *Collector) Key(key string) (Counters, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	counters, ok := c.keys[key]
	if !ok {
		return Counters{}, false
	}
	return *counters, true
}

// Snapshot returns a copy of every key's counters.
func (c *Collector) Snapshot() map[string]Counters {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := make(map[string]Counters, len(c.keys))
	for key, counters := range c.keys {
		snapshot[key] = *counters
	}
	return snapshot
}

// Global sums all keys' counters.
func (c *Collector) Global() Counters {
	c.mu.RLock()
	defer c.mu.RUnlock()

	global := Counters{LastReset: time.Now().Unix()}
	for _, counters := range c.keys {
		global.Total += counters.Total
		global.Allowed += counters.Allowed
		global.Throttled += counters.Throttled
		if counters.LastReset < global.LastReset {
			global.LastReset = counters.LastReset
		}
	}
	return global
}

// ResetKey zeroes the counters for key, keeping the key registered.
// Unknown keys are ignored.
func (c *Collector) ResetKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.keys[key]; ok {
		c.keys[key] = &Counters{LastReset: time.Now().Unix()}
	}
}

// Len reports how many keys have been recorded.
func (c *Collector) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}
