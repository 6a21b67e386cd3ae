// Package rules defines per-key rate limit rules and the read-mostly
// table that resolves a key to its effective rule.
package rules

import (
	"math"
	"time"
)

// Rule describes how a single key is throttled.
type Rule struct {
	Capacity   uint64        // Maximum tokens the bucket can hold
	RefillRate float64       // Tokens added per second
	Window     time.Duration // Natural period; drives TTL and eviction horizon
	Enabled    bool          // Disabled rules admit everything without accounting
}

// Validate reports whether the rule's parameters form a usable bucket.
// A rule whose capacity exceeds twice the tokens refilled per window can
// never recover from empty before its store entry expires, so such
// pairings are rejected.
func (r Rule) Validate() error {
	if r.Capacity < 1 {
		return NewInvalidCapacityError(r.Capacity)
	}
	if r.RefillRate <= 0 || math.IsInf(r.RefillRate, 0) || math.IsNaN(r.RefillRate) {
		return NewInvalidRefillRateError(r.RefillRate)
	}
	if r.Window < time.Second {
		return NewInvalidWindowError(r.Window)
	}
	ceiling := 2 * r.RefillRate * r.Window.Seconds()
	if float64(r.Capacity) > ceiling {
		return NewCapacityCeilingError(r.Capacity, ceiling)
	}
	return nil
}

// WindowMs returns the rule window in whole milliseconds.
func (r Rule) WindowMs() int64 {
	return r.Window.Milliseconds()
}
