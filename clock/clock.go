// Package clock provides the millisecond timestamp sources used by all
// refill math. Implementations are safe for concurrent use and never panic.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock returns elapsed milliseconds from a stable reference point.
//
// Two flavors exist: Wall for shared-store state, where every replica must
// agree on the meaning of a stored timestamp, and Mono for process-local
// state, where wall-clock adjustments must not move time backwards.
type Clock interface {
	NowMs() int64
}

// Wall reports wall-clock milliseconds since the Unix epoch. Readings are
// guarded by a high-water mark so the reported value never decreases even
// when the system clock steps backwards; the previously observed timestamp
// is returned instead.
type Wall struct {
	last atomic.Int64
}

// NewWall returns a wall clock.
func NewWall() *Wall {
	return &Wall{}
}

func (w *Wall) NowMs() int64 {
	now := time.Now().UnixMilli()
	for {
		prev := w.last.Load()
		if now <= prev {
			return prev
		}
		if w.last.CompareAndSwap(prev, now) {
			return now
		}
	}
}

// Mono reports milliseconds since the clock's construction using Go's
// monotonic reading, so it is immune to wall-clock adjustments.
type Mono struct {
	start time.Time
}

// NewMono returns a monotonic clock anchored at the moment of the call.
func NewMono() *Mono {
	return &Mono{start: time.Now()}
}

func (m *Mono) NowMs() int64 {
	return time.Since(m.start).Milliseconds()
}

// Manual is a test clock driven explicitly by Set and Advance.
type Manual struct {
	now atomic.Int64
}

// NewManual returns a manual clock reporting startMs until moved.
func NewManual(startMs int64) *Manual {
	m := &Manual{}
	m.now.Store(startMs)
	return m
}

func (m *Manual) NowMs() int64 {
	return m.now.Load()
}

// Set moves the clock to an absolute millisecond value.
func (m *Manual) Set(ms int64) {
	m.now.Store(ms)
}

// Advance moves the clock forward by d, truncated to milliseconds.
func (m *Manual) Advance(d time.Duration) {
	m.now.Add(d.Milliseconds())
}
