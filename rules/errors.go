package rules

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRule is the sentinel wrapped by every rule validation failure.
var ErrInvalidRule = errors.New("invalid rate limit rule")

func NewInvalidCapacityError(capacity uint64) error {
	return fmt.Errorf("%w: capacity must be at least 1, got %d", ErrInvalidRule, capacity)
}

func NewInvalidRefillRateError(rate float64) error {
	return fmt.Errorf("%w: refill rate must be a positive finite number, got %v", ErrInvalidRule, rate)
}

func NewInvalidWindowError(window time.Duration) error {
	return fmt.Errorf("%w: window must be at least 1s, got %v", ErrInvalidRule, window)
}

func NewCapacityCeilingError(capacity uint64, ceiling float64) error {
	return fmt.Errorf("%w: capacity %d exceeds 2x the tokens refilled per window (%.2f); the bucket could never recover within its eviction horizon", ErrInvalidRule, capacity, ceiling)
}
