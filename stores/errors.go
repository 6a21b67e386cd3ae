package stores

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnavailable is a sentinel used to signal that the store is unreachable.
	ErrUnavailable = errors.New("store unavailable")

	// ErrSchemeNotRegistered is returned by Open for URL schemes without a factory.
	ErrSchemeNotRegistered = errors.New("no store registered for scheme")

	// ErrInvalidConfig is returned when the provided store configuration is invalid.
	ErrInvalidConfig = errors.New("invalid store configuration")
)

// UnavailableError wraps an underlying cause with operation context.
// Use for connectivity/auth/TLS/unavailability issues; operational
// errors that should not trigger failover stay unwrapped.
type UnavailableError struct {
	Op    string // logical operation context, e.g. "redis:EvalSha", "postgres:Ping"
	Cause error  // underlying error returned by driver/client
}

// Error includes the operation context and underlying cause, e.g.
// "store unavailable: redis:Ping: connection refused".
// If Op is empty the context segment is omitted.
func (e *UnavailableError) Error() string {
	if e == nil {
		return ErrUnavailable.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", ErrUnavailable, e.Op, e.Cause)
	}
	return fmt.Sprintf("%s: %v", ErrUnavailable, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *UnavailableError) Unwrap() error { return e.Cause }

// Is allows matching against the ErrUnavailable sentinel with errors.Is.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// NewUnavailableError wraps a cause as an unavailability error with context.
// If cause is nil, the sentinel ErrUnavailable is returned.
func NewUnavailableError(op string, cause error) error {
	if cause == nil {
		return ErrUnavailable
	}
	return &UnavailableError{Op: op, Cause: cause}
}

// IsUnavailable reports whether err indicates the store is unreachable,
// matching both the sentinel and any wrapped UnavailableError.
func IsUnavailable(err error) bool {
	if errors.Is(err, ErrUnavailable) {
		return true
	}
	var ue *UnavailableError
	return errors.As(err, &ue)
}

// MaybeConnError classifies err as an unavailability error when its
// message matches any of the lowercase patterns, or when it is a
// context deadline/cancellation. Anything else is returned unchanged.
//
// The op parameter should describe the operation being performed
// (e.g. "redis:Get", "postgres:Ping").
func MaybeConnError(op string, err error, patterns []string) error {
	if err == nil {
		return nil
	}

	if patterns != nil {
		errStr := strings.ToLower(err.Error())
		for _, pattern := range patterns {
			if strings.Contains(errStr, pattern) {
				return NewUnavailableError(op, err)
			}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return NewUnavailableError(op, err)
	}

	return err
}
