package throttler

import (
	"errors"

	"github.com/ajiwo/throttler/stores"
)

var (
	// ErrInvalidKey is returned when a key fails the grammar: 1..256
	// bytes, each in [A-Za-z0-9_.-].
	ErrInvalidKey = errors.New("invalid key")

	// ErrBadConfig is returned when a rule or engine configuration
	// violates its invariants. Never retried.
	ErrBadConfig = errors.New("bad configuration")

	// ErrStoreUnavailable is returned when the shared store failed and
	// the fallback policy is closed. The next request retries the
	// store implicitly.
	ErrStoreUnavailable = stores.ErrUnavailable

	// ErrInternal is returned for unexpected failures. Fatal to the
	// request, never to the process.
	ErrInternal = errors.New("internal error")
)
