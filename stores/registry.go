package stores

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/ajiwo/throttler/clock"
)

// OpenOptions carries cross-cutting dependencies into store factories.
// Zero values are valid: factories fall back to their own defaults.
type OpenOptions struct {
	Clock  clock.Clock  // timestamp source for refill math; nil means the store's default
	Logger *slog.Logger // nil means no logging

	// ConnectAttempts bounds the startup liveness check. Zero means the
	// store's default; a negative value skips the check entirely so the
	// store can be opened while its server is down.
	ConnectAttempts int
}

// Factory builds a store from a parsed URL. Store-specific tuning is
// passed through URL query parameters.
type Factory func(ctx context.Context, u *url.URL, opts OpenOptions) (Store, error)

// registeredSchemes holds all registered store factories, keyed by URL scheme.
var registeredSchemes = make(map[string]Factory)

// Register registers a factory for a URL scheme. It is intended to be
// called from package init functions.
func Register(scheme string, factory Factory) {
	registeredSchemes[scheme] = factory
}

// Open parses rawURL and builds a store with the factory registered for
// its scheme.
func Open(ctx context.Context, rawURL string, opts OpenOptions) (Store, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing store URL: %w", ErrInvalidConfig, err)
	}
	factory, ok := registeredSchemes[u.Scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSchemeNotRegistered, u.Scheme)
	}
	return factory(ctx, u, opts)
}
