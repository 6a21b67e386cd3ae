package postgres

import (
	"context"
	"net/url"

	"github.com/ajiwo/throttler/stores"
)

func init() {
	stores.Register("postgres", open)
	stores.Register("postgresql", open)
}

func open(ctx context.Context, u *url.URL, opts stores.OpenOptions) (stores.Store, error) {
	return New(ctx, Config{
		URL:             u.String(),
		ConnectAttempts: opts.ConnectAttempts,
		Clock:           opts.Clock,
		Logger:          opts.Logger,
	})
}
