package stores

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajiwo/throttler/rules"
)

type stubStore struct {
	host string
}

func (s *stubStore) Consume(context.Context, string, rules.Rule, float64) (Result, error) {
	return Result{Allowed: true}, nil
}

func (s *stubStore) Peek(context.Context, string, rules.Rule) (Result, error) {
	return Result{}, nil
}

func (s *stubStore) Reset(context.Context, string) error { return nil }
func (s *stubStore) Ping(context.Context) error          { return nil }
func (s *stubStore) Close() error                        { return nil }

func TestOpenDispatchesByScheme(t *testing.T) {
	Register("stub", func(_ context.Context, u *url.URL, _ OpenOptions) (Store, error) {
		return &stubStore{host: u.Host}, nil
	})

	st, err := Open(t.Context(), "stub://example:1234/0", OpenOptions{})
	require.NoError(t, err)

	stub, ok := st.(*stubStore)
	require.True(t, ok)
	assert.Equal(t, "example:1234", stub.host)
}

func TestOpenUnknownScheme(t *testing.T) {
	_, err := Open(t.Context(), "bogus://nowhere", OpenOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemeNotRegistered)
}

func TestOpenBadURL(t *testing.T) {
	_, err := Open(t.Context(), "redis://bad url\x7f", OpenOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
