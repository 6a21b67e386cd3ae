package redis

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajiwo/throttler/clock"
	"github.com/ajiwo/throttler/rules"
	"github.com/ajiwo/throttler/stores"
)

func testRule() rules.Rule {
	return rules.Rule{Capacity: 10, RefillRate: 2, Window: time.Minute, Enabled: true}
}

func testRedisURL() string {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	return "redis://" + addr + "/0"
}

// setupRedisTest returns a store on a manual clock, or nil when no
// Redis server is reachable.
func setupRedisTest(t *testing.T, clk clock.Clock) (*Store, func()) {
	t.Helper()

	s, err := New(t.Context(), Config{
		URL:             testRedisURL(),
		ConnectAttempts: 1,
		ConnectBackoff:  100 * time.Millisecond,
		Clock:           clk,
	})
	if err != nil {
		return nil, func() {}
	}

	teardown := func() {
		_ = s.client.FlushDB(t.Context())
		_ = s.client.Close()
	}
	return s, teardown
}

func TestParseConsumeReply(t *testing.T) {
	t.Run("valid reply", func(t *testing.T) {
		res, err := parseConsumeReply([]any{int64(1), "8.5", int64(12345)})
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 8.5, res.Tokens)
		assert.Equal(t, int64(12345), res.LastRefillMs)
	})

	t.Run("denied reply", func(t *testing.T) {
		res, err := parseConsumeReply([]any{int64(0), "0", int64(500)})
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, float64(0), res.Tokens)
	})

	t.Run("wrong shape", func(t *testing.T) {
		_, err := parseConsumeReply("OK")
		assert.ErrorIs(t, err, ErrUnexpectedReply)

		_, err = parseConsumeReply([]any{int64(1), "8.5"})
		assert.ErrorIs(t, err, ErrUnexpectedReply)
	})

	t.Run("wrong element types", func(t *testing.T) {
		_, err := parseConsumeReply([]any{"1", "8.5", int64(0)})
		assert.ErrorIs(t, err, ErrUnexpectedReply)

		_, err = parseConsumeReply([]any{int64(1), int64(8), int64(0)})
		assert.ErrorIs(t, err, ErrUnexpectedReply)

		_, err = parseConsumeReply([]any{int64(1), "not-a-number", int64(0)})
		assert.ErrorIs(t, err, ErrUnexpectedReply)
	})
}

func TestConsumeColdStart(t *testing.T) {
	clk := clock.NewManual(1000)
	s, teardown := setupRedisTest(t, clk)
	defer teardown()
	if s == nil {
		t.Skip("Redis not available, skipping tests")
	}

	res, err := s.Consume(t.Context(), "cold", testRule(), 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, float64(9), res.Tokens)
	assert.Equal(t, int64(1000), res.LastRefillMs)
}

func TestConsumeBurstAndRefill(t *testing.T) {
	clk := clock.NewManual(0)
	s, teardown := setupRedisTest(t, clk)
	defer teardown()
	if s == nil {
		t.Skip("Redis not available, skipping tests")
	}

	for i := range 10 {
		res, err := s.Consume(t.Context(), "burst", testRule(), 1)
		require.NoError(t, err)
		require.True(t, res.Allowed, "call %d should be admitted", i+1)
	}

	res, err := s.Consume(t.Context(), "burst", testRule(), 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, float64(0), res.Tokens)

	clk.Advance(500 * time.Millisecond)
	res, err = s.Consume(t.Context(), "burst", testRule(), 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "one token refilled at 2/s after 500ms")
	assert.Equal(t, float64(0), res.Tokens)
}

func TestConsumeFractionalBalanceSurvivesRoundTrip(t *testing.T) {
	clk := clock.NewManual(0)
	s, teardown := setupRedisTest(t, clk)
	defer teardown()
	if s == nil {
		t.Skip("Redis not available, skipping tests")
	}

	rule := rules.Rule{Capacity: 10, RefillRate: 0.5, Window: time.Minute, Enabled: true}

	_, err := s.Consume(t.Context(), "frac", rule, 10)
	require.NoError(t, err)

	// 300ms at 0.5/s accrues 0.15 tokens; the string reply must carry
	// the fraction through.
	clk.Advance(300 * time.Millisecond)
	res, err := s.Consume(t.Context(), "frac", rule, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.15, res.Tokens, 1e-9)
}

func TestConsumeClampsToShrunkenCapacity(t *testing.T) {
	clk := clock.NewManual(0)
	s, teardown := setupRedisTest(t, clk)
	defer teardown()
	if s == nil {
		t.Skip("Redis not available, skipping tests")
	}

	_, err := s.Consume(t.Context(), "shrink", testRule(), 1) // 9 left of 10
	require.NoError(t, err)

	shrunk := rules.Rule{Capacity: 3, RefillRate: 2, Window: time.Minute, Enabled: true}
	res, err := s.Consume(t.Context(), "shrink", shrunk, 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, float64(2), res.Tokens, "stored balance folds down to the new capacity")
}

func TestPeekAbsentAndExisting(t *testing.T) {
	clk := clock.NewManual(0)
	s, teardown := setupRedisTest(t, clk)
	defer teardown()
	if s == nil {
		t.Skip("Redis not available, skipping tests")
	}

	res, err := s.Peek(t.Context(), "ghost", testRule())
	require.NoError(t, err)
	assert.Equal(t, float64(10), res.Tokens)

	_, err = s.Consume(t.Context(), "seen", testRule(), 4)
	require.NoError(t, err)

	clk.Advance(time.Second) // 2 tokens back
	res, err = s.Peek(t.Context(), "seen", testRule())
	require.NoError(t, err)
	assert.Equal(t, float64(8), res.Tokens)

	// Peek must not have written the refill back.
	res, err = s.Peek(t.Context(), "seen", testRule())
	require.NoError(t, err)
	assert.Equal(t, float64(8), res.Tokens)
}

func TestReset(t *testing.T) {
	clk := clock.NewManual(0)
	s, teardown := setupRedisTest(t, clk)
	defer teardown()
	if s == nil {
		t.Skip("Redis not available, skipping tests")
	}

	_, err := s.Consume(t.Context(), "gone", testRule(), 10)
	require.NoError(t, err)

	require.NoError(t, s.Reset(t.Context(), "gone"))

	res, err := s.Consume(t.Context(), "gone", testRule(), 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, float64(9), res.Tokens)

	assert.NoError(t, s.Reset(t.Context(), "never-seen"))
}

func TestConcurrentReplicasNeverOveradmit(t *testing.T) {
	clk := clock.NewManual(0)
	a, teardownA := setupRedisTest(t, clk)
	defer teardownA()
	if a == nil {
		t.Skip("Redis not available, skipping tests")
	}
	b, teardownB := setupRedisTest(t, clk)
	defer teardownB()
	require.NotNil(t, b)

	// Frozen clocks: no refill, so admissions across both replicas
	// must total exactly the capacity.
	rule := rules.Rule{Capacity: 10, RefillRate: 2, Window: time.Minute, Enabled: true}

	var wg sync.WaitGroup
	admitted := make(chan bool, 40)
	for _, replica := range []*Store{a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				res, err := replica.Consume(t.Context(), "contended", rule, 1)
				if err != nil {
					t.Errorf("consume: %v", err)
					return
				}
				admitted <- res.Allowed
			}
		}()
	}
	wg.Wait()
	close(admitted)

	count := 0
	for ok := range admitted {
		if ok {
			count++
		}
	}
	assert.Equal(t, 10, count)
}

func TestEntryGetsTTL(t *testing.T) {
	clk := clock.NewManual(0)
	s, teardown := setupRedisTest(t, clk)
	defer teardown()
	if s == nil {
		t.Skip("Redis not available, skipping tests")
	}

	_, err := s.Consume(t.Context(), "ttl-check", testRule(), 1)
	require.NoError(t, err)

	ttl, err := s.client.TTL(t.Context(), storeKey("ttl-check")).Result()
	require.NoError(t, err)
	// ceil(60000 * 2 / 1000) = 120s, counting down from the write.
	assert.Greater(t, ttl, 100*time.Second)
	assert.LessOrEqual(t, ttl, 120*time.Second)
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New(t.Context(), Config{URL: "redis://bad:port:extra"})
	require.Error(t, err)
	assert.ErrorIs(t, err, stores.ErrInvalidConfig)
}

func TestNewUnreachableServer(t *testing.T) {
	start := time.Now()
	_, err := New(t.Context(), Config{
		URL:             "redis://127.0.0.1:1/0",
		ConnectAttempts: 2,
		ConnectBackoff:  50 * time.Millisecond,
	})
	require.Error(t, err)
	assert.True(t, stores.IsUnavailable(err), "connect failure should classify as unavailable: %v", err)
	assert.Less(t, time.Since(start), 10*time.Second, "retries should respect the configured backoff")
}
