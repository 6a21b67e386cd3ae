// Package redis implements the distributed store on a shared Redis
// instance. The refill-then-consume step runs as a server-side Lua
// script so concurrent replicas never lose updates to the same key.
package redis

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ajiwo/throttler/clock"
	"github.com/ajiwo/throttler/rules"
	"github.com/ajiwo/throttler/stores"
)

//go:embed consume.lua
var consumeLua string

// consumeScript runs as EVALSHA with an EVAL fallback on NOSCRIPT.
var consumeScript = redis.NewScript(consumeLua)

type Config struct {
	// URL in redis://[:password@]host:port/db form. go-redis query
	// parameters such as pool_size are honored.
	URL string

	// PoolSize overrides the URL's pool size when positive.
	PoolSize int

	// ConnectAttempts is how many pings to try before giving up.
	// Zero means 3; negative skips the startup ping so the store can
	// be opened while Redis is down.
	ConnectAttempts int

	// ConnectBackoff is the pause between failed attempts. Zero means 2s.
	ConnectBackoff time.Duration

	// Clock supplies the timestamps fed to the consume script. All
	// replicas must agree on its meaning, so this defaults to wall
	// time. Override only in tests.
	Clock clock.Clock

	Logger *slog.Logger
}

// Store talks to one Redis instance. Safe for concurrent use.
type Store struct {
	client *redis.Client
	clock  clock.Clock
}

// New connects to Redis and verifies it responds, retrying per the
// config before reporting the store unavailable.
func New(ctx context.Context, cfg Config) (*Store, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing redis URL: %w", stores.ErrInvalidConfig, err)
	}
	if cfg.PoolSize > 0 {
		opt.PoolSize = cfg.PoolSize
	}

	attempts := cfg.ConnectAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := cfg.ConnectBackoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	client := redis.NewClient(opt)
	for attempt := 1; cfg.ConnectAttempts >= 0; attempt++ {
		err = client.Ping(ctx).Err()
		if err == nil {
			break
		}
		logger.Warn("redis ping failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.String("error", err.Error()),
		)
		if attempt >= attempts {
			_ = client.Close()
			return nil, stores.NewUnavailableError("redis:Connect", err)
		}
		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, stores.NewUnavailableError("redis:Connect", ctx.Err())
		case <-time.After(backoff):
		}
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewWall()
	}
	return &Store{client: client, clock: clk}, nil
}

// wireBucket is the JSON value stored under each key. The field names
// are shared with the Lua script and are part of the wire contract.
type wireBucket struct {
	Tokens     float64 `json:"tokens"`
	Capacity   uint64  `json:"capacity"`
	RefillRate float64 `json:"refill_rate"`
	LastRefill int64   `json:"last_refill"`
}

// Consume executes the refill-then-consume script against the key's
// entry, creating it full when absent. now_ms comes from the caller's
// clock so every replica feeds the bucket the same time source.
func (s *Store) Consume(ctx context.Context, key string, rule rules.Rule, n float64) (stores.Result, error) {
	now := s.clock.NowMs()
	raw, err := consumeScript.Run(ctx, s.client,
		[]string{storeKey(key)},
		n, rule.Capacity, rule.RefillRate, rule.WindowMs(), now,
	).Result()
	if err != nil {
		return stores.Result{}, stores.MaybeConnError("redis:EvalSha", err, connErrorStrings)
	}
	return parseConsumeReply(raw)
}

// Peek reads the stored entry and applies the refill math client-side
// without writing anything back. Absent keys report a full bucket.
func (s *Store) Peek(ctx context.Context, key string, rule rules.Rule) (stores.Result, error) {
	now := s.clock.NowMs()
	raw, err := s.client.Get(ctx, storeKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return stores.Result{Tokens: float64(rule.Capacity), LastRefillMs: now}, nil
	}
	if err != nil {
		return stores.Result{}, stores.MaybeConnError("redis:Get", err, connErrorStrings)
	}

	var wire wireBucket
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return stores.Result{}, NewCorruptEntryError(key, err)
	}

	// Mirror the script: refill from the stored timestamp, then clamp
	// to the rule's current capacity.
	tokens := wire.Tokens
	if elapsed := now - wire.LastRefill; elapsed > 0 {
		added := rule.RefillRate * float64(elapsed) / 1000
		if !math.IsNaN(added) && !math.IsInf(added, 0) && added > 0 {
			tokens += added
		}
	}
	tokens = math.Min(tokens, float64(rule.Capacity))
	return stores.Result{Tokens: tokens, LastRefillMs: max(wire.LastRefill, now)}, nil
}

// Reset deletes the key's entry.
func (s *Store) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, storeKey(key)).Err(); err != nil {
		return stores.MaybeConnError("redis:Del", err, connErrorStrings)
	}
	return nil
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return stores.MaybeConnError("redis:Ping", err, connErrorStrings)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

func storeKey(key string) string {
	return stores.KeyPrefix + key
}

// parseConsumeReply decodes {admitted, tokens, last_refill}. Tokens
// travel as a string because Redis replies truncate Lua numbers.
func parseConsumeReply(raw any) (stores.Result, error) {
	reply, ok := raw.([]any)
	if !ok || len(reply) != 3 {
		return stores.Result{}, NewUnexpectedReplyError(raw)
	}
	admitted, ok := reply[0].(int64)
	if !ok {
		return stores.Result{}, NewUnexpectedReplyError(raw)
	}
	tokensStr, ok := reply[1].(string)
	if !ok {
		return stores.Result{}, NewUnexpectedReplyError(raw)
	}
	tokens, err := strconv.ParseFloat(tokensStr, 64)
	if err != nil {
		return stores.Result{}, NewUnexpectedReplyError(raw)
	}
	lastRefill, ok := reply[2].(int64)
	if !ok {
		return stores.Result{}, NewUnexpectedReplyError(raw)
	}
	return stores.Result{
		Allowed:      admitted == 1,
		Tokens:       tokens,
		LastRefillMs: lastRefill,
	}, nil
}
