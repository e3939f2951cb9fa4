package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitops/gatekeeper/internal/ratelimit/store"
)

// failingStore simulates an unavailable shared store.
type failingStore struct{}

func (f *failingStore) IncrementWithExpiry(context.Context, string, int64, time.Duration) (int64, error) {
	return 0, errors.New("connection refused")
}

func (f *failingStore) Get(context.Context, string) (int64, error) {
	return 0, errors.New("connection refused")
}

func (f *failingStore) TTL(context.Context, string) (time.Duration, error) {
	return 0, errors.New("connection refused")
}

func (f *failingStore) Delete(context.Context, string) error {
	return errors.New("connection refused")
}

func (f *failingStore) Close() error { return nil }

// testClock pins the limiter and store to mid-window so tests never
// straddle a bucket boundary.
func testClock() func() time.Time {
	fixed := time.Date(2026, 8, 1, 12, 0, 30, 0, time.UTC)
	return func() time.Time { return fixed }
}

func newTestLimiter(t *testing.T, cfg *Config) (*TieredLimiter, *store.MemoryStore) {
	t.Helper()

	st := store.NewMemoryStore()
	clock := testClock()
	st.SetClock(clock)

	limiter, err := NewTieredLimiter(cfg, st, WithLimiterClock(clock))
	require.NoError(t, err)

	return limiter, st
}

func TestNewTieredLimiter(t *testing.T) {
	t.Run("nil store", func(t *testing.T) {
		_, err := NewTieredLimiter(DefaultConfig(), nil)
		require.Error(t, err)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := &Config{Tiers: map[string]Tier{"BROKEN": {Requests: -1, Window: time.Minute}}}
		_, err := NewTieredLimiter(cfg, store.NewMemoryStore())
		require.Error(t, err)
	})

	t.Run("nil config uses defaults", func(t *testing.T) {
		limiter, err := NewTieredLimiter(nil, store.NewMemoryStore())
		require.NoError(t, err)
		require.NotNil(t, limiter)
	})
}

func TestTieredLimiter_WindowRate(t *testing.T) {
	cfg := &Config{
		FailOpen: true,
		Tiers: map[string]Tier{
			TierPublic: {Requests: 5, Window: time.Minute},
		},
	}
	limiter, _ := newTestLimiter(t, cfg)
	ctx := context.Background()

	// Exactly limit allowed results, remaining strictly decreasing.
	for i := 0; i < 5; i++ {
		result, err := limiter.Allow(ctx, TierPublic, "caller-1")
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 5, result.Limit)
		assert.Equal(t, 5-i-1, result.Remaining)
	}

	// Everything past the limit is throttled with remaining floored at 0.
	for i := 0; i < 3; i++ {
		result, err := limiter.Allow(ctx, TierPublic, "caller-1")
		require.NoError(t, err)
		assert.False(t, result.Allowed)
		assert.Equal(t, 0, result.Remaining)
		assert.Positive(t, result.RetryAfter)
		assert.False(t, result.QuotaExhausted)
	}
}

func TestTieredLimiter_PublicTierScenario(t *testing.T) {
	// PUBLIC configured with 50 requests per window: request #51 is
	// throttled with remaining 0.
	cfg := &Config{
		FailOpen: true,
		Tiers: map[string]Tier{
			TierPublic: {Requests: 50, Window: time.Minute},
		},
	}
	limiter, _ := newTestLimiter(t, cfg)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		result, err := limiter.Allow(ctx, TierPublic, "caller-1")
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}

	result, err := limiter.Allow(ctx, TierPublic, "caller-1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
	assert.Equal(t, 50, result.Limit)
}

func TestTieredLimiter_IdentitiesIndependent(t *testing.T) {
	cfg := &Config{
		FailOpen: true,
		Tiers:    map[string]Tier{TierPublic: {Requests: 1, Window: time.Minute}},
	}
	limiter, _ := newTestLimiter(t, cfg)
	ctx := context.Background()

	result, err := limiter.Allow(ctx, TierPublic, "caller-1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	result, err = limiter.Allow(ctx, TierPublic, "caller-1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	// A different identity still has budget.
	result, err = limiter.Allow(ctx, TierPublic, "caller-2")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestTieredLimiter_DailyQuota(t *testing.T) {
	cfg := &Config{
		FailOpen: true,
		Tiers: map[string]Tier{
			TierPublic: {Requests: 100, Window: time.Minute, DailyQuota: 3},
		},
	}
	limiter, _ := newTestLimiter(t, cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.Allow(ctx, TierPublic, "caller-1")
		require.NoError(t, err)
		require.True(t, result.Allowed, "request %d should be within quota", i+1)
	}

	result, err := limiter.Allow(ctx, TierPublic, "caller-1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.True(t, result.QuotaExhausted)
	assert.Equal(t, 3, result.Limit)
	assert.Equal(t, 0, result.Remaining)
	// Retry-After points at the UTC day rollover.
	assert.Positive(t, result.RetryAfter)
	assert.LessOrEqual(t, result.RetryAfter, 24*time.Hour)
}

func TestTieredLimiter_FailOpen(t *testing.T) {
	limiter, err := NewTieredLimiter(DefaultConfig(), &failingStore{})
	require.NoError(t, err)

	result, err := limiter.Allow(context.Background(), TierPublic, "caller-1")
	require.NoError(t, err, "store failure must not surface as an error")
	assert.True(t, result.Allowed)
	assert.True(t, result.FailedOpen)
}

func TestTieredLimiter_FailClosed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailOpen = false

	limiter, err := NewTieredLimiter(cfg, &failingStore{})
	require.NoError(t, err)

	result, err := limiter.Allow(context.Background(), TierPublic, "caller-1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Positive(t, result.RetryAfter)
}

func TestTieredLimiter_UnknownTier(t *testing.T) {
	limiter, _ := newTestLimiter(t, DefaultConfig())

	_, err := limiter.Allow(context.Background(), "PLATINUM", "caller-1")
	require.Error(t, err)
}

func TestTieredLimiter_Reset(t *testing.T) {
	cfg := &Config{
		FailOpen: true,
		Tiers:    map[string]Tier{TierPublic: {Requests: 1, Window: time.Minute}},
	}
	limiter, _ := newTestLimiter(t, cfg)
	ctx := context.Background()

	_, err := limiter.Allow(ctx, TierPublic, "caller-1")
	require.NoError(t, err)

	result, err := limiter.Allow(ctx, TierPublic, "caller-1")
	require.NoError(t, err)
	require.False(t, result.Allowed)

	require.NoError(t, limiter.Reset(ctx, TierPublic, "caller-1"))

	result, err = limiter.Allow(ctx, TierPublic, "caller-1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestTieredLimiter_RedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	st := store.NewRedisStoreWithClient(client, "rl:", nil)
	t.Cleanup(func() { _ = st.Close() })

	cfg := &Config{
		FailOpen: true,
		Tiers:    map[string]Tier{TierPublic: {Requests: 2, Window: time.Minute}},
	}
	limiter, err := NewTieredLimiter(cfg, st, WithLimiterClock(testClock()))
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := limiter.Allow(ctx, TierPublic, "caller-1")
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}

	result, err := limiter.Allow(ctx, TierPublic, "caller-1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
}

func TestResult_ResetSeconds(t *testing.T) {
	assert.Equal(t, 0, (&Result{}).ResetSeconds())
	assert.Equal(t, 30, (&Result{ResetAfter: 30 * time.Second}).ResetSeconds())
	assert.Equal(t, 31, (&Result{ResetAfter: 30*time.Second + time.Millisecond}).ResetSeconds())
}
