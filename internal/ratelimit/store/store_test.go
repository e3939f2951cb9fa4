package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreWithClient(client, "test:", nil)
	t.Cleanup(func() { _ = s.Close() })

	return s, mr
}

func TestRedisStore_IncrementWithExpiry(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	// First increment creates the key and sets the expiry.
	val, err := s.IncrementWithExpiry(ctx, "counter", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)
	assert.InDelta(t, time.Minute.Seconds(), mr.TTL("test:counter").Seconds(), 1)

	// Subsequent increments do not refresh the expiry.
	mr.FastForward(30 * time.Second)
	val, err = s.IncrementWithExpiry(ctx, "counter", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), val)
	assert.InDelta(t, (30 * time.Second).Seconds(), mr.TTL("test:counter").Seconds(), 1)

	// After expiry the counter restarts.
	mr.FastForward(31 * time.Second)
	val, err = s.IncrementWithExpiry(ctx, "counter", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)
}

func TestRedisStore_Get(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	var notFound *ErrKeyNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.Key)

	_, err = s.IncrementWithExpiry(ctx, "counter", 5, time.Minute)
	require.NoError(t, err)

	val, err := s.Get(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(5), val)
}

func TestRedisStore_TTL(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	ttl, err := s.TTL(ctx, "missing")
	require.NoError(t, err)
	assert.Zero(t, ttl)

	_, err = s.IncrementWithExpiry(ctx, "counter", 1, time.Minute)
	require.NoError(t, err)

	ttl, err = s.TTL(ctx, "counter")
	require.NoError(t, err)
	assert.InDelta(t, time.Minute.Seconds(), ttl.Seconds(), 1)
}

func TestRedisStore_Delete(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	_, err := s.IncrementWithExpiry(ctx, "counter", 1, time.Minute)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "counter"))

	_, err = s.Get(ctx, "counter")
	var notFound *ErrKeyNotFound
	require.ErrorAs(t, err, &notFound)
}

func TestRedisStore_CancelledContext(t *testing.T) {
	s, _ := newTestRedisStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.IncrementWithExpiry(ctx, "counter", 1, time.Minute)
	require.Error(t, err)
}

func TestRedisStore_CloseIdempotent(t *testing.T) {
	s, _ := newTestRedisStore(t)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	s.SetClock(func() time.Time { return now })

	val, err := s.IncrementWithExpiry(ctx, "counter", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)

	val, err = s.IncrementWithExpiry(ctx, "counter", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), val)

	ttl, err := s.TTL(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)

	// Counter self-expires.
	now = now.Add(2 * time.Minute)
	_, err = s.Get(ctx, "counter")
	var notFound *ErrKeyNotFound
	require.ErrorAs(t, err, &notFound)

	val, err = s.IncrementWithExpiry(ctx, "counter", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)

	require.NoError(t, s.Delete(ctx, "counter"))
	_, err = s.Get(ctx, "counter")
	require.Error(t, err)
}
