package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{name: "defaults", cfg: DefaultConfig()},
		{name: "empty type", cfg: &Config{}},
		{name: "unknown type", cfg: &Config{Type: "memcached"}, wantErr: true},
		{name: "negative ttl", cfg: &Config{Type: TypeMemory, TTL: -time.Second}, wantErr: true},
		{name: "negative maxEntries", cfg: &Config{Type: TypeMemory, MaxEntries: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestMemoryCache_GetSet(t *testing.T) {
	c := NewMemoryCache(nil)
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "k1", []byte("v1"), 0))

	got, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	exists, err := c.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, c.Delete(ctx, "k1"))
	_, err = c.Get(ctx, "k1")
	require.ErrorIs(t, err, ErrCacheMiss)

	// Deleting an absent key is fine.
	require.NoError(t, c.Delete(ctx, "k1"))
}

func TestMemoryCache_Expiry(t *testing.T) {
	current := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache(&Config{Type: TypeMemory, TTL: time.Minute},
		WithMemoryCacheClock(func() time.Time { return current }),
	)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", []byte("v1"), 0))

	got, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	current = current.Add(61 * time.Second)
	_, err = c.Get(ctx, "k1")
	require.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_Eviction(t *testing.T) {
	c := NewMemoryCache(&Config{Type: TypeMemory, MaxEntries: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), 0))
	}

	// Touch k0 so k1 becomes the least recently used.
	_, err := c.Get(ctx, "k0")
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "k3", []byte("v"), 0))
	assert.Equal(t, 3, c.Len())

	_, err = c.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "k0")
	assert.NoError(t, err)
}

func TestMemoryCache_SetCopiesValue(t *testing.T) {
	c := NewMemoryCache(nil)
	ctx := context.Background()

	value := []byte("original")
	require.NoError(t, c.Set(ctx, "k1", value, 0))
	value[0] = 'X'

	got, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), got)
}

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	c, err := NewRedisCache(client, &Config{Type: TypeRedis, TTL: time.Minute, KeyPrefix: "test:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c, mr
}

func TestRedisCache_GetSet(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "k1", []byte("v1"), 0))

	got, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	// Keys carry the configured prefix in the store.
	assert.True(t, mr.Exists("test:k1"))

	exists, err := c.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, c.Delete(ctx, "k1"))
	_, err = c.Get(ctx, "k1")
	require.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_TTL(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", []byte("v1"), 0))

	mr.FastForward(61 * time.Second)
	_, err := c.Get(ctx, "k1")
	require.ErrorIs(t, err, ErrCacheMiss)
}

func TestNewRedisCache_Validation(t *testing.T) {
	_, err := NewRedisCache(nil, nil)
	require.Error(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	_, err = NewRedisCache(client, &Config{Type: "memcached"})
	require.Error(t, err)
}
