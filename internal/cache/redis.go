package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/transitops/gatekeeper/internal/observability"
)

// RedisCache is a Redis-backed cache shared by all workers. Deletes
// issued by one worker are visible to every other, which is what makes
// post-write invalidation meaningful in a stateless deployment.
type RedisCache struct {
	client     *redis.Client
	keyPrefix  string
	defaultTTL time.Duration
	logger     observability.Logger
	metrics    *Metrics
}

// RedisCacheOption is a functional option for the redis cache.
type RedisCacheOption func(*RedisCache)

// WithRedisCacheLogger sets the logger.
func WithRedisCacheLogger(logger observability.Logger) RedisCacheOption {
	return func(c *RedisCache) {
		c.logger = logger
	}
}

// WithRedisCacheMetrics sets the metrics.
func WithRedisCacheMetrics(metrics *Metrics) RedisCacheOption {
	return func(c *RedisCache) {
		c.metrics = metrics
	}
}

// NewRedisCache creates a cache on an existing Redis client. The client
// is shared with the rate limit store; this package does not own its
// lifecycle beyond Close.
func NewRedisCache(client *redis.Client, cfg *Config, opts ...RedisCacheOption) (*RedisCache, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &RedisCache{
		client:     client,
		keyPrefix:  cfg.KeyPrefix,
		defaultTTL: cfg.TTL,
		logger:     observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.metrics == nil {
		c.metrics = NewMetrics("gatekeeper")
	}

	return c, nil
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.Get",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.backend", TypeRedis),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	value, err := c.client.Get(ctx, c.keyPrefix+key).Bytes()
	if err == nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		c.metrics.RecordHit(TypeRedis)
		return value, nil
	}

	if errors.Is(err, redis.Nil) {
		span.SetAttributes(attribute.Bool("cache.hit", false))
		c.metrics.RecordMiss(TypeRedis)
		return nil, ErrCacheMiss
	}

	span.RecordError(err)
	c.metrics.RecordError(TypeRedis, "get")
	c.logger.Error("redis cache get failed",
		observability.String("key", key),
		observability.Error(err),
	)
	return nil, err
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, span := cacheTracer.Start(ctx, "cache.Set",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.backend", TypeRedis),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	if ttl == 0 {
		ttl = c.defaultTTL
	}

	if err := c.client.Set(ctx, c.keyPrefix+key, value, ttl).Err(); err != nil {
		span.RecordError(err)
		c.metrics.RecordError(TypeRedis, "set")
		c.logger.Error("redis cache set failed",
			observability.String("key", key),
			observability.Error(err),
		)
		return err
	}
	return nil
}

// Delete implements Cache.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	ctx, span := cacheTracer.Start(ctx, "cache.Delete",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.backend", TypeRedis),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	if err := c.client.Del(ctx, c.keyPrefix+key).Err(); err != nil {
		span.RecordError(err)
		c.metrics.RecordError(TypeRedis, "delete")
		c.logger.Error("redis cache delete failed",
			observability.String("key", key),
			observability.Error(err),
		)
		return err
	}
	return nil
}

// Exists implements Cache.
func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, c.keyPrefix+key).Result()
	if err != nil {
		c.metrics.RecordError(TypeRedis, "exists")
		return false, err
	}
	return n > 0, nil
}

// Close implements Cache.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Ensure RedisCache implements Cache.
var _ Cache = (*RedisCache)(nil)
