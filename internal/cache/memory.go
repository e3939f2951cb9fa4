package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/transitops/gatekeeper/internal/observability"
)

// cacheTracer traces cache operations on both backends.
var cacheTracer = otel.Tracer("gatekeeper/cache")

// MemoryCache is an in-memory LRU cache. It backs single-process
// deployments and tests; shared deployments use the redis backend so
// invalidation reaches every worker.
type MemoryCache struct {
	logger     observability.Logger
	metrics    *Metrics
	maxEntries int
	defaultTTL time.Duration
	now        func() time.Time

	mu       sync.Mutex
	items    map[string]*list.Element
	eviction *list.List
}

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// MemoryCacheOption is a functional option for the memory cache.
type MemoryCacheOption func(*MemoryCache)

// WithMemoryCacheLogger sets the logger.
func WithMemoryCacheLogger(logger observability.Logger) MemoryCacheOption {
	return func(c *MemoryCache) {
		c.logger = logger
	}
}

// WithMemoryCacheMetrics sets the metrics.
func WithMemoryCacheMetrics(metrics *Metrics) MemoryCacheOption {
	return func(c *MemoryCache) {
		c.metrics = metrics
	}
}

// WithMemoryCacheClock sets the time source, for tests.
func WithMemoryCacheClock(now func() time.Time) MemoryCacheOption {
	return func(c *MemoryCache) {
		c.now = now
	}
}

// NewMemoryCache creates a new in-memory cache.
func NewMemoryCache(cfg *Config, opts ...MemoryCacheOption) *MemoryCache {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 10000
	}

	c := &MemoryCache{
		logger:     observability.NopLogger(),
		maxEntries: maxEntries,
		defaultTTL: cfg.TTL,
		now:        time.Now,
		items:      make(map[string]*list.Element),
		eviction:   list.New(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.metrics == nil {
		c.metrics = NewMetrics("gatekeeper")
	}

	return c
}

// Get implements Cache.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	_, span := cacheTracer.Start(ctx, "cache.Get",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.backend", TypeMemory),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		span.SetAttributes(attribute.Bool("cache.hit", false))
		c.metrics.RecordMiss(TypeMemory)
		return nil, ErrCacheMiss
	}

	entry := elem.Value.(*memoryEntry)
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		c.removeElement(elem)
		span.SetAttributes(attribute.Bool("cache.hit", false))
		c.metrics.RecordMiss(TypeMemory)
		return nil, ErrCacheMiss
	}

	c.eviction.MoveToFront(elem)
	span.SetAttributes(attribute.Bool("cache.hit", true))
	c.metrics.RecordHit(TypeMemory)

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, span := cacheTracer.Start(ctx, "cache.Set",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.backend", TypeMemory),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	if ttl == 0 {
		ttl = c.defaultTTL
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*memoryEntry)
		entry.value = stored
		entry.expiresAt = expiresAt
		c.eviction.MoveToFront(elem)
		return nil
	}

	elem := c.eviction.PushFront(&memoryEntry{key: key, value: stored, expiresAt: expiresAt})
	c.items[key] = elem

	for len(c.items) > c.maxEntries {
		oldest := c.eviction.Back()
		if oldest == nil {
			break
		}
		c.removeElement(oldest)
	}

	return nil
}

// Delete implements Cache.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	_, span := cacheTracer.Start(ctx, "cache.Delete",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.backend", TypeMemory),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
	return nil
}

// Exists implements Cache.
func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.Get(ctx, key)
	if err != nil {
		return false, nil
	}
	return true, nil
}

// Close implements Cache.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.eviction.Init()
	return nil
}

// Len returns the current number of entries.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// removeElement removes an entry. Callers must hold c.mu.
func (c *MemoryCache) removeElement(elem *list.Element) {
	entry := elem.Value.(*memoryEntry)
	delete(c.items, entry.key)
	c.eviction.Remove(elem)
}

// Ensure MemoryCache implements Cache.
var _ Cache = (*MemoryCache)(nil)
