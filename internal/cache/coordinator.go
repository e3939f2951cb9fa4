package cache

import (
	"context"

	"github.com/transitops/gatekeeper/internal/observability"
)

// Coordinator invalidates read-cache entries after a mutation has been
// durably committed. It must never run before the write: a missed
// invalidation leaves a stale entry bounded by its TTL, but an
// invalidation for a write that then fails serves phantom data.
//
// Invalidation is best-effort. Delete failures are logged and metered,
// never propagated, so a cache outage cannot fail a committed write.
type Coordinator struct {
	cache   Cache
	logger  observability.Logger
	metrics *Metrics

	// aggregates maps an entity kind to the derived views that embed
	// entities of that kind and must be dropped on any mutation.
	aggregates map[string][]string
}

// CoordinatorOption is a functional option for the coordinator.
type CoordinatorOption func(*Coordinator)

// WithCoordinatorLogger sets the logger.
func WithCoordinatorLogger(logger observability.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithCoordinatorMetrics sets the metrics.
func WithCoordinatorMetrics(metrics *Metrics) CoordinatorOption {
	return func(c *Coordinator) {
		c.metrics = metrics
	}
}

// WithAggregateViews registers the derived views to drop when an entity
// of the given kind changes.
func WithAggregateViews(kind string, views ...string) CoordinatorOption {
	return func(c *Coordinator) {
		c.aggregates[kind] = append(c.aggregates[kind], views...)
	}
}

// NewCoordinator creates a coordinator over the given cache.
func NewCoordinator(cache Cache, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		cache:      cache,
		logger:     observability.NopLogger(),
		aggregates: make(map[string][]string),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.metrics == nil {
		c.metrics = NewMetrics("gatekeeper")
	}

	return c
}

// EntityChanged drops every cache entry that may embed the entity: its
// own key, the owner's list key, and the registered aggregate views for
// its kind. ownerScope may be empty for unscoped entities.
func (c *Coordinator) EntityChanged(ctx context.Context, kind, id, ownerScope string) {
	keys := make([]string, 0, 2+len(c.aggregates[kind]))
	keys = append(keys, EntityKey(kind, id))
	if ownerScope != "" {
		keys = append(keys, OwnerListKey(kind, ownerScope))
	}
	for _, view := range c.aggregates[kind] {
		keys = append(keys, AggregateKey(kind, view))
	}

	c.invalidate(ctx, keys)
}

// invalidate deletes each key, swallowing failures.
func (c *Coordinator) invalidate(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := c.cache.Delete(ctx, key); err != nil {
			c.metrics.RecordInvalidation("error")
			c.logger.Warn("cache invalidation failed",
				observability.String("key", key),
				observability.Error(err),
			)
			continue
		}
		c.metrics.RecordInvalidation("ok")
	}
}
