// Package store provides the shared counter store backing the rate
// limiter. All cross-worker coordination goes through the store's atomic
// primitives; nothing is held in process memory between requests.
package store

import (
	"context"
	"fmt"
	"time"
)

// Store is the interface for the shared counter store.
type Store interface {
	// IncrementWithExpiry atomically increments the counter for key by
	// delta, setting the expiry when the key is newly created, and returns
	// the post-increment value. This must be a single atomic operation
	// because concurrent stateless workers race on the same key.
	IncrementWithExpiry(ctx context.Context, key string, delta int64, expiration time.Duration) (int64, error)

	// Get returns the current counter value for key.
	Get(ctx context.Context, key string) (int64, error)

	// TTL returns the remaining lifetime of key. Zero means the key does
	// not exist or carries no expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Delete removes the counter for key.
	Delete(ctx context.Context, key string) error

	// Close releases the store's resources.
	Close() error
}

// ErrKeyNotFound indicates the requested key does not exist.
type ErrKeyNotFound struct {
	Key string
}

// Error implements the error interface.
func (e *ErrKeyNotFound) Error() string {
	return fmt.Sprintf("key not found: %s", e.Key)
}
