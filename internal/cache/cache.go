// Package cache provides the read cache in front of the transit
// repository and the coordinator that invalidates it after mutations.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Common cache errors.
var (
	// ErrCacheMiss indicates that the key was not found in the cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidConfig indicates that the cache configuration is invalid.
	ErrInvalidConfig = errors.New("invalid cache configuration")
)

// Cache backend types.
const (
	TypeMemory = "memory"
	TypeRedis  = "redis"
)

// Cache is the interface for the read cache.
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns ErrCacheMiss if the key is not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with the given TTL.
	// A TTL of 0 uses the configured default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache. Deleting an absent key is
	// not an error.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists in the cache.
	Exists(ctx context.Context, key string) (bool, error)

	// Close closes the cache connection.
	Close() error
}

// Config holds cache configuration.
type Config struct {
	// Type selects the backend, "memory" or "redis".
	Type string `yaml:"type" json:"type"`

	// TTL is the default entry lifetime. Stale entries left behind by a
	// missed invalidation are bounded by this.
	TTL time.Duration `yaml:"ttl" json:"ttl"`

	// MaxEntries bounds the memory backend.
	MaxEntries int `yaml:"maxEntries" json:"maxEntries"`

	// KeyPrefix namespaces keys in the redis backend.
	KeyPrefix string `yaml:"keyPrefix" json:"keyPrefix"`
}

// DefaultConfig returns a Config with the memory backend and a short
// default TTL.
func DefaultConfig() *Config {
	return &Config{
		Type:       TypeMemory,
		TTL:        5 * time.Minute,
		MaxEntries: 10000,
		KeyPrefix:  "gatekeeper:cache:",
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Type {
	case TypeMemory, TypeRedis, "":
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidConfig, c.Type)
	}
	if c.TTL < 0 {
		return fmt.Errorf("%w: ttl must not be negative", ErrInvalidConfig)
	}
	if c.MaxEntries < 0 {
		return fmt.Errorf("%w: maxEntries must not be negative", ErrInvalidConfig)
	}
	return nil
}
