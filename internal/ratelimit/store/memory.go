package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store with in-process counters. It is used in
// tests and as a degraded per-worker fallback; it provides none of the
// cross-worker guarantees of the Redis store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     int64
	expiresAt time.Time
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// IncrementWithExpiry implements Store.
func (s *MemoryStore) IncrementWithExpiry(
	_ context.Context, key string, delta int64, expiration time.Duration,
) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.liveEntry(key)
	if entry == nil {
		entry = &memoryEntry{expiresAt: s.now().Add(expiration)}
		s.entries[key] = entry
	}

	entry.value += delta
	return entry.value, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.liveEntry(key)
	if entry == nil {
		return 0, &ErrKeyNotFound{Key: key}
	}
	return entry.value, nil
}

// TTL implements Store.
func (s *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.liveEntry(key)
	if entry == nil {
		return 0, nil
	}
	return entry.expiresAt.Sub(s.now()), nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*memoryEntry)
	return nil
}

// liveEntry returns the entry for key, dropping it when expired.
// Callers must hold the lock.
func (s *MemoryStore) liveEntry(key string) *memoryEntry {
	entry, ok := s.entries[key]
	if !ok {
		return nil
	}
	if s.now().After(entry.expiresAt) {
		delete(s.entries, key)
		return nil
	}
	return entry
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
