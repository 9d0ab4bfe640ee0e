package cache

import (
	"context"
	"sync"
	"time"

	"github.com/finz/backend/internal/domain/shared"
)

var _ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)

const sweepInterval = time.Minute

type inMemoryEntry struct {
	record    shared.IdempotencyRecord
	expiresAt time.Time
}

// InMemoryIdempotencyStore keeps idempotency records in process memory.
// Suited for single-instance deployments and tests; a multi-instance
// deployment needs the Redis store so retries hitting another replica
// still replay.
type InMemoryIdempotencyStore struct {
	mu      sync.RWMutex
	entries map[string]inMemoryEntry

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewInMemoryIdempotencyStore creates a store that sweeps expired
// records in the background. Each record expires at the TTL its Put
// supplied.
func NewInMemoryIdempotencyStore() *InMemoryIdempotencyStore {
	s := &InMemoryIdempotencyStore{
		entries: make(map[string]inMemoryEntry),
		stopCh:  make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

// Get returns the stored record for key, or nil when the key is unknown
// or its record has expired.
func (s *InMemoryIdempotencyStore) Get(ctx context.Context, key string) (*shared.IdempotencyRecord, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return nil, nil
	}
	record := entry.record
	return &record, nil
}

// Put stores a record under its key with the given TTL. The first writer
// wins; a concurrent duplicate leaves the existing live record in place.
func (s *InMemoryIdempotencyStore) Put(ctx context.Context, record shared.IdempotencyRecord, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = shared.DefaultIdempotencyConfig().TTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[record.Key]; ok && time.Now().Before(existing.expiresAt) {
		return nil
	}
	s.entries[record.Key] = inMemoryEntry{
		record:    record,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Close stops the background sweeper
func (s *InMemoryIdempotencyStore) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	return nil
}

func (s *InMemoryIdempotencyStore) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *InMemoryIdempotencyStore) sweep() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, key)
		}
	}
}
