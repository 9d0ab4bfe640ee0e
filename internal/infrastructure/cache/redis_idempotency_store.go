package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/finz/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
)

var _ shared.IdempotencyStore = (*RedisIdempotencyStore)(nil)

const idempotencyKeyPrefix = "baseline:idempotency:"

// RedisIdempotencyStore persists idempotency records in Redis so replays
// work across replicas. Key expiry is the only eviction.
type RedisIdempotencyStore struct {
	client *redis.Client
}

// NewRedisIdempotencyStore creates a Redis-backed idempotency store
func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client}
}

// Get returns the stored record for key, or nil when absent
func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) (*shared.IdempotencyRecord, error) {
	raw, err := s.client.Get(ctx, idempotencyKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read idempotency record: %w", err)
	}

	var record shared.IdempotencyRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("failed to decode idempotency record: %w", err)
	}
	return &record, nil
}

// Put stores a record under its key with the given TTL. SetNX keeps the
// first writer's record when two replicas race on the same key.
func (s *RedisIdempotencyStore) Put(ctx context.Context, record shared.IdempotencyRecord, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = shared.DefaultIdempotencyConfig().TTL
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode idempotency record: %w", err)
	}
	if err := s.client.SetNX(ctx, idempotencyKeyPrefix+record.Key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write idempotency record: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection
func (s *RedisIdempotencyStore) Close() error {
	return s.client.Close()
}
