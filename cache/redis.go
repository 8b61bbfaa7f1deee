package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crypto-dashboard/models"

	"github.com/redis/go-redis/v9"
)

// DefaultRetention is how long stored snapshots survive before the backend drops them
const DefaultRetention = 24 * time.Hour

const redisKeyPrefix = "indicators:snapshot:"

// RedisStore keeps one JSON-encoded entry per key with a retention expiry
type RedisStore struct {
	client    redis.Cmdable
	retention time.Duration
}

// NewRedisStore creates a RedisStore. A zero retention uses DefaultRetention.
func NewRedisStore(client redis.Cmdable, retention time.Duration) *RedisStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisStore{client: client, retention: retention}
}

// Name identifies the backend in metrics
func (s *RedisStore) Name() string { return "redis" }

// RedisKey returns the key an entry is stored under
func RedisKey(symbol string, interval models.TimeInterval) string {
	return redisKeyPrefix + symbol + ":" + string(interval)
}

// LoadLatestSnapshot reads and decodes the entry for symbol and interval
func (s *RedisStore) LoadLatestSnapshot(ctx context.Context, symbol string, interval models.TimeInterval) (*models.CacheEntry, error) {
	raw, err := s.client.Get(ctx, RedisKey(symbol, interval)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &entry, nil
}

// UpsertSnapshot overwrites the entry and refreshes its expiry
func (s *RedisStore) UpsertSnapshot(ctx context.Context, entry *models.CacheEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := s.client.Set(ctx, RedisKey(entry.Symbol, entry.Interval), raw, s.retention).Err(); err != nil {
		return fmt.Errorf("failed to set snapshot: %w", err)
	}
	return nil
}

// Ping checks connectivity
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
