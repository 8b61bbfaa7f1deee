// Package cache decides whether a persisted indicator snapshot is fresh
// enough to serve or must be recomputed.
package cache

import (
	"context"
	"errors"

	"crypto-dashboard/models"
)

// ErrCacheUnavailable marks a failed or timed out store call. It is logged
// and counted but never returned to callers of SnapshotCache.
var ErrCacheUnavailable = errors.New("snapshot cache unavailable")

// Store persists the latest snapshot per (symbol, interval)
type Store interface {
	// LoadLatestSnapshot returns nil, nil when nothing is stored
	LoadLatestSnapshot(ctx context.Context, symbol string, interval models.TimeInterval) (*models.CacheEntry, error)
	// UpsertSnapshot replaces any previous entry for the same key
	UpsertSnapshot(ctx context.Context, entry *models.CacheEntry) error
}

type namedStore interface {
	Name() string
}

func storeName(s Store) string {
	if n, ok := s.(namedStore); ok {
		return n.Name()
	}
	return "custom"
}
