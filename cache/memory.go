package cache

import (
	"context"
	"sync"

	"crypto-dashboard/models"
)

// MemoryStore keeps snapshots in process memory. It is used when no
// Postgres or Redis backend is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]models.CacheEntry
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]models.CacheEntry)}
}

// Name identifies the backend in metrics
func (s *MemoryStore) Name() string { return "memory" }

func memoryKey(symbol string, interval models.TimeInterval) string {
	return symbol + "|" + string(interval)
}

// LoadLatestSnapshot returns a copy of the stored entry
func (s *MemoryStore) LoadLatestSnapshot(ctx context.Context, symbol string, interval models.TimeInterval) (*models.CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[memoryKey(symbol, interval)]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// UpsertSnapshot stores the entry, replacing the previous one for its key
func (s *MemoryStore) UpsertSnapshot(ctx context.Context, entry *models.CacheEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[memoryKey(entry.Symbol, entry.Interval)] = *entry
	return nil
}

// Len returns the number of stored keys
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
