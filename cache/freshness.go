package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crypto-dashboard/models"
	"crypto-dashboard/observability"
)

// DefaultStoreTimeout bounds every individual store call
const DefaultStoreTimeout = 2 * time.Second

// ComputeFunc produces a fresh snapshot on a cache miss
type ComputeFunc func(ctx context.Context) (*models.IndicatorSnapshot, error)

// SnapshotCache serves stored snapshots while they are younger than the
// caller's TTL and recomputes otherwise. Store failures degrade to
// recomputation. A nil store always recomputes.
type SnapshotCache struct {
	store        Store
	backend      string
	storeTimeout time.Duration
	now          func() time.Time
	metrics      *observability.Metrics
}

// Option configures a SnapshotCache
type Option func(*SnapshotCache)

// WithStoreTimeout overrides the per-call store timeout
func WithStoreTimeout(d time.Duration) Option {
	return func(c *SnapshotCache) {
		if d > 0 {
			c.storeTimeout = d
		}
	}
}

// WithClock overrides the clock used for freshness checks and storedAt
func WithClock(now func() time.Time) Option {
	return func(c *SnapshotCache) {
		c.now = now
	}
}

// WithMetrics sets the metrics sink, defaulting to the global instance
func WithMetrics(m *observability.Metrics) Option {
	return func(c *SnapshotCache) {
		c.metrics = m
	}
}

// NewSnapshotCache creates a SnapshotCache over store, which may be nil
func NewSnapshotCache(store Store, opts ...Option) *SnapshotCache {
	c := &SnapshotCache{
		store:        store,
		backend:      "none",
		storeTimeout: DefaultStoreTimeout,
		now:          time.Now,
	}
	if store != nil {
		c.backend = storeName(store)
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = observability.GetMetrics()
	}
	return c
}

// Backend names the underlying store
func (c *SnapshotCache) Backend() string {
	return c.backend
}

// GetOrCompute returns the stored snapshot when it is fresh under ttl,
// otherwise runs compute and persists the result. The bool reports whether
// the snapshot came from the store. Errors from compute are returned
// unchanged; store errors never are.
func (c *SnapshotCache) GetOrCompute(ctx context.Context, symbol string, interval models.TimeInterval, ttl time.Duration, compute ComputeFunc) (*models.IndicatorSnapshot, bool, error) {
	if snap, ok := c.Lookup(ctx, symbol, interval, ttl); ok {
		return snap, true, nil
	}

	snap, err := compute(ctx)
	if err != nil {
		return nil, false, err
	}
	if snap == nil {
		return nil, false, nil
	}

	c.Put(ctx, symbol, interval, snap)
	return snap, false, nil
}

// Lookup returns the stored snapshot if it is younger than ttl
func (c *SnapshotCache) Lookup(ctx context.Context, symbol string, interval models.TimeInterval, ttl time.Duration) (*models.IndicatorSnapshot, bool) {
	if c.store == nil {
		return nil, false
	}

	entry, err := c.load(ctx, symbol, interval)
	if err != nil {
		c.metrics.RecordCacheLookup(c.backend, observability.CacheResultError)
		observability.WithSubscription(symbol, string(interval)).Warn("snapshot lookup failed, recomputing",
			"backend", c.backend,
			"error", err,
		)
		return nil, false
	}

	if !entry.FreshAt(c.now(), ttl) {
		c.metrics.RecordCacheLookup(c.backend, observability.CacheResultMiss)
		return nil, false
	}

	c.metrics.RecordCacheLookup(c.backend, observability.CacheResultHit)
	return entry.Snapshot, true
}

// Put stores snap with storedAt = now. Failures are logged and dropped.
func (c *SnapshotCache) Put(ctx context.Context, symbol string, interval models.TimeInterval, snap *models.IndicatorSnapshot) {
	if c.store == nil || snap == nil {
		return
	}

	entry := &models.CacheEntry{
		Symbol:   symbol,
		Interval: interval,
		Snapshot: snap,
		StoredAt: c.now(),
	}
	if err := c.upsert(ctx, entry); err != nil {
		c.metrics.RecordCacheStoreError(c.backend, "upsert")
		observability.WithSubscription(symbol, string(interval)).Warn("failed to persist snapshot",
			"backend", c.backend,
			"error", err,
		)
	}
}

func (c *SnapshotCache) load(ctx context.Context, symbol string, interval models.TimeInterval) (*models.CacheEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	entry, err := c.store.LoadLatestSnapshot(ctx, symbol, interval)
	if err != nil {
		c.metrics.RecordCacheStoreError(c.backend, "load")
		return nil, unavailable(err)
	}
	return entry, nil
}

func (c *SnapshotCache) upsert(ctx context.Context, entry *models.CacheEntry) error {
	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	if err := c.store.UpsertSnapshot(ctx, entry); err != nil {
		return unavailable(err)
	}
	return nil
}

func unavailable(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: store timed out: %v", ErrCacheUnavailable, err)
	}
	return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
}
