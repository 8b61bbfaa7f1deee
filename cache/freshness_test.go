package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"crypto-dashboard/models"
	"crypto-dashboard/observability"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	entry     *models.CacheEntry
	loadErr   error
	upsertErr error
	block     bool
	upserts   atomic.Int32
}

func (s *fakeStore) Name() string { return "fake" }

func (s *fakeStore) LoadLatestSnapshot(ctx context.Context, _ string, _ models.TimeInterval) (*models.CacheEntry, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.entry, s.loadErr
}

func (s *fakeStore) UpsertSnapshot(ctx context.Context, entry *models.CacheEntry) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	s.upserts.Add(1)
	if s.upsertErr == nil {
		s.entry = entry
	}
	return s.upsertErr
}

type clock struct{ t time.Time }

func newClock() *clock {
	return &clock{t: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testMetrics() *observability.Metrics {
	return observability.NewMetrics(prometheus.NewRegistry())
}

func snapshot(ts int64) *models.IndicatorSnapshot {
	return &models.IndicatorSnapshot{Symbol: "BTCUSDT", Interval: models.Interval1h, Timestamp: ts}
}

func countingCompute(calls *int, snap *models.IndicatorSnapshot) ComputeFunc {
	return func(context.Context) (*models.IndicatorSnapshot, error) {
		*calls++
		return snap, nil
	}
}

func TestGetOrCompute_MissThenHit(t *testing.T) {
	clk := newClock()
	m := testMetrics()
	c := NewSnapshotCache(NewMemoryStore(), WithClock(clk.now), WithMetrics(m))
	ctx := context.Background()

	calls := 0
	snap, cached, err := c.GetOrCompute(ctx, "BTCUSDT", models.Interval1h, time.Minute, countingCompute(&calls, snapshot(1)))
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, int64(1), snap.Timestamp)

	clk.advance(30 * time.Second)
	snap, cached, err = c.GetOrCompute(ctx, "BTCUSDT", models.Interval1h, time.Minute, countingCompute(&calls, snapshot(2)))
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, int64(1), snap.Timestamp, "fresh entry must be served unchanged")
	assert.Equal(t, 1, calls)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("memory", observability.CacheResultHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("memory", observability.CacheResultMiss)))
}

func TestGetOrCompute_ExpiryBoundary(t *testing.T) {
	clk := newClock()
	c := NewSnapshotCache(NewMemoryStore(), WithClock(clk.now), WithMetrics(testMetrics()))
	ctx := context.Background()

	calls := 0
	_, _, err := c.GetOrCompute(ctx, "BTCUSDT", models.Interval1h, time.Minute, countingCompute(&calls, snapshot(1)))
	require.NoError(t, err)

	// age == ttl is stale
	clk.advance(time.Minute)
	snap, cached, err := c.GetOrCompute(ctx, "BTCUSDT", models.Interval1h, time.Minute, countingCompute(&calls, snapshot(2)))
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, int64(2), snap.Timestamp)
	assert.Equal(t, 2, calls)
}

func TestGetOrCompute_KeysAreIndependent(t *testing.T) {
	c := NewSnapshotCache(NewMemoryStore(), WithMetrics(testMetrics()))
	ctx := context.Background()

	calls := 0
	_, _, _ = c.GetOrCompute(ctx, "BTCUSDT", models.Interval1h, time.Hour, countingCompute(&calls, snapshot(1)))
	_, cached, _ := c.GetOrCompute(ctx, "BTCUSDT", models.Interval4h, time.Hour, countingCompute(&calls, snapshot(2)))
	assert.False(t, cached)
	_, cached, _ = c.GetOrCompute(ctx, "ETHUSDT", models.Interval1h, time.Hour, countingCompute(&calls, snapshot(3)))
	assert.False(t, cached)
	assert.Equal(t, 3, calls)
}

func TestGetOrCompute_StoreFailuresDegrade(t *testing.T) {
	tests := []struct {
		name  string
		store *fakeStore
	}{
		{"load error", &fakeStore{loadErr: errors.New("connection refused")}},
		{"upsert error", &fakeStore{upsertErr: errors.New("disk full")}},
		{"store hangs", &fakeStore{block: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testMetrics()
			c := NewSnapshotCache(tt.store, WithStoreTimeout(20*time.Millisecond), WithMetrics(m))

			calls := 0
			snap, cached, err := c.GetOrCompute(context.Background(), "BTCUSDT", models.Interval1h, time.Minute, countingCompute(&calls, snapshot(7)))
			require.NoError(t, err)
			assert.False(t, cached)
			require.NotNil(t, snap)
			assert.Equal(t, int64(7), snap.Timestamp)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestGetOrCompute_LoadErrorCounted(t *testing.T) {
	m := testMetrics()
	c := NewSnapshotCache(&fakeStore{loadErr: errors.New("boom")}, WithMetrics(m))

	calls := 0
	_, _, err := c.GetOrCompute(context.Background(), "BTCUSDT", models.Interval1h, time.Minute, countingCompute(&calls, snapshot(1)))
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("fake", observability.CacheResultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheStoreErrorsTotal.WithLabelValues("fake", "load")))
}

func TestGetOrCompute_ComputeErrorPropagates(t *testing.T) {
	store := &fakeStore{}
	c := NewSnapshotCache(store, WithMetrics(testMetrics()))
	want := errors.New("upstream down")

	_, _, err := c.GetOrCompute(context.Background(), "BTCUSDT", models.Interval1h, time.Minute, func(context.Context) (*models.IndicatorSnapshot, error) {
		return nil, want
	})
	assert.ErrorIs(t, err, want)
	assert.Equal(t, int32(0), store.upserts.Load(), "nothing should be persisted on compute failure")
}

func TestGetOrCompute_NilStoreAlwaysComputes(t *testing.T) {
	c := NewSnapshotCache(nil, WithMetrics(testMetrics()))
	assert.Equal(t, "none", c.Backend())

	calls := 0
	for i := 0; i < 3; i++ {
		_, cached, err := c.GetOrCompute(context.Background(), "BTCUSDT", models.Interval1h, time.Hour, countingCompute(&calls, snapshot(1)))
		require.NoError(t, err)
		assert.False(t, cached)
	}
	assert.Equal(t, 3, calls)
}

func TestPut_StampsStoredAt(t *testing.T) {
	clk := newClock()
	store := NewMemoryStore()
	c := NewSnapshotCache(store, WithClock(clk.now), WithMetrics(testMetrics()))

	c.Put(context.Background(), "BTCUSDT", models.Interval1h, snapshot(9))

	entry, err := store.LoadLatestSnapshot(context.Background(), "BTCUSDT", models.Interval1h)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, clk.now(), entry.StoredAt)
	assert.Equal(t, int64(9), entry.Snapshot.Timestamp)
}
