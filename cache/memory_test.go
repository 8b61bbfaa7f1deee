package cache

import (
	"context"
	"testing"
	"time"

	"crypto-dashboard/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_UpsertIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	entry := &models.CacheEntry{
		Symbol:   "BTCUSDT",
		Interval: models.Interval1h,
		Snapshot: snapshot(1),
		StoredAt: time.Unix(100, 0),
	}

	require.NoError(t, store.UpsertSnapshot(ctx, entry))
	require.NoError(t, store.UpsertSnapshot(ctx, entry))
	assert.Equal(t, 1, store.Len())

	newer := *entry
	newer.Snapshot = snapshot(2)
	newer.StoredAt = time.Unix(200, 0)
	require.NoError(t, store.UpsertSnapshot(ctx, &newer))

	got, err := store.LoadLatestSnapshot(ctx, "BTCUSDT", models.Interval1h)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Snapshot.Timestamp, "last write wins")
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_Miss(t *testing.T) {
	got, err := NewMemoryStore().LoadLatestSnapshot(context.Background(), "ETHUSDT", models.Interval1d)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryStore().LoadLatestSnapshot(ctx, "BTCUSDT", models.Interval1h)
	assert.ErrorIs(t, err, context.Canceled)
}
