package repository

import (
	"context"
	"time"

	"crypto-dashboard/cache"
	"crypto-dashboard/models"
)

// RepositoryInterface defines all repository operations
type RepositoryInterface interface {
	// Health and lifecycle
	Close()
	Health(ctx context.Context) error
	Migrate(ctx context.Context) error

	// Indicator snapshots
	LoadLatestSnapshot(ctx context.Context, symbol string, interval models.TimeInterval) (*models.CacheEntry, error)
	UpsertSnapshot(ctx context.Context, entry *models.CacheEntry) error
	CleanExpiredSnapshots(ctx context.Context, retention time.Duration) (int64, error)

	// Candle window cache
	GetCachedCandles(ctx context.Context, symbol string, interval models.TimeInterval, limit int) ([]models.Candle, error)
	SetCachedCandles(ctx context.Context, symbol string, interval models.TimeInterval, limit int, candles []models.Candle, ttl time.Duration) error
	InvalidateCandles(ctx context.Context, symbol string, interval models.TimeInterval) error
	CleanExpiredCache(ctx context.Context) (int64, error)

	// Analyses
	CreateAnalysis(ctx context.Context, c *models.Commentary) error
	GetAnalyses(ctx context.Context, symbol string, limit int) ([]models.Commentary, error)
	GetLatestAnalysis(ctx context.Context, symbol string, interval models.TimeInterval, now time.Time) (*models.Commentary, error)
}

// Compile-time interface verification
var (
	_ RepositoryInterface = (*Repository)(nil)
	_ cache.Store         = (*Repository)(nil)
)
