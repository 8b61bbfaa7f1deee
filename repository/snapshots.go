package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crypto-dashboard/models"
	"crypto-dashboard/observability"

	"github.com/jackc/pgx/v5"
)

// Name identifies the backend in cache metrics
func (r *Repository) Name() string { return "postgres" }

// LoadLatestSnapshot returns the stored snapshot for symbol and interval, or nil
func (r *Repository) LoadLatestSnapshot(ctx context.Context, symbol string, interval models.TimeInterval) (*models.CacheEntry, error) {
	if err := r.checkDB(); err != nil {
		return nil, err
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("select", "indicator_snapshots")

	var data []byte
	var storedAt time.Time
	err := r.db.QueryRow(ctx, `
		SELECT snapshot, stored_at FROM indicator_snapshots
		WHERE symbol = $1 AND time_interval = $2
	`, symbol, string(interval)).Scan(&data, &storedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		metrics.RecordDBError("select", "indicator_snapshots")
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	var snap models.IndicatorSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return &models.CacheEntry{
		Symbol:   symbol,
		Interval: interval,
		Snapshot: &snap,
		StoredAt: storedAt,
	}, nil
}

// UpsertSnapshot stores the entry, replacing any earlier one for the same key
func (r *Repository) UpsertSnapshot(ctx context.Context, entry *models.CacheEntry) error {
	if err := r.checkDB(); err != nil {
		return err
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("upsert", "indicator_snapshots")

	data, err := json.Marshal(entry.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO indicator_snapshots (symbol, time_interval, snapshot, stored_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol, time_interval)
		DO UPDATE SET snapshot = EXCLUDED.snapshot, stored_at = EXCLUDED.stored_at
	`, entry.Symbol, string(entry.Interval), data, entry.StoredAt)

	if err != nil {
		metrics.RecordDBError("upsert", "indicator_snapshots")
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

// CleanExpiredSnapshots deletes snapshots stored longer ago than retention
func (r *Repository) CleanExpiredSnapshots(ctx context.Context, retention time.Duration) (int64, error) {
	if err := r.checkDB(); err != nil {
		return 0, err
	}
	result, err := r.db.Exec(ctx, `
		DELETE FROM indicator_snapshots WHERE stored_at < $1
	`, time.Now().Add(-retention))
	if err != nil {
		observability.GetMetrics().RecordDBError("delete", "indicator_snapshots")
		return 0, fmt.Errorf("failed to clean expired snapshots: %w", err)
	}
	return result.RowsAffected(), nil
}
