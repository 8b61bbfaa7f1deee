package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crypto-dashboard/models"

	"github.com/jackc/pgx/v5"
)

func candleDataType(interval models.TimeInterval, limit int) string {
	return fmt.Sprintf("candles:%s:%d", interval, limit)
}

// GetCachedCandles returns a cached candle window, or nil when absent or expired
func (r *Repository) GetCachedCandles(ctx context.Context, symbol string, interval models.TimeInterval, limit int) ([]models.Candle, error) {
	if err := r.checkDB(); err != nil {
		return nil, err
	}
	var data []byte

	// Let the database handle expiry check to avoid timezone issues
	err := r.db.QueryRow(ctx, `
		SELECT data FROM market_data_cache
		WHERE symbol = $1 AND data_type = $2 AND expires_at > NOW()
	`, symbol, candleDataType(interval, limit)).Scan(&data)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query candle cache: %w", err)
	}

	var candles []models.Candle
	if err := json.Unmarshal(data, &candles); err != nil {
		return nil, fmt.Errorf("failed to unmarshal candle cache: %w", err)
	}
	return candles, nil
}

// SetCachedCandles stores a candle window with a TTL
func (r *Repository) SetCachedCandles(ctx context.Context, symbol string, interval models.TimeInterval, limit int, candles []models.Candle, ttl time.Duration) error {
	if err := r.checkDB(); err != nil {
		return err
	}
	data, err := json.Marshal(candles)
	if err != nil {
		return fmt.Errorf("failed to marshal candles: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO market_data_cache (symbol, data_type, data, expires_at)
		VALUES ($1, $2, $3, NOW() + $4::interval)
		ON CONFLICT (symbol, data_type)
		DO UPDATE SET data = EXCLUDED.data, expires_at = NOW() + $4::interval, created_at = NOW()
	`, symbol, candleDataType(interval, limit), data, ttl.String())

	if err != nil {
		return fmt.Errorf("failed to set candle cache: %w", err)
	}
	return nil
}

// InvalidateCandles removes every cached window for a symbol and interval, whatever its limit
func (r *Repository) InvalidateCandles(ctx context.Context, symbol string, interval models.TimeInterval) error {
	if err := r.checkDB(); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx, `
		DELETE FROM market_data_cache WHERE symbol = $1 AND data_type LIKE $2
	`, symbol, fmt.Sprintf("candles:%s:%%", interval))
	if err != nil {
		return fmt.Errorf("failed to invalidate candle cache: %w", err)
	}
	return nil
}

// CleanExpiredCache removes all expired candle windows
func (r *Repository) CleanExpiredCache(ctx context.Context) (int64, error) {
	if err := r.checkDB(); err != nil {
		return 0, err
	}
	result, err := r.db.Exec(ctx, `DELETE FROM market_data_cache WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to clean expired cache: %w", err)
	}
	return result.RowsAffected(), nil
}
