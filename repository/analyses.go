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

// priceLevels groups the optional trade levels stored as one JSON column
type priceLevels struct {
	SuggestedEntry *float64 `json:"suggestedEntry,omitempty"`
	SuggestedExit  *float64 `json:"suggestedExit,omitempty"`
	StopLoss       *float64 `json:"stopLoss,omitempty"`
}

const analysisColumns = `id, symbol, time_interval, signal, confidence, current_price, summary, trend,
	insights, risk_level, levels, provider, created_at, expires_at`

// CreateAnalysis persists a generated commentary
func (r *Repository) CreateAnalysis(ctx context.Context, c *models.Commentary) error {
	if err := r.checkDB(); err != nil {
		return err
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("insert", "analyses")

	insights, err := json.Marshal(c.Insights)
	if err != nil {
		return fmt.Errorf("failed to marshal insights: %w", err)
	}
	levels, err := json.Marshal(priceLevels{
		SuggestedEntry: c.SuggestedEntry,
		SuggestedExit:  c.SuggestedExit,
		StopLoss:       c.StopLoss,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal price levels: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO analyses (`+analysisColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, c.ID, c.Symbol, string(c.Interval), string(c.Signal), c.Confidence, c.CurrentPrice, c.Summary,
		string(c.Trend), insights, string(c.RiskLevel), levels, c.Provider, c.CreatedAt, c.ExpiresAt)

	if err != nil {
		metrics.RecordDBError("insert", "analyses")
		return fmt.Errorf("failed to create analysis: %w", err)
	}
	return nil
}

// GetAnalyses returns recent commentaries, newest first. An empty symbol returns all symbols.
func (r *Repository) GetAnalyses(ctx context.Context, symbol string, limit int) ([]models.Commentary, error) {
	if err := r.checkDB(); err != nil {
		return nil, err
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("select", "analyses")

	if limit <= 0 {
		limit = 50
	}

	var rows pgx.Rows
	var err error
	if symbol == "" {
		rows, err = r.db.Query(ctx, `
			SELECT `+analysisColumns+`
			FROM analyses
			ORDER BY created_at DESC
			LIMIT $1
		`, limit)
	} else {
		rows, err = r.db.Query(ctx, `
			SELECT `+analysisColumns+`
			FROM analyses
			WHERE symbol = $1
			ORDER BY created_at DESC
			LIMIT $2
		`, symbol, limit)
	}
	if err != nil {
		metrics.RecordDBError("select", "analyses")
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	analyses := []models.Commentary{}
	for rows.Next() {
		c, err := scanAnalysis(rows)
		if err != nil {
			metrics.RecordDBError("select", "analyses")
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		analyses = append(analyses, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analyses: %w", err)
	}
	return analyses, nil
}

// GetLatestAnalysis returns the newest unexpired commentary for symbol and interval, or nil
func (r *Repository) GetLatestAnalysis(ctx context.Context, symbol string, interval models.TimeInterval, now time.Time) (*models.Commentary, error) {
	if err := r.checkDB(); err != nil {
		return nil, err
	}

	row := r.db.QueryRow(ctx, `
		SELECT `+analysisColumns+`
		FROM analyses
		WHERE symbol = $1 AND time_interval = $2 AND expires_at > $3
		ORDER BY created_at DESC
		LIMIT 1
	`, symbol, string(interval), now)

	c, err := scanAnalysis(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest analysis: %w", err)
	}
	return c, nil
}

func scanAnalysis(row pgx.Row) (*models.Commentary, error) {
	var c models.Commentary
	var interval, signal, trend, risk string
	var insights, levels []byte

	err := row.Scan(&c.ID, &c.Symbol, &interval, &signal, &c.Confidence, &c.CurrentPrice, &c.Summary,
		&trend, &insights, &risk, &levels, &c.Provider, &c.CreatedAt, &c.ExpiresAt)
	if err != nil {
		return nil, err
	}

	c.Interval = models.TimeInterval(interval)
	c.Signal = models.TradeSignal(signal)
	c.Trend = models.MarketTrend(trend)
	c.RiskLevel = models.RiskLevel(risk)

	c.Insights = []string{}
	if len(insights) > 0 {
		if err := json.Unmarshal(insights, &c.Insights); err != nil {
			return nil, fmt.Errorf("failed to unmarshal insights: %w", err)
		}
	}
	if len(levels) > 0 {
		var pl priceLevels
		if err := json.Unmarshal(levels, &pl); err != nil {
			return nil, fmt.Errorf("failed to unmarshal price levels: %w", err)
		}
		c.SuggestedEntry, c.SuggestedExit, c.StopLoss = pl.SuggestedEntry, pl.SuggestedExit, pl.StopLoss
	}
	return &c, nil
}
