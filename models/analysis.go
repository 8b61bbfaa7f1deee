package models

import (
	"time"

	"github.com/google/uuid"
)

// TradeSignal is the LLM's directional call
type TradeSignal string

const (
	TradeSignalStrongBuy  TradeSignal = "strong_buy"
	TradeSignalBuy        TradeSignal = "buy"
	TradeSignalHold       TradeSignal = "hold"
	TradeSignalSell       TradeSignal = "sell"
	TradeSignalStrongSell TradeSignal = "strong_sell"
)

// Valid reports whether the signal is one of the known values
func (s TradeSignal) Valid() bool {
	switch s {
	case TradeSignalStrongBuy, TradeSignalBuy, TradeSignalHold, TradeSignalSell, TradeSignalStrongSell:
		return true
	}
	return false
}

type MarketTrend string

const (
	MarketTrendBullish  MarketTrend = "bullish"
	MarketTrendBearish  MarketTrend = "bearish"
	MarketTrendSideways MarketTrend = "sideways"
)

type RiskLevel string

const (
	RiskLevelLow     RiskLevel = "low"
	RiskLevelMedium  RiskLevel = "medium"
	RiskLevelHigh    RiskLevel = "high"
	RiskLevelExtreme RiskLevel = "extreme"
)

// Commentary is an LLM-generated reading of an indicator snapshot
type Commentary struct {
	ID             uuid.UUID    `json:"id"`
	Symbol         string       `json:"symbol"`
	Interval       TimeInterval `json:"timeframe"`
	Signal         TradeSignal  `json:"signal"`
	Confidence     float64      `json:"confidence"`
	CurrentPrice   float64      `json:"currentPrice"`
	Summary        string       `json:"summary"`
	Trend          MarketTrend  `json:"trend"`
	Insights       []string     `json:"insights"`
	RiskLevel      RiskLevel    `json:"riskLevel"`
	SuggestedEntry *float64     `json:"suggestedEntry,omitempty"`
	SuggestedExit  *float64     `json:"suggestedExit,omitempty"`
	StopLoss       *float64     `json:"stopLoss,omitempty"`
	Provider       string       `json:"provider"`
	CreatedAt      time.Time    `json:"timestamp"`
	ExpiresAt      time.Time    `json:"expiresAt"`
}

// CommentaryLifetime returns how long a commentary stays relevant for an interval.
// Daily and weekly candles move slowly enough for an hour; everything else expires in five minutes.
func CommentaryLifetime(interval TimeInterval) time.Duration {
	switch interval {
	case Interval1d, Interval1w:
		return time.Hour
	default:
		return 5 * time.Minute
	}
}

// NewCommentary creates a Commentary with a fresh ID and expiry
func NewCommentary(symbol string, interval TimeInterval, price float64, provider string) *Commentary {
	now := time.Now()
	return &Commentary{
		ID:           uuid.New(),
		Symbol:       symbol,
		Interval:     interval,
		Signal:       TradeSignalHold,
		CurrentPrice: price,
		Trend:        MarketTrendSideways,
		Insights:     []string{},
		RiskLevel:    RiskLevelMedium,
		Provider:     provider,
		CreatedAt:    now,
		ExpiresAt:    now.Add(CommentaryLifetime(interval)),
	}
}

// Expired reports whether the commentary is past its expiry at t
func (c *Commentary) Expired(t time.Time) bool {
	return !t.Before(c.ExpiresAt)
}
