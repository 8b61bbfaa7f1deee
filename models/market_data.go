package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Candle represents one OHLCV bucket. Timestamp is the bucket open time in
// Unix milliseconds.
type Candle struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Time returns the candle open time
func (c Candle) Time() time.Time {
	return time.UnixMilli(c.Timestamp)
}

// MidPrice returns the midpoint of the candle's range
func (c Candle) MidPrice() float64 {
	return (c.High + c.Low) / 2
}

// Closes extracts closing prices in input order
func Closes(candles []Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes
}

// TimeInterval is a candle width understood by every market data provider
type TimeInterval string

const (
	Interval1m  TimeInterval = "1m"
	Interval5m  TimeInterval = "5m"
	Interval15m TimeInterval = "15m"
	Interval1h  TimeInterval = "1h"
	Interval4h  TimeInterval = "4h"
	Interval1d  TimeInterval = "1d"
	Interval1w  TimeInterval = "1w"
)

// DefaultInterval is used when a request does not name one
const DefaultInterval = Interval1h

var intervalDurations = map[TimeInterval]time.Duration{
	Interval1m:  time.Minute,
	Interval5m:  5 * time.Minute,
	Interval15m: 15 * time.Minute,
	Interval1h:  time.Hour,
	Interval4h:  4 * time.Hour,
	Interval1d:  24 * time.Hour,
	Interval1w:  7 * 24 * time.Hour,
}

// Valid reports whether the interval is supported
func (i TimeInterval) Valid() bool {
	_, ok := intervalDurations[i]
	return ok
}

// Duration returns the width of one candle, or 0 for unknown intervals
func (i TimeInterval) Duration() time.Duration {
	return intervalDurations[i]
}

// ParseInterval converts a query value into a TimeInterval, applying the default for ""
func ParseInterval(s string) (TimeInterval, error) {
	if s == "" {
		return DefaultInterval, nil
	}
	interval := TimeInterval(s)
	if !interval.Valid() {
		return "", fmt.Errorf("unsupported interval %q", s)
	}
	return interval, nil
}

// CryptoPrice represents a 24h ticker for a trading pair
type CryptoPrice struct {
	Symbol           string    `json:"symbol"`
	Price            float64   `json:"price"`
	Change24h        float64   `json:"change24h"`
	ChangePercent24h float64   `json:"changePercent24h"`
	High24h          float64   `json:"high24h"`
	Low24h           float64   `json:"low24h"`
	Volume24h        float64   `json:"volume24h"`
	MarketCap        float64   `json:"marketCap,omitempty"`
	LastUpdated      time.Time `json:"lastUpdated"`
}

// TradingPair is one entry of the searchable pair directory
type TradingPair struct {
	Symbol      string `json:"symbol"`
	BaseAsset   string `json:"baseAsset"`
	QuoteAsset  string `json:"quoteAsset"`
	Status      string `json:"status"`
	Name        string `json:"name,omitempty"`
	CoinGeckoID string `json:"coinGeckoId,omitempty"`
}

// HistoricalData is a candle window as returned by a provider
type HistoricalData struct {
	Symbol   string       `json:"symbol"`
	Interval TimeInterval `json:"interval"`
	Data     []Candle     `json:"data"`
}

// RoundPrice rounds a currency value to cents for display. Never use it on
// values that feed further computation.
func RoundPrice(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}
