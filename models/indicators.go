package models

import "time"

// RSISignal classifies an RSI reading
type RSISignal string

const (
	RSISignalOverbought RSISignal = "overbought"
	RSISignalOversold   RSISignal = "oversold"
	RSISignalNeutral    RSISignal = "neutral"
)

// RSI thresholds; both bounds are exclusive
const (
	RSIOverboughtLevel = 70.0
	RSIOversoldLevel   = 30.0
)

// ClassifyRSI maps an RSI value onto its signal
func ClassifyRSI(value float64) RSISignal {
	switch {
	case value > RSIOverboughtLevel:
		return RSISignalOverbought
	case value < RSIOversoldLevel:
		return RSISignalOversold
	default:
		return RSISignalNeutral
	}
}

// RSIResult is the latest Relative Strength Index reading
type RSIResult struct {
	Value     float64   `json:"value"`
	Timestamp int64     `json:"timestamp"`
	Signal    RSISignal `json:"signal"`
}

// MACDResult is the latest MACD reading. Histogram is always MACD - Signal.
type MACDResult struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
	Timestamp int64   `json:"timestamp"`
}

// EMASet holds the dashboard EMAs. A zero value means the period had too
// little history to be computed.
type EMASet struct {
	EMA9   float64 `json:"ema9"`
	EMA21  float64 `json:"ema21"`
	EMA50  float64 `json:"ema50"`
	EMA200 float64 `json:"ema200"`
}

// HasEMA200 reports whether the long EMA was populated
func (e EMASet) HasEMA200() bool {
	return e.EMA200 != 0
}

// BollingerBandsResult is the latest band reading. Bandwidth is a percentage
// of the middle band; PercentB can leave [0,1] when price is outside the bands.
type BollingerBandsResult struct {
	Upper     float64 `json:"upper"`
	Middle    float64 `json:"middle"`
	Lower     float64 `json:"lower"`
	Timestamp int64   `json:"timestamp"`
	Bandwidth float64 `json:"bandwidth"`
	PercentB  float64 `json:"percentB"`
}

// VolumeProfileBin is one occupied price bucket of the volume histogram
type VolumeProfileBin struct {
	PriceLevel float64 `json:"priceLevel"`
	Volume     float64 `json:"volume"`
	Percentage float64 `json:"percentage"`
}

// IndicatorSnapshot is the complete indicator set for a symbol. It is only
// ever built when RSI, MACD, EMA and BollingerBands are all available.
type IndicatorSnapshot struct {
	Symbol         string               `json:"symbol"`
	Interval       TimeInterval         `json:"interval,omitempty"`
	Timestamp      int64                `json:"timestamp"`
	RSI            RSIResult            `json:"rsi"`
	MACD           MACDResult           `json:"macd"`
	EMA            EMASet               `json:"ema"`
	BollingerBands BollingerBandsResult `json:"bollingerBands"`
	VolumeProfile  []VolumeProfileBin   `json:"volumeProfile"`
	Crossover      *EMACrossover        `json:"crossover,omitempty"`
}

// EMACrossover reports an EMA9/EMA21 cross on the latest candle
type EMACrossover struct {
	Bullish bool `json:"bullish"`
	Bearish bool `json:"bearish"`
}

// CacheEntry is a persisted snapshot together with the time it was stored
type CacheEntry struct {
	Symbol   string             `json:"symbol"`
	Interval TimeInterval       `json:"interval"`
	Snapshot *IndicatorSnapshot `json:"snapshot"`
	StoredAt time.Time          `json:"storedAt"`
}

// Age returns how long ago the entry was stored
func (e *CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// FreshAt reports whether the entry is younger than ttl at the given time
func (e *CacheEntry) FreshAt(now time.Time, ttl time.Duration) bool {
	return e != nil && e.Snapshot != nil && e.Age(now) < ttl
}

// RSIHistoryPoint is one charted RSI value
type RSIHistoryPoint struct {
	Time   int64     `json:"time"`
	Value  float64   `json:"value"`
	Signal RSISignal `json:"signal"`
}

// MACDHistoryPoint is one charted MACD value
type MACDHistoryPoint struct {
	Time      int64   `json:"time"`
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// BollingerBandsHistoryPoint is one charted band value with the close it wraps
type BollingerBandsHistoryPoint struct {
	Time   int64   `json:"time"`
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
	Price  float64 `json:"price"`
}

// EMAHistoryPoint is one charted EMA row, aligned on the EMA200 series
type EMAHistoryPoint struct {
	Time   int64   `json:"time"`
	EMA9   float64 `json:"ema9"`
	EMA21  float64 `json:"ema21"`
	EMA50  float64 `json:"ema50"`
	EMA200 float64 `json:"ema200"`
}

// IndicatorHistory groups the per-indicator chart series
type IndicatorHistory struct {
	RSIHistory  []RSIHistoryPoint            `json:"rsiHistory"`
	MACDHistory []MACDHistoryPoint           `json:"macdHistory"`
	BBHistory   []BollingerBandsHistoryPoint `json:"bbHistory"`
	EMAHistory  []EMAHistoryPoint            `json:"emaHistory"`
}

// EmptyHistory returns a history with non-nil empty series so it encodes as []
func EmptyHistory() IndicatorHistory {
	return IndicatorHistory{
		RSIHistory:  []RSIHistoryPoint{},
		MACDHistory: []MACDHistoryPoint{},
		BBHistory:   []BollingerBandsHistoryPoint{},
		EMAHistory:  []EMAHistoryPoint{},
	}
}
