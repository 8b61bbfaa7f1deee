package models

import (
	"testing"
	"time"
)

func TestNewCommentary(t *testing.T) {
	before := time.Now()
	c := NewCommentary("BTCUSDT", Interval1h, 43000, "openai")

	if c.Symbol != "BTCUSDT" {
		t.Errorf("Symbol = %v, want 'BTCUSDT'", c.Symbol)
	}
	if c.Signal != TradeSignalHold {
		t.Errorf("Signal = %v, want TradeSignalHold", c.Signal)
	}
	if c.Trend != MarketTrendSideways {
		t.Errorf("Trend = %v, want MarketTrendSideways", c.Trend)
	}
	if c.RiskLevel != RiskLevelMedium {
		t.Errorf("RiskLevel = %v, want RiskLevelMedium", c.RiskLevel)
	}
	if c.Insights == nil {
		t.Error("Insights should be non-nil")
	}
	if c.ID == [16]byte{} {
		t.Error("ID should not be zero UUID")
	}
	if c.CreatedAt.Before(before) {
		t.Error("CreatedAt should not precede construction")
	}
	if got := c.ExpiresAt.Sub(c.CreatedAt); got != 5*time.Minute {
		t.Errorf("lifetime = %v, want 5m", got)
	}
}

func TestCommentaryLifetime(t *testing.T) {
	tests := map[TimeInterval]time.Duration{
		Interval1m:  5 * time.Minute,
		Interval15m: 5 * time.Minute,
		Interval4h:  5 * time.Minute,
		Interval1d:  time.Hour,
		Interval1w:  time.Hour,
	}

	for interval, want := range tests {
		if got := CommentaryLifetime(interval); got != want {
			t.Errorf("CommentaryLifetime(%v) = %v, want %v", interval, got, want)
		}
	}
}

func TestCommentary_Expired(t *testing.T) {
	c := NewCommentary("ETHUSDT", Interval1d, 2300, "bedrock")

	if c.Expired(c.CreatedAt) {
		t.Error("fresh commentary should not be expired")
	}
	if !c.Expired(c.ExpiresAt) {
		t.Error("commentary should be expired at ExpiresAt")
	}
	if !c.Expired(c.ExpiresAt.Add(time.Second)) {
		t.Error("commentary should be expired after ExpiresAt")
	}
}

func TestTradeSignal_Valid(t *testing.T) {
	valid := []TradeSignal{TradeSignalStrongBuy, TradeSignalBuy, TradeSignalHold, TradeSignalSell, TradeSignalStrongSell}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("%v should be valid", s)
		}
	}

	for _, s := range []TradeSignal{"", "BUY", "long"} {
		if s.Valid() {
			t.Errorf("%q should be invalid", s)
		}
	}
}
