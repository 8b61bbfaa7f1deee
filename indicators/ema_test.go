package indicators

import (
	"testing"

	"github.com/markcheno/go-talib"
)

func TestEMASet_Unavailable(t *testing.T) {
	if got := EMASet(candlesFromCloses(wavyCloses(49))); got != nil {
		t.Errorf("Expected nil EMA set for 49 candles, got %+v", got)
	}
}

func TestEMASet_EMA200Sentinel(t *testing.T) {
	got := EMASet(candlesFromCloses(wavyCloses(199)))
	if got == nil {
		t.Fatal("Expected EMA set for 199 candles")
	}
	if got.HasEMA200() {
		t.Errorf("Expected EMA200 sentinel 0 below 200 candles, got %f", got.EMA200)
	}
	if got.EMA9 == 0 || got.EMA21 == 0 || got.EMA50 == 0 {
		t.Errorf("Expected short EMAs populated, got %+v", got)
	}

	got = EMASet(candlesFromCloses(wavyCloses(200)))
	if !got.HasEMA200() {
		t.Error("Expected EMA200 populated at 200 candles")
	}
}

func TestEMASet_MatchesTalib(t *testing.T) {
	closes := wavyCloses(260)
	got := EMASet(candlesFromCloses(closes))
	if got == nil {
		t.Fatal("Expected EMA set")
	}

	last := len(closes) - 1
	assertClose(t, "EMA9", got.EMA9, talib.Ema(closes, 9)[last], 1e-8)
	assertClose(t, "EMA21", got.EMA21, talib.Ema(closes, 21)[last], 1e-8)
	assertClose(t, "EMA50", got.EMA50, talib.Ema(closes, 50)[last], 1e-8)
	assertClose(t, "EMA200", got.EMA200, talib.Ema(closes, 200)[last], 1e-8)
}

func TestDetectEMACrossover(t *testing.T) {
	jump := func(to float64) []float64 {
		closes := flatCloses(60, 100)
		return append(closes, to)
	}

	tests := []struct {
		name        string
		closes      []float64
		wantBullish bool
		wantBearish bool
	}{
		{"too short", wavyCloses(49), false, false},
		{"bullish cross", jump(200), true, false},
		{"bearish cross", jump(50), false, true},
		{"no change", flatCloses(80, 100), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectEMACrossover(candlesFromCloses(tt.closes))
			if got.Bullish != tt.wantBullish || got.Bearish != tt.wantBearish {
				t.Errorf("DetectEMACrossover = %+v, want bullish=%v bearish=%v", got, tt.wantBullish, tt.wantBearish)
			}
		})
	}
}
