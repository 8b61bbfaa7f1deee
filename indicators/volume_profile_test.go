package indicators

import (
	"math"
	"testing"

	"crypto-dashboard/models"
)

func TestVolumeProfile_Empty(t *testing.T) {
	got := VolumeProfile(nil, 20)
	if got == nil || len(got) != 0 {
		t.Errorf("Expected empty non-nil profile, got %#v", got)
	}
}

func TestVolumeProfile_FlatPriceSingleBin(t *testing.T) {
	got := VolumeProfile(candlesFromCloses(flatCloses(250, 100)), 20)
	if len(got) != 1 {
		t.Fatalf("Expected a single bin, got %d", len(got))
	}
	assertClose(t, "PriceLevel", got[0].PriceLevel, 100, testTolerance)
	assertClose(t, "Volume", got[0].Volume, 2500, testTolerance)
	assertClose(t, "Percentage", got[0].Percentage, 100, testTolerance)
}

func TestVolumeProfile_Conservation(t *testing.T) {
	candles := candlesFromCloses(wavyCloses(200))
	for i := range candles {
		candles[i].Volume = float64(1 + i%7)
	}

	total := 0.0
	for _, c := range candles {
		total += c.Volume
	}

	got := VolumeProfile(candles, 20)
	if len(got) == 0 || len(got) > 20 {
		t.Fatalf("Expected between 1 and 20 bins, got %d", len(got))
	}

	var sumVolume, sumPct float64
	for i, bin := range got {
		sumVolume += bin.Volume
		sumPct += bin.Percentage
		if i > 0 && bin.Volume > got[i-1].Volume {
			t.Errorf("Bins not sorted by descending volume at %d", i)
		}
	}
	assertClose(t, "total volume", sumVolume, total, 1e-6)
	assertClose(t, "total percentage", sumPct, 100, 1e-6)
}

func TestVolumeProfile_MaxPriceInLastBucket(t *testing.T) {
	// midpoints 0..10 in steps of 1 with 10 bins of width 1
	candles := make([]models.Candle, 11)
	for i := range candles {
		p := float64(i)
		candles[i] = models.Candle{Timestamp: int64(i), High: p, Low: p, Close: p, Volume: 1}
	}
	candles[10].Volume = 5

	got := VolumeProfile(candles, 10)
	if len(got) != 10 {
		t.Fatalf("Expected 10 occupied bins, got %d", len(got))
	}
	top := got[0]
	assertClose(t, "top bin price level", top.PriceLevel, 9, testTolerance)
	assertClose(t, "top bin volume", top.Volume, 6, testTolerance)
}

func TestVolumeProfile_ZeroVolume(t *testing.T) {
	candles := candlesFromCloses(wavyCloses(30))
	for i := range candles {
		candles[i].Volume = 0
	}

	for _, bin := range VolumeProfile(candles, 20) {
		if bin.Percentage != 0 || math.IsNaN(bin.Percentage) {
			t.Errorf("Expected zero percentage with zero volume, got %f", bin.Percentage)
		}
	}
}
