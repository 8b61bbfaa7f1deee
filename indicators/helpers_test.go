package indicators

import (
	"math"
	"testing"

	"crypto-dashboard/models"
)

const testTolerance = 1e-9

func candlesFromCloses(closes []float64) []models.Candle {
	candles := make([]models.Candle, len(closes))
	for i, c := range closes {
		candles[i] = models.Candle{
			Timestamp: int64(i) * 60_000,
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    10,
		}
	}
	return candles
}

// wavyCloses returns a deterministic trending series with oscillation
func wavyCloses(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		x := float64(i)
		closes[i] = 100 + 10*math.Sin(x/5) + 3*math.Cos(x/2.3) + 0.15*x
	}
	return closes
}

func flatCloses(n int, v float64) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = v
	}
	return closes
}

func assertClose(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s = %.12f, want %.12f (tolerance %g)", name, got, want, tol)
	}
}
