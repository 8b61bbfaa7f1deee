package indicators

import (
	"math"

	"crypto-dashboard/models"
)

// Default Bollinger parameters
const (
	DefaultBollingerPeriod = 20
	DefaultBollingerStdDev = 2.0
)

// BollingerBands computes the bands over the last period closes using the
// population standard deviation.
func BollingerBands(candles []models.Candle, period int, stdDev float64) *models.BollingerBandsResult {
	if period <= 0 || len(candles) < period {
		return nil
	}

	closes := models.Closes(candles)
	middle, sigma := meanStdDev(closes[len(closes)-period:])
	upper := middle + stdDev*sigma
	lower := middle - stdDev*sigma
	price := closes[len(closes)-1]

	bandwidth := 0.0
	if middle != 0 {
		bandwidth = (upper - lower) / middle * 100
	}
	percentB := 0.5
	if upper != lower {
		percentB = (price - lower) / (upper - lower)
	}

	return &models.BollingerBandsResult{
		Upper:     upper,
		Middle:    middle,
		Lower:     lower,
		Timestamp: candles[len(candles)-1].Timestamp,
		Bandwidth: bandwidth,
		PercentB:  percentB,
	}
}

func meanStdDev(window []float64) (mean, sigma float64) {
	n := float64(len(window))
	for _, v := range window {
		mean += v
	}
	mean /= n

	var variance float64
	for _, v := range window {
		d := v - mean
		variance += d * d
	}
	return mean, math.Sqrt(variance / n)
}
