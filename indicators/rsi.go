package indicators

import "crypto-dashboard/models"

// DefaultRSIPeriod is the Wilder lookback
const DefaultRSIPeriod = 14

// RSI computes Wilder's Relative Strength Index over closes. It returns nil
// when fewer than period candles are available.
func RSI(candles []models.Candle, period int) *models.RSIResult {
	if period <= 0 || len(candles) < period {
		return nil
	}

	value := wilderRSI(models.Closes(candles), period)
	return &models.RSIResult{
		Value:     value,
		Timestamp: candles[len(candles)-1].Timestamp,
		Signal:    models.ClassifyRSI(value),
	}
}

// wilderRSI seeds the average gain and loss with the first period changes
// (or every available change when there are fewer) and smooths the rest.
func wilderRSI(closes []float64, period int) float64 {
	seed := period
	if changes := len(closes) - 1; changes < seed {
		seed = changes
	}

	var avgGain, avgLoss float64
	for i := 1; i <= seed; i++ {
		gain, loss := splitChange(closes[i] - closes[i-1])
		avgGain += gain
		avgLoss += loss
	}
	if seed > 0 {
		avgGain /= float64(seed)
		avgLoss /= float64(seed)
	}

	p := float64(period)
	for i := seed + 1; i < len(closes); i++ {
		gain, loss := splitChange(closes[i] - closes[i-1])
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
	}

	return rsiFromAverages(avgGain, avgLoss)
}

func splitChange(change float64) (gain, loss float64) {
	if change > 0 {
		return change, 0
	}
	return 0, -change
}

// rsiFromAverages returns 100 when there were only gains and 50 for a flat series
func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
