package indicators

import "crypto-dashboard/models"

// EMA periods reported on the dashboard
const (
	EMAFastPeriod   = 9
	EMASlowPeriod   = 21
	EMATrendPeriod  = 50
	EMALongPeriod   = 200
	minEMASetLength = EMATrendPeriod
)

// emaSeries returns the exponential moving average of values seeded with the
// SMA of the first period values. Element j corresponds to values[j+period-1].
func emaSeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}

	out := make([]float64, 0, len(values)-period+1)
	sum := 0.0
	for _, v := range values[:period] {
		sum += v
	}
	prev := sum / float64(period)
	out = append(out, prev)

	k := 2.0 / float64(period+1)
	for _, v := range values[period:] {
		prev = (v-prev)*k + prev
		out = append(out, prev)
	}
	return out
}

func lastEMA(values []float64, period int) float64 {
	series := emaSeries(values, period)
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

// EMASet computes EMA 9/21/50/200 from closes. It needs at least 50 candles;
// EMA200 stays 0 below 200 candles.
func EMASet(candles []models.Candle) *models.EMASet {
	if len(candles) < minEMASetLength {
		return nil
	}

	closes := models.Closes(candles)
	return &models.EMASet{
		EMA9:   lastEMA(closes, EMAFastPeriod),
		EMA21:  lastEMA(closes, EMASlowPeriod),
		EMA50:  lastEMA(closes, EMATrendPeriod),
		EMA200: lastEMA(closes, EMALongPeriod),
	}
}

// DetectEMACrossover reports whether EMA9 crossed EMA21 between the last two candles
func DetectEMACrossover(candles []models.Candle) models.EMACrossover {
	if len(candles) < minEMASetLength {
		return models.EMACrossover{}
	}

	closes := models.Closes(candles)
	fast := emaSeries(closes, EMAFastPeriod)
	slow := emaSeries(closes, EMASlowPeriod)

	curFast, prevFast := fast[len(fast)-1], fast[len(fast)-2]
	curSlow, prevSlow := slow[len(slow)-1], slow[len(slow)-2]

	return models.EMACrossover{
		Bullish: prevFast <= prevSlow && curFast > curSlow,
		Bearish: prevFast >= prevSlow && curFast < curSlow,
	}
}
