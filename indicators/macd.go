package indicators

import "crypto-dashboard/models"

// Default MACD periods
const (
	DefaultMACDFast   = 12
	DefaultMACDSlow   = 26
	DefaultMACDSignal = 9
)

// MACD computes the MACD line, its signal line and histogram. It needs at
// least slow+signal candles.
func MACD(candles []models.Candle, fast, slow, signal int) *models.MACDResult {
	if fast <= 0 || slow <= 0 || signal <= 0 || len(candles) < slow+signal {
		return nil
	}

	line := macdLine(models.Closes(candles), fast, slow)
	signalSeries := emaSeries(line, signal)
	if len(signalSeries) == 0 {
		return nil
	}

	m := line[len(line)-1]
	s := signalSeries[len(signalSeries)-1]
	return &models.MACDResult{
		MACD:      m,
		Signal:    s,
		Histogram: m - s,
		Timestamp: candles[len(candles)-1].Timestamp,
	}
}

// macdLine returns EMA(fast)-EMA(slow) starting at the first close where the slow EMA exists
func macdLine(closes []float64, fast, slow int) []float64 {
	fastEMA := emaSeries(closes, fast)
	slowEMA := emaSeries(closes, slow)
	if len(fastEMA) == 0 || len(slowEMA) == 0 {
		return nil
	}

	// slowEMA[j] and fastEMA[j+slow-fast] both describe closes[j+slow-1]
	shift := slow - fast
	line := make([]float64, len(slowEMA))
	for j := range slowEMA {
		line[j] = fastEMA[j+shift] - slowEMA[j]
	}
	return line
}
