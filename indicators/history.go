package indicators

import (
	"math"

	"crypto-dashboard/models"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
)

// DefaultHistoryLength is the number of chart points kept per series
const DefaultHistoryLength = 100

// History computes chartable indicator series over the whole window. Each
// series is computed once over all closes; output point i belongs to
// candles[i+len(candles)-len(output)]. EMA rows follow the EMA200 series.
// Every series keeps at most maxLen trailing points.
func (c *Calculator) History(candles []models.Candle, maxLen int) models.IndicatorHistory {
	history := models.EmptyHistory()
	if len(candles) == 0 {
		return history
	}
	if maxLen <= 0 {
		maxLen = DefaultHistoryLength
	}

	closes := models.Closes(candles)

	if len(closes) > c.cfg.RSIPeriod {
		rsi := computeRSI(closes, c.cfg.RSIPeriod)
		offset := len(candles) - len(rsi)
		for i, v := range rsi {
			if math.IsNaN(v) {
				v = 50
			}
			history.RSIHistory = append(history.RSIHistory, models.RSIHistoryPoint{
				Time:   candles[i+offset].Timestamp,
				Value:  v,
				Signal: models.ClassifyRSI(v),
			})
		}
	}

	if len(closes) >= c.cfg.MACDSlow+c.cfg.MACDSignal {
		line, signal := computeMACD(closes, c.cfg.MACDFast, c.cfg.MACDSlow, c.cfg.MACDSignal)
		// line and signal end on the same candle; signal is the shorter one
		lineOffset := len(line) - len(signal)
		offset := len(candles) - len(signal)
		for i, s := range signal {
			m := line[i+lineOffset]
			history.MACDHistory = append(history.MACDHistory, models.MACDHistoryPoint{
				Time:      candles[i+offset].Timestamp,
				MACD:      m,
				Signal:    s,
				Histogram: m - s,
			})
		}
	}

	if len(closes) >= c.cfg.BollingerPeriod {
		middle := computeSMA(closes, c.cfg.BollingerPeriod)
		offset := len(candles) - len(middle)
		for i, mid := range middle {
			idx := i + offset
			_, sigma := meanStdDev(closes[idx-c.cfg.BollingerPeriod+1 : idx+1])
			history.BBHistory = append(history.BBHistory, models.BollingerBandsHistoryPoint{
				Time:   candles[idx].Timestamp,
				Upper:  mid + c.cfg.BollingerStdDev*sigma,
				Middle: mid,
				Lower:  mid - c.cfg.BollingerStdDev*sigma,
				Price:  closes[idx],
			})
		}
	}

	if len(closes) >= EMALongPeriod {
		ema200 := computeEMA(closes, EMALongPeriod)
		ema9 := computeEMA(closes, EMAFastPeriod)
		ema21 := computeEMA(closes, EMASlowPeriod)
		ema50 := computeEMA(closes, EMATrendPeriod)

		offset := len(candles) - len(ema200)
		for i, long := range ema200 {
			idx := i + offset
			history.EMAHistory = append(history.EMAHistory, models.EMAHistoryPoint{
				Time:   candles[idx].Timestamp,
				EMA9:   alignedValue(ema9, len(candles), idx),
				EMA21:  alignedValue(ema21, len(candles), idx),
				EMA50:  alignedValue(ema50, len(candles), idx),
				EMA200: long,
			})
		}
	}

	history.RSIHistory = lastN(history.RSIHistory, maxLen)
	history.MACDHistory = lastN(history.MACDHistory, maxLen)
	history.BBHistory = lastN(history.BBHistory, maxLen)
	history.EMAHistory = lastN(history.EMAHistory, maxLen)
	return history
}

// alignedValue returns the series value describing candle idx, or 0 when the
// series does not reach back that far
func alignedValue(series []float64, candleCount, idx int) float64 {
	j := idx - (candleCount - len(series))
	if j < 0 || j >= len(series) {
		return 0
	}
	return series[j]
}

func lastN[T any](s []T, n int) []T {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func computeRSI(closes []float64, period int) []float64 {
	rsi := momentum.NewRsiWithPeriod[float64](period)
	return helper.ChanToSlice(rsi.Compute(helper.SliceToChan(closes)))
}

func computeEMA(closes []float64, period int) []float64 {
	ema := trend.NewEmaWithPeriod[float64](period)
	return helper.ChanToSlice(ema.Compute(helper.SliceToChan(closes)))
}

func computeSMA(closes []float64, period int) []float64 {
	sma := trend.NewSmaWithPeriod[float64](period)
	return helper.ChanToSlice(sma.Compute(helper.SliceToChan(closes)))
}

// computeMACD builds the MACD line from two single-channel EMAs so the
// line and signal can be read independently
func computeMACD(closes []float64, fast, slow, signal int) (line, signalLine []float64) {
	fastEMA := computeEMA(closes, fast)
	slowEMA := computeEMA(closes, slow)
	if len(slowEMA) == 0 || len(fastEMA) < len(slowEMA) {
		return nil, nil
	}

	shift := len(fastEMA) - len(slowEMA)
	line = make([]float64, len(slowEMA))
	for i := range slowEMA {
		line[i] = fastEMA[i+shift] - slowEMA[i]
	}
	return line, computeEMA(line, signal)
}
