package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"crypto-dashboard/models"
)

// binanceMaxLimit is the largest page /klines returns
const binanceMaxLimit = 1000

// BinanceSource reads candles and tickers from the Binance spot REST API
type BinanceSource struct {
	baseURL    string
	httpClient *http.Client
	retry      RetryConfig
}

// NewBinanceSource creates a BinanceSource. baseURL includes the /api/v3 prefix.
func NewBinanceSource(baseURL string, httpClient *http.Client) *BinanceSource {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &BinanceSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		retry:      DefaultRetryConfig,
	}
}

func (s *BinanceSource) Name() string { return BreakerBinance }

// binanceTicker is the /ticker/24hr payload; Binance sends decimals as strings
type binanceTicker struct {
	Symbol             string `json:"symbol"`
	PriceChange        string `json:"priceChange"`
	PriceChangePercent string `json:"priceChangePercent"`
	LastPrice          string `json:"lastPrice"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	Volume             string `json:"volume"`
	CloseTime          int64  `json:"closeTime"`
}

// FetchCandles returns the most recent limit klines in ascending time order
func (s *BinanceSource) FetchCandles(ctx context.Context, symbol string, interval models.TimeInterval, limit int) ([]models.Candle, error) {
	if limit <= 0 || limit > binanceMaxLimit {
		limit = binanceMaxLimit
	}

	return callUpstream(ctx, s.retry, BreakerBinance, "klines", func() ([]models.Candle, error) {
		params := url.Values{}
		params.Set("symbol", strings.ToUpper(symbol))
		params.Set("interval", string(interval))
		params.Set("limit", strconv.Itoa(limit))

		var rows [][]any
		if err := getJSON(ctx, s.httpClient, s.baseURL+"/klines", params, nil, &rows); err != nil {
			return nil, err
		}
		return parseKlines(rows)
	})
}

// FetchPrice returns the 24h rolling ticker for symbol
func (s *BinanceSource) FetchPrice(ctx context.Context, symbol string) (*models.CryptoPrice, error) {
	return callUpstream(ctx, s.retry, BreakerBinance, "ticker", func() (*models.CryptoPrice, error) {
		params := url.Values{}
		params.Set("symbol", strings.ToUpper(symbol))

		var t binanceTicker
		if err := getJSON(ctx, s.httpClient, s.baseURL+"/ticker/24hr", params, nil, &t); err != nil {
			return nil, err
		}

		price := &models.CryptoPrice{
			Symbol:           strings.ToUpper(symbol),
			Price:            parseDecimalString(t.LastPrice),
			Change24h:        parseDecimalString(t.PriceChange),
			ChangePercent24h: parseDecimalString(t.PriceChangePercent),
			High24h:          parseDecimalString(t.HighPrice),
			Low24h:           parseDecimalString(t.LowPrice),
			Volume24h:        parseDecimalString(t.Volume),
			LastUpdated:      time.Now().UTC(),
		}
		if t.CloseTime > 0 {
			price.LastUpdated = time.UnixMilli(t.CloseTime).UTC()
		}
		return price, nil
	})
}

// parseKlines converts Binance's positional kline arrays:
// [openTime, open, high, low, close, volume, closeTime, ...]
func parseKlines(rows [][]any) ([]models.Candle, error) {
	candles := make([]models.Candle, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, Permanent(fmt.Errorf("kline %d has %d fields", i, len(row)))
		}
		openTime, ok := row[0].(float64)
		if !ok {
			return nil, Permanent(fmt.Errorf("kline %d has non-numeric open time", i))
		}

		var values [5]float64
		for j := 0; j < 5; j++ {
			v, err := klineNumber(row[j+1])
			if err != nil {
				return nil, Permanent(fmt.Errorf("kline %d field %d: %w", i, j+1, err))
			}
			values[j] = v
		}

		candles = append(candles, models.Candle{
			Timestamp: int64(openTime),
			Open:      values[0],
			High:      values[1],
			Low:       values[2],
			Close:     values[3],
			Volume:    values[4],
		})
	}
	return candles, nil
}

func klineNumber(v any) (float64, error) {
	switch n := v.(type) {
	case string:
		return strconv.ParseFloat(n, 64)
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

// candleFromStrings builds a candle from decimal strings. A blank or
// unparsable field is an error so a bad row never turns into a zero price.
func candleFromStrings(openTime int64, open, high, low, closePrice, volume string) (models.Candle, error) {
	fields := [5]string{open, high, low, closePrice, volume}
	names := [5]string{"open", "high", "low", "close", "volume"}

	var values [5]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return models.Candle{}, fmt.Errorf("%s %q: %w", names[i], f, err)
		}
		values[i] = v
	}

	return models.Candle{
		Timestamp: openTime,
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}, nil
}

// parseDecimalString parses a ticker decimal, treating blanks and garbage as 0.
// Candle fields go through candleFromStrings instead.
func parseDecimalString(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
