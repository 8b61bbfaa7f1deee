package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"crypto-dashboard/models"
)

// coinCapIDs maps trading pairs to CoinCap asset ids where the naive
// lower-cased base asset is wrong
var coinCapIDs = map[string]string{
	"BTCUSDT":   "bitcoin",
	"ETHUSDT":   "ethereum",
	"BNBUSDT":   "binance-coin",
	"SOLUSDT":   "solana",
	"ADAUSDT":   "cardano",
	"LTCUSDT":   "litecoin",
	"XRPUSDT":   "xrp",
	"DOGEUSDT":  "dogecoin",
	"DOTUSDT":   "polkadot",
	"AVAXUSDT":  "avalanche",
	"LINKUSDT":  "chainlink",
	"MATICUSDT": "polygon",
	"SUIUSDT":   "sui",
	"ENAUSDT":   "ethena",
}

var coinCapIntervals = map[models.TimeInterval]string{
	models.Interval1m:  "m1",
	models.Interval5m:  "m5",
	models.Interval15m: "m15",
	models.Interval1h:  "h1",
	models.Interval4h:  "h4",
	models.Interval1d:  "d1",
	models.Interval1w:  "w1",
}

// CoinCapSource reads candles and asset prices from the CoinCap v2 API
type CoinCapSource struct {
	baseURL    string
	httpClient *http.Client
	retry      RetryConfig
}

// NewCoinCapSource creates a CoinCapSource. baseURL includes the /v2 prefix.
func NewCoinCapSource(baseURL string, httpClient *http.Client) *CoinCapSource {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &CoinCapSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		retry:      DefaultRetryConfig,
	}
}

func (s *CoinCapSource) Name() string { return BreakerCoinCap }

// CoinCapAssetID resolves the CoinCap asset id for a USDT trading pair
func CoinCapAssetID(symbol string) string {
	symbol = strings.ToUpper(symbol)
	if id, ok := coinCapIDs[symbol]; ok {
		return id
	}
	return strings.ToLower(strings.TrimSuffix(symbol, "USDT"))
}

type coinCapCandle struct {
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
	Period int64  `json:"period"`
}

type coinCapAsset struct {
	ID                string `json:"id"`
	Symbol            string `json:"symbol"`
	PriceUsd          string `json:"priceUsd"`
	ChangePercent24Hr string `json:"changePercent24Hr"`
	VolumeUsd24Hr     string `json:"volumeUsd24Hr"`
	MarketCapUsd      string `json:"marketCapUsd"`
}

// FetchCandles returns the last limit candles. CoinCap has no limit
// parameter, so results are sorted and trimmed locally.
func (s *CoinCapSource) FetchCandles(ctx context.Context, symbol string, interval models.TimeInterval, limit int) ([]models.Candle, error) {
	ccInterval, ok := coinCapIntervals[interval]
	if !ok {
		return nil, unavailable(BreakerCoinCap, "candles", fmt.Errorf("unsupported interval %q", interval))
	}

	return callUpstream(ctx, s.retry, BreakerCoinCap, "candles", func() ([]models.Candle, error) {
		params := url.Values{}
		params.Set("exchange", "binance")
		params.Set("interval", ccInterval)
		params.Set("baseId", CoinCapAssetID(symbol))
		params.Set("quoteId", "tether")

		var body struct {
			Data []coinCapCandle `json:"data"`
		}
		if err := getJSON(ctx, s.httpClient, s.baseURL+"/candles", params, nil, &body); err != nil {
			return nil, err
		}

		candles := make([]models.Candle, 0, len(body.Data))
		for _, c := range body.Data {
			candle, err := candleFromStrings(c.Period, c.Open, c.High, c.Low, c.Close, c.Volume)
			if err != nil {
				return nil, Permanent(fmt.Errorf("candle at %d: %w", c.Period, err))
			}
			candles = append(candles, candle)
		}
		sort.SliceStable(candles, func(i, j int) bool {
			return candles[i].Timestamp < candles[j].Timestamp
		})
		if limit > 0 && len(candles) > limit {
			candles = candles[len(candles)-limit:]
		}
		return candles, nil
	})
}

// FetchPrice returns the asset's USD price. CoinCap does not report a 24h
// range, so High24h and Low24h stay zero.
func (s *CoinCapSource) FetchPrice(ctx context.Context, symbol string) (*models.CryptoPrice, error) {
	return callUpstream(ctx, s.retry, BreakerCoinCap, "asset", func() (*models.CryptoPrice, error) {
		var body struct {
			Data      coinCapAsset `json:"data"`
			Timestamp int64        `json:"timestamp"`
		}
		if err := getJSON(ctx, s.httpClient, s.baseURL+"/assets/"+url.PathEscape(CoinCapAssetID(symbol)), nil, nil, &body); err != nil {
			return nil, err
		}

		price := parseDecimalString(body.Data.PriceUsd)
		changePct := parseDecimalString(body.Data.ChangePercent24Hr)
		updated := time.Now().UTC()
		if body.Timestamp > 0 {
			updated = time.UnixMilli(body.Timestamp).UTC()
		}

		return &models.CryptoPrice{
			Symbol:           strings.ToUpper(symbol),
			Price:            price,
			Change24h:        price * changePct / 100,
			ChangePercent24h: changePct,
			Volume24h:        parseDecimalString(body.Data.VolumeUsd24Hr),
			MarketCap:        parseDecimalString(body.Data.MarketCapUsd),
			LastUpdated:      updated,
		}, nil
	})
}
