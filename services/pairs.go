package services

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"crypto-dashboard/cache"
	"crypto-dashboard/models"
	"crypto-dashboard/observability"
)

const (
	// DefaultPairDirectoryTTL is how long the CoinGecko listing is reused
	DefaultPairDirectoryTTL = time.Hour
	// MaxPairResults caps a single search response
	MaxPairResults = 100

	coinGeckoPageSize = 250
)

// FallbackPairs is served whenever the upstream listing cannot be fetched
var FallbackPairs = []models.TradingPair{
	{Symbol: "BTCUSDT", BaseAsset: "BTC", QuoteAsset: "USDT", Status: "TRADING", Name: "Bitcoin"},
	{Symbol: "ETHUSDT", BaseAsset: "ETH", QuoteAsset: "USDT", Status: "TRADING", Name: "Ethereum"},
	{Symbol: "BNBUSDT", BaseAsset: "BNB", QuoteAsset: "USDT", Status: "TRADING", Name: "BNB"},
	{Symbol: "SOLUSDT", BaseAsset: "SOL", QuoteAsset: "USDT", Status: "TRADING", Name: "Solana"},
	{Symbol: "ADAUSDT", BaseAsset: "ADA", QuoteAsset: "USDT", Status: "TRADING", Name: "Cardano"},
	{Symbol: "XRPUSDT", BaseAsset: "XRP", QuoteAsset: "USDT", Status: "TRADING", Name: "XRP"},
	{Symbol: "DOGEUSDT", BaseAsset: "DOGE", QuoteAsset: "USDT", Status: "TRADING", Name: "Dogecoin"},
	{Symbol: "DOTUSDT", BaseAsset: "DOT", QuoteAsset: "USDT", Status: "TRADING", Name: "Polkadot"},
	{Symbol: "MATICUSDT", BaseAsset: "MATIC", QuoteAsset: "USDT", Status: "TRADING", Name: "Polygon"},
	{Symbol: "LTCUSDT", BaseAsset: "LTC", QuoteAsset: "USDT", Status: "TRADING", Name: "Litecoin"},
	{Symbol: "AVAXUSDT", BaseAsset: "AVAX", QuoteAsset: "USDT", Status: "TRADING", Name: "Avalanche"},
	{Symbol: "LINKUSDT", BaseAsset: "LINK", QuoteAsset: "USDT", Status: "TRADING", Name: "Chainlink"},
}

// PairListing is the result of a directory search
type PairListing struct {
	Pairs    []models.TradingPair `json:"pairs"`
	Total    int                  `json:"total"`
	Cached   bool                 `json:"cached"`
	CachedAt time.Time            `json:"cachedAt"`
	Fallback bool                 `json:"fallback,omitempty"`
	Error    string               `json:"error,omitempty"`
}

// PairDirectory lists tradable USDT pairs from CoinGecko's top coins by market cap
type PairDirectory struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	listing    *cache.TTLValue[[]models.TradingPair]
	retry      RetryConfig
}

// NewPairDirectory creates a PairDirectory. baseURL includes the /api/v3 prefix.
func NewPairDirectory(baseURL, apiKey string, ttl time.Duration, httpClient *http.Client) *PairDirectory {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if ttl <= 0 {
		ttl = DefaultPairDirectoryTTL
	}
	return &PairDirectory{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		listing:    cache.NewTTLValue[[]models.TradingPair](ttl),
		retry:      DefaultRetryConfig,
	}
}

type coinGeckoMarket struct {
	ID            string `json:"id"`
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	MarketCapRank int    `json:"market_cap_rank"`
}

// Search filters the directory by a case-insensitive query on base asset,
// name or symbol. Upstream failures degrade to FallbackPairs.
func (d *PairDirectory) Search(ctx context.Context, query string) *PairListing {
	pairs, cached, err := d.pairs(ctx)
	if err != nil {
		observability.Warn("pair directory unavailable, serving fallback list", "error", err)
		return &PairListing{
			Pairs:    append([]models.TradingPair(nil), FallbackPairs...),
			Total:    len(FallbackPairs),
			CachedAt: time.Now().UTC(),
			Fallback: true,
			Error:    err.Error(),
		}
	}

	filtered := filterPairs(pairs, query)
	listing := &PairListing{
		Total:    len(filtered),
		Cached:   cached,
		CachedAt: d.listing.StoredAt().UTC(),
	}
	if len(filtered) > MaxPairResults {
		filtered = filtered[:MaxPairResults]
	}
	listing.Pairs = filtered
	return listing
}

// Invalidate drops the cached listing
func (d *PairDirectory) Invalidate() {
	d.listing.Invalidate()
}

func (d *PairDirectory) pairs(ctx context.Context) ([]models.TradingPair, bool, error) {
	if pairs, ok := d.listing.Get(); ok {
		return pairs, true, nil
	}

	pairs, err := callUpstream(ctx, d.retry, BreakerCoinGecko, "markets", func() ([]models.TradingPair, error) {
		params := url.Values{}
		params.Set("vs_currency", "usd")
		params.Set("order", "market_cap_desc")
		params.Set("per_page", strconv.Itoa(coinGeckoPageSize))
		params.Set("page", "1")
		params.Set("sparkline", "false")

		headers := map[string]string{}
		if d.apiKey != "" {
			headers["x-cg-demo-api-key"] = d.apiKey
		}

		var coins []coinGeckoMarket
		if err := getJSON(ctx, d.httpClient, d.baseURL+"/coins/markets", params, headers, &coins); err != nil {
			return nil, err
		}

		pairs := make([]models.TradingPair, 0, len(coins))
		for _, coin := range coins {
			base := strings.ToUpper(coin.Symbol)
			if base == "" {
				continue
			}
			pairs = append(pairs, models.TradingPair{
				Symbol:      base + "USDT",
				BaseAsset:   base,
				QuoteAsset:  "USDT",
				Status:      "TRADING",
				Name:        coin.Name,
				CoinGeckoID: coin.ID,
			})
		}
		return pairs, nil
	})
	if err != nil {
		return nil, false, err
	}

	d.listing.Set(pairs)
	observability.Info("pair directory refreshed", "pairs", len(pairs))
	return pairs, false, nil
}

func filterPairs(pairs []models.TradingPair, query string) []models.TradingPair {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return append([]models.TradingPair{}, pairs...)
	}

	out := []models.TradingPair{}
	for _, p := range pairs {
		if strings.Contains(strings.ToLower(p.BaseAsset), query) ||
			strings.Contains(strings.ToLower(p.Name), query) ||
			strings.Contains(strings.ToLower(p.Symbol), query) {
			out = append(out, p)
		}
	}
	return out
}
