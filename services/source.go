package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	appconfig "crypto-dashboard/config"
	"crypto-dashboard/models"
)

// ErrDataUnavailable wraps every failure to obtain market data from an
// upstream provider: transport errors, non-2xx responses, undecodable bodies
// and open circuit breakers.
var ErrDataUnavailable = errors.New("market data unavailable")

// CandleSource is an external provider of candles and tickers
type CandleSource interface {
	Name() string
	FetchCandles(ctx context.Context, symbol string, interval models.TimeInterval, limit int) ([]models.Candle, error)
	FetchPrice(ctx context.Context, symbol string) (*models.CryptoPrice, error)
}

// unavailable tags err as a data source failure for the named provider
func unavailable(source, op string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrDataUnavailable, source, op, err)
}

// NewCandleSource builds the provider named by MARKET_DATA_PROVIDER
func NewCandleSource(cfg *appconfig.Config) (CandleSource, error) {
	httpClient := &http.Client{Timeout: 30 * time.Second}

	switch cfg.Market.Provider {
	case appconfig.ProviderBinance, "":
		return NewBinanceSource(cfg.Market.BinanceBaseURL, httpClient), nil
	case appconfig.ProviderCoinCap:
		return NewCoinCapSource(cfg.Market.CoinCapBaseURL, httpClient), nil
	case appconfig.ProviderAlpaca:
		if !cfg.HasAlpaca() {
			return nil, fmt.Errorf("alpaca provider requires ALPACA_API_KEY and ALPACA_API_SECRET")
		}
		return NewAlpacaSource(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret), nil
	default:
		return nil, fmt.Errorf("unknown market data provider %q", cfg.Market.Provider)
	}
}
