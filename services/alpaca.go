package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"crypto-dashboard/models"
)

// alpacaCryptoClient is the subset of marketdata.Client used here (for testing)
type alpacaCryptoClient interface {
	GetCryptoBars(symbol string, req marketdata.GetCryptoBarsRequest) ([]marketdata.CryptoBar, error)
	GetLatestCryptoTrade(symbol string, req marketdata.GetLatestCryptoTradeRequest) (*marketdata.CryptoTrade, error)
}

// AlpacaSource reads crypto bars and trades from Alpaca market data
type AlpacaSource struct {
	client alpacaCryptoClient
	now    func() time.Time
	retry  RetryConfig
}

// NewAlpacaSource creates an AlpacaSource using API key credentials
func NewAlpacaSource(apiKey, apiSecret string) *AlpacaSource {
	client := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	})
	return newAlpacaSourceWithClient(client)
}

func newAlpacaSourceWithClient(client alpacaCryptoClient) *AlpacaSource {
	return &AlpacaSource{
		client: client,
		now:    time.Now,
		retry:  DefaultRetryConfig,
	}
}

func (s *AlpacaSource) Name() string { return BreakerAlpaca }

// AlpacaSymbol converts BTCUSDT into Alpaca's BTC/USDT form
func AlpacaSymbol(symbol string) string {
	symbol = strings.ToUpper(symbol)
	if strings.Contains(symbol, "/") {
		return symbol
	}
	for _, quote := range []string{"USDT", "USDC", "USD", "BTC"} {
		if base, ok := strings.CutSuffix(symbol, quote); ok && base != "" {
			return base + "/" + quote
		}
	}
	return symbol
}

// alpacaTimeFrame maps an interval onto an Alpaca bar timeframe
func alpacaTimeFrame(interval models.TimeInterval) (marketdata.TimeFrame, error) {
	switch interval {
	case models.Interval1m:
		return marketdata.NewTimeFrame(1, marketdata.Min), nil
	case models.Interval5m:
		return marketdata.NewTimeFrame(5, marketdata.Min), nil
	case models.Interval15m:
		return marketdata.NewTimeFrame(15, marketdata.Min), nil
	case models.Interval1h:
		return marketdata.NewTimeFrame(1, marketdata.Hour), nil
	case models.Interval4h:
		return marketdata.NewTimeFrame(4, marketdata.Hour), nil
	case models.Interval1d:
		return marketdata.NewTimeFrame(1, marketdata.Day), nil
	case models.Interval1w:
		return marketdata.NewTimeFrame(1, marketdata.Week), nil
	default:
		return marketdata.TimeFrame{}, fmt.Errorf("unsupported interval %q", interval)
	}
}

// FetchCandles returns the last limit bars ending now
func (s *AlpacaSource) FetchCandles(ctx context.Context, symbol string, interval models.TimeInterval, limit int) ([]models.Candle, error) {
	timeframe, err := alpacaTimeFrame(interval)
	if err != nil {
		return nil, unavailable(BreakerAlpaca, "bars", err)
	}
	if limit <= 0 {
		limit = 200
	}

	end := s.now()
	start := end.Add(-time.Duration(limit+1) * interval.Duration())

	return callUpstream(ctx, s.retry, BreakerAlpaca, "bars", func() ([]models.Candle, error) {
		bars, err := s.client.GetCryptoBars(AlpacaSymbol(symbol), marketdata.GetCryptoBarsRequest{
			TimeFrame: timeframe,
			Start:     start,
			End:       end,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get bars for %s: %w", symbol, err)
		}

		candles := make([]models.Candle, 0, len(bars))
		for _, bar := range bars {
			candles = append(candles, models.Candle{
				Timestamp: bar.Timestamp.UnixMilli(),
				Open:      bar.Open,
				High:      bar.High,
				Low:       bar.Low,
				Close:     bar.Close,
				Volume:    bar.Volume,
			})
		}
		if len(candles) > limit {
			candles = candles[len(candles)-limit:]
		}
		return candles, nil
	})
}

// FetchPrice combines the latest trade with the trailing 24h of hourly bars
func (s *AlpacaSource) FetchPrice(ctx context.Context, symbol string) (*models.CryptoPrice, error) {
	alpacaSymbol := AlpacaSymbol(symbol)
	end := s.now()

	return callUpstream(ctx, s.retry, BreakerAlpaca, "latest_trade", func() (*models.CryptoPrice, error) {
		trade, err := s.client.GetLatestCryptoTrade(alpacaSymbol, marketdata.GetLatestCryptoTradeRequest{})
		if err != nil {
			return nil, fmt.Errorf("failed to get trade for %s: %w", symbol, err)
		}
		if trade == nil {
			return nil, Permanent(fmt.Errorf("no trades for %s", symbol))
		}

		bars, err := s.client.GetCryptoBars(alpacaSymbol, marketdata.GetCryptoBarsRequest{
			TimeFrame: marketdata.NewTimeFrame(1, marketdata.Hour),
			Start:     end.Add(-24 * time.Hour),
			End:       end,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get daily range for %s: %w", symbol, err)
		}

		price := &models.CryptoPrice{
			Symbol:      strings.ToUpper(symbol),
			Price:       trade.Price,
			LastUpdated: trade.Timestamp.UTC(),
		}
		if len(bars) > 0 {
			open := bars[0].Open
			price.High24h, price.Low24h = bars[0].High, bars[0].Low
			for _, bar := range bars {
				price.High24h = max(price.High24h, bar.High)
				price.Low24h = min(price.Low24h, bar.Low)
				price.Volume24h += bar.Volume
			}
			price.Change24h = trade.Price - open
			if open != 0 {
				price.ChangePercent24h = price.Change24h / open * 100
			}
		}
		return price, nil
	})
}
