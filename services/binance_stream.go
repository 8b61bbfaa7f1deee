package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"crypto-dashboard/models"
	"crypto-dashboard/observability"
)

const streamBufferSize = 64

// BinanceStream subscribes to Binance kline websocket streams. Each message
// carries the current state of the open candle, so consumers see repeated
// updates for the same open time followed by the next candle.
type BinanceStream struct {
	baseURL           string
	dialer            *websocket.Dialer
	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
}

// NewBinanceStream creates a stream client for a base such as wss://stream.binance.com:9443/ws
func NewBinanceStream(baseURL string) *BinanceStream {
	return &BinanceStream{
		baseURL:           strings.TrimRight(baseURL, "/"),
		dialer:            websocket.DefaultDialer,
		reconnectDelay:    2 * time.Second,
		maxReconnectDelay: 30 * time.Second,
	}
}

// binanceKlineEvent is the kline stream payload. Every key Binance sends is
// declared because encoding/json falls back to case-insensitive matching:
// without "E" the integer event time would land in EventType.
type binanceKlineEvent struct {
	EventType string       `json:"e"`
	EventTime int64        `json:"E"`
	Symbol    string       `json:"s"`
	Kline     binanceKline `json:"k"`
}

type binanceKline struct {
	OpenTime            int64  `json:"t"`
	CloseTime           int64  `json:"T"`
	Symbol              string `json:"s"`
	Interval            string `json:"i"`
	FirstTradeID        int64  `json:"f"`
	LastTradeID         int64  `json:"L"`
	Open                string `json:"o"`
	Close               string `json:"c"`
	High                string `json:"h"`
	Low                 string `json:"l"`
	Volume              string `json:"v"`
	Trades              int64  `json:"n"`
	Closed              bool   `json:"x"`
	QuoteVolume         string `json:"q"`
	TakerBuyVolume      string `json:"V"`
	TakerBuyQuoteVolume string `json:"Q"`
	Ignore              string `json:"B"`
}

// StreamURL returns the kline stream endpoint for symbol and interval
func (s *BinanceStream) StreamURL(symbol string, interval models.TimeInterval) string {
	return fmt.Sprintf("%s/%s@kline_%s", s.baseURL, strings.ToLower(symbol), interval)
}

// Subscribe streams candles until ctx is cancelled, reconnecting with
// exponential backoff. The returned channel is closed on exit.
func (s *BinanceStream) Subscribe(ctx context.Context, symbol string, interval models.TimeInterval) <-chan models.Candle {
	out := make(chan models.Candle, streamBufferSize)
	log := observability.WithSubscription(symbol, string(interval))

	go func() {
		defer close(out)
		endpoint := s.StreamURL(symbol, interval)
		delay := s.reconnectDelay

		for {
			connected, err := s.runOnce(ctx, endpoint, out)
			if ctx.Err() != nil {
				return
			}
			if connected {
				delay = s.reconnectDelay
			}

			log.Warn("kline stream disconnected, reconnecting", "error", err, "delay", delay)

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			delay *= 2
			if delay > s.maxReconnectDelay {
				delay = s.maxReconnectDelay
			}
		}
	}()

	return out
}

// runOnce reads one connection until it drops. connected reports whether the
// dial succeeded so the caller can reset its backoff.
func (s *BinanceStream) runOnce(ctx context.Context, endpoint string, out chan<- models.Candle) (connected bool, err error) {
	conn, _, err := s.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-done:
		}
	}()

	metrics := observability.GetMetrics()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}

		candle, ok := parseKlineEvent(raw)
		if !ok {
			observability.Debug("skipping kline message", "raw", string(raw))
			continue
		}
		metrics.RecordStreamCandle(BreakerBinance)

		select {
		case out <- candle:
		case <-ctx.Done():
			return true, ctx.Err()
		}
	}
}

func parseKlineEvent(raw []byte) (models.Candle, bool) {
	var ev binanceKlineEvent
	if err := json.Unmarshal(raw, &ev); err != nil || ev.EventType != "kline" || ev.Kline.OpenTime == 0 {
		return models.Candle{}, false
	}
	k := ev.Kline
	candle, err := candleFromStrings(k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume)
	if err != nil {
		return models.Candle{}, false
	}
	return candle, true
}
