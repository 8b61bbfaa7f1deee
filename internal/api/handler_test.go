package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"crypto-dashboard/cache"
	"crypto-dashboard/config"
	"crypto-dashboard/indicators"
	"crypto-dashboard/internal/app"
	"crypto-dashboard/models"
	"crypto-dashboard/services"
	"crypto-dashboard/tracker"
)

type fakeSource struct {
	candles []models.Candle
	err     error
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) FetchCandles(ctx context.Context, symbol string, interval models.TimeInterval, limit int) ([]models.Candle, error) {
	if f.err != nil {
		return nil, f.err
	}
	start := max(0, len(f.candles)-limit)
	return append([]models.Candle(nil), f.candles[start:]...), nil
}

func (f *fakeSource) FetchPrice(ctx context.Context, symbol string) (*models.CryptoPrice, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.CryptoPrice{Symbol: symbol, Price: 100}, nil
}

type fakeAnalyst struct{}

func (fakeAnalyst) Provider() string { return "mock" }

func (fakeAnalyst) Analyze(ctx context.Context, price *models.CryptoPrice, snapshot *models.IndicatorSnapshot, interval models.TimeInterval) (*models.Commentary, error) {
	c := models.NewCommentary(snapshot.Symbol, interval, price.Price, "mock")
	c.Signal = models.TradeSignalSell
	return c, nil
}

type fakePairs struct{}

func (fakePairs) Search(ctx context.Context, query string) *services.PairListing {
	return &services.PairListing{Pairs: services.FallbackPairs[:2], Total: 2, Cached: true}
}

func genCandles(n int) []models.Candle {
	candles := make([]models.Candle, n)
	for i := range candles {
		c := 100 + 10*math.Sin(float64(i)/5) + 3*math.Cos(float64(i)/2.3)
		candles[i] = models.Candle{
			Timestamp: int64(i) * time.Hour.Milliseconds(),
			Open:      c - 0.5,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    10 + float64(i%7),
		}
	}
	return candles
}

// testRouter creates a Chi router over an App built from deps
func testRouter(source services.CandleSource, deps app.Dependencies) http.Handler {
	cfg := config.NewTestConfig()
	deps.Source = source
	if deps.Snapshots == nil {
		deps.Snapshots = cache.NewSnapshotCache(cache.NewMemoryStore())
	}
	return NewRouter(NewHandler(app.New(cfg, deps), cfg), cfg)
}

func doRequest(t *testing.T, router http.Handler, method, target string, body string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp APIResponse
	if strings.Contains(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
		}
	}
	return w, resp
}

func TestHandler_Health(t *testing.T) {
	router := testRouter(&fakeSource{}, app.Dependencies{})

	w, resp := doRequest(t, router, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("unexpected data %T", resp.Data)
	}
	svcs := data["services"].(map[string]any)
	if svcs["database"] != "not_configured" {
		t.Errorf("expected database not_configured, got %v", svcs["database"])
	}
	if svcs["cache"] != "memory" || svcs["marketData"] != "fake" || svcs["llm"] != "not_configured" {
		t.Errorf("unexpected services %v", svcs)
	}
	if _, ok := data["circuit_breakers"]; !ok {
		t.Error("expected circuit breaker status")
	}
}

func TestHandler_GetIndicators(t *testing.T) {
	router := testRouter(&fakeSource{candles: genCandles(250)}, app.Dependencies{})

	w, resp := doRequest(t, router, http.MethodGet, "/api/indicators?symbol=btcusdt&interval=1h", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if !resp.Success || resp.Cached == nil || *resp.Cached {
		t.Errorf("first request should be a fresh success, got %+v", resp)
	}

	var body struct {
		Data models.IndicatorSnapshot `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if body.Data.Symbol != "BTCUSDT" || body.Data.RSI.Value <= 0 {
		t.Errorf("unexpected snapshot %+v", body.Data)
	}

	_, resp = doRequest(t, router, http.MethodGet, "/api/indicators?symbol=BTCUSDT", "")
	if resp.Cached == nil || !*resp.Cached {
		t.Error("second request should be cached")
	}
}

func TestHandler_GetIndicators_Errors(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		source     *fakeSource
		wantStatus int
		wantError  string
	}{
		{
			name:       "missing symbol",
			target:     "/api/indicators",
			source:     &fakeSource{},
			wantStatus: http.StatusBadRequest,
			wantError:  "Symbol parameter is required",
		},
		{
			name:       "unsupported interval",
			target:     "/api/indicators?symbol=BTCUSDT&interval=3h",
			source:     &fakeSource{},
			wantStatus: http.StatusBadRequest,
			wantError:  `unsupported interval "3h"`,
		},
		{
			name:       "invalid symbol",
			target:     "/api/indicators?symbol=BTC%2FUSDT",
			source:     &fakeSource{},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid symbol",
		},
		{
			name:       "insufficient data",
			target:     "/api/indicators?symbol=BTCUSDT",
			source:     &fakeSource{candles: genCandles(20)},
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "insufficient data to calculate indicators",
		},
		{
			name:       "empty response",
			target:     "/api/indicators?symbol=BTCUSDT",
			source:     &fakeSource{},
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "malformed candle data",
		},
		{
			name:       "source failure",
			target:     "/api/indicators?symbol=BTCUSDT",
			source:     &fakeSource{err: fmt.Errorf("%w: binance klines: 503", services.ErrDataUnavailable)},
			wantStatus: http.StatusBadGateway,
			wantError:  "failed to fetch data",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := testRouter(tt.source, app.Dependencies{})
			w, resp := doRequest(t, router, http.MethodGet, tt.target, "")

			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if resp.Success || !strings.Contains(resp.Error, tt.wantError) {
				t.Errorf("expected error containing %q, got %+v", tt.wantError, resp)
			}
		})
	}
}

func TestHandler_GetIndicatorHistory(t *testing.T) {
	router := testRouter(&fakeSource{candles: genCandles(250)}, app.Dependencies{})

	w, _ := doRequest(t, router, http.MethodGet, "/api/indicators/history?symbol=ETHUSDT&interval=4h", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var body struct {
		Data app.HistoryResult `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Interval != models.Interval4h || len(body.Data.History.MACDHistory) != 100 {
		t.Errorf("unexpected history: interval %s, %d MACD points", body.Data.Interval, len(body.Data.History.MACDHistory))
	}
}

func TestHandler_GetHistorical(t *testing.T) {
	router := testRouter(&fakeSource{candles: genCandles(250)}, app.Dependencies{})

	tests := []struct {
		target  string
		wantLen int
	}{
		{target: "/api/crypto/historical?symbol=BTCUSDT&interval=1d&limit=30", wantLen: 30},
		{target: "/api/crypto/historical?symbol=BTCUSDT", wantLen: app.DefaultHistoricalLimit},
		{target: "/api/crypto/historical?symbol=BTCUSDT&limit=abc", wantLen: app.DefaultHistoricalLimit},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			w, _ := doRequest(t, router, http.MethodGet, tt.target, "")
			if w.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", w.Code)
			}
			var body struct {
				Data   models.HistoricalData `json:"data"`
				Cached bool                  `json:"cached"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(body.Data.Data) != tt.wantLen || body.Cached {
				t.Errorf("got %d candles cached=%v, want %d fresh", len(body.Data.Data), body.Cached, tt.wantLen)
			}
		})
	}
}

func TestHandler_GetPrice(t *testing.T) {
	router := testRouter(&fakeSource{}, app.Dependencies{})

	w, resp := doRequest(t, router, http.MethodGet, "/api/crypto/price?symbol=solusdt", "")
	if w.Code != http.StatusOK || !resp.Success {
		t.Fatalf("expected success, got %d %+v", w.Code, resp)
	}

	w, _ = doRequest(t, router, http.MethodGet, "/api/crypto/price?symbols=BTCUSDT,%20ETHUSDT,", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var body struct {
		Data []models.CryptoPrice `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data) != 2 || body.Data[1].Symbol != "ETHUSDT" {
		t.Errorf("unexpected prices %+v", body.Data)
	}

	w, _ = doRequest(t, router, http.MethodGet, "/api/crypto/price", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestHandler_GetTradingPairs(t *testing.T) {
	w, _ := doRequest(t, testRouter(&fakeSource{}, app.Dependencies{}), http.MethodGet, "/api/crypto/trading-pairs?query=btc", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503 without a directory, got %d", w.Code)
	}

	router := testRouter(&fakeSource{}, app.Dependencies{Pairs: fakePairs{}})
	req := httptest.NewRequest(http.MethodGet, "/api/crypto/trading-pairs?query=btc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var listing services.PairListing
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if listing.Total != 2 || !listing.Cached || len(listing.Pairs) != 2 {
		t.Errorf("unexpected listing %+v", listing)
	}
}

func TestHandler_Analyze(t *testing.T) {
	t.Run("no analyst configured", func(t *testing.T) {
		router := testRouter(&fakeSource{candles: genCandles(250)}, app.Dependencies{})
		w, _ := doRequest(t, router, http.MethodPost, "/api/analysis", `{"symbol":"BTCUSDT"}`)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status 503, got %d", w.Code)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		router := testRouter(&fakeSource{}, app.Dependencies{Analyst: fakeAnalyst{}})
		w, resp := doRequest(t, router, http.MethodPost, "/api/analysis", `{"symbol":`)
		if w.Code != http.StatusBadRequest || resp.Error != "Invalid JSON request" {
			t.Errorf("expected invalid JSON error, got %d %+v", w.Code, resp)
		}
	})

	t.Run("missing symbol", func(t *testing.T) {
		router := testRouter(&fakeSource{}, app.Dependencies{Analyst: fakeAnalyst{}})
		w, _ := doRequest(t, router, http.MethodPost, "/api/analysis", `{"interval":"1h"}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", w.Code)
		}
	})

	t.Run("form body", func(t *testing.T) {
		router := testRouter(&fakeSource{candles: genCandles(250)}, app.Dependencies{Analyst: fakeAnalyst{}})
		req := httptest.NewRequest(http.MethodPost, "/api/analysis", strings.NewReader("symbol=ethusdt&interval=4h"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		var body struct {
			Data models.Commentary `json:"data"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Data.Symbol != "ETHUSDT" || body.Data.Interval != models.Interval4h || body.Data.Signal != models.TradeSignalSell {
			t.Errorf("unexpected commentary %+v", body.Data)
		}
	})
}

func TestHandler_GetAnalysisHistory(t *testing.T) {
	router := testRouter(&fakeSource{}, app.Dependencies{})

	w, _ := doRequest(t, router, http.MethodGet, "/api/analysis/history", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}

	w, resp := doRequest(t, router, http.MethodGet, "/api/analysis/history?symbol=BTCUSDT", "")
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(resp.Error, "not configured") {
		t.Errorf("expected 503 without a database, got %d %+v", w.Code, resp)
	}
}

func TestHandler_Subscriptions(t *testing.T) {
	source := &fakeSource{candles: genCandles(tracker.MaxCandles)}
	sched := tracker.NewScheduler(source, nil, indicators.NewCalculator(indicators.DefaultConfig()), tracker.SchedulerConfig{})
	defer sched.Stop()
	router := testRouter(source, app.Dependencies{Tracker: sched})

	w, resp := doRequest(t, router, http.MethodPost, "/api/subscriptions", `{"symbol":"btcusdt","interval":"15m"}`)
	if w.Code != http.StatusCreated || !resp.Success {
		t.Fatalf("expected 201, got %d %+v", w.Code, resp)
	}

	w, _ = doRequest(t, router, http.MethodGet, "/api/subscriptions", "")
	var list struct {
		Data []tracker.SessionStatus `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Data) != 1 || list.Data[0].Symbol != "BTCUSDT" || list.Data[0].Interval != models.Interval15m {
		t.Errorf("unexpected subscriptions %+v", list.Data)
	}

	w, _ = doRequest(t, router, http.MethodPost, "/api/subscriptions", `{"symbol":"BTCUSDT","interval":"2m"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad interval, got %d", w.Code)
	}

	w, _ = doRequest(t, router, http.MethodDelete, "/api/subscriptions?symbol=BTCUSDT&interval=15m", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	w, _ = doRequest(t, router, http.MethodDelete, "/api/subscriptions?symbol=BTCUSDT&interval=15m", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for a second delete, got %d", w.Code)
	}
}

func TestHandler_SubscriptionsWithoutTracker(t *testing.T) {
	router := testRouter(&fakeSource{}, app.Dependencies{})

	w, resp := doRequest(t, router, http.MethodGet, "/api/subscriptions", "")
	if w.Code != http.StatusOK || !resp.Success {
		t.Errorf("listing should succeed without a tracker, got %d", w.Code)
	}

	w, _ = doRequest(t, router, http.MethodPost, "/api/subscriptions", `{"symbol":"BTCUSDT"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestRouter_CORSAndMetrics(t *testing.T) {
	router := testRouter(&fakeSource{}, app.Dependencies{})

	req := httptest.NewRequest(http.MethodOptions, "/api/indicators", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected preflight 200, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("unexpected CORS origin %q", w.Header().Get("Access-Control-Allow-Origin"))
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected /metrics 200, got %d", w.Code)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"insufficient", fmt.Errorf("calc: %w", indicators.ErrInsufficientData), http.StatusUnprocessableEntity, "insufficient data to calculate indicators"},
		{"malformed", indicators.ErrMalformedInput, http.StatusUnprocessableEntity, "malformed candle data"},
		{"data source", fmt.Errorf("%w: timeout", services.ErrDataUnavailable), http.StatusBadGateway, "failed to fetch data"},
		{"queue full", app.ErrQueueFull, http.StatusTooManyRequests, app.ErrQueueFull.Error()},
		{"not subscribed", app.ErrNotSubscribed, http.StatusNotFound, app.ErrNotSubscribed.Error()},
		{"tracker stopped", tracker.ErrNotRunning, http.StatusServiceUnavailable, tracker.ErrNotRunning.Error()},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, "request timed out"},
		{"unknown", errors.New("secret detail"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := classifyError(tt.err)
			if status != tt.wantStatus || msg != tt.wantMsg {
				t.Errorf("classifyError() = %d %q, want %d %q", status, msg, tt.wantStatus, tt.wantMsg)
			}
		})
	}
}
