// Package mocks provides an HTTP mock of the upstream APIs used in E2E tests.
package mocks

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"crypto-dashboard/models"
)

// Path prefixes each impersonated API is served under.
const (
	BinancePrefix   = "/binance/api/v3"
	CoinGeckoPrefix = "/coingecko/api/v3"
	OpenAIPrefix    = "/openai/"
)

// seriesStart anchors generated klines so runs are reproducible.
var seriesStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// MockServer provides configurable responses for Binance, CoinGecko and OpenAI.
type MockServer struct {
	mu     sync.RWMutex
	server *httptest.Server

	// Response configurations
	basePrice  float64
	klines     map[string][]Kline // key: symbol; nil means generate
	markets    []CoinGeckoMarket
	commentary Commentary

	// Error injection, as HTTP status codes; zero disables
	binanceStatus   int
	coinGeckoStatus int
	openAIStatus    int

	// Request tracking for assertions
	requestLog []RequestLog
}

// RequestLog records incoming requests for test assertions.
type RequestLog struct {
	Method string
	Path   string
	Query  string
	Body   string
}

// NewMockServer creates a new mock server with default responses.
func NewMockServer() *MockServer {
	m := &MockServer{
		klines:     make(map[string][]Kline),
		requestLog: make([]RequestLog, 0),
	}
	m.setDefaults()
	m.server = httptest.NewServer(m)
	return m
}

// URL returns the mock server's base URL.
func (m *MockServer) URL() string {
	return m.server.URL
}

// BinanceURL is the base URL for services.NewBinanceSource.
func (m *MockServer) BinanceURL() string { return m.server.URL + BinancePrefix }

// CoinGeckoURL is the base URL for services.NewPairDirectory.
func (m *MockServer) CoinGeckoURL() string { return m.server.URL + CoinGeckoPrefix }

// OpenAIURL is the base URL for the OpenAI client.
func (m *MockServer) OpenAIURL() string { return m.server.URL + OpenAIPrefix }

// Close shuts down the mock server.
func (m *MockServer) Close() {
	m.server.Close()
}

// ServeHTTP routes requests to the matching upstream handler.
func (m *MockServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body []byte
	if r.Body != nil {
		body, _ = io.ReadAll(io.LimitReader(r.Body, 64<<10))
	}

	m.mu.Lock()
	m.requestLog = append(m.requestLog, RequestLog{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Body:   string(body),
	})
	m.mu.Unlock()

	path := r.URL.Path
	switch {
	case path == BinancePrefix+"/klines":
		m.handleKlines(w, r)
	case path == BinancePrefix+"/ticker/24hr":
		m.handleTicker(w, r)
	case path == CoinGeckoPrefix+"/coins/markets":
		m.handleMarkets(w, r)
	case strings.HasPrefix(path, OpenAIPrefix) && strings.HasSuffix(path, "/chat/completions"):
		m.handleChatCompletion(w, r)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// GetRequestLog returns all logged requests for assertions.
func (m *MockServer) GetRequestLog() []RequestLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RequestLog{}, m.requestLog...)
}

// CountRequests returns how many logged requests hit path.
func (m *MockServer) CountRequests(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.requestLog {
		if r.Path == path {
			n++
		}
	}
	return n
}

// ClearRequestLog clears the request log.
func (m *MockServer) ClearRequestLog() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestLog = make([]RequestLog, 0)
}

// SetKlines pins the klines served for symbol. Requests return the last limit entries.
func (m *MockServer) SetKlines(symbol string, klines []Kline) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.klines[strings.ToUpper(symbol)] = klines
}

// SetBinanceStatus makes every Binance endpoint fail with status. Zero restores normal service.
func (m *MockServer) SetBinanceStatus(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.binanceStatus = status
}

// SetMarkets configures the CoinGecko listing.
func (m *MockServer) SetMarkets(markets []CoinGeckoMarket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markets = markets
}

// SetCoinGeckoStatus makes the CoinGecko listing fail with status.
func (m *MockServer) SetCoinGeckoStatus(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coinGeckoStatus = status
}

// SetCommentary configures the JSON the chat completion endpoint replies with.
func (m *MockServer) SetCommentary(c Commentary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commentary = c
}

// SetOpenAIStatus makes the chat completion endpoint fail with status.
func (m *MockServer) SetOpenAIStatus(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openAIStatus = status
}

func (m *MockServer) setDefaults() {
	m.basePrice = 43000

	m.markets = []CoinGeckoMarket{
		{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin", MarketCapRank: 1, CurrentPrice: 43000},
		{ID: "ethereum", Symbol: "eth", Name: "Ethereum", MarketCapRank: 2, CurrentPrice: 2300},
		{ID: "solana", Symbol: "sol", Name: "Solana", MarketCapRank: 5, CurrentPrice: 98},
	}

	entry, exit, stop := 42500.0, 45000.0, 41000.0
	m.commentary = Commentary{
		Signal:     "buy",
		Confidence: 72,
		MarketAnalysis: MarketAnalysis{
			Summary:  "Momentum is recovering with price holding above the 50 EMA.",
			Trend:    "bullish",
			Insights: []string{"RSI neutral at 55", "MACD histogram turning positive"},
		},
		RiskAssessment: RiskAssessment{Level: "medium"},
		SuggestedEntry: &entry,
		SuggestedExit:  &exit,
		StopLoss:       &stop,
	}
}

func (m *MockServer) handleKlines(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	status := m.binanceStatus
	pinned := m.klines[strings.ToUpper(r.URL.Query().Get("symbol"))]
	m.mu.RUnlock()

	if status != 0 {
		http.Error(w, `{"code":-1003,"msg":"mock failure"}`, status)
		return
	}

	interval := models.TimeInterval(r.URL.Query().Get("interval"))
	if !interval.Valid() {
		http.Error(w, `{"code":-1120,"msg":"Invalid interval."}`, http.StatusBadRequest)
		return
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 500
	}

	klines := pinned
	if klines == nil {
		klines = GenerateKlines(limit, interval.Duration(), m.basePrice)
	}
	if len(klines) > limit {
		klines = klines[len(klines)-limit:]
	}

	step := interval.Duration().Milliseconds()
	rows := make([][]any, len(klines))
	for i, k := range klines {
		rows[i] = k.row(step)
	}
	writeJSON(w, rows)
}

func (m *MockServer) handleTicker(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	status := m.binanceStatus
	base := m.basePrice
	m.mu.RUnlock()

	if status != 0 {
		http.Error(w, `{"code":-1003,"msg":"mock failure"}`, status)
		return
	}

	symbol := strings.ToUpper(r.URL.Query().Get("symbol"))
	if symbol == "" {
		http.Error(w, `{"code":-1102,"msg":"Mandatory parameter 'symbol' was not sent."}`, http.StatusBadRequest)
		return
	}

	change := base * 0.025
	writeJSON(w, Ticker24h{
		Symbol:             symbol,
		PriceChange:        decimalString(change),
		PriceChangePercent: "2.500",
		LastPrice:          decimalString(base),
		HighPrice:          decimalString(base * 1.03),
		LowPrice:           decimalString(base * 0.97),
		Volume:             "12345.67800000",
		CloseTime:          seriesStart.UnixMilli(),
	})
}

func (m *MockServer) handleMarkets(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	status := m.coinGeckoStatus
	markets := append([]CoinGeckoMarket{}, m.markets...)
	m.mu.RUnlock()

	if status != 0 {
		http.Error(w, `{"error":"mock failure"}`, status)
		return
	}
	writeJSON(w, markets)
}

func (m *MockServer) handleChatCompletion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	m.mu.RLock()
	status := m.openAIStatus
	commentary := m.commentary
	m.mu.RUnlock()

	if status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, `{"error":{"message":"mock failure","type":"invalid_request_error"}}`)
		return
	}

	content, err := json.Marshal(commentary)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, chatCompletion{
		ID:      "chatcmpl-mock",
		Object:  "chat.completion",
		Created: seriesStart.Unix(),
		Model:   "gpt-4o",
		Choices: []chatChoice{{
			Index:        0,
			Message:      chatMessage{Role: "assistant", Content: string(content)},
			FinishReason: "stop",
		}},
		Usage: chatUsage{PromptTokens: 500, CompletionTokens: 120, TotalTokens: 620},
	})
}

// GenerateKlines builds n candles spaced by step that oscillate around base
// with a gentle upward drift.
func GenerateKlines(n int, step time.Duration, base float64) []Kline {
	klines := make([]Kline, n)
	start := seriesStart.UnixMilli()
	for i := 0; i < n; i++ {
		mid := base * (1 + 0.0005*float64(i) + 0.02*math.Sin(float64(i)/6))
		klines[i] = Kline{
			OpenTime: start + int64(i)*step.Milliseconds(),
			Open:     mid * 0.998,
			High:     mid * 1.006,
			Low:      mid * 0.994,
			Close:    mid * 1.002,
			Volume:   100 + 20*math.Cos(float64(i)/4),
		}
	}
	return klines
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
