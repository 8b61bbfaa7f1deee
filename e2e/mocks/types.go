package mocks

import "strconv"

// Kline is one Binance candle before it is flattened into the positional
// array format /klines returns.
type Kline struct {
	OpenTime int64
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// row renders k the way Binance does: numbers for times, strings for decimals.
func (k Kline) row(stepMillis int64) []any {
	return []any{
		k.OpenTime,
		decimalString(k.Open),
		decimalString(k.High),
		decimalString(k.Low),
		decimalString(k.Close),
		decimalString(k.Volume),
		k.OpenTime + stepMillis - 1,
		decimalString(k.Close * k.Volume),
		100,
		"0",
		"0",
		"0",
	}
}

// Ticker24h mirrors /api/v3/ticker/24hr.
type Ticker24h struct {
	Symbol             string `json:"symbol"`
	PriceChange        string `json:"priceChange"`
	PriceChangePercent string `json:"priceChangePercent"`
	LastPrice          string `json:"lastPrice"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	Volume             string `json:"volume"`
	CloseTime          int64  `json:"closeTime"`
}

// CoinGeckoMarket mirrors one /coins/markets entry.
type CoinGeckoMarket struct {
	ID            string  `json:"id"`
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	MarketCapRank int     `json:"market_cap_rank"`
	CurrentPrice  float64 `json:"current_price"`
}

// Commentary is the JSON object the technical analyst asks the model for.
type Commentary struct {
	Signal         string         `json:"signal"`
	Confidence     float64        `json:"confidence"`
	MarketAnalysis MarketAnalysis `json:"marketAnalysis"`
	RiskAssessment RiskAssessment `json:"riskAssessment"`
	SuggestedEntry *float64       `json:"suggestedEntry,omitempty"`
	SuggestedExit  *float64       `json:"suggestedExit,omitempty"`
	StopLoss       *float64       `json:"stopLoss,omitempty"`
}

type MarketAnalysis struct {
	Summary  string   `json:"summary"`
	Trend    string   `json:"trend"`
	Insights []string `json:"insights"`
}

type RiskAssessment struct {
	Level string `json:"level"`
}

// chatCompletion is the subset of the OpenAI chat completion envelope the SDK needs.
type chatCompletion struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func decimalString(v float64) string {
	return strconv.FormatFloat(v, 'f', 8, 64)
}
