package agents

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"crypto-dashboard/models"
	"crypto-dashboard/observability"
	"crypto-dashboard/services"
)

const technicalSystemPrompt = `You are a professional cryptocurrency trading analyst specializing in technical analysis.
Your job is to read a snapshot of technical indicators and describe what it implies for short-term price movement.

Indicator conventions:
- RSI (14): >70 overbought, <30 oversold
- MACD (12, 26, 9): histogram sign marks the crossover direction
- EMA 9/21/50/200: price relative to the averages shows trend and support/resistance
- Bollinger Bands (20, 2): bandwidth is a percentage of the middle band, %B locates price inside the bands

Respond with a single JSON object with the following structure:
{
  "signal": "strong_buy" | "buy" | "hold" | "sell" | "strong_sell",
  "confidence": <0-100>,
  "marketAnalysis": {
    "summary": "<2-3 sentence overview>",
    "trend": "bullish" | "bearish" | "sideways",
    "insights": [<array of key insights>]
  },
  "riskAssessment": {
    "level": "low" | "medium" | "high" | "extreme"
  },
  "suggestedEntry": <optimal entry price or null>,
  "suggestedExit": <target exit price or null>,
  "stopLoss": <suggested stop loss or null>
}

Be objective and focus on actionable technical signals. Provide ONLY the JSON response, no additional text.`

// volumeLevelsInPrompt is how many of the heaviest volume profile bins are shown
const volumeLevelsInPrompt = 3

// TechnicalResponse is the JSON object expected back from the model
type TechnicalResponse struct {
	Signal         string  `json:"signal"`
	Confidence     float64 `json:"confidence"`
	MarketAnalysis struct {
		Summary  string   `json:"summary"`
		Trend    string   `json:"trend"`
		Insights []string `json:"insights"`
	} `json:"marketAnalysis"`
	RiskAssessment struct {
		Level string `json:"level"`
	} `json:"riskAssessment"`
	SuggestedEntry *float64 `json:"suggestedEntry"`
	SuggestedExit  *float64 `json:"suggestedExit"`
	StopLoss       *float64 `json:"stopLoss"`
}

// TechnicalAnalyst turns an indicator snapshot into trading commentary
type TechnicalAnalyst struct {
	llm services.LLMService
}

// NewTechnicalAnalyst creates a new TechnicalAnalyst
func NewTechnicalAnalyst(llm services.LLMService) *TechnicalAnalyst {
	return &TechnicalAnalyst{llm: llm}
}

// Name returns the agent name
func (a *TechnicalAnalyst) Name() string {
	return "Technical Analyst"
}

// Provider returns the name of the underlying LLM provider
func (a *TechnicalAnalyst) Provider() string {
	return a.llm.Name()
}

// Analyze asks the model for a reading of snapshot at the given ticker price
func (a *TechnicalAnalyst) Analyze(ctx context.Context, price *models.CryptoPrice, snapshot *models.IndicatorSnapshot, interval models.TimeInterval) (*models.Commentary, error) {
	if price == nil || snapshot == nil {
		return nil, fmt.Errorf("analysis requires a price and an indicator snapshot")
	}

	var result TechnicalResponse
	if err := services.InvokeStructured(ctx, a.llm, technicalSystemPrompt, BuildTechnicalPrompt(price, snapshot), &result); err != nil {
		return nil, fmt.Errorf("failed to generate commentary for %s: %w", price.Symbol, err)
	}

	commentary := models.NewCommentary(price.Symbol, interval, price.Price, a.llm.Name())
	applyResponse(commentary, &result)

	observability.GetMetrics().RecordCommentary(string(commentary.Signal), commentary.Confidence)
	observability.WithSymbol(price.Symbol).Debug("commentary generated",
		"interval", interval,
		"signal", commentary.Signal,
		"confidence", commentary.Confidence)

	return commentary, nil
}

// BuildTechnicalPrompt renders the market data block of the analysis prompt.
// Prices are rounded to cents here and nowhere else.
func BuildTechnicalPrompt(price *models.CryptoPrice, s *models.IndicatorSnapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Analyze the following market data for %s", price.Symbol)
	if s.Interval != "" {
		fmt.Fprintf(&b, " on the %s timeframe", s.Interval)
	}
	b.WriteString(".\n\n")

	fmt.Fprintf(&b, "Current Price: $%s\n", usd(price.Price))
	fmt.Fprintf(&b, "24h Change: %s%%\n", fixed(price.ChangePercent24h, 2))
	if price.High24h > 0 || price.Low24h > 0 {
		fmt.Fprintf(&b, "24h High/Low: $%s / $%s\n", usd(price.High24h), usd(price.Low24h))
	}
	fmt.Fprintf(&b, "24h Volume: $%s\n\n", fixed(price.Volume24h, 0))

	b.WriteString("Technical Indicators:\n\n")
	fmt.Fprintf(&b, "RSI (14): %s - %s\n\n", fixed(s.RSI.Value, 2), s.RSI.Signal)

	b.WriteString("MACD:\n")
	fmt.Fprintf(&b, "- MACD Line: %s\n", fixed(s.MACD.MACD, 4))
	fmt.Fprintf(&b, "- Signal Line: %s\n", fixed(s.MACD.Signal, 4))
	fmt.Fprintf(&b, "- Histogram: %s\n\n", fixed(s.MACD.Histogram, 4))

	b.WriteString("EMAs:\n")
	fmt.Fprintf(&b, "- EMA 9: $%s\n", usd(s.EMA.EMA9))
	fmt.Fprintf(&b, "- EMA 21: $%s\n", usd(s.EMA.EMA21))
	fmt.Fprintf(&b, "- EMA 50: $%s\n", usd(s.EMA.EMA50))
	if s.EMA.HasEMA200() {
		fmt.Fprintf(&b, "- EMA 200: $%s\n", usd(s.EMA.EMA200))
	} else {
		b.WriteString("- EMA 200: not enough history\n")
	}
	if s.Crossover != nil {
		switch {
		case s.Crossover.Bullish:
			b.WriteString("- EMA 9 just crossed above EMA 21\n")
		case s.Crossover.Bearish:
			b.WriteString("- EMA 9 just crossed below EMA 21\n")
		}
	}
	b.WriteString("\n")

	b.WriteString("Bollinger Bands:\n")
	fmt.Fprintf(&b, "- Upper: $%s\n", usd(s.BollingerBands.Upper))
	fmt.Fprintf(&b, "- Middle: $%s\n", usd(s.BollingerBands.Middle))
	fmt.Fprintf(&b, "- Lower: $%s\n", usd(s.BollingerBands.Lower))
	fmt.Fprintf(&b, "- Bandwidth: %s%%\n", fixed(s.BollingerBands.Bandwidth, 2))
	fmt.Fprintf(&b, "- %%B: %s\n", fixed(s.BollingerBands.PercentB, 2))

	if len(s.VolumeProfile) > 0 {
		b.WriteString("\nHighest volume price levels:\n")
		for i, bin := range s.VolumeProfile {
			if i == volumeLevelsInPrompt {
				break
			}
			fmt.Fprintf(&b, "- $%s (%s%% of volume)\n", usd(bin.PriceLevel), fixed(bin.Percentage, 1))
		}
	}

	b.WriteString("\nProvide your technical analysis.")
	return b.String()
}

func applyResponse(c *models.Commentary, r *TechnicalResponse) {
	if signal := models.TradeSignal(normalizeEnum(r.Signal)); signal.Valid() {
		c.Signal = signal
	}
	c.Confidence = NormalizeConfidence(r.Confidence)
	c.Summary = strings.TrimSpace(r.MarketAnalysis.Summary)

	switch trend := models.MarketTrend(normalizeEnum(r.MarketAnalysis.Trend)); trend {
	case models.MarketTrendBullish, models.MarketTrendBearish, models.MarketTrendSideways:
		c.Trend = trend
	}
	switch risk := models.RiskLevel(normalizeEnum(r.RiskAssessment.Level)); risk {
	case models.RiskLevelLow, models.RiskLevelMedium, models.RiskLevelHigh, models.RiskLevelExtreme:
		c.RiskLevel = risk
	}

	for _, insight := range r.MarketAnalysis.Insights {
		if insight = strings.TrimSpace(insight); insight != "" {
			c.Insights = append(c.Insights, insight)
		}
	}

	c.SuggestedEntry = positivePrice(r.SuggestedEntry)
	c.SuggestedExit = positivePrice(r.SuggestedExit)
	c.StopLoss = positivePrice(r.StopLoss)
}

// NormalizeConfidence clamps a model-reported confidence to [0, 100]
func NormalizeConfidence(confidence float64) float64 {
	if math.IsNaN(confidence) {
		return 0
	}
	return max(0, min(100, confidence))
}

// normalizeEnum maps "Strong Buy", "strong-buy" and "STRONG_BUY" onto strong_buy
func normalizeEnum(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

func positivePrice(p *float64) *float64 {
	if p == nil || *p <= 0 {
		return nil
	}
	v := *p
	return &v
}

// decimal panics on NaN and Inf
func usd(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return models.RoundPrice(v).StringFixed(2)
}

func fixed(v float64, places int32) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return decimal.NewFromFloat(v).StringFixed(places)
}
