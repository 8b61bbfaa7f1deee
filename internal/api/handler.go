package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"crypto-dashboard/config"
	"crypto-dashboard/indicators"
	"crypto-dashboard/internal/app"
	"crypto-dashboard/models"
	"crypto-dashboard/observability"
	"crypto-dashboard/services"
	"crypto-dashboard/tracker"

	"github.com/go-chi/chi/v5/middleware"
)

// Error messages returned for classified failures
const (
	msgInsufficientData = "insufficient data to calculate indicators"
	msgMalformedInput   = "malformed candle data"
	msgFetchFailed      = "failed to fetch data"
	msgInternal         = "internal server error"
)

// APIResponse is the envelope every JSON endpoint except the pair directory uses
type APIResponse struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Cached    *bool  `json:"cached,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// SubscriptionRequest is the body of POST /api/subscriptions and POST /api/analysis
type SubscriptionRequest struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
}

// Handler handles HTTP API requests
type Handler struct {
	app *app.App
	cfg *config.Config
}

// NewHandler creates a new Handler
func NewHandler(application *app.App, cfg *config.Config) *Handler {
	return &Handler{app: application, cfg: cfg}
}

// HandleHealth returns the health status of the application
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	database := "not_configured"

	if repo := h.app.Repo(); repo != nil {
		if err := repo.Health(r.Context()); err == nil {
			database = "connected"
		} else {
			database = "disconnected"
			status = "degraded"
		}
	}

	llm := "not_configured"
	if h.app.HasAnalyst() {
		llm = h.cfg.LLM.Provider
	}

	cbStatus := services.GetGlobalRegistry().Status()
	for _, cb := range cbStatus {
		if cb.State == "open" {
			status = "degraded"
			break
		}
	}

	h.jsonResponse(w, map[string]any{
		"status": status,
		"services": map[string]string{
			"database":    database,
			"cache":       h.app.CacheBackend(),
			"marketData":  h.app.SourceName(),
			"llm":         llm,
			"pairListing": "coingecko",
		},
		"subscriptions":    len(h.app.Subscriptions()),
		"circuit_breakers": cbStatus,
	})
}

// HandleGetIndicators returns the latest indicator snapshot
func (h *Handler) HandleGetIndicators(w http.ResponseWriter, r *http.Request) {
	symbol, interval, ok := h.symbolAndInterval(w, r)
	if !ok {
		return
	}

	result, err := h.app.GetIndicators(r.Context(), symbol, interval)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.jsonCachedResponse(w, result.Snapshot, result.Cached)
}

// HandleGetIndicatorHistory returns the chart series for a pair
func (h *Handler) HandleGetIndicatorHistory(w http.ResponseWriter, r *http.Request) {
	symbol, interval, ok := h.symbolAndInterval(w, r)
	if !ok {
		return
	}

	result, err := h.app.GetHistory(r.Context(), symbol, interval)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.jsonResponse(w, result)
}

// HandleGetHistorical returns a candle window
func (h *Handler) HandleGetHistorical(w http.ResponseWriter, r *http.Request) {
	symbol, interval, ok := h.symbolAndInterval(w, r)
	if !ok {
		return
	}

	limit := h.ParseLimitParam(r, app.DefaultHistoricalLimit)
	result, err := h.app.GetHistorical(r.Context(), symbol, interval, limit)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.jsonCachedResponse(w, result.Data, result.Cached)
}

// HandleGetPrice returns one ticker for ?symbol= or several for ?symbols=a,b
func (h *Handler) HandleGetPrice(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if multiple := query.Get("symbols"); multiple != "" {
		var symbols []string
		for _, s := range strings.Split(multiple, ",") {
			if s = strings.TrimSpace(s); s != "" {
				symbols = append(symbols, s)
			}
		}
		prices, err := h.app.GetPrices(r.Context(), symbols)
		if err != nil {
			h.handleError(w, r, err)
			return
		}
		h.jsonResponse(w, prices)
		return
	}

	if query.Get("symbol") == "" {
		h.jsonError(w, "Symbol or symbols parameter is required", http.StatusBadRequest)
		return
	}

	price, err := h.app.GetPrice(r.Context(), query.Get("symbol"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.jsonResponse(w, price)
}

// HandleGetTradingPairs searches the pair directory. The listing is written
// without the envelope because it carries its own cache fields.
func (h *Handler) HandleGetTradingPairs(w http.ResponseWriter, r *http.Request) {
	listing, err := h.app.SearchPairs(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, listing)
}

// HandleAnalyze generates LLM commentary for a pair
func (h *Handler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePairRequest(w, r)
	if !ok {
		return
	}

	result, err := h.app.Analyze(r.Context(), req.Symbol, models.TimeInterval(req.Interval))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.jsonCachedResponse(w, result.Commentary, result.Cached)
}

// HandleGetAnalysisHistory returns stored commentaries for a symbol
func (h *Handler) HandleGetAnalysisHistory(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		h.jsonError(w, "Symbol parameter is required", http.StatusBadRequest)
		return
	}

	limit := h.ParseLimitParam(r, app.DefaultAnalysisHistoryLimit)
	analyses, err := h.app.GetAnalysisHistory(r.Context(), symbol, limit)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if analyses == nil {
		analyses = []models.Commentary{}
	}
	h.jsonResponse(w, analyses)
}

// HandleListSubscriptions lists the live sessions
func (h *Handler) HandleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, h.app.Subscriptions())
}

// HandleSubscribe starts tracking a pair
func (h *Handler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePairRequest(w, r)
	if !ok {
		return
	}
	interval, err := models.ParseInterval(req.Interval)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	status, err := h.app.Subscribe(r.Context(), req.Symbol, interval)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: status, Timestamp: time.Now().UnixMilli()})
}

// HandleUnsubscribe stops tracking ?symbol=&interval=
func (h *Handler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	symbol, interval, ok := h.symbolAndInterval(w, r)
	if !ok {
		return
	}

	if err := h.app.Unsubscribe(r.Context(), symbol, interval); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.jsonResponse(w, map[string]string{"status": "unsubscribed", "symbol": strings.ToUpper(symbol), "interval": string(interval)})
}

// symbolAndInterval reads the common query parameters, writing a 400 on failure
func (h *Handler) symbolAndInterval(w http.ResponseWriter, r *http.Request) (string, models.TimeInterval, bool) {
	query := r.URL.Query()
	symbol := query.Get("symbol")
	if symbol == "" {
		h.jsonError(w, "Symbol parameter is required", http.StatusBadRequest)
		return "", "", false
	}
	interval, err := models.ParseInterval(query.Get("interval"))
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return "", "", false
	}
	return symbol, interval, true
}

func (h *Handler) decodePairRequest(w http.ResponseWriter, r *http.Request) (SubscriptionRequest, bool) {
	var req SubscriptionRequest

	contentType := r.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.jsonError(w, "Invalid JSON request", http.StatusBadRequest)
			return req, false
		}
	} else {
		if err := r.ParseForm(); err != nil {
			h.jsonError(w, "Failed to parse form", http.StatusBadRequest)
			return req, false
		}
		req.Symbol = r.FormValue("symbol")
		req.Interval = r.FormValue("interval")
	}

	if strings.TrimSpace(req.Symbol) == "" {
		h.jsonError(w, "Symbol is required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

// ParseLimitParam parses the limit query parameter
func (h *Handler) ParseLimitParam(r *http.Request, defaultLimit int) int {
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			return l
		}
	}
	return defaultLimit
}

// handleError maps classified errors to status codes. Unclassified errors
// are logged and reported without detail.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := classifyError(err)
	if status >= http.StatusInternalServerError {
		observability.WithContext(r.Context()).Error("request failed",
			"path", r.URL.Path,
			"status", status,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
	}
	h.jsonError(w, message, status)
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, app.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, app.ErrNotSubscribed):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, app.ErrQueueFull):
		return http.StatusTooManyRequests, err.Error()
	case errors.Is(err, indicators.ErrInsufficientData):
		return http.StatusUnprocessableEntity, msgInsufficientData
	case errors.Is(err, indicators.ErrMalformedInput):
		return http.StatusUnprocessableEntity, msgMalformedInput
	case errors.Is(err, services.ErrDataUnavailable):
		return http.StatusBadGateway, msgFetchFailed
	case errors.Is(err, app.ErrNotConfigured), errors.Is(err, tracker.ErrNotRunning):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

func (h *Handler) jsonResponse(w http.ResponseWriter, data any) {
	h.writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data, Timestamp: time.Now().UnixMilli()})
}

func (h *Handler) jsonCachedResponse(w http.ResponseWriter, data any, cached bool) {
	h.writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data, Cached: &cached, Timestamp: time.Now().UnixMilli()})
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, APIResponse{Success: false, Error: message, Timestamp: time.Now().UnixMilli()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		observability.Warn("failed to encode response", "error", err)
	}
}
