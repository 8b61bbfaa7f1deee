package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"crypto-dashboard/indicators"
	"crypto-dashboard/models"
	"crypto-dashboard/observability"
	"crypto-dashboard/services"
)

// Poll outcomes recorded in the tracker poll metric
const (
	pollStatusUpdated   = "updated"
	pollStatusUnchanged = "unchanged"
	pollStatusError     = "error"
)

// SessionConfig tunes a live session
type SessionConfig struct {
	// PollLimit is how many trailing candles one poll fetches
	PollLimit int
	// FetchTimeout bounds each call to the candle source
	FetchTimeout time.Duration
	// HistoryLength caps every reconstructed chart series
	HistoryLength int
}

// DefaultSessionConfig returns the polling defaults
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		PollLimit:     5,
		FetchTimeout:  10 * time.Second,
		HistoryLength: indicators.DefaultHistoryLength,
	}
}

// Session keeps a live candle window for one symbol and interval together
// with its latest snapshot and chart history. All methods are safe for
// concurrent use.
type Session struct {
	symbol   string
	interval models.TimeInterval
	source   services.CandleSource
	calc     *indicators.Calculator
	cfg      SessionConfig
	log      *slog.Logger

	mu        sync.RWMutex
	window    *Window
	snapshot  *models.IndicatorSnapshot
	history   models.IndicatorHistory
	updatedAt time.Time
	lastErr   error
}

// NewSession creates an empty session. Call Seed or Bootstrap before use.
func NewSession(symbol string, interval models.TimeInterval, source services.CandleSource, calc *indicators.Calculator, cfg SessionConfig) *Session {
	def := DefaultSessionConfig()
	if cfg.PollLimit <= 0 {
		cfg.PollLimit = def.PollLimit
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if cfg.HistoryLength <= 0 {
		cfg.HistoryLength = def.HistoryLength
	}

	return &Session{
		symbol:   symbol,
		interval: interval,
		source:   source,
		calc:     calc,
		cfg:      cfg,
		log:      observability.WithSubscription(symbol, string(interval)),
		window:   NewWindow(MaxCandles),
		history:  models.EmptyHistory(),
	}
}

// Symbol returns the session's trading pair
func (s *Session) Symbol() string { return s.symbol }

// Interval returns the session's candle width
func (s *Session) Interval() models.TimeInterval { return s.interval }

// Bootstrap fetches a full window from the source and seeds the session
func (s *Session) Bootstrap(ctx context.Context) error {
	candles, err := s.fetch(ctx, MaxCandles)
	if err != nil {
		return err
	}
	if len(candles) == 0 {
		return fmt.Errorf("%w: no candles returned for %s %s", indicators.ErrMalformedInput, s.symbol, s.interval)
	}
	s.Seed(candles)
	return nil
}

// Seed replaces the window with candles and recomputes derived state
func (s *Session) Seed(candles []models.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.window.Reset(candles)
	s.recomputeLocked()
}

// Apply merges newer candles and reports whether the window changed
func (s *Session) Apply(candles []models.Candle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.window.Merge(candles) {
		return false
	}
	s.recomputeLocked()
	return true
}

// Poll fetches the most recent candles and applies them. A failed fetch
// keeps the previous snapshot and history.
func (s *Session) Poll(ctx context.Context) error {
	metrics := observability.GetMetrics()

	candles, err := s.fetch(ctx, s.cfg.PollLimit)
	if err != nil {
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()

		metrics.RecordTrackerPoll(string(s.interval), pollStatusError)
		s.log.Warn("poll failed, keeping stale indicators", "error", err)
		return err
	}

	status := pollStatusUnchanged
	if s.Apply(candles) {
		status = pollStatusUpdated
	}
	metrics.RecordTrackerPoll(string(s.interval), status)
	return nil
}

// Consume applies streamed candles until the channel closes or ctx is done
func (s *Session) Consume(ctx context.Context, stream <-chan models.Candle) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-stream:
			if !ok {
				return
			}
			s.Apply([]models.Candle{c})
		}
	}
}

// Snapshot returns the latest aggregate, or nil before the window is full
func (s *Session) Snapshot() *models.IndicatorSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// History returns the chart series rebuilt on the last change
func (s *Session) History() models.IndicatorHistory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history
}

// Candles returns a copy of the live window
func (s *Session) Candles() []models.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.window.Candles()
}

// Status summarizes the session for listing
func (s *Session) Status() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := SessionStatus{
		Symbol:      s.symbol,
		Interval:    s.interval,
		Candles:     s.window.Len(),
		HasSnapshot: s.snapshot != nil,
		UpdatedAt:   s.updatedAt,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// SessionStatus is the externally visible state of a session
type SessionStatus struct {
	Symbol      string              `json:"symbol"`
	Interval    models.TimeInterval `json:"interval"`
	Candles     int                 `json:"candles"`
	HasSnapshot bool                `json:"hasSnapshot"`
	UpdatedAt   time.Time           `json:"updatedAt"`
	LastError   string              `json:"lastError,omitempty"`
}

// recomputeLocked refreshes the snapshot once the window is full and always
// rebuilds the history. Callers hold s.mu.
func (s *Session) recomputeLocked() {
	candles := s.window.Candles()
	s.updatedAt = time.Now()
	s.lastErr = nil

	if len(candles) >= MaxCandles {
		snap, err := s.calc.Calculate(s.symbol, s.interval, candles)
		if err != nil {
			observability.GetMetrics().RecordMalformedInput(string(s.interval))
			s.log.Warn("live window rejected, keeping previous snapshot", "error", err)
			s.lastErr = err
		} else {
			s.snapshot = snap
		}
	}

	s.history = s.calc.History(candles, s.cfg.HistoryLength)
}

func (s *Session) fetch(ctx context.Context, limit int) ([]models.Candle, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()
	return s.source.FetchCandles(ctx, s.symbol, s.interval, limit)
}
