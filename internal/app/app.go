package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crypto-dashboard/cache"
	"crypto-dashboard/config"
	"crypto-dashboard/indicators"
	"crypto-dashboard/models"
	"crypto-dashboard/observability"
	"crypto-dashboard/services"
	"crypto-dashboard/tracker"

	"golang.org/x/sync/errgroup"
)

const (
	// IndicatorCandles is how many candles a one-off snapshot is computed from
	IndicatorCandles = 200
	// IndicatorTTL is how long a stored snapshot is served without recomputing
	IndicatorTTL = 60 * time.Second
	// DefaultHistoricalLimit applies when a historical request names no limit
	DefaultHistoricalLimit = 100
	// MaxHistoricalLimit is the most candles one historical request may ask for
	MaxHistoricalLimit = 1000
	// DefaultAnalysisHistoryLimit applies when an analysis history request names no limit
	DefaultAnalysisHistoryLimit = 10
	// MaxPriceSymbols caps a multi-symbol price request
	MaxPriceSymbols = 20
)

var (
	// ErrInvalidRequest marks a missing or unsupported symbol, interval or limit
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotConfigured means the operation needs a component that is not wired
	ErrNotConfigured = errors.New("not configured")
	// ErrQueueFull means every analysis slot is taken
	ErrQueueFull = errors.New("analysis queue full, too many concurrent requests - try again later")
	// ErrNotSubscribed means no live session exists for the pair
	ErrNotSubscribed = errors.New("subscription not found")
)

// RepositoryInterface defines the repository operations needed by App
type RepositoryInterface interface {
	Close()
	Health(ctx context.Context) error
	GetCachedCandles(ctx context.Context, symbol string, interval models.TimeInterval, limit int) ([]models.Candle, error)
	SetCachedCandles(ctx context.Context, symbol string, interval models.TimeInterval, limit int, candles []models.Candle, ttl time.Duration) error
	InvalidateCandles(ctx context.Context, symbol string, interval models.TimeInterval) error
	CreateAnalysis(ctx context.Context, c *models.Commentary) error
	GetAnalyses(ctx context.Context, symbol string, limit int) ([]models.Commentary, error)
	GetLatestAnalysis(ctx context.Context, symbol string, interval models.TimeInterval, now time.Time) (*models.Commentary, error)
}

// Tracker manages live subscriptions
type Tracker interface {
	Subscribe(ctx context.Context, symbol string, interval models.TimeInterval) (*tracker.Session, error)
	Unsubscribe(symbol string, interval models.TimeInterval) bool
	Session(symbol string, interval models.TimeInterval) (*tracker.Session, bool)
	Subscriptions() []tracker.SessionStatus
}

// PairSearcher looks up tradable pairs
type PairSearcher interface {
	Search(ctx context.Context, query string) *services.PairListing
}

// Analyst turns a ticker and snapshot into commentary
type Analyst interface {
	Provider() string
	Analyze(ctx context.Context, price *models.CryptoPrice, snapshot *models.IndicatorSnapshot, interval models.TimeInterval) (*models.Commentary, error)
}

// Dependencies are the components App is built from. Source and Calculator
// are required; every other field may be nil.
type Dependencies struct {
	Repo       RepositoryInterface
	Source     services.CandleSource
	Calculator *indicators.Calculator
	Snapshots  *cache.SnapshotCache
	Tracker    Tracker
	Pairs      PairSearcher
	Analyst    Analyst
}

// IndicatorResult is a snapshot together with where it came from
type IndicatorResult struct {
	Snapshot *models.IndicatorSnapshot
	Cached   bool
}

// HistoryResult is a reconstructed chart history
type HistoryResult struct {
	Symbol   string                  `json:"symbol"`
	Interval models.TimeInterval     `json:"interval"`
	Live     bool                    `json:"live"`
	History  models.IndicatorHistory `json:"history"`
}

// HistoricalResult is a candle window together with where it came from
type HistoricalResult struct {
	Data   *models.HistoricalData
	Cached bool
}

// AnalysisResult is a commentary together with whether it was reused
type AnalysisResult struct {
	Commentary *models.Commentary
	Cached     bool
}

// App holds the indicator service dependencies behind interfaces for testability
type App struct {
	ctx         context.Context
	cfg         *config.Config
	repo        RepositoryInterface
	source      services.CandleSource
	calc        *indicators.Calculator
	snapshots   *cache.SnapshotCache
	tracker     Tracker
	pairs       PairSearcher
	analyst     Analyst
	analysisSem chan struct{}
	now         func() time.Time
}

// New creates a new App
func New(cfg *config.Config, deps Dependencies) *App {
	snapshots := deps.Snapshots
	if snapshots == nil {
		snapshots = cache.NewSnapshotCache(nil)
	}
	calc := deps.Calculator
	if calc == nil {
		calc = indicators.NewCalculator(indicators.DefaultConfig())
	}
	return &App{
		ctx:         context.Background(),
		cfg:         cfg,
		repo:        deps.Repo,
		source:      deps.Source,
		calc:        calc,
		snapshots:   snapshots,
		tracker:     deps.Tracker,
		pairs:       deps.Pairs,
		analyst:     deps.Analyst,
		analysisSem: make(chan struct{}, cfg.LLM.ConcurrencyLimit),
		now:         time.Now,
	}
}

// Startup is called when the server starts
func (a *App) Startup(ctx context.Context) {
	a.ctx = ctx
}

// Shutdown is called when the server is closing
func (a *App) Shutdown(ctx context.Context) {
	if a.repo != nil {
		a.repo.Close()
	}
}

// Repo returns the repository for health checks
func (a *App) Repo() RepositoryInterface {
	return a.repo
}

// SourceName names the configured candle source
func (a *App) SourceName() string {
	if a.source == nil {
		return "none"
	}
	return a.source.Name()
}

// CacheBackend names the snapshot store
func (a *App) CacheBackend() string {
	return a.snapshots.Backend()
}

// HasAnalyst reports whether commentary can be generated
func (a *App) HasAnalyst() bool {
	return a.analyst != nil
}

// GetIndicators returns the snapshot for symbol and interval, served from the
// snapshot store while it is younger than IndicatorTTL.
func (a *App) GetIndicators(ctx context.Context, symbol string, interval models.TimeInterval) (*IndicatorResult, error) {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if !interval.Valid() {
		return nil, fmt.Errorf("%w: unsupported interval %q", ErrInvalidRequest, interval)
	}

	snap, cached, err := a.snapshots.GetOrCompute(ctx, symbol, interval, IndicatorTTL, func(ctx context.Context) (*models.IndicatorSnapshot, error) {
		return a.computeSnapshot(ctx, symbol, interval)
	})
	if err != nil {
		return nil, err
	}
	return &IndicatorResult{Snapshot: snap, Cached: cached}, nil
}

func (a *App) computeSnapshot(ctx context.Context, symbol string, interval models.TimeInterval) (*models.IndicatorSnapshot, error) {
	candles, err := a.fetchCandles(ctx, symbol, interval, IndicatorCandles)
	if err != nil {
		return nil, err
	}

	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	snap, err := a.calc.Calculate(symbol, interval, candles)
	switch {
	case errors.Is(err, indicators.ErrInsufficientData):
		metrics.RecordInsufficientData(string(interval))
		timer.ObserveIndicators(string(interval), "insufficient")
		return nil, err
	case errors.Is(err, indicators.ErrMalformedInput):
		metrics.RecordMalformedInput(string(interval))
		timer.ObserveIndicators(string(interval), "malformed")
		return nil, err
	case err != nil:
		timer.ObserveIndicators(string(interval), "error")
		return nil, err
	}
	timer.ObserveIndicators(string(interval), "success")

	observability.WithSubscription(symbol, string(interval)).Debug("indicators computed",
		"candles", len(candles),
		"rsi", snap.RSI.Value,
	)
	return snap, nil
}

// GetHistory returns chart history for symbol and interval. A live session
// serves its window; otherwise the history is rebuilt from a fresh fetch.
func (a *App) GetHistory(ctx context.Context, symbol string, interval models.TimeInterval) (*HistoryResult, error) {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if !interval.Valid() {
		return nil, fmt.Errorf("%w: unsupported interval %q", ErrInvalidRequest, interval)
	}

	if a.tracker != nil {
		if session, ok := a.tracker.Session(symbol, interval); ok {
			return &HistoryResult{Symbol: symbol, Interval: interval, Live: true, History: session.History()}, nil
		}
	}

	candles, err := a.fetchCandles(ctx, symbol, interval, tracker.MaxCandles)
	if err != nil {
		return nil, err
	}
	if err := indicators.Validate(candles); err != nil {
		return nil, err
	}

	return &HistoryResult{
		Symbol:   symbol,
		Interval: interval,
		History:  a.calc.History(candles, a.cfg.Indicators.HistoryLength),
	}, nil
}

// GetHistorical returns up to limit candles, reusing the candle cache when a
// database is configured. Cache failures fall through to the source.
func (a *App) GetHistorical(ctx context.Context, symbol string, interval models.TimeInterval, limit int) (*HistoricalResult, error) {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if !interval.Valid() {
		return nil, fmt.Errorf("%w: unsupported interval %q", ErrInvalidRequest, interval)
	}
	if limit <= 0 {
		limit = DefaultHistoricalLimit
	}
	if limit > MaxHistoricalLimit {
		return nil, fmt.Errorf("%w: limit must be at most %d", ErrInvalidRequest, MaxHistoricalLimit)
	}

	log := observability.WithSubscription(symbol, string(interval))

	if a.repo != nil {
		storeCtx, cancel := context.WithTimeout(ctx, a.cfg.StoreTimeout())
		candles, err := a.repo.GetCachedCandles(storeCtx, symbol, interval, limit)
		cancel()
		if err != nil {
			log.Warn("candle cache lookup failed, fetching from source", "error", err)
		} else if len(candles) > 0 {
			return &HistoricalResult{
				Data:   &models.HistoricalData{Symbol: symbol, Interval: interval, Data: candles},
				Cached: true,
			}, nil
		}
	}

	candles, err := a.fetchCandles(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}

	if a.repo != nil {
		storeCtx, cancel := context.WithTimeout(ctx, a.cfg.StoreTimeout())
		if err := a.repo.SetCachedCandles(storeCtx, symbol, interval, limit, candles, a.cfg.CandleCacheTTL()); err != nil {
			log.Warn("failed to cache candles", "error", err)
		}
		cancel()
	}

	return &HistoricalResult{
		Data: &models.HistoricalData{Symbol: symbol, Interval: interval, Data: candles},
	}, nil
}

// GetPrice returns the 24h ticker for symbol
func (a *App) GetPrice(ctx context.Context, symbol string) (*models.CryptoPrice, error) {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if a.source == nil {
		return nil, fmt.Errorf("candle source %w", ErrNotConfigured)
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout())
	defer cancel()
	return a.source.FetchPrice(ctx, symbol)
}

// GetPrices fetches several tickers concurrently, preserving input order.
// Any failure fails the whole request.
func (a *App) GetPrices(ctx context.Context, symbols []string) ([]*models.CryptoPrice, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: at least one symbol is required", ErrInvalidRequest)
	}
	if len(symbols) > MaxPriceSymbols {
		return nil, fmt.Errorf("%w: at most %d symbols per request", ErrInvalidRequest, MaxPriceSymbols)
	}

	prices := make([]*models.CryptoPrice, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	for i, symbol := range symbols {
		g.Go(func() error {
			price, err := a.GetPrice(gctx, symbol)
			if err != nil {
				return err
			}
			prices[i] = price
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return prices, nil
}

// SearchPairs filters the trading pair directory
func (a *App) SearchPairs(ctx context.Context, query string) (*services.PairListing, error) {
	if a.pairs == nil {
		return nil, fmt.Errorf("pair directory %w", ErrNotConfigured)
	}
	return a.pairs.Search(ctx, strings.TrimSpace(query)), nil
}

// Analyze generates commentary for symbol and interval. An unexpired stored
// commentary is reused. Requests beyond the concurrency limit are rejected.
func (a *App) Analyze(ctx context.Context, symbol string, interval models.TimeInterval) (*AnalysisResult, error) {
	if a.analyst == nil {
		return nil, fmt.Errorf("llm provider %w", ErrNotConfigured)
	}
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if interval == "" {
		interval = models.DefaultInterval
	}
	if !interval.Valid() {
		return nil, fmt.Errorf("%w: unsupported interval %q", ErrInvalidRequest, interval)
	}

	select {
	case a.analysisSem <- struct{}{}:
		defer func() { <-a.analysisSem }()
	default:
		return nil, ErrQueueFull
	}

	metrics := observability.GetMetrics()
	metrics.RecordAnalysisRequest(symbol)
	timer := metrics.NewTimer()
	log := observability.WithSubscription(symbol, string(interval))

	if previous := a.latestAnalysis(ctx, symbol, interval); previous != nil {
		timer.ObserveAnalysis(symbol, "cached")
		return &AnalysisResult{Commentary: previous, Cached: true}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.AnalysisTimeout())
	defer cancel()

	var (
		price *models.CryptoPrice
		snap  *IndicatorResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		price, err = a.GetPrice(gctx, symbol)
		return err
	})
	g.Go(func() error {
		var err error
		snap, err = a.GetIndicators(gctx, symbol, interval)
		return err
	})
	if err := g.Wait(); err != nil {
		metrics.RecordAnalysisError(symbol, "market_data")
		timer.ObserveAnalysis(symbol, "error")
		return nil, err
	}

	commentary, err := a.analyst.Analyze(ctx, price, snap.Snapshot, interval)
	if err != nil {
		metrics.RecordAnalysisError(symbol, "llm")
		timer.ObserveAnalysis(symbol, "error")
		log.Error("analysis failed", "provider", a.analyst.Provider(), "error", err)
		return nil, err
	}

	if a.repo != nil {
		if err := a.repo.CreateAnalysis(ctx, commentary); err != nil {
			metrics.RecordAnalysisError(symbol, "persist")
			log.Warn("failed to persist analysis", "error", err)
		}
	}

	timer.ObserveAnalysis(symbol, "success")
	log.Info("analysis complete",
		"signal", commentary.Signal,
		"confidence", commentary.Confidence,
		"duration", timer.Duration(),
	)
	return &AnalysisResult{Commentary: commentary}, nil
}

func (a *App) latestAnalysis(ctx context.Context, symbol string, interval models.TimeInterval) *models.Commentary {
	if a.repo == nil {
		return nil
	}
	storeCtx, cancel := context.WithTimeout(ctx, a.cfg.StoreTimeout())
	defer cancel()

	c, err := a.repo.GetLatestAnalysis(storeCtx, symbol, interval, a.now())
	if err != nil {
		observability.WithSubscription(symbol, string(interval)).Warn("analysis lookup failed", "error", err)
		return nil
	}
	return c
}

// GetAnalysisHistory returns the newest stored commentaries for symbol
func (a *App) GetAnalysisHistory(ctx context.Context, symbol string, limit int) ([]models.Commentary, error) {
	if a.repo == nil {
		return nil, fmt.Errorf("database %w", ErrNotConfigured)
	}
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultAnalysisHistoryLimit
	}
	return a.repo.GetAnalyses(ctx, symbol, limit)
}

// Subscribe starts live tracking for symbol and interval
func (a *App) Subscribe(ctx context.Context, symbol string, interval models.TimeInterval) (tracker.SessionStatus, error) {
	if a.tracker == nil {
		return tracker.SessionStatus{}, fmt.Errorf("tracker %w", ErrNotConfigured)
	}
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return tracker.SessionStatus{}, err
	}
	if !interval.Valid() {
		return tracker.SessionStatus{}, fmt.Errorf("%w: unsupported interval %q", ErrInvalidRequest, interval)
	}

	session, err := a.tracker.Subscribe(ctx, symbol, interval)
	if err != nil {
		return tracker.SessionStatus{}, err
	}
	return session.Status(), nil
}

// SubscribeWatchlist subscribes every watchlist entry using the startup
// context. Failed entries are logged and skipped; the number of live
// subscriptions is returned.
func (a *App) SubscribeWatchlist(wl *config.Watchlist) int {
	if wl == nil || a.tracker == nil {
		return 0
	}

	subscribed := 0
	for _, entry := range wl.Subscriptions {
		if _, err := a.Subscribe(a.ctx, entry.Symbol, models.TimeInterval(entry.Interval)); err != nil {
			observability.WithSubscription(entry.Symbol, entry.Interval).Warn("watchlist subscription failed", "error", err)
			continue
		}
		subscribed++
	}
	return subscribed
}

// Unsubscribe stops live tracking for symbol and interval and drops its
// cached candle windows
func (a *App) Unsubscribe(ctx context.Context, symbol string, interval models.TimeInterval) error {
	if a.tracker == nil {
		return fmt.Errorf("tracker %w", ErrNotConfigured)
	}
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return err
	}
	if !a.tracker.Unsubscribe(symbol, interval) {
		return fmt.Errorf("%w: %s %s", ErrNotSubscribed, symbol, interval)
	}

	// untracked pairs should not keep serving cached windows
	if a.repo != nil {
		storeCtx, cancel := context.WithTimeout(ctx, a.cfg.StoreTimeout())
		if err := a.repo.InvalidateCandles(storeCtx, symbol, interval); err != nil {
			observability.WithSubscription(symbol, string(interval)).Warn("failed to invalidate cached candles", "error", err)
		}
		cancel()
	}
	return nil
}

// Subscriptions lists the live sessions
func (a *App) Subscriptions() []tracker.SessionStatus {
	if a.tracker == nil {
		return []tracker.SessionStatus{}
	}
	return a.tracker.Subscriptions()
}

// fetchCandles calls the source under FETCH_TIMEOUT. An empty response is malformed.
func (a *App) fetchCandles(ctx context.Context, symbol string, interval models.TimeInterval, limit int) ([]models.Candle, error) {
	if a.source == nil {
		return nil, fmt.Errorf("candle source %w", ErrNotConfigured)
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout())
	defer cancel()

	candles, err := a.source.FetchCandles(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: no candles returned for %s %s", indicators.ErrMalformedInput, symbol, interval)
	}
	return candles, nil
}

func normalizeSymbol(symbol string) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", fmt.Errorf("%w: symbol parameter is required", ErrInvalidRequest)
	}
	for _, r := range symbol {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", fmt.Errorf("%w: invalid symbol %q", ErrInvalidRequest, symbol)
		}
	}
	return symbol, nil
}

// AnalysisSemCapacity returns the capacity of the analysis semaphore (for testing)
func (a *App) AnalysisSemCapacity() int {
	return cap(a.analysisSem)
}
