// Package e2e provides end-to-end testing infrastructure for crypto-dashboard.
package e2e

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"crypto-dashboard/agents"
	"crypto-dashboard/cache"
	"crypto-dashboard/config"
	"crypto-dashboard/e2e/mocks"
	"crypto-dashboard/indicators"
	"crypto-dashboard/internal/api"
	"crypto-dashboard/internal/app"
	"crypto-dashboard/repository"
	"crypto-dashboard/services"
	"crypto-dashboard/tracker"
)

// TestHarness wires the real sources, analyst and router against a MockServer.
type TestHarness struct {
	t          *testing.T
	ctx        context.Context
	cancel     context.CancelFunc
	mockServer *mocks.MockServer
	repo       *repository.Repository
	scheduler  *tracker.Scheduler
	app        *app.App
	router     http.Handler
	config     *config.Config
}

// NewTestHarness creates a new test harness. Call Setup before use.
func NewTestHarness(t *testing.T) *TestHarness {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)

	return &TestHarness{
		t:      t,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Setup starts the mock upstreams and builds the application. Postgres is
// used only when E2E_DATABASE_URL is set.
func (h *TestHarness) Setup() error {
	h.mockServer = mocks.NewMockServer()
	h.config = NewConfig(h.mockServer)

	if dbURL := os.Getenv("E2E_DATABASE_URL"); dbURL != "" {
		repo, err := repository.NewRepository(h.ctx, dbURL)
		if err != nil {
			return fmt.Errorf("failed to connect to test database: %w", err)
		}
		if err := repo.Migrate(h.ctx); err != nil {
			repo.Close()
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		h.repo = repo
		h.config.Database.URL = dbURL
		if err := h.ResetDatabase(); err != nil {
			return err
		}
	}

	application, sched, err := Build(h.ctx, h.config, h.repo)
	if err != nil {
		return err
	}
	h.app = application
	h.scheduler = sched

	handler := api.NewHandler(h.app, h.config)
	h.router = api.NewRouter(handler, h.config)

	return nil
}

// Teardown cleans up all test resources.
func (h *TestHarness) Teardown() {
	if h.app != nil {
		h.app.Shutdown(context.Background())
	}

	if h.scheduler != nil {
		h.scheduler.Stop()
	}

	if h.repo != nil {
		if err := h.ResetDatabase(); err != nil {
			h.t.Logf("cleanup failed: %v", err)
		}
		h.repo.Close()
	}

	if h.mockServer != nil {
		h.mockServer.Close()
	}

	if h.cancel != nil {
		h.cancel()
	}
}

// Context returns the test context.
func (h *TestHarness) Context() context.Context {
	return h.ctx
}

// MockServer returns the mock server for configuring responses.
func (h *TestHarness) MockServer() *mocks.MockServer {
	return h.mockServer
}

// Repository returns the test database repository, nil without E2E_DATABASE_URL.
func (h *TestHarness) Repository() *repository.Repository {
	return h.repo
}

// App returns the application instance.
func (h *TestHarness) App() *app.App {
	return h.app
}

// Router returns the HTTP router for making requests.
func (h *TestHarness) Router() http.Handler {
	return h.router
}

// Config returns the test configuration.
func (h *TestHarness) Config() *config.Config {
	return h.config
}

// RequireDatabase skips the calling test when no test database is configured.
func (h *TestHarness) RequireDatabase(t *testing.T) {
	t.Helper()
	if h.repo == nil {
		t.Skip("E2E_DATABASE_URL not set")
	}
}

// DoRequest performs an HTTP request and returns the response.
func (h *TestHarness) DoRequest(method, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

// ResetDatabase clears all test data from the database.
func (h *TestHarness) ResetDatabase() error {
	if h.repo == nil || h.repo.Pool() == nil {
		return nil
	}

	queries := []string{
		"DELETE FROM analyses",
		"DELETE FROM indicator_snapshots",
		"DELETE FROM market_data_cache",
	}
	for _, q := range queries {
		if _, err := h.repo.Pool().Exec(h.ctx, q); err != nil {
			return fmt.Errorf("cleanup query failed: %s: %w", q, err)
		}
	}
	return nil
}

// NewConfig returns a test configuration whose upstreams all point at m.
func NewConfig(m *mocks.MockServer) *config.Config {
	cfg := config.NewTestConfig()
	cfg.Market.Provider = config.ProviderBinance
	cfg.Market.BinanceBaseURL = m.BinanceURL()
	cfg.Market.CoinGeckoBaseURL = m.CoinGeckoURL()
	cfg.Market.FetchTimeoutSeconds = 5
	cfg.LLM.Provider = config.LLMProviderOpenAI
	cfg.OpenAI.APIKey = "e2e-test-key"
	cfg.OpenAI.BaseURL = m.OpenAIURL()
	return cfg
}

// Build assembles the application the way cmd/server does, minus the HTTP
// listener. repo may be nil.
func Build(ctx context.Context, cfg *config.Config, repo *repository.Repository) (*app.App, *tracker.Scheduler, error) {
	source, err := services.NewCandleSource(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create candle source: %w", err)
	}

	calc := indicators.NewCalculator(indicators.Config{
		RSIPeriod:         cfg.Indicators.RSIPeriod,
		MACDFast:          cfg.Indicators.MACDFast,
		MACDSlow:          cfg.Indicators.MACDSlow,
		MACDSignal:        cfg.Indicators.MACDSignal,
		BollingerPeriod:   cfg.Indicators.BollingerPeriod,
		BollingerStdDev:   cfg.Indicators.BollingerStdDev,
		VolumeProfileBins: cfg.Indicators.VolumeProfileBins,
	})

	sched := tracker.NewScheduler(source, nil, calc, tracker.SchedulerConfig{
		PollSchedule: cfg.Tracker.PollSchedule,
		Session: tracker.SessionConfig{
			PollLimit:     cfg.Tracker.PollLimit,
			FetchTimeout:  cfg.FetchTimeout(),
			HistoryLength: cfg.Indicators.HistoryLength,
		},
	})
	if err := sched.Start(); err != nil {
		return nil, nil, fmt.Errorf("failed to start tracker: %w", err)
	}

	var store cache.Store = cache.NewMemoryStore()
	if repo != nil {
		store = repo
	}

	deps := app.Dependencies{
		Source:     source,
		Calculator: calc,
		Snapshots:  cache.NewSnapshotCache(store, cache.WithStoreTimeout(cfg.StoreTimeout())),
		Tracker:    sched,
		Pairs: services.NewPairDirectory(
			cfg.Market.CoinGeckoBaseURL,
			cfg.Market.CoinGeckoAPIKey,
			time.Duration(cfg.Cache.PairDirectoryTTLHours)*time.Hour,
			nil,
		),
	}
	if repo != nil {
		deps.Repo = repo
	}

	llm, err := services.NewLLMService(ctx, cfg)
	if err != nil {
		sched.Stop()
		return nil, nil, fmt.Errorf("failed to create LLM service: %w", err)
	}
	if llm != nil {
		deps.Analyst = agents.NewTechnicalAnalyst(llm)
	}

	application := app.New(cfg, deps)
	application.Startup(ctx)
	return application, sched, nil
}
