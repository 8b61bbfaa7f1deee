// Package main runs the crypto dashboard HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto-dashboard/agents"
	"crypto-dashboard/cache"
	"crypto-dashboard/config"
	"crypto-dashboard/indicators"
	"crypto-dashboard/internal/api"
	"crypto-dashboard/internal/app"
	"crypto-dashboard/observability"
	"crypto-dashboard/repository"
	"crypto-dashboard/services"
	"crypto-dashboard/tracker"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

// CleanupSchedule runs retention cleanup for stored snapshots and candle windows
const CleanupSchedule = "@hourly"

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLoggerWithLevel(cfg.Log.Production, observability.ParseLevel(cfg.Log.Level))
	observability.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		observability.Fatal("server error", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	repo := connectDatabase(ctx, cfg)
	if repo != nil {
		defer repo.Close()
	}

	store, closeStore, err := newSnapshotStore(ctx, cfg, repo)
	if err != nil {
		return err
	}
	defer closeStore()

	source, err := services.NewCandleSource(cfg)
	if err != nil {
		return fmt.Errorf("failed to create candle source: %w", err)
	}

	calc := indicators.NewCalculator(indicatorConfig(cfg))

	var streamer tracker.Streamer
	if cfg.Tracker.Streaming {
		streamer = services.NewBinanceStream(cfg.Market.BinanceStreamURL)
	}
	sched := tracker.NewScheduler(source, streamer, calc, tracker.SchedulerConfig{
		PollSchedule: cfg.Tracker.PollSchedule,
		Session: tracker.SessionConfig{
			PollLimit:     cfg.Tracker.PollLimit,
			FetchTimeout:  cfg.FetchTimeout(),
			HistoryLength: cfg.Indicators.HistoryLength,
		},
	})
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start tracker: %w", err)
	}
	defer sched.Stop()

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
		observability.Warn("failed to initialize LLM provider, commentary disabled", "provider", cfg.LLM.Provider, "error", err)
	} else if llm != nil {
		deps.Analyst = agents.NewTechnicalAnalyst(llm)
	} else {
		observability.Warn("no LLM provider configured, commentary disabled")
	}

	application := app.New(cfg, deps)
	application.Startup(ctx)

	watchlist, err := config.LoadWatchlist(cfg.Tracker.WatchlistFile)
	if err != nil {
		observability.Warn("failed to load watchlist", "file", cfg.Tracker.WatchlistFile, "error", err)
	} else if len(watchlist.Subscriptions) > 0 {
		n := application.SubscribeWatchlist(watchlist)
		observability.Info("watchlist loaded", "subscribed", n, "entries", len(watchlist.Subscriptions))
	}

	cleanup, err := newCleanupScheduler(ctx, cfg, repo)
	if err != nil {
		return err
	}
	if cleanup != nil {
		cleanup.Start()
		defer func() { <-cleanup.Stop().Done() }()
	}

	handler := api.NewHandler(application, cfg)
	server := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      api.NewRouter(handler, cfg),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.RequestTimeoutSec+5) * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		observability.Info("starting server",
			"port", cfg.HTTP.Port,
			"market_data", source.Name(),
			"cache", deps.Snapshots.Backend(),
			"llm", cfg.LLM.Provider,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	observability.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	application.Shutdown(shutdownCtx)
	observability.Info("server stopped")
	return nil
}

// connectDatabase opens and migrates Postgres. Failures degrade to running without a database.
func connectDatabase(ctx context.Context, cfg *config.Config) *repository.Repository {
	if !cfg.HasDatabase() {
		return nil
	}

	repo, err := repository.NewRepository(ctx, cfg.Database.URL)
	if err != nil {
		observability.Warn("failed to initialize database, running without persistence", "error", err)
		return nil
	}
	if err := repo.Migrate(ctx); err != nil {
		observability.Warn("failed to migrate database, running without persistence", "error", err)
		repo.Close()
		return nil
	}

	observability.Info("connected to database")
	return repo
}

// newSnapshotStore picks the snapshot backend named by CACHE_BACKEND. A
// postgres backend without a live repository falls back to memory.
func newSnapshotStore(ctx context.Context, cfg *config.Config, repo *repository.Repository) (cache.Store, func(), error) {
	noop := func() {}

	switch cfg.Cache.Backend {
	case config.CacheBackendPostgres:
		if repo == nil {
			observability.Warn("postgres snapshot store unavailable, using memory")
			return cache.NewMemoryStore(), noop, nil
		}
		return repo, noop, nil
	case config.CacheBackendRedis:
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, noop, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		store := cache.NewRedisStore(client, cfg.Retention())

		pingCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout())
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			observability.Warn("redis unreachable at startup, lookups will degrade to recomputation", "error", err)
		}
		return store, func() { _ = client.Close() }, nil
	case config.CacheBackendNone:
		return nil, noop, nil
	default:
		return cache.NewMemoryStore(), noop, nil
	}
}

// newCleanupScheduler registers retention cleanup when a database is available
func newCleanupScheduler(ctx context.Context, cfg *config.Config, repo *repository.Repository) (*cron.Cron, error) {
	if repo == nil {
		return nil, nil
	}

	c := cron.New()
	_, err := c.AddFunc(CleanupSchedule, func() {
		runCleanup(ctx, repo, cfg.Retention())
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register cleanup job: %w", err)
	}
	return c, nil
}

type cleaner interface {
	CleanExpiredSnapshots(ctx context.Context, retention time.Duration) (int64, error)
	CleanExpiredCache(ctx context.Context) (int64, error)
}

func runCleanup(ctx context.Context, repo cleaner, retention time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	snapshots, err := repo.CleanExpiredSnapshots(ctx, retention)
	if err != nil {
		observability.Warn("snapshot cleanup failed", "error", err)
	}
	candles, err := repo.CleanExpiredCache(ctx)
	if err != nil {
		observability.Warn("candle cache cleanup failed", "error", err)
	}
	observability.Debug("retention cleanup complete", "snapshots", snapshots, "candle_windows", candles)
}

func indicatorConfig(cfg *config.Config) indicators.Config {
	return indicators.Config{
		RSIPeriod:         cfg.Indicators.RSIPeriod,
		MACDFast:          cfg.Indicators.MACDFast,
		MACDSlow:          cfg.Indicators.MACDSlow,
		MACDSignal:        cfg.Indicators.MACDSignal,
		BollingerPeriod:   cfg.Indicators.BollingerPeriod,
		BollingerStdDev:   cfg.Indicators.BollingerStdDev,
		VolumeProfileBins: cfg.Indicators.VolumeProfileBins,
	}
}
