package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Market data provider names accepted by MARKET_DATA_PROVIDER
const (
	ProviderBinance = "binance"
	ProviderCoinCap = "coincap"
	ProviderAlpaca  = "alpaca"
)

// LLM provider names accepted by LLM_PROVIDER
const (
	LLMProviderBedrock = "bedrock"
	LLMProviderOpenAI  = "openai"
)

// Snapshot store backends accepted by CACHE_BACKEND
const (
	CacheBackendPostgres = "postgres"
	CacheBackendRedis    = "redis"
	CacheBackendMemory   = "memory"
	CacheBackendNone     = "none"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig

	// Market data provider configuration
	Market MarketConfig
	Alpaca AlpacaConfig

	// Indicator engine parameters
	Indicators IndicatorsConfig

	// Snapshot cache configuration
	Cache CacheConfig

	// Live subscription tracking
	Tracker TrackerConfig

	// LLM commentary configuration
	LLM    LLMConfig
	OpenAI OpenAIConfig
	AWS    AWSConfig

	HTTP HTTPConfig
	Log  LogConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL string
}

// MarketConfig selects and tunes the candle source
type MarketConfig struct {
	Provider            string
	BinanceBaseURL      string
	BinanceStreamURL    string
	CoinCapBaseURL      string
	CoinGeckoBaseURL    string
	CoinGeckoAPIKey     string
	FetchTimeoutSeconds int
	HistoricalLimit     int
}

// AlpacaConfig holds Alpaca market data credentials
type AlpacaConfig struct {
	APIKey    string
	APISecret string
}

// IndicatorsConfig holds indicator periods
type IndicatorsConfig struct {
	RSIPeriod         int
	MACDFast          int
	MACDSlow          int
	MACDSignal        int
	BollingerPeriod   int
	BollingerStdDev   float64
	VolumeProfileBins int
	HistoryLength     int
}

// CacheConfig holds snapshot and candle cache configuration
type CacheConfig struct {
	Backend               string
	StoreTimeoutSeconds   int
	RetentionHours        int
	CandleCacheSeconds    int
	PairDirectoryTTLHours int
}

// TrackerConfig holds subscription polling configuration
type TrackerConfig struct {
	PollSchedule  string
	PollLimit     int
	Streaming     bool
	WatchlistFile string
}

// LLMConfig selects the commentary provider
type LLMConfig struct {
	Provider         string
	TimeoutSeconds   int
	ConcurrencyLimit int
}

// OpenAIConfig holds OpenAI API configuration
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string // empty uses the SDK default; set for OpenAI-compatible gateways
	Model     string
	MaxTokens int
}

// AWSConfig holds Bedrock configuration
type AWSConfig struct {
	Region           string
	BedrockModelID   string
	BedrockMaxTokens int
	AnthropicVersion string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port               string
	CORSAllowedOrigins string
	RequestTimeoutSec  int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string
	Production bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Market: MarketConfig{
			Provider:            strings.ToLower(getEnvString("MARKET_DATA_PROVIDER", ProviderBinance)),
			BinanceBaseURL:      getEnvString("BINANCE_BASE_URL", "https://api.binance.com/api/v3"),
			BinanceStreamURL:    getEnvString("BINANCE_STREAM_URL", "wss://stream.binance.com:9443/ws"),
			CoinCapBaseURL:      getEnvString("COINCAP_BASE_URL", "https://api.coincap.io/v2"),
			CoinGeckoBaseURL:    getEnvString("COINGECKO_BASE_URL", "https://api.coingecko.com/api/v3"),
			CoinGeckoAPIKey:     os.Getenv("COINGECKO_API_KEY"),
			FetchTimeoutSeconds: getEnvInt("FETCH_TIMEOUT_SECONDS", 10),
			HistoricalLimit:     getEnvInt("HISTORICAL_LIMIT", 200),
		},
		Alpaca: AlpacaConfig{
			APIKey:    os.Getenv("ALPACA_API_KEY"),
			APISecret: os.Getenv("ALPACA_API_SECRET"),
		},
		Indicators: IndicatorsConfig{
			RSIPeriod:         getEnvInt("RSI_PERIOD", 14),
			MACDFast:          getEnvInt("MACD_FAST_PERIOD", 12),
			MACDSlow:          getEnvInt("MACD_SLOW_PERIOD", 26),
			MACDSignal:        getEnvInt("MACD_SIGNAL_PERIOD", 9),
			BollingerPeriod:   getEnvInt("BOLLINGER_PERIOD", 20),
			BollingerStdDev:   getEnvFloatRange("BOLLINGER_STD_DEV", 2.0, 0.1, 10),
			VolumeProfileBins: getEnvInt("VOLUME_PROFILE_BINS", 20),
			HistoryLength:     getEnvInt("INDICATOR_HISTORY_LENGTH", 100),
		},
		Cache: CacheConfig{
			Backend:               strings.ToLower(getEnvString("CACHE_BACKEND", "")),
			StoreTimeoutSeconds:   getEnvInt("CACHE_STORE_TIMEOUT_SECONDS", 2),
			RetentionHours:        getEnvInt("CACHE_RETENTION_HOURS", 24),
			CandleCacheSeconds:    getEnvInt("CACHE_DURATION", 60),
			PairDirectoryTTLHours: getEnvInt("PAIR_DIRECTORY_TTL_HOURS", 1),
		},
		Tracker: TrackerConfig{
			PollSchedule:  getEnvString("TRACKER_POLL_SCHEDULE", "@every 60s"),
			PollLimit:     getEnvInt("TRACKER_POLL_LIMIT", 5),
			Streaming:     getEnvBool("TRACKER_STREAMING", false),
			WatchlistFile: os.Getenv("WATCHLIST_FILE"),
		},
		LLM: LLMConfig{
			Provider:         strings.ToLower(getEnvString("LLM_PROVIDER", "")),
			TimeoutSeconds:   getEnvInt("ANALYSIS_TIMEOUT_SECONDS", 30),
			ConcurrencyLimit: getEnvInt("ANALYSIS_CONCURRENCY_LIMIT", 3),
		},
		OpenAI: OpenAIConfig{
			APIKey:    os.Getenv("OPENAI_API_KEY"),
			BaseURL:   os.Getenv("OPENAI_BASE_URL"),
			Model:     getEnvString("OPENAI_MODEL", "gpt-4o"),
			MaxTokens: getEnvInt("OPENAI_MAX_TOKENS", 4096),
		},
		AWS: AWSConfig{
			Region:           getEnvString("AWS_REGION", "us-east-1"),
			BedrockModelID:   os.Getenv("BEDROCK_MODEL_ID"),
			BedrockMaxTokens: getEnvInt("BEDROCK_MAX_TOKENS", 4096),
			AnthropicVersion: getEnvString("BEDROCK_ANTHROPIC_VERSION", "bedrock-2023-05-31"),
		},
		HTTP: HTTPConfig{
			Port:               getEnvString("PORT", "8080"),
			CORSAllowedOrigins: getEnvString("CORS_ALLOWED_ORIGINS", "*"),
			RequestTimeoutSec:  getEnvInt("HTTP_REQUEST_TIMEOUT_SECONDS", 60),
		},
		Log: LogConfig{
			Level:      getEnvString("LOG_LEVEL", "info"),
			Production: getEnvString("APP_ENV", "development") == "production",
		},
	}

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = cfg.defaultCacheBackend()
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = cfg.defaultLLMProvider()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Market.Provider {
	case ProviderBinance, ProviderCoinCap:
	case ProviderAlpaca:
		if !c.HasAlpaca() {
			return fmt.Errorf("MARKET_DATA_PROVIDER=alpaca requires ALPACA_API_KEY and ALPACA_API_SECRET")
		}
	default:
		return fmt.Errorf("MARKET_DATA_PROVIDER must be one of binance, coincap, alpaca; got %q", c.Market.Provider)
	}
	// the kline stream is Binance's, so its symbols and candles must match the poll source
	if c.Tracker.Streaming && c.Market.Provider != ProviderBinance {
		return fmt.Errorf("TRACKER_STREAMING requires MARKET_DATA_PROVIDER=binance, got %q", c.Market.Provider)
	}

	switch c.Cache.Backend {
	case CacheBackendMemory, CacheBackendNone:
	case CacheBackendPostgres:
		if !c.HasDatabase() {
			return fmt.Errorf("CACHE_BACKEND=postgres requires DATABASE_URL")
		}
	case CacheBackendRedis:
		if !c.HasRedis() {
			return fmt.Errorf("CACHE_BACKEND=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("CACHE_BACKEND must be one of postgres, redis, memory, none; got %q", c.Cache.Backend)
	}

	switch c.LLM.Provider {
	case "", LLMProviderBedrock, LLMProviderOpenAI:
	default:
		return fmt.Errorf("LLM_PROVIDER must be bedrock or openai, got %q", c.LLM.Provider)
	}

	ind := c.Indicators
	if ind.MACDFast >= ind.MACDSlow {
		return fmt.Errorf("MACD_FAST_PERIOD (%d) must be shorter than MACD_SLOW_PERIOD (%d)", ind.MACDFast, ind.MACDSlow)
	}
	if ind.HistoryLength <= 0 {
		return fmt.Errorf("INDICATOR_HISTORY_LENGTH must be positive, got %d", ind.HistoryLength)
	}

	if c.Market.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT_SECONDS must be positive, got %d", c.Market.FetchTimeoutSeconds)
	}
	if c.LLM.ConcurrencyLimit <= 0 {
		return fmt.Errorf("ANALYSIS_CONCURRENCY_LIMIT must be positive, got %d", c.LLM.ConcurrencyLimit)
	}
	if c.Tracker.PollLimit <= 0 {
		return fmt.Errorf("TRACKER_POLL_LIMIT must be positive, got %d", c.Tracker.PollLimit)
	}

	return nil
}

// defaultCacheBackend prefers Postgres, then Redis, then process memory
func (c *Config) defaultCacheBackend() string {
	switch {
	case c.HasDatabase():
		return CacheBackendPostgres
	case c.HasRedis():
		return CacheBackendRedis
	default:
		return CacheBackendMemory
	}
}

func (c *Config) defaultLLMProvider() string {
	switch {
	case c.HasBedrock():
		return LLMProviderBedrock
	case c.HasOpenAI():
		return LLMProviderOpenAI
	default:
		return ""
	}
}

// HasDatabase returns true if database configuration is available
func (c *Config) HasDatabase() bool {
	return c.Database.URL != ""
}

// HasRedis returns true if Redis configuration is available
func (c *Config) HasRedis() bool {
	return c.Redis.URL != ""
}

// HasOpenAI returns true if OpenAI configuration is available
func (c *Config) HasOpenAI() bool {
	return c.OpenAI.APIKey != ""
}

// HasBedrock returns true if a Bedrock model is configured
func (c *Config) HasBedrock() bool {
	return c.AWS.BedrockModelID != ""
}

// HasAlpaca returns true if Alpaca configuration is available
func (c *Config) HasAlpaca() bool {
	return c.Alpaca.APIKey != "" && c.Alpaca.APISecret != ""
}

// HasLLM returns true if a commentary provider is configured
func (c *Config) HasLLM() bool {
	return c.LLM.Provider != ""
}

// FetchTimeout is the per-call deadline for candle source requests
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Market.FetchTimeoutSeconds) * time.Second
}

// StoreTimeout is the per-call deadline for snapshot store requests
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.Cache.StoreTimeoutSeconds) * time.Second
}

// Retention is how long stored snapshots are kept
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Cache.RetentionHours) * time.Hour
}

// CandleCacheTTL is how long a fetched candle window is reused
func (c *Config) CandleCacheTTL() time.Duration {
	return time.Duration(c.Cache.CandleCacheSeconds) * time.Second
}

// AnalysisTimeout bounds a single commentary request
func (c *Config) AnalysisTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

func getEnvString(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloatRange(key string, defaultValue, minVal, maxVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil && parsed >= minVal && parsed <= maxVal {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// NewTestConfig creates a Config with default values for testing
func NewTestConfig() *Config {
	return &Config{
		Market: MarketConfig{
			Provider:            ProviderBinance,
			BinanceBaseURL:      "https://api.binance.com/api/v3",
			BinanceStreamURL:    "wss://stream.binance.com:9443/ws",
			CoinCapBaseURL:      "https://api.coincap.io/v2",
			CoinGeckoBaseURL:    "https://api.coingecko.com/api/v3",
			FetchTimeoutSeconds: 10,
			HistoricalLimit:     200,
		},
		Indicators: IndicatorsConfig{
			RSIPeriod:         14,
			MACDFast:          12,
			MACDSlow:          26,
			MACDSignal:        9,
			BollingerPeriod:   20,
			BollingerStdDev:   2.0,
			VolumeProfileBins: 20,
			HistoryLength:     100,
		},
		Cache: CacheConfig{
			Backend:               CacheBackendMemory,
			StoreTimeoutSeconds:   2,
			RetentionHours:        24,
			CandleCacheSeconds:    60,
			PairDirectoryTTLHours: 1,
		},
		Tracker: TrackerConfig{
			PollSchedule: "@every 60s",
			PollLimit:    5,
		},
		LLM: LLMConfig{
			TimeoutSeconds:   30,
			ConcurrencyLimit: 3,
		},
		OpenAI: OpenAIConfig{
			Model:     "gpt-4o",
			MaxTokens: 4096,
		},
		AWS: AWSConfig{
			Region:           "us-east-1",
			BedrockMaxTokens: 4096,
			AnthropicVersion: "bedrock-2023-05-31",
		},
		HTTP: HTTPConfig{
			Port:               "8080",
			CORSAllowedOrigins: "*",
			RequestTimeoutSec:  60,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
