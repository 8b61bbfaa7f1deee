package indicators

import (
	"fmt"
	"time"

	"crypto-dashboard/models"
)

// Config holds indicator periods and histogram resolution
type Config struct {
	RSIPeriod         int
	MACDFast          int
	MACDSlow          int
	MACDSignal        int
	BollingerPeriod   int
	BollingerStdDev   float64
	VolumeProfileBins int
}

// DefaultConfig returns the standard dashboard parameters
func DefaultConfig() Config {
	return Config{
		RSIPeriod:         DefaultRSIPeriod,
		MACDFast:          DefaultMACDFast,
		MACDSlow:          DefaultMACDSlow,
		MACDSignal:        DefaultMACDSignal,
		BollingerPeriod:   DefaultBollingerPeriod,
		BollingerStdDev:   DefaultBollingerStdDev,
		VolumeProfileBins: DefaultVolumeProfileBins,
	}
}

// Validate checks the periods are usable
func (c Config) Validate() error {
	if c.RSIPeriod <= 0 {
		return fmt.Errorf("RSI period must be positive, got %d", c.RSIPeriod)
	}
	if c.MACDFast <= 0 || c.MACDSlow <= 0 || c.MACDSignal <= 0 {
		return fmt.Errorf("MACD periods must be positive, got %d/%d/%d", c.MACDFast, c.MACDSlow, c.MACDSignal)
	}
	if c.MACDFast >= c.MACDSlow {
		return fmt.Errorf("MACD fast period (%d) must be shorter than slow period (%d)", c.MACDFast, c.MACDSlow)
	}
	if c.BollingerPeriod <= 0 {
		return fmt.Errorf("Bollinger period must be positive, got %d", c.BollingerPeriod)
	}
	if c.BollingerStdDev <= 0 {
		return fmt.Errorf("Bollinger standard deviation multiplier must be positive, got %f", c.BollingerStdDev)
	}
	if c.VolumeProfileBins <= 0 {
		return fmt.Errorf("volume profile bins must be positive, got %d", c.VolumeProfileBins)
	}
	return nil
}

// MinCandles is the shortest window for which every required indicator is available
func (c Config) MinCandles() int {
	n := c.RSIPeriod
	n = max(n, c.MACDSlow+c.MACDSignal)
	n = max(n, minEMASetLength)
	n = max(n, c.BollingerPeriod)
	return n
}

// Calculator builds aggregate indicator snapshots
type Calculator struct {
	cfg Config
	now func() time.Time
}

// Option configures a Calculator
type Option func(*Calculator)

// WithClock overrides the clock used to stamp snapshots
func WithClock(now func() time.Time) Option {
	return func(c *Calculator) {
		c.now = now
	}
}

// NewCalculator creates a Calculator. Zero-valued config fields fall back to defaults.
func NewCalculator(cfg Config, opts ...Option) *Calculator {
	def := DefaultConfig()
	if cfg.RSIPeriod == 0 {
		cfg.RSIPeriod = def.RSIPeriod
	}
	if cfg.MACDFast == 0 {
		cfg.MACDFast = def.MACDFast
	}
	if cfg.MACDSlow == 0 {
		cfg.MACDSlow = def.MACDSlow
	}
	if cfg.MACDSignal == 0 {
		cfg.MACDSignal = def.MACDSignal
	}
	if cfg.BollingerPeriod == 0 {
		cfg.BollingerPeriod = def.BollingerPeriod
	}
	if cfg.BollingerStdDev == 0 {
		cfg.BollingerStdDev = def.BollingerStdDev
	}
	if cfg.VolumeProfileBins == 0 {
		cfg.VolumeProfileBins = def.VolumeProfileBins
	}

	c := &Calculator{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the effective configuration
func (c *Calculator) Config() Config {
	return c.cfg
}

// CalculateAll returns a snapshot, or nil when any of RSI, MACD, EMA or
// Bollinger bands cannot be computed. The volume profile never blocks a snapshot.
func (c *Calculator) CalculateAll(symbol string, interval models.TimeInterval, candles []models.Candle) *models.IndicatorSnapshot {
	rsi := RSI(candles, c.cfg.RSIPeriod)
	macd := MACD(candles, c.cfg.MACDFast, c.cfg.MACDSlow, c.cfg.MACDSignal)
	ema := EMASet(candles)
	bb := BollingerBands(candles, c.cfg.BollingerPeriod, c.cfg.BollingerStdDev)

	if rsi == nil || macd == nil || ema == nil || bb == nil {
		return nil
	}

	crossover := DetectEMACrossover(candles)
	return &models.IndicatorSnapshot{
		Symbol:         symbol,
		Interval:       interval,
		Timestamp:      c.now().UnixMilli(),
		RSI:            *rsi,
		MACD:           *macd,
		EMA:            *ema,
		BollingerBands: *bb,
		VolumeProfile:  VolumeProfile(candles, c.cfg.VolumeProfileBins),
		Crossover:      &crossover,
	}
}

// Calculate validates the window and computes a snapshot, returning
// ErrMalformedInput or ErrInsufficientData instead of nil.
func (c *Calculator) Calculate(symbol string, interval models.TimeInterval, candles []models.Candle) (*models.IndicatorSnapshot, error) {
	if err := Validate(candles); err != nil {
		return nil, err
	}

	snap := c.CalculateAll(symbol, interval, candles)
	if snap == nil {
		return nil, fmt.Errorf("%w: have %d candles, need %d", ErrInsufficientData, len(candles), c.cfg.MinCandles())
	}
	return snap, nil
}
