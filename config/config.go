package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full configuration of the trading agent.
type Config struct {
	Exchange ExchangeConfig `yaml:"exchange"`
	Engine   EngineConfig   `yaml:"engine"`
	Storage  StorageConfig  `yaml:"storage"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// ExchangeConfig holds the immutable run parameters of the order ladder.
// Loaded once at startup and never mutated at runtime.
type ExchangeConfig struct {
	Pair          string  `yaml:"pair"`           // e.g. "BTC/USD"
	InverseQuoted bool    `yaml:"inverse_quoted"` // true for inverse/kraken-style contracts
	TickSize      float64 `yaml:"tick_size"`      // price rounding granularity

	Change       float64 `yaml:"change"`        // fractional price step between ladder rungs
	Quota        int     `yaml:"quota"`         // fixed rung count when auto_quota is off
	AutoQuota    bool    `yaml:"auto_quota"`    // derive rung count from balance and change
	SpreadFactor float64 `yaml:"spread_factor"` // ladder drift tolerance, in multiples of change

	LeverageDefault float64 `yaml:"leverage_default"`
	LeverageLow     float64 `yaml:"leverage_low"`
	LeverageHigh    float64 `yaml:"leverage_high"`
	LeverageEscape  float64 `yaml:"leverage_escape"`

	MMFloor   float64 `yaml:"mm_floor"`    // Mayer multiple below which leverage goes high
	MMCeil    float64 `yaml:"mm_ceil"`     // Mayer multiple above which leverage goes low
	MMStopBuy float64 `yaml:"mm_stop_buy"` // Mayer multiple at which buying halts

	AutoLeverage       bool `yaml:"auto_leverage"`
	AutoLeverageEscape bool `yaml:"auto_leverage_escape"`

	TradeTrials    int     `yaml:"trade_trials"`     // max placement attempts per order
	StopOnTop      float64 `yaml:"stop_on_top"`      // price ceiling above which buying stops (0 = off)
	CloseOnStop    bool    `yaml:"close_on_stop"`    // flatten the position once stop_on_top triggers
	OrderCryptoMin float64 `yaml:"order_crypto_min"` // minimum order notional accepted by the venue
}

// EngineConfig controls the main control loop.
type EngineConfig struct {
	IntervalSeconds   int    `yaml:"interval_seconds"`
	RetryDelaySeconds int    `yaml:"retry_delay_seconds"`
	MAShortDays       int    `yaml:"ma_short_days"`
	MALongDays        int    `yaml:"ma_long_days"`
	DataDir           string `yaml:"data_dir"` // pid marker and advisory files
}

// StorageConfig controls where the statistics history is persisted.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // path to the SQLite file, or ":memory:"
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // listen address for /metrics, empty disables
}

// LogConfig controls logging format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML config file and the .env file if present.
// Environment variables override YAML values for the keys that map.
func Load(path string) (*Config, error) {
	// Load .env if present (silence the error if there is no file)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// CycleInterval returns the control-loop tick as a time.Duration.
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.Engine.IntervalSeconds) * time.Second
}

// RetryDelay returns the fixed delay between retries of transient exchange errors.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Engine.RetryDelaySeconds) * time.Second
}

// applyEnvOverrides replaces values with environment variables when present.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("LADDERBOT_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("LADDERBOT_PAIR"); v != "" {
		cfg.Exchange.Pair = v
	}
}

// setDefaults makes sure required values carry sensible defaults.
func setDefaults(cfg *Config) {
	if cfg.Exchange.Pair == "" {
		cfg.Exchange.Pair = "BTC/USD"
	}
	if cfg.Exchange.TickSize <= 0 {
		cfg.Exchange.TickSize = 0.5
	}
	if cfg.Exchange.Change <= 0 {
		cfg.Exchange.Change = 0.005
	}
	if cfg.Exchange.Quota <= 0 {
		cfg.Exchange.Quota = 4
	}
	if cfg.Exchange.SpreadFactor <= 0 {
		cfg.Exchange.SpreadFactor = 2
	}
	if cfg.Exchange.LeverageDefault <= 0 {
		cfg.Exchange.LeverageDefault = 2
	}
	if cfg.Exchange.LeverageLow <= 0 {
		cfg.Exchange.LeverageLow = 1.5
	}
	if cfg.Exchange.LeverageHigh <= 0 {
		cfg.Exchange.LeverageHigh = 2.5
	}
	if cfg.Exchange.LeverageEscape <= 0 {
		cfg.Exchange.LeverageEscape = 3
	}
	if cfg.Exchange.MMFloor <= 0 {
		cfg.Exchange.MMFloor = 1.0
	}
	if cfg.Exchange.MMCeil <= 0 {
		cfg.Exchange.MMCeil = 1.8
	}
	if cfg.Exchange.MMStopBuy <= 0 {
		cfg.Exchange.MMStopBuy = 2.3
	}
	if cfg.Exchange.TradeTrials <= 0 {
		cfg.Exchange.TradeTrials = 5
	}
	if cfg.Exchange.OrderCryptoMin <= 0 {
		cfg.Exchange.OrderCryptoMin = 10
	}
	if cfg.Engine.IntervalSeconds <= 0 {
		cfg.Engine.IntervalSeconds = 1
	}
	if cfg.Engine.RetryDelaySeconds <= 0 {
		cfg.Engine.RetryDelaySeconds = 5
	}
	if cfg.Engine.MAShortDays <= 0 {
		cfg.Engine.MAShortDays = 20
	}
	if cfg.Engine.MALongDays <= 0 {
		cfg.Engine.MALongDays = 100
	}
	if cfg.Engine.DataDir == "" {
		cfg.Engine.DataDir = "."
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "ladderbot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// validate rejects parameter combinations the engine cannot run with.
func validate(cfg *Config) error {
	ex := cfg.Exchange
	if ex.Change >= 1 {
		return fmt.Errorf("exchange.change must be a fraction below 1, got %v", ex.Change)
	}
	if ex.LeverageLow > ex.LeverageDefault {
		return fmt.Errorf("exchange.leverage_low (%v) above leverage_default (%v)", ex.LeverageLow, ex.LeverageDefault)
	}
	if ex.LeverageDefault > ex.LeverageHigh {
		return fmt.Errorf("exchange.leverage_default (%v) above leverage_high (%v)", ex.LeverageDefault, ex.LeverageHigh)
	}
	if ex.MMFloor >= ex.MMCeil {
		return fmt.Errorf("exchange.mm_floor (%v) must be below mm_ceil (%v)", ex.MMFloor, ex.MMCeil)
	}
	if cfg.Engine.MAShortDays >= cfg.Engine.MALongDays {
		return fmt.Errorf("engine.ma_short_days (%d) must be below ma_long_days (%d)", cfg.Engine.MAShortDays, cfg.Engine.MALongDays)
	}
	return nil
}
