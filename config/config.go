package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"cryptoScreener/internal/adapters/logger" // Import the logger package for LogLevel
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	BaseURL           string        `yaml:"binance_base_url"`
	APIKey            string        `yaml:"binance_api_key"` // Optional: only public endpoints are used
	IsTestnet         bool          `yaml:"is_testnet"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	RequestBurst      int           `yaml:"request_burst"`
	HTTPTimeout       time.Duration `yaml:"http_timeout"`

	// Universe
	UniverseSize int    `yaml:"universe_size"`
	QuoteAsset   string `yaml:"quote_asset"`
	ContractType string `yaml:"contract_type"`

	// Series fetching
	CoarseInterval     string        `yaml:"coarse_interval"`
	FineInterval       string        `yaml:"fine_interval"`
	KlineLimit         int           `yaml:"kline_limit"`
	BatchSize          int           `yaml:"batch_size"`
	BatchPause         time.Duration `yaml:"batch_pause"`
	PriceRetryAttempts int           `yaml:"price_retry_attempts"`
	PriceRetryBase     time.Duration `yaml:"price_retry_base"`

	// Open interest
	OIRetryAttempts int           `yaml:"oi_retry_attempts"`
	OIRetryBase     time.Duration `yaml:"oi_retry_base"`
	OIPeriods       []string      `yaml:"oi_periods"`
	OIHistoryLimit  int           `yaml:"oi_history_limit"`

	// Indicators
	MinQuoteVolume float64 `yaml:"min_quote_volume"`
	EMAPeriod      int     `yaml:"ema_period"`

	// Pipeline
	CacheTTL   time.Duration `yaml:"cache_ttl"`
	RunTimeout time.Duration `yaml:"run_timeout"`

	// Serving
	HTTPAddr    string `yaml:"http_addr"`
	StreamTicks bool   `yaml:"stream_ticks"`

	// Logging
	LogLevel  logger.LogLevel `yaml:"log_level"` // Use the LogLevel type from the logger adapter
	LogFormat string          `yaml:"log_format"`
	LogFile   string          `yaml:"log_file"`

	// Connection Settings (ticker websocket)
	ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
}

// validOIPeriods are the granularities accepted by the open-interest history endpoint.
var validOIPeriods = map[string]struct{}{
	"5m": {}, "15m": {}, "30m": {}, "1h": {}, "2h": {}, "4h": {}, "6h": {}, "12h": {}, "1d": {},
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		RequestsPerSecond: 20,
		RequestBurst:      10,
		HTTPTimeout:       10 * time.Second,

		UniverseSize: 100,
		QuoteAsset:   "USDT",
		ContractType: "PERPETUAL",

		CoarseInterval:     "1d",
		FineInterval:       "4h",
		KlineLimit:         500,
		BatchSize:          25,
		BatchPause:         100 * time.Millisecond,
		PriceRetryAttempts: 3,
		PriceRetryBase:     time.Second,

		OIRetryAttempts: 2,
		OIRetryBase:     250 * time.Millisecond,
		OIPeriods:       []string{"1h", "2h", "4h"},
		OIHistoryLimit:  200,

		MinQuoteVolume: 10000,
		EMAPeriod:      200,

		CacheTTL:   2 * time.Minute,
		RunTimeout: 90 * time.Second,

		HTTPAddr:    ":8080",
		StreamTicks: true,

		LogLevel:  logger.LevelInfo,
		LogFormat: "json",

		ReconnectDelay:       5 * time.Second,
		MaxReconnectAttempts: 10,
	}
}

// LoadConfig loads configuration from an optional YAML file (CONFIG_FILE),
// then applies environment variables (.env file included) on top.
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := Default()
	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	var errs []string // Collect validation errors
	cfg.applyEnv(&errs)
	errs = append(errs, cfg.validate()...)

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func (cfg *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (cfg *Config) applyEnv(errs *[]string) {
	var err error
	report := func(key string, err error) {
		if err != nil {
			*errs = append(*errs, fmt.Sprintf("invalid %s: %v", key, err))
		}
	}

	// Binance API
	cfg.BaseURL = getEnv("BINANCE_BASE_URL", cfg.BaseURL)
	cfg.APIKey = getEnv("BINANCE_API_KEY", cfg.APIKey)
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", cfg.IsTestnet)
	cfg.RequestsPerSecond, err = getEnvAsFloatRequired("REQUESTS_PER_SECOND", cfg.RequestsPerSecond)
	report("REQUESTS_PER_SECOND", err)
	cfg.RequestBurst, err = getEnvAsIntRequired("REQUEST_BURST", cfg.RequestBurst)
	report("REQUEST_BURST", err)
	cfg.HTTPTimeout, err = getEnvAsDuration("HTTP_TIMEOUT_SECONDS", time.Second, cfg.HTTPTimeout)
	report("HTTP_TIMEOUT_SECONDS", err)

	// Universe
	cfg.UniverseSize, err = getEnvAsIntRequired("UNIVERSE_SIZE", cfg.UniverseSize)
	report("UNIVERSE_SIZE", err)
	cfg.QuoteAsset = strings.ToUpper(getEnv("QUOTE_ASSET", cfg.QuoteAsset))
	cfg.ContractType = strings.ToUpper(getEnv("CONTRACT_TYPE", cfg.ContractType))

	// Series fetching
	cfg.CoarseInterval = getEnv("COARSE_INTERVAL", cfg.CoarseInterval)
	cfg.FineInterval = getEnv("FINE_INTERVAL", cfg.FineInterval)
	cfg.KlineLimit, err = getEnvAsIntRequired("KLINE_LIMIT", cfg.KlineLimit)
	report("KLINE_LIMIT", err)
	cfg.BatchSize, err = getEnvAsIntRequired("BATCH_SIZE", cfg.BatchSize)
	report("BATCH_SIZE", err)
	cfg.BatchPause, err = getEnvAsDuration("BATCH_PAUSE_MS", time.Millisecond, cfg.BatchPause)
	report("BATCH_PAUSE_MS", err)
	cfg.PriceRetryAttempts, err = getEnvAsIntRequired("PRICE_RETRY_ATTEMPTS", cfg.PriceRetryAttempts)
	report("PRICE_RETRY_ATTEMPTS", err)
	cfg.PriceRetryBase, err = getEnvAsDuration("PRICE_RETRY_BASE_MS", time.Millisecond, cfg.PriceRetryBase)
	report("PRICE_RETRY_BASE_MS", err)

	// Open interest
	cfg.OIRetryAttempts, err = getEnvAsIntRequired("OI_RETRY_ATTEMPTS", cfg.OIRetryAttempts)
	report("OI_RETRY_ATTEMPTS", err)
	cfg.OIRetryBase, err = getEnvAsDuration("OI_RETRY_BASE_MS", time.Millisecond, cfg.OIRetryBase)
	report("OI_RETRY_BASE_MS", err)
	cfg.OIPeriods = getEnvAsList("OI_PERIODS", cfg.OIPeriods)
	cfg.OIHistoryLimit, err = getEnvAsIntRequired("OI_HISTORY_LIMIT", cfg.OIHistoryLimit)
	report("OI_HISTORY_LIMIT", err)

	// Indicators
	cfg.MinQuoteVolume, err = getEnvAsFloatRequired("MIN_QUOTE_VOLUME", cfg.MinQuoteVolume)
	report("MIN_QUOTE_VOLUME", err)
	cfg.EMAPeriod, err = getEnvAsIntRequired("EMA_PERIOD", cfg.EMAPeriod)
	report("EMA_PERIOD", err)

	// Pipeline
	cfg.CacheTTL, err = getEnvAsDuration("CACHE_TTL_SECONDS", time.Second, cfg.CacheTTL)
	report("CACHE_TTL_SECONDS", err)
	cfg.RunTimeout, err = getEnvAsDuration("RUN_TIMEOUT_SECONDS", time.Second, cfg.RunTimeout)
	report("RUN_TIMEOUT_SECONDS", err)

	// Serving
	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.StreamTicks = getEnvAsBool("STREAM_TICKS", cfg.StreamTicks)

	// Logging
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = logger.ParseLevel(v) // Use the parser from the logger package
	}
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", cfg.LogFormat))
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)

	// Connection Settings
	cfg.ReconnectDelay, err = getEnvAsDuration("RECONNECT_DELAY_SECONDS", time.Second, cfg.ReconnectDelay)
	report("RECONNECT_DELAY_SECONDS", err)
	cfg.MaxReconnectAttempts, err = getEnvAsIntRequired("MAX_RECONNECT_ATTEMPTS", cfg.MaxReconnectAttempts)
	report("MAX_RECONNECT_ATTEMPTS", err)
}

func (cfg *Config) validate() []string {
	var errs []string

	if cfg.RequestsPerSecond <= 0 {
		errs = append(errs, "REQUESTS_PER_SECOND must be positive")
	}
	if cfg.RequestBurst <= 0 {
		errs = append(errs, "REQUEST_BURST must be positive")
	}
	if cfg.HTTPTimeout <= 0 {
		errs = append(errs, "HTTP_TIMEOUT_SECONDS must be positive")
	}
	if cfg.UniverseSize <= 0 {
		errs = append(errs, "UNIVERSE_SIZE must be positive")
	}
	if cfg.QuoteAsset == "" || cfg.ContractType == "" {
		errs = append(errs, "QUOTE_ASSET and CONTRACT_TYPE must be set")
	}
	if cfg.CoarseInterval == "" || cfg.FineInterval == "" {
		errs = append(errs, "COARSE_INTERVAL and FINE_INTERVAL must be set")
	}
	if cfg.KlineLimit <= 0 || cfg.KlineLimit > 1500 {
		errs = append(errs, "KLINE_LIMIT must be between 1 and 1500")
	}
	if cfg.BatchSize <= 0 {
		errs = append(errs, "BATCH_SIZE must be positive")
	}
	if cfg.BatchPause < 0 {
		errs = append(errs, "BATCH_PAUSE_MS cannot be negative")
	}
	if cfg.PriceRetryAttempts <= 0 || cfg.OIRetryAttempts <= 0 {
		errs = append(errs, "retry attempts (PRICE_RETRY_ATTEMPTS, OI_RETRY_ATTEMPTS) must be positive")
	}
	if cfg.PriceRetryBase <= 0 || cfg.OIRetryBase <= 0 {
		errs = append(errs, "retry base delays (PRICE_RETRY_BASE_MS, OI_RETRY_BASE_MS) must be positive")
	}
	if len(cfg.OIPeriods) == 0 {
		errs = append(errs, "OI_PERIODS must list at least one period")
	}
	for _, p := range cfg.OIPeriods {
		if _, ok := validOIPeriods[p]; !ok {
			errs = append(errs, fmt.Sprintf("OI_PERIODS contains unsupported period '%s'", p))
		}
	}
	if cfg.OIHistoryLimit <= 0 || cfg.OIHistoryLimit > 500 {
		errs = append(errs, "OI_HISTORY_LIMIT must be between 1 and 500")
	}
	if cfg.MinQuoteVolume < 0 {
		errs = append(errs, "MIN_QUOTE_VOLUME cannot be negative")
	}
	if cfg.EMAPeriod <= 0 {
		errs = append(errs, "EMA_PERIOD must be positive")
	}
	if cfg.CacheTTL <= 0 {
		errs = append(errs, "CACHE_TTL_SECONDS must be positive")
	}
	if cfg.RunTimeout < 0 {
		errs = append(errs, "RUN_TIMEOUT_SECONDS cannot be negative")
	}
	if cfg.HTTPAddr == "" {
		errs = append(errs, "HTTP_ADDR must be set")
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		errs = append(errs, "LOG_FORMAT must be 'json' or 'text'")
	}
	if cfg.ReconnectDelay <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}
	return errs
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(valueStr), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

// getEnvAsDuration reads an integer count of unit (e.g. *_SECONDS, *_MS keys).
func getEnvAsDuration(key string, unit time.Duration, defaultValue time.Duration) (time.Duration, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return time.Duration(n) * unit, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated value, dropping empty items.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
