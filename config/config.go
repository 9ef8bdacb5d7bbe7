// Package config loads scanner configuration from environment variables
// (via .env, for local/dev runs) and layers a YAML config file on top for
// thresholds and subscription policy. A full reparse followed by an
// atomic pointer swap is the only supported reload mechanism — no
// in-place mutation of a live Config.
package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/joho/godotenv"

	"github.com/epic1st/mexcscanner/logging"
)

// MexcConfig holds exchange connectivity options.
type MexcConfig struct {
	WSURL   string
	RESTURL string
}

// ScannerConfig holds scoring and signal thresholds.
type ScannerConfig struct {
	ProbThreshold float64
	Metrics       MetricThresholds
}

// MetricThresholds mirrors the spec's scanner.metrics.* config keys.
type MetricThresholds struct {
	VSR           float64
	PM            float64
	OBI           float64
	Spread        float64
	ListingAgeMin float64
}

// SubscriptionsConfig holds subscription-manager tuning.
type SubscriptionsConfig struct {
	TopN               int
	LRUTTLSec          float64
	PollInterval       float64
	RequoteCooldownSec float64
}

// ScoutConfig holds REST-scout tuning.
type ScoutConfig struct {
	MinQuoteVolUSD float64
	TopN           int
	QuoteSuffix    string
}

// WSConfig holds collector pooling/throttling tuning.
type WSConfig struct {
	MaxStreamsPerConn int
	MaxMsgPerSec      int
}

// RedisConfig holds the signal-publishing Redis connection.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// Config is the complete, validated scanner configuration.
type Config struct {
	Environment string

	Mexc          MexcConfig
	Scanner       ScannerConfig
	Subscriptions SubscriptionsConfig
	Scout         ScoutConfig
	WS            WSConfig
	Redis         RedisConfig

	ModelPath string
	YAMLPath  string
}

// current holds the live config for callers that want reload-by-swap
// semantics instead of threading a *Config everywhere.
var current atomic.Pointer[Config]

// Load reads environment variables (after trying to load a .env file),
// then overlays any YAML file at cfg.YAMLPath, validates the result, and
// atomically publishes it as the current config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Mexc: MexcConfig{
			WSURL:   getEnv("MEXC_WS_URL", ""),
			RESTURL: getEnv("MEXC_REST_URL", "https://www.mexc.com"),
		},
		Scanner: ScannerConfig{
			ProbThreshold: getEnvAsFloat("SCANNER_PROB_THRESHOLD", 0.6),
			Metrics: MetricThresholds{
				VSR:           getEnvAsFloat("SCANNER_METRIC_VSR", 2.0),
				PM:            getEnvAsFloat("SCANNER_METRIC_PM", 0.02),
				OBI:           getEnvAsFloat("SCANNER_METRIC_OBI", -1.0),
				Spread:        getEnvAsFloat("SCANNER_METRIC_SPREAD", 0.02),
				ListingAgeMin: getEnvAsFloat("SCANNER_METRIC_LISTING_AGE_MIN", 0),
			},
		},
		Subscriptions: SubscriptionsConfig{
			TopN:         getEnvAsInt("SUBSCRIPTIONS_TOP_N", 40),
			LRUTTLSec:    getEnvAsFloat("SUBSCRIPTIONS_LRU_TTL_SEC", 600),
			PollInterval: getEnvAsFloat("SUBSCRIPTIONS_POLL_INTERVAL", 60),
			RequoteCooldownSec: 120,
		},
		Scout: ScoutConfig{
			MinQuoteVolUSD: getEnvAsFloat("SCOUT_MIN_QUOTE_VOL_USD", 100000),
			TopN:           getEnvAsInt("SCOUT_TOP_N", 40),
			QuoteSuffix:    getEnv("SCOUT_QUOTE_SUFFIX", "USDT"),
		},
		WS: WSConfig{
			MaxStreamsPerConn: getEnvAsInt("WS_MAX_STREAMS_PER_CONN", 30),
			MaxMsgPerSec:      getEnvAsInt("WS_MAX_MSG_PER_SEC", 100),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Channel:  getEnv("REDIS_SIGNAL_CHANNEL", "scanner.signals"),
		},
		ModelPath: getEnv("MODEL_PATH", "model.json"),
		YAMLPath:  getEnv("SCANNER_CONFIG", "config/scanner.yaml"),
	}

	if err := ApplyYAML(cfg, cfg.YAMLPath); err != nil {
		wrapped := fmt.Errorf("config: loading %s: %w", cfg.YAMLPath, err)
		logging.TrackError(context.Background(), wrapped, "critical", map[string]interface{}{"class": "config"})
		return nil, wrapped
	}

	if err := cfg.Validate(); err != nil {
		logging.TrackError(context.Background(), err, "critical", map[string]interface{}{"class": "config"})
		return nil, err
	}

	current.Store(cfg)
	return cfg, nil
}

// Current returns the most recently published Config, or nil if Load
// has never succeeded.
func Current() *Config {
	return current.Load()
}

// Validate checks required fields. A missing WS URL is a fatal
// configuration error per the error taxonomy — there is no way to start
// the collector without one.
func (c *Config) Validate() error {
	if c.Mexc.WSURL == "" {
		return fmt.Errorf("config: MEXC_WS_URL is required")
	}
	if c.Scanner.ProbThreshold < 0 || c.Scanner.ProbThreshold > 1 {
		return fmt.Errorf("config: scanner.prob_threshold must be in [0,1], got %f", c.Scanner.ProbThreshold)
	}
	if c.WS.MaxStreamsPerConn <= 0 {
		return fmt.Errorf("config: ws.max_streams_per_conn must be positive")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return defaultVal
}
