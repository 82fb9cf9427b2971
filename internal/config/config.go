// Package config loads the monitor's runtime configuration from the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"spreadup-monitor/internal/connector"
)

// Defaults.
const (
	DefaultSpreadThreshold = 3.0
	DefaultScanInterval    = time.Second
	DefaultCooldown        = 1800 * time.Second
	DefaultCacheTTL        = 300 * time.Second
	DefaultHTXPollInterval = 500 * time.Millisecond
	DefaultMetricsAddr     = ":9090"
)

// Credentials are optional read-only API keys for one exchange. All
// market data used here is public; keys only raise venue rate limits.
type Credentials struct {
	APIKey    string
	APISecret string
}

// Config is the full runtime configuration.
type Config struct {
	SpreadThreshold      float64
	ScanInterval         time.Duration
	NotificationCooldown time.Duration
	CacheTTL             time.Duration
	EnabledExchanges     []connector.ExchangeID
	HTXPollInterval      time.Duration
	MetricsAddr          string
	RedisURL             string
	LogLevel             string
	LogPretty            bool
	Credentials          map[connector.ExchangeID]Credentials
}

// Load reads the configuration from the environment, applying defaults
// for everything unset.
func Load() (Config, error) {
	cfg := Config{
		SpreadThreshold:      getEnvFloat("SPREAD_THRESHOLD", DefaultSpreadThreshold),
		ScanInterval:         getEnvDuration("SCAN_INTERVAL", DefaultScanInterval),
		NotificationCooldown: getEnvDuration("NOTIFICATION_COOLDOWN", DefaultCooldown),
		CacheTTL:             getEnvDuration("CACHE_TTL", DefaultCacheTTL),
		HTXPollInterval:      getEnvDuration("HTX_POLL_INTERVAL", DefaultHTXPollInterval),
		MetricsAddr:          getEnv("METRICS_ADDR", DefaultMetricsAddr),
		RedisURL:             getEnv("REDIS_URL", ""),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogPretty:            getEnvBool("LOG_PRETTY", false),
		Credentials:          make(map[connector.ExchangeID]Credentials),
	}

	raw := getEnv("ENABLED_EXCHANGES", "mexc,gateio,bingx,htx")
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id, err := connector.ParseExchangeID(name)
		if err != nil {
			return Config{}, fmt.Errorf("ENABLED_EXCHANGES: %w", err)
		}
		cfg.EnabledExchanges = append(cfg.EnabledExchanges, id)
	}
	if len(cfg.EnabledExchanges) == 0 {
		return Config{}, errors.New("ENABLED_EXCHANGES selects no exchange")
	}

	if cfg.SpreadThreshold <= 0 {
		return Config{}, fmt.Errorf("SPREAD_THRESHOLD must be positive, got %v", cfg.SpreadThreshold)
	}
	if cfg.ScanInterval <= 0 {
		return Config{}, fmt.Errorf("SCAN_INTERVAL must be positive, got %v", cfg.ScanInterval)
	}

	for _, id := range connector.AllExchanges() {
		prefix := strings.ToUpper(string(id))
		key := os.Getenv(prefix + "_API_KEY")
		secret := os.Getenv(prefix + "_API_SECRET")
		if key != "" || secret != "" {
			cfg.Credentials[id] = Credentials{APIKey: key, APISecret: secret}
		}
	}

	return cfg, nil
}

// Enabled reports whether an exchange is in the enabled set.
func (c Config) Enabled(id connector.ExchangeID) bool {
	for _, e := range c.EnabledExchanges {
		if e == id {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("500ms", "1s") and falls
// back to plain seconds for bare numbers ("1800").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
