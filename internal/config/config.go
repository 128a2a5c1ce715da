// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ExanteConfig holds credentials and endpoint settings for the market-data API.
type ExanteConfig struct {
	BaseURL   string
	ClientID  string // token issuer
	AppID     string // token subject
	SharedKey string // HMAC signing key
}

// FundamentalsConfig holds settings for the financial statements provider.
type FundamentalsConfig struct {
	BaseURL string
	APIKey  string
	TTL     time.Duration // freshness window for cached sheets
}

// RefreshConfig holds the background refresh cadence.
type RefreshConfig struct {
	Interval      time.Duration // normal sleep between cycles
	RetryInterval time.Duration // shortened sleep after a failed cycle
	BatchSize     int           // symbols per feed request
}

// Config is the full runtime configuration, loaded once at startup and
// passed down by value from main.
type Config struct {
	LogLevel string
	Port     int
	DevMode  bool

	Exante       ExanteConfig
	Fundamentals FundamentalsConfig
	Refresh      RefreshConfig
}

// Load reads the configuration from environment variables, after loading a
// .env file when one is present. Validation runs here so a misconfigured
// service fails at startup rather than on its first upstream call.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Port:     getEnvAsInt("PORT", 8080),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		Exante: ExanteConfig{
			BaseURL:   getEnv("EXANTE_BASE_URL", "https://api-demo.exante.eu/md/2.0"),
			ClientID:  getEnv("EXANTE_CLIENT_ID", ""),
			AppID:     getEnv("EXANTE_APP_ID", ""),
			SharedKey: getEnv("EXANTE_SHARED_KEY", ""),
		},
		Fundamentals: FundamentalsConfig{
			BaseURL: getEnv("FMP_BASE_URL", "https://financialmodelingprep.com/api/v3"),
			APIKey:  getEnv("FMP_API_KEY", ""),
			TTL:     time.Duration(getEnvAsInt("FMP_CACHE_TTL_HOURS", 24)) * time.Hour,
		},
		Refresh: RefreshConfig{
			Interval:      time.Duration(getEnvAsInt("REFRESH_INTERVAL_SECONDS", 900)) * time.Second,
			RetryInterval: time.Duration(getEnvAsInt("REFRESH_RETRY_SECONDS", 15)) * time.Second,
			BatchSize:     getEnvAsInt("FEED_BATCH_SIZE", 5),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects a configuration that cannot produce a working client: the
// three token-signing credentials are required and the feed batch size must
// be positive.
func (c *Config) Validate() error {
	if c.Exante.ClientID == "" || c.Exante.AppID == "" || c.Exante.SharedKey == "" {
		return fmt.Errorf("EXANTE_CLIENT_ID, EXANTE_APP_ID and EXANTE_SHARED_KEY are required")
	}
	if c.Refresh.BatchSize < 1 {
		return fmt.Errorf("FEED_BATCH_SIZE must be at least 1")
	}
	return nil
}

// getEnv returns the named variable's value, or the default when unset.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt parses the named variable as an int, keeping the default when
// the variable is unset or does not parse.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvAsBool parses the named variable as a bool, keeping the default when
// the variable is unset or does not parse.
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
