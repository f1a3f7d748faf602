// Package config provides configuration for the recurring transaction engine.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration.
type Config struct {
	// Port is the HTTP listen port.
	Port int
	// DBPath is the SQLite database path (":memory:" for in-memory).
	DBPath string
	// RefreshInterval is the periodic refresh cadence.
	RefreshInterval time.Duration
	// RefreshEnabled controls whether the background scheduler runs.
	RefreshEnabled bool
	// HorizonYears is the long-range materialization window.
	HorizonYears int
	// Debug enables debug logging.
	Debug bool
}

// Load loads configuration from environment variables.
// It automatically loads a .env file from the current directory if present.
// You can optionally specify a custom .env file path.
func Load(envPath ...string) (*Config, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	port, err := intEnv("RECURRING_PORT", 8080)
	if err != nil {
		return nil, err
	}
	horizon, err := intEnv("RECURRING_HORIZON_YEARS", 2)
	if err != nil {
		return nil, err
	}
	interval, err := durationEnv("RECURRING_REFRESH_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:            port,
		DBPath:          envOrDefault("RECURRING_DB_PATH", "recurring.db"),
		RefreshInterval: interval,
		RefreshEnabled:  os.Getenv("RECURRING_REFRESH_DISABLED") != "true",
		HorizonYears:    horizon,
		Debug:           os.Getenv("DEBUG") == "true",
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if c.HorizonYears < 1 {
		return fmt.Errorf("horizon must be at least 1 year, got %d", c.HorizonYears)
	}
	if c.RefreshInterval < time.Minute {
		return fmt.Errorf("refresh interval must be at least 1m, got %s", c.RefreshInterval)
	}
	return nil
}

func envOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func intEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value for %s: %s", key, value)
	}
	return parsed, nil
}

func durationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration value for %s: %s", key, value)
	}
	return parsed, nil
}
