// Package config loads server settings from the environment, with an
// optional .env file for development.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the server binary needs.
type Config struct {
	// Listener
	ListenAddr       string        `env:"RELAY_LISTEN_ADDR" default:":42069"`
	HandshakeTimeout time.Duration `env:"RELAY_HANDSHAKE_TIMEOUT" default:"5s"`
	MaxFrameBytes    uint64        `env:"RELAY_MAX_FRAME_BYTES" default:"16777216"`

	// Per-connection rate limit. A zero limit turns limiting off.
	RateLimit float64 `env:"RELAY_RATE_LIMIT" default:"10"`
	RateBurst int     `env:"RELAY_RATE_BURST" default:"20"`

	// Monitoring. An empty address means no metrics endpoint.
	MetricsAddr string `env:"RELAY_METRICS_ADDR"`

	// Logging
	LogLevel  string `env:"RELAY_LOG_LEVEL" default:"info"`
	LogFormat string `env:"RELAY_LOG_FORMAT" default:"text"`
}

// Load reads the environment into a Config. A .env file in the working
// directory is folded in first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}

	if err := loadEnvString(&cfg.ListenAddr, "RELAY_LISTEN_ADDR", ":42069"); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&cfg.HandshakeTimeout, "RELAY_HANDSHAKE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if err := loadEnvUint64(&cfg.MaxFrameBytes, "RELAY_MAX_FRAME_BYTES", 16<<20); err != nil {
		return nil, err
	}

	if err := loadEnvFloat(&cfg.RateLimit, "RELAY_RATE_LIMIT", 10); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&cfg.RateBurst, "RELAY_RATE_BURST", 20); err != nil {
		return nil, err
	}

	if err := loadEnvString(&cfg.MetricsAddr, "RELAY_METRICS_ADDR", ""); err != nil {
		return nil, err
	}

	if err := loadEnvString(&cfg.LogLevel, "RELAY_LOG_LEVEL", "info"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&cfg.LogFormat, "RELAY_LOG_FORMAT", "text"); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the loaded configuration before the server starts.
func (c *Config) Validate() error {
	var problems []string

	if c.ListenAddr == "" {
		problems = append(problems, "RELAY_LISTEN_ADDR must not be empty")
	}
	if c.HandshakeTimeout < 0 {
		problems = append(problems, "RELAY_HANDSHAKE_TIMEOUT must not be negative")
	}
	if c.MaxFrameBytes == 0 {
		problems = append(problems, "RELAY_MAX_FRAME_BYTES must be greater than zero")
	}
	if c.RateLimit < 0 {
		problems = append(problems, "RELAY_RATE_LIMIT must not be negative")
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		problems = append(problems, "RELAY_RATE_BURST must be at least 1 when rate limiting is on")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		problems = append(problems, fmt.Sprintf("RELAY_LOG_LEVEL must be one of: %s", strings.Join(validLogLevels, ", ")))
	}
	validLogFormats := []string{"text", "json"}
	if !slices.Contains(validLogFormats, c.LogFormat) {
		problems = append(problems, fmt.Sprintf("RELAY_LOG_FORMAT must be one of: %s", strings.Join(validLogFormats, ", ")))
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

func loadEnvString(target *string, key, defaultValue string) error {
	if value := os.Getenv(key); value != "" {
		*target = value
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvInt(target *int, key string, defaultValue int) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvUint64(target *uint64, key string, defaultValue uint64) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvFloat(target *float64, key string, defaultValue float64) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid numeric value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvDuration(target *time.Duration, key string, defaultValue time.Duration) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}
