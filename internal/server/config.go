// Package server provides configuration helpers that define runtime
// defaults, validation, and rate-limiting parameters for the Parlor service.
package server

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// RateLimitConfig defines the parameters for per-connection message rate
// limiting.
type RateLimitConfig struct {
	Burst          int           `envconfig:"RATE_LIMIT_BURST" default:"10"`
	RefillInterval time.Duration `envconfig:"RATE_LIMIT_REFILL_INTERVAL" default:"1s"`
}

// Config holds the server configuration. Every field has a working default
// so the binary runs with an empty environment.
type Config struct {
	Addr            string        `envconfig:"ADDR" default:":8080"`
	AllowedOrigins  []string      `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080"`
	HistoryLimit    int           `envconfig:"HISTORY_LIMIT" default:"50"`
	TypingTTL       time.Duration `envconfig:"TYPING_TTL" default:"2s"`
	TypingEchoSelf  bool          `envconfig:"TYPING_ECHO_SELF" default:"false"`
	MaxMessageSize  int64         `envconfig:"MAX_MESSAGE_SIZE" default:"4096"`
	MaxContentLen   int           `envconfig:"MAX_CONTENT_LENGTH" default:"2000"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	RateLimit       RateLimitConfig
}

// NewConfig returns the documented defaults without consulting the
// environment. The values mirror the struct tags above, which only
// LoadConfig reads.
func NewConfig() Config {
	return Config{
		Addr:            ":8080",
		AllowedOrigins:  []string{"http://localhost:8080"},
		HistoryLimit:    50,
		TypingTTL:       2 * time.Second,
		TypingEchoSelf:  false,
		MaxMessageSize:  4096,
		MaxContentLen:   2000,
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
		RateLimit: RateLimitConfig{
			Burst:          10,
			RefillInterval: time.Second,
		},
	}
}

// LoadConfig reads the configuration from the environment, falling back to
// defaults for unset keys.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return sanitizeConfig(cfg), nil
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	if cfg.TypingTTL <= 0 {
		cfg.TypingTTL = 2 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}
	if cfg.MaxContentLen <= 0 {
		cfg.MaxContentLen = 2000
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 10
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}
	return cfg
}
