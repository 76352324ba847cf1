// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every tunable of the service. Values come from environment
// variables with sane production defaults.
type Config struct {
	// Mode selects the serving surface: "mcp" (stdio), "http", or "chat"
	// (interactive terminal client, requires ModelProvider).
	Mode string `env:"CLINICMESH_MODE" envDefault:"mcp"`
	// HTTPAddr is the listen address for http mode.
	HTTPAddr string `env:"CLINICMESH_HTTP_ADDR" envDefault:":8080"`
	// DBPath is the SQLite file path. Empty selects the in-memory store.
	DBPath string `env:"CLINICMESH_DB_PATH"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"CLINICMESH_LOG_LEVEL" envDefault:"info"`
	// LogFormat is "json" or "text".
	LogFormat string `env:"CLINICMESH_LOG_FORMAT" envDefault:"json"`

	// SessionTTL expires idle sessions.
	SessionTTL time.Duration `env:"CLINICMESH_SESSION_TTL" envDefault:"30m"`
	// JanitorInterval is how often expired sessions are swept.
	JanitorInterval time.Duration `env:"CLINICMESH_JANITOR_INTERVAL" envDefault:"1m"`

	// RateWindow is the sliding window for per-session rate limiting.
	RateWindow time.Duration `env:"CLINICMESH_RATE_WINDOW" envDefault:"1m"`
	// UnverifiedLimit is the per-window call budget before verification.
	UnverifiedLimit int `env:"CLINICMESH_UNVERIFIED_LIMIT" envDefault:"10"`
	// VerifiedLimit is the per-window call budget after verification.
	VerifiedLimit int `env:"CLINICMESH_VERIFIED_LIMIT" envDefault:"30"`
	// ViolationWindow is how long violations count toward blocking.
	ViolationWindow time.Duration `env:"CLINICMESH_VIOLATION_WINDOW" envDefault:"10m"`
	// BlockThreshold is the rolling violation count that blocks a session.
	BlockThreshold int `env:"CLINICMESH_BLOCK_THRESHOLD" envDefault:"3"`
	// BlockDuration is the block length for repeated violations.
	BlockDuration time.Duration `env:"CLINICMESH_BLOCK_DURATION" envDefault:"15m"`
	// InjectionBlockDuration is the block length for injection attempts.
	InjectionBlockDuration time.Duration `env:"CLINICMESH_INJECTION_BLOCK_DURATION" envDefault:"1h"`

	// ModelProvider selects the chat model backend: "anthropic", "openai"
	// or "" to disable the assistant surface.
	ModelProvider string `env:"CLINICMESH_MODEL_PROVIDER"`
	// ModelName overrides the provider's default model.
	ModelName string `env:"CLINICMESH_MODEL_NAME"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints that tag defaults cannot express.
func (c *Config) Validate() error {
	switch c.Mode {
	case "mcp", "http":
	case "chat":
		if c.ModelProvider == "" {
			return fmt.Errorf("config: chat mode requires a model provider")
		}
	default:
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("config: unknown log format %q", c.LogFormat)
	}
	switch c.ModelProvider {
	case "", "anthropic", "openai":
	default:
		return fmt.Errorf("config: unknown model provider %q", c.ModelProvider)
	}
	if c.UnverifiedLimit <= 0 || c.VerifiedLimit <= 0 {
		return fmt.Errorf("config: rate limits must be positive")
	}
	if c.VerifiedLimit < c.UnverifiedLimit {
		return fmt.Errorf("config: verified limit must be at least the unverified limit")
	}
	if c.RateWindow <= 0 || c.ViolationWindow <= 0 {
		return fmt.Errorf("config: windows must be positive")
	}
	if c.BlockThreshold <= 0 {
		return fmt.Errorf("config: block threshold must be positive")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("config: session ttl must be positive")
	}
	return nil
}
