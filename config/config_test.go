package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mcp", cfg.Mode)
	assert.Equal(t, 10, cfg.UnverifiedLimit)
	assert.Equal(t, 30, cfg.VerifiedLimit)
	assert.Equal(t, time.Minute, cfg.RateWindow)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, time.Hour, cfg.InjectionBlockDuration)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CLINICMESH_MODE", "http")
	t.Setenv("CLINICMESH_UNVERIFIED_LIMIT", "5")
	t.Setenv("CLINICMESH_SESSION_TTL", "10m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http", cfg.Mode)
	assert.Equal(t, 5, cfg.UnverifiedLimit)
	assert.Equal(t, 10*time.Minute, cfg.SessionTTL)
}

func TestValidate_ChatModeWithProvider(t *testing.T) {
	t.Setenv("CLINICMESH_MODE", "chat")
	t.Setenv("CLINICMESH_MODEL_PROVIDER", "anthropic")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "chat", cfg.Mode)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown mode", func(c *Config) { c.Mode = "grpc" }},
		{"chat without provider", func(c *Config) { c.Mode = "chat" }},
		{"unknown log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"unknown provider", func(c *Config) { c.ModelProvider = "bard" }},
		{"zero unverified limit", func(c *Config) { c.UnverifiedLimit = 0 }},
		{"verified below unverified", func(c *Config) { c.VerifiedLimit = 5 }},
		{"zero rate window", func(c *Config) { c.RateWindow = 0 }},
		{"zero session ttl", func(c *Config) { c.SessionTTL = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
