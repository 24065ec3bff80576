package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, ":8081", cfg.Gateway.Address)
	assert.Equal(t, 500*time.Millisecond, cfg.Backend.AckInitialDelay)
	assert.Equal(t, 5, cfg.Backend.AckMaxAttempts)
	assert.Equal(t, 10, cfg.Engine.DirectoryPageSize)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  address: ":9999"
backend:
  ack_max_attempts: 3
engine:
  directory_page_size: 25
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Address)
	assert.Equal(t, 3, cfg.Backend.AckMaxAttempts)
	assert.Equal(t, 25, cfg.Engine.DirectoryPageSize)
	// Untouched sections keep their defaults.
	assert.Equal(t, ":8081", cfg.Gateway.Address)
	assert.Equal(t, 4*time.Second, cfg.Backend.AckMaxDelay)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
backend:
  ack_initial_delay: 10s
  ack_max_delay: 1s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ack_max_delay")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("JAMROOM_SERVER_ADDRESS", ":7070")
	t.Setenv("JAMROOM_LOG_LEVEL", "debug")
	t.Setenv("JAMROOM_JWT_SECRET", "env-secret")

	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Address)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
}

func TestValidateRanges(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty server address", func(c *Config) { c.Server.Address = "" }},
		{"zero ping interval", func(c *Config) { c.Gateway.PingInterval = 0 }},
		{"empty backend url", func(c *Config) { c.Backend.BaseURL = "" }},
		{"zero ack attempts", func(c *Config) { c.Backend.AckMaxAttempts = 0 }},
		{"zero command buffer", func(c *Config) { c.Engine.CommandBuffer = 0 }},
		{"empty jwt secret", func(c *Config) { c.Auth.JWTSecret = "" }},
		{"redis enabled without address", func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.Address = ""
		}},
		{"rate limiting enabled without burst", func(c *Config) {
			c.RateLimiting.Enabled = true
			c.RateLimiting.HTTP.Burst = 0
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
