package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, "ENV", "")
	setEnv(t, "PORT", "")
	setEnv(t, "DUEL_DEFAULT_EXPIRY", "")
	setEnv(t, "DUEL_SWEEP_INTERVAL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultDuelExpiry, cfg.DefaultExpiry)
	assert.Equal(t, DefaultSweepInterval, cfg.SweepInterval)
	assert.Equal(t, DefaultTokenMint, cfg.DefaultMint)
	assert.Equal(t, DefaultRateLimit, cfg.RateLimitRPS)
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "DUEL_DEFAULT_EXPIRY", "15m")
	setEnv(t, "DUEL_SWEEP_INTERVAL", "10s")
	setEnv(t, "RATE_LIMIT_RPS", "25")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 15*time.Minute, cfg.DefaultExpiry)
	assert.Equal(t, 10*time.Second, cfg.SweepInterval)
	assert.Equal(t, 25, cfg.RateLimitRPS)
}

func TestLoad_BadDurationFallsBack(t *testing.T) {
	setEnv(t, "DUEL_DEFAULT_EXPIRY", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultDuelExpiry, cfg.DefaultExpiry)
}

func TestConfig_Validate(t *testing.T) {
	base := Config{
		DefaultExpiry:  DefaultDuelExpiry,
		SweepInterval:  DefaultSweepInterval,
		RateLimitRPS:   DefaultRateLimit,
		AllowedOrigins: "*",
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"zero expiry", func(c *Config) { c.DefaultExpiry = 0 }, "DUEL_DEFAULT_EXPIRY"},
		{"zero sweep interval", func(c *Config) { c.SweepInterval = 0 }, "DUEL_SWEEP_INTERVAL"},
		{"zero rate limit", func(c *Config) { c.RateLimitRPS = 0 }, "RATE_LIMIT_RPS"},
		{"wildcard origins in production", func(c *Config) { c.Env = "production" }, "ALLOWED_ORIGINS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}
