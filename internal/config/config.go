// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Duel settings
	DefaultExpiry time.Duration // How long OPEN duels wait for an opponent
	SweepInterval time.Duration // How often the expiry sweeper runs
	DefaultMint   string        // Token mint assumed when a client omits one

	// Verification service
	VerificationURL     string // Third-party game-result API base URL (optional)
	VerificationAPIKey  string
	VerificationTimeout time.Duration

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint for traces (optional)

	// Security
	RateLimitRPS   int
	AllowedOrigins string // Comma-separated CORS origins, "*" in development
}

// Defaults.
const (
	DefaultPort          = "8080"
	DefaultEnv           = "development"
	DefaultLogLevel      = "info"
	DefaultDuelExpiry    = 30 * time.Minute
	DefaultSweepInterval = 30 * time.Second
	DefaultRateLimit     = 100
	// Wrapped SOL, the platform's default wager token.
	DefaultTokenMint = "So11111111111111111111111111111111111111112"
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		DefaultExpiry:       getEnvDuration("DUEL_DEFAULT_EXPIRY", DefaultDuelExpiry),
		SweepInterval:       getEnvDuration("DUEL_SWEEP_INTERVAL", DefaultSweepInterval),
		DefaultMint:         getEnv("DEFAULT_TOKEN_MINT", DefaultTokenMint),
		VerificationURL:     os.Getenv("VERIFICATION_URL"),
		VerificationAPIKey:  os.Getenv("VERIFICATION_API_KEY"),
		VerificationTimeout: getEnvDuration("VERIFICATION_TIMEOUT", 10*time.Second),
		OTLPEndpoint:        os.Getenv("OTLP_ENDPOINT"),
		RateLimitRPS:        int(getEnvInt64("RATE_LIMIT_RPS", int64(DefaultRateLimit))),
		AllowedOrigins:      getEnv("ALLOWED_ORIGINS", "*"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.DefaultExpiry <= 0 {
		return fmt.Errorf("DUEL_DEFAULT_EXPIRY must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("DUEL_SWEEP_INTERVAL must be positive")
	}
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be positive")
	}
	if c.IsProduction() && c.AllowedOrigins == "*" {
		return fmt.Errorf("ALLOWED_ORIGINS must be set explicitly in production")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
