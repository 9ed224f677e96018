// Package config provides centralized configuration loaded from environment
// variables. Shared by cmd/api and cmd/alertctl.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is populated from environment variables.
type Config struct {
	// Database
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	Debug       bool

	// CORS
	CORSAllowOrigins []string

	// HTTP rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Local time reference for quiet hours, daily caps, and freshness
	// comparisons. All schedule math happens in this one location.
	Timezone string

	// Throttling kill-switch. When false every decision is Allow+record.
	ThrottlingEnabled bool

	// Maintenance schedules (cron/v3 standard 5-field specs).
	QueueProcessSpec string
	CleanupSpec      string

	// Schools directory collaborator. Empty URL disables the lookup and
	// the matcher degrades school filters to pass.
	SchoolsAPIURL    string
	SchoolsAPIKey    string
	SchoolsPerMinute int
	SchoolsMaxDistKm float64

	// Channel senders. PushCredentialsFile enables the push sender;
	// DevChannels registers logging senders for local development
	// (comma-separated: push,email,sms).
	PushCredentialsFile string
	DevChannels         []string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	dbURL := envOr("DATABASE_URL", "")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set")
	}

	return &Config{
		DatabaseURL:    dbURL,
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 2),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		Timezone:          envOr("ALERT_TIMEZONE", "America/New_York"),
		ThrottlingEnabled: envBool("THROTTLING_ENABLED", true),

		QueueProcessSpec: envOr("QUEUE_PROCESS_SPEC", "*/15 * * * *"),
		CleanupSpec:      envOr("CLEANUP_SPEC", "30 3 * * *"),

		SchoolsAPIURL:    envOr("SCHOOLS_API_URL", ""),
		SchoolsAPIKey:    envOr("SCHOOLS_API_KEY", ""),
		SchoolsPerMinute: envInt("SCHOOLS_REQUESTS_PER_MINUTE", 60),
		SchoolsMaxDistKm: envFloat("SCHOOLS_MAX_DISTANCE_KM", 8),

		PushCredentialsFile: envOr("PUSH_CREDENTIALS_FILE", ""),
		DevChannels:         envList("DEV_CHANNELS", nil),
	}, nil
}

// Location resolves the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
