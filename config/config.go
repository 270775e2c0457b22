package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const defaultJWTSecret = "your-super-secret-jwt-key-change-in-production"

// Config holds all configuration for the application
type Config struct {
	Environment   string
	Port          string
	DatabaseURL   string
	JWTSecret     string
	JWTExpiration int

	// Harvest Configuration
	Timezone             string
	HarvestSweepEnabled  bool
	HarvestSweepInterval int

	// Redis Configuration (session revocation; empty URL keeps it in memory)
	RedisURL      string
	RedisPassword string

	// Rate Limiting Configuration
	RateLimitRequests int
	RateLimitWindow   int

	// Logging Configuration
	LogLevel string
	LogFile  string

	// CORS Configuration
	AllowedOrigins  []string
	AllowAllOrigins bool

	// Metrics and Monitoring Configuration
	EnableMetrics bool
	MetricsPort   string

	// Market Feed Configuration
	MarketFeedEnabled bool
}

// Load loads configuration from an optional .env file and environment variables
func Load() *Config {
	// a missing .env is fine; the process environment still applies
	_ = godotenv.Load()

	return &Config{
		Environment:   getEnv("ENVIRONMENT", "development"),
		Port:          getEnv("PORT", "8080"),
		DatabaseURL:   getEnv("DATABASE_URL", "agrimarket.db"),
		JWTSecret:     getEnv("JWT_SECRET", defaultJWTSecret),
		JWTExpiration: getEnvAsInt("JWT_EXPIRATION", 30*60), // 30 minutes in seconds

		// Harvest Configuration
		Timezone:             getEnv("TIMEZONE", "UTC"),
		HarvestSweepEnabled:  getEnvAsBool("HARVEST_SWEEP_ENABLED", true),
		HarvestSweepInterval: getEnvAsInt("HARVEST_SWEEP_INTERVAL", 60*60),

		// Redis Configuration
		RedisURL:      getEnv("REDIS_URL", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		// Rate Limiting Configuration
		RateLimitRequests: getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   getEnvAsInt("RATE_LIMIT_WINDOW", 60),

		// Logging Configuration
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		// Metrics and Monitoring Configuration
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", false),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),

		// Market Feed Configuration
		MarketFeedEnabled: getEnvAsBool("MARKET_FEED_ENABLED", true),

		// CORS Configuration
		AllowedOrigins:  getEnvAsStringSlice("ALLOWED_ORIGINS", []string{}),
		AllowAllOrigins: getEnvAsBool("ALLOW_ALL_ORIGINS", true), // Default to true for development
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}

	// Validate environment values
	validEnvs := map[string]bool{
		"development": true,
		"production":  true,
		"test":        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	if c.IsProduction() && c.JWTSecret == defaultJWTSecret {
		return fmt.Errorf("JWT secret must be changed in production")
	}
	if c.JWTExpiration <= 0 {
		return fmt.Errorf("JWT expiration must be positive")
	}
	if c.HarvestSweepEnabled && c.HarvestSweepInterval <= 0 {
		return fmt.Errorf("harvest sweep interval must be positive")
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("rate limit requests and window must be positive")
	}

	return nil
}

// SetDefaults sets default values for configuration
func (c *Config) SetDefaults() {
	if c.JWTSecret == "" {
		c.JWTSecret = defaultJWTSecret
	}
	if c.JWTExpiration <= 0 {
		c.JWTExpiration = 30 * 60
	}
	if c.DatabaseURL == "" {
		c.DatabaseURL = "agrimarket.db"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.HarvestSweepInterval <= 0 {
		c.HarvestSweepInterval = 60 * 60
	}
	if c.RateLimitRequests <= 0 {
		c.RateLimitRequests = 100
	}
	if c.RateLimitWindow <= 0 {
		c.RateLimitWindow = 60
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.MetricsPort == "" {
		c.MetricsPort = "9090"
	}
}

// String returns a string representation of the configuration without secrets
func (c *Config) String() string {
	return fmt.Sprintf("Config{Environment: %s, Port: %s, DatabaseURL: %s, Timezone: %s}",
		c.Environment, c.Port, c.DatabaseURL, c.Timezone)
}
