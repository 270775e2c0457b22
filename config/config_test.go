package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigLoading(t *testing.T) {
	t.Run("LoadDefaultConfig", func(t *testing.T) {
		cfg := Load()

		assert.NotNil(t, cfg)
		assert.NotEmpty(t, cfg.JWTSecret)
		assert.NotEmpty(t, cfg.DatabaseURL)
		assert.NotEmpty(t, cfg.Environment)
		assert.NotEmpty(t, cfg.Port)
	})

	t.Run("LoadConfigFromEnvironment", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "test-jwt-secret")
		t.Setenv("DATABASE_URL", ":memory:")
		t.Setenv("ENVIRONMENT", "test")
		t.Setenv("PORT", "9000")
		t.Setenv("JWT_EXPIRATION", "600")
		t.Setenv("TIMEZONE", "Africa/Nairobi")
		t.Setenv("HARVEST_SWEEP_ENABLED", "false")
		t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

		cfg := Load()

		assert.Equal(t, "test-jwt-secret", cfg.JWTSecret)
		assert.Equal(t, ":memory:", cfg.DatabaseURL)
		assert.Equal(t, "test", cfg.Environment)
		assert.Equal(t, "9000", cfg.Port)
		assert.Equal(t, 600, cfg.JWTExpiration)
		assert.Equal(t, "Africa/Nairobi", cfg.Timezone)
		assert.False(t, cfg.HarvestSweepEnabled)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	})

	t.Run("SessionsLastThirtyMinutesByDefault", func(t *testing.T) {
		t.Setenv("JWT_EXPIRATION", "")

		cfg := Load()
		assert.Equal(t, 1800, cfg.JWTExpiration)
	})

	t.Run("InvalidNumbersFallBackToDefaults", func(t *testing.T) {
		t.Setenv("RATE_LIMIT_REQUESTS", "lots")
		t.Setenv("ENABLE_METRICS", "maybe")

		cfg := Load()
		assert.Equal(t, 100, cfg.RateLimitRequests)
		assert.False(t, cfg.EnableMetrics)
	})

	t.Run("RedisDisabledByDefault", func(t *testing.T) {
		t.Setenv("REDIS_URL", "")

		cfg := Load()
		assert.Empty(t, cfg.RedisURL)
	})
}

func TestConfigValidation(t *testing.T) {
	t.Run("DefaultsAreValid", func(t *testing.T) {
		t.Setenv("ENVIRONMENT", "development")

		cfg := Load()
		require.NoError(t, cfg.Validate())
	})

	t.Run("InvalidEnvironment", func(t *testing.T) {
		cfg := &Config{JWTSecret: "secret", DatabaseURL: "x.db", Environment: "invalid"}
		assert.Error(t, cfg.Validate())
	})

	t.Run("MissingFields", func(t *testing.T) {
		cfg := &Config{Environment: "test"}
		assert.Error(t, cfg.Validate())
	})

	t.Run("ProductionRejectsDefaultSecret", func(t *testing.T) {
		cfg := &Config{}
		cfg.SetDefaults()
		cfg.Environment = "production"

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "production")
	})

	t.Run("SetDefaultsProducesValidConfig", func(t *testing.T) {
		cfg := &Config{}
		cfg.SetDefaults()

		require.NoError(t, cfg.Validate())
		assert.Equal(t, "UTC", cfg.Timezone)
		assert.Equal(t, 1800, cfg.JWTExpiration)
	})
}

func TestConfigHelpers(t *testing.T) {
	t.Run("StringOmitsSecrets", func(t *testing.T) {
		cfg := &Config{Environment: "test", Port: "8080", DatabaseURL: "x.db", JWTSecret: "top-secret"}
		assert.NotContains(t, cfg.String(), "top-secret")
	})
}
