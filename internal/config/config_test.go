package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("MONGO_URI", "")
	t.Setenv("ACCESS_TOKEN_TTL", "")
	t.Setenv("APP_TIMEZONE", "")

	cfg := FromEnv()

	assert.Equal(t, "stockpos", cfg.DBName)
	assert.Equal(t, 30*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "Africa/Kampala", cfg.Timezone)
	assert.False(t, cfg.AllowRegistration)
	assert.Equal(t, 587, cfg.SMTPPort)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL", "15")
	t.Setenv("ALLOW_REGISTRATION", "true")
	t.Setenv("DEFAULT_TAX_RATE", "0.18")
	t.Setenv("APP_BASE_URL", "https://shop.example.com/")

	cfg := FromEnv()

	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.True(t, cfg.AllowRegistration)
	assert.InDelta(t, 0.18, cfg.DefaultTaxRate, 1e-9)
	assert.Equal(t, "https://shop.example.com", cfg.AppBaseURL)
}

func TestFromEnvIgnoresInvalidDuration(t *testing.T) {
	t.Setenv("REFRESH_TOKEN_TTL", "-3")

	cfg := FromEnv()

	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTokenTTL)
}

func TestValidate(t *testing.T) {
	cfg := Config{Timezone: "UTC"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MONGO_URI")
	assert.Contains(t, err.Error(), "JWT_SECRET")

	cfg = Config{MongoURI: "mongodb://localhost", JWTSecret: "s", Timezone: "Africa/Kampala", DefaultTaxRate: 0.1}
	require.NoError(t, cfg.Validate())

	cfg.DefaultTaxRate = 1.5
	require.Error(t, cfg.Validate())
}

func TestLocationFallsBackToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, Config{Timezone: "Not/AZone"}.Location())
	assert.Equal(t, "Africa/Kampala", Config{Timezone: "Africa/Kampala"}.Location().String())
}
