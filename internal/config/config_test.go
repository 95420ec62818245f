package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "APP_ENV", "DATABASE_URL", "REDIS_ADDR", "STOCK_RETRY_MAX", "STOCK_RETRY_BACKOFF",
		"SIDE_EFFECT_WORKERS", "SIDE_EFFECT_QUEUE", "SIDE_EFFECT_TIMEOUT", "ALERT_SCAN_INTERVAL",
		"LOW_STOCK_ALERT_WINDOW", "LOW_ROTATION_WINDOW", "RATE_LIMIT_PER_MINUTE",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, "development", cfg.Env)
	assert.False(t, cfg.IsProduction())
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, 1, cfg.StockRetryMax)
	assert.Equal(t, 25*time.Millisecond, cfg.StockRetryBackoff)
	assert.Equal(t, 4, cfg.SideEffectWorkers)
	assert.Equal(t, 256, cfg.SideEffectQueue)
	assert.Equal(t, 3*time.Second, cfg.SideEffectTimeout)
	assert.Equal(t, time.Hour, cfg.AlertScanInterval)
	assert.Equal(t, 24*time.Hour, cfg.LowStockAlertWindow)
	assert.Equal(t, 7*24*time.Hour, cfg.LowRotationWindow)
	assert.Equal(t, 300, cfg.RateLimitPerMinute)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "Production")
	t.Setenv("STOCK_RETRY_MAX", "3")
	t.Setenv("STOCK_RETRY_BACKOFF", "100ms")
	t.Setenv("LOW_ROTATION_WINDOW", "14d")
	t.Setenv("SIDE_EFFECT_TIMEOUT", "5")
	t.Setenv("SIDE_EFFECT_WORKERS", "0")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := Load()
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 3, cfg.StockRetryMax)
	assert.Equal(t, 100*time.Millisecond, cfg.StockRetryBackoff)
	assert.Equal(t, 14*24*time.Hour, cfg.LowRotationWindow)
	assert.Equal(t, 5*time.Second, cfg.SideEffectTimeout)
	assert.Equal(t, 4, cfg.SideEffectWorkers)
	assert.Equal(t, 0, cfg.RedisDB)
}
