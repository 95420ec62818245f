package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	Env           string
	AllowedOrigin string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	AuthSecret    string

	StockRetryMax     int
	StockRetryBackoff time.Duration

	SideEffectWorkers int
	SideEffectQueue   int
	SideEffectTimeout time.Duration

	AlertScanInterval   time.Duration
	LowStockAlertWindow time.Duration
	LowRotationWindow   time.Duration

	RateLimitPerMinute int
}

// Load reads the process environment, after merging a .env file when one exists.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:          getEnv("PORT", "8080"),
		Env:           strings.ToLower(getEnv("APP_ENV", "development")),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0, 0),
		AuthSecret:    strings.TrimSpace(os.Getenv("AUTH_SECRET")),

		StockRetryMax:     getInt("STOCK_RETRY_MAX", 1, 0),
		StockRetryBackoff: getDuration("STOCK_RETRY_BACKOFF", 25*time.Millisecond),

		SideEffectWorkers: getInt("SIDE_EFFECT_WORKERS", 4, 1),
		SideEffectQueue:   getInt("SIDE_EFFECT_QUEUE", 256, 1),
		SideEffectTimeout: getDuration("SIDE_EFFECT_TIMEOUT", 3*time.Second),

		AlertScanInterval:   getDuration("ALERT_SCAN_INTERVAL", time.Hour),
		LowStockAlertWindow: getDuration("LOW_STOCK_ALERT_WINDOW", 24*time.Hour),
		LowRotationWindow:   getDuration("LOW_ROTATION_WINDOW", 7*24*time.Hour),

		RateLimitPerMinute: getInt("RATE_LIMIT_PER_MINUTE", 300, 1),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

// getInt falls back when the value is missing, malformed or below min.
func getInt(key string, fallback, min int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min {
		return fallback
	}
	return n
}

// getDuration accepts Go durations, a day suffix ("7d") or bare seconds.
func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil && d >= 0 {
		return d
	}
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		if n, err := strconv.Atoi(days); err == nil && n >= 0 {
			return time.Duration(n) * 24 * time.Hour
		}
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
