package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv   string
	HTTPPort string

	PostgresDSN string
	RedisAddr   string

	QueueKey      string
	ProcessingKey string
	ClaimsKey     string

	Workers     int
	MaxAttempts int

	// HandlerTimeout bounds a single handler invocation. VisibilityTimeout is
	// how long a claimed queue message stays invisible before the reaper
	// requeues it; it must outlast HandlerTimeout or a live worker would race
	// its own redelivery.
	HandlerTimeout    time.Duration
	VisibilityTimeout time.Duration

	DownloadTTL   time.Duration
	SigningSecret string
	PublicBaseURL string

	// Payloads larger than this are spilled to the artifact store instead of
	// being kept inline in the ledger row.
	InlinePayloadLimit int
}

func Load() (Config, error) {
	// Optional .env for local runs.
	_ = godotenv.Load()

	c := Config{
		AppEnv:   envOr("APP_ENV", "development"),
		HTTPPort: envOr("PORT", "8080"),

		QueueKey:      envOr("REDIS_QUEUE_KEY", "jobs:queue"),
		ProcessingKey: envOr("REDIS_PROCESSING_KEY", "jobs:processing"),
		ClaimsKey:     envOr("REDIS_CLAIMS_KEY", "jobs:claims"),

		Workers:     envIntOr("WORKERS", 4),
		MaxAttempts: envIntOr("MAX_ATTEMPTS", 3),

		HandlerTimeout:    envDurOr("HANDLER_TIMEOUT", 60*time.Second),
		VisibilityTimeout: envDurOr("VISIBILITY_TIMEOUT", 5*time.Minute),

		DownloadTTL:   envDurOr("DOWNLOAD_URL_TTL", 15*time.Minute),
		PublicBaseURL: envOr("PUBLIC_BASE_URL", "http://localhost:8080"),

		InlinePayloadLimit: envIntOr("INLINE_PAYLOAD_LIMIT", 64*1024),
	}

	var err error
	if c.PostgresDSN, err = mustEnv("POSTGRES_DSN"); err != nil {
		return c, err
	}
	if c.RedisAddr, err = mustEnv("REDIS_ADDR"); err != nil {
		return c, err
	}
	if c.SigningSecret, err = mustEnv("URL_SIGNING_SECRET"); err != nil {
		return c, err
	}

	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.VisibilityTimeout <= c.HandlerTimeout {
		c.VisibilityTimeout = c.HandlerTimeout + time.Minute
	}

	return c, nil
}

func mustEnv(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("missing env: %s", key)
	}
	return v, nil
}

func envOr(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func envDurOr(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
