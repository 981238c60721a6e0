package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port             int
	DatabaseURL      string
	RedisURL         string
	NatsURL          string
	NatsToken        string
	LogLevel         string
	AnthropicAPIKey  string
	AnthropicModel   string
	APIToken         string
	OracleTimeout    time.Duration
	BreakerThreshold int
	TaskWorkers      int
}

func Load() Config {
	// Local development convenience; no-op when no .env file exists.
	_ = godotenv.Load()

	return Config{
		Port:             envInt("ACCORD_PORT", 8760),
		DatabaseURL:      envStr("DATABASE_URL", ""),
		RedisURL:         envStr("REDIS_URL", "redis://localhost:6379/0"),
		NatsURL:          envStr("NATS_URL", "nats://localhost:4222"),
		NatsToken:        envStr("NATS_TOKEN", ""),
		LogLevel:         envStr("LOG_LEVEL", "info"),
		AnthropicAPIKey:  envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:   envStr("ACCORD_MODEL", "claude-sonnet-4-20250514"),
		APIToken:         envStr("ACCORD_API_TOKEN", ""),
		OracleTimeout:    time.Duration(envInt("ORACLE_TIMEOUT_SECONDS", 45)) * time.Second,
		BreakerThreshold: envInt("BREAKER_THRESHOLD", 3),
		TaskWorkers:      envInt("TASK_WORKERS", 4),
	}
}

func envStr(key, fallback string) string {
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
