package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/accord/internal/anthropic"
	"github.com/MikeSquared-Agency/accord/internal/api"
	"github.com/MikeSquared-Agency/accord/internal/config"
	"github.com/MikeSquared-Agency/accord/internal/counters"
	"github.com/MikeSquared-Agency/accord/internal/oracle"
	"github.com/MikeSquared-Agency/accord/internal/realtime"
	"github.com/MikeSquared-Agency/accord/internal/reconciler"
	"github.com/MikeSquared-Agency/accord/internal/store"
	"github.com/MikeSquared-Agency/accord/internal/tasks"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("accord starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database connected")

	// Redis: attempt counters plus the reveal lock
	attemptCounters, err := counters.New(cfg.RedisURL)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer attemptCounters.Close()
	locks := counters.NewSessionLock(attemptCounters.Client())
	slog.Info("redis connected")

	// Anthropic client
	if cfg.AnthropicAPIKey == "" {
		slog.Error("ANTHROPIC_API_KEY is required")
		os.Exit(1)
	}
	llm := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	slog.Info("anthropic client ready", "model", cfg.AnthropicModel)

	// Empathy oracle
	orc := oracle.New(llm, cfg.OracleTimeout, slog.Default())

	// NATS realtime fan-out
	rt, err := realtime.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer rt.Close()
	slog.Info("NATS connected", "url", cfg.NatsURL)

	// Background analysis queue
	queue := tasks.NewQueue(cfg.TaskWorkers, slog.Default())

	// Reconciler engine
	engine := reconciler.NewEngine(db, orc, attemptCounters, locks, rt, cfg.BreakerThreshold, slog.Default())

	// HTTP API
	srv := api.NewServer(cfg.Port, cfg.APIToken, engine, db, queue, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	// Announce on the bus
	if err := rt.Publish(realtime.SubjectAnnounce, map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"port":      cfg.Port,
	}); err != nil {
		slog.Warn("failed to publish announcement", "error", err)
	}

	slog.Info("accord ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	queue.Close()
	cancel()
	slog.Info("accord stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
