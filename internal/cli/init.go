// Package cli provides common CLI initialization utilities shared by
// cmd/rentdesk, cmd/ledger-worker and cmd/charge-worker.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"rentdesk/internal/amqp"
	"rentdesk/internal/cache"
	"rentdesk/internal/config"
	"rentdesk/internal/log"
	"rentdesk/internal/services"
	"rentdesk/internal/storage"
)

// summaryCacheSize bounds the in-memory summary cache.
const summaryCacheSize = 1000

// SetupLogger builds the process logger at the given level and installs it as
// the slog default. An unknown level falls back to info.
func SetupLogger(level string) *log.Logger {
	cfg := log.DefaultConfig()
	if lvl, err := log.ParseLevel(level); err == nil {
		cfg.Level = lvl
	}
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// InitSQLite initializes a SQLite repository with the given path.
// Returns the repository or exits the process on failure.
func InitSQLite(logger *log.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath, storage.WithLogger(logger))
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err, "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// NewSummaryCache builds the dashboard summary cache selected by
// CACHE_BACKEND. The returned close func releases it.
func NewSummaryCache(ctx context.Context, cfg *config.Config, logger *log.Logger) (services.SummaryCache, func(), error) {
	switch cfg.CacheBackend {
	case "redis":
		client, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Redis summary cache ready", "addr", cfg.RedisAddr, "ttl", cfg.CacheTTL)
		return cache.NewRedisCache[services.CachedSummary](client, "", cfg.CacheTTL), func() { _ = client.Close() }, nil
	case "memory", "":
		lru := cache.NewLRUCache[services.CachedSummary](summaryCacheSize, cfg.CacheTTL)
		manager := cache.NewManager(logger)
		manager.Register(lru)
		manager.StartCleanup(ctx, cfg.CacheTTL)
		logger.Info("In-memory summary cache ready", "size", summaryCacheSize, "ttl", cfg.CacheTTL)
		return lru, manager.Stop, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

// InitPublisher connects the payment event publisher. When AMQP is disabled
// or unreachable it returns a nil publisher and the caller runs without
// events.
func InitPublisher(cfg *config.Config, logger *log.Logger) (services.EventPublisher, func()) {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP disabled - payment events will not be published")
		return nil, func() {}
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Warn("Failed to initialize AMQP client, continuing without payment events", log.FieldError, err)
		return nil, func() {}
	}
	logger.Info("AMQP publisher initialized", "exchange", cfg.AMQPExchange)
	return client, func() { _ = client.Close() }
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// ShutdownContext bounds the time given to cleanup after a signal.
func ShutdownContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
