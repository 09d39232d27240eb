package main

import (
	"os"
	"time"

	"rentdesk/internal/cli"
	"rentdesk/internal/log"
	"rentdesk/internal/services"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL")).WithComponent(log.ComponentLedger)
	logger.Info("Starting charge-worker")
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	summaries, closeCache, err := cli.NewSummaryCache(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize summary cache", log.FieldError, err, "backend", cfg.CacheBackend)
		os.Exit(1)
	}
	defer closeCache()

	processor := services.NewChargeProcessor(repo, summaries, logger)
	scheduler := services.NewChargeScheduler(processor, services.SystemClock(cfg.Location()), cfg.ChargeInterval, logger)

	logger.Info("Rent charge scheduler configured",
		"interval", cfg.ChargeInterval,
		"timezone", cfg.Timezone,
		"sqlite_db", cfg.SQLiteDBPath)

	if err := scheduler.Start(ctx); err != nil {
		logger.Error("Failed to start charge scheduler", log.FieldError, err)
		os.Exit(1)
	}

	<-ctx.Done()

	shutdownCtx, cancel := cli.ShutdownContext(30 * time.Second)
	defer cancel()
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Warn("Shutdown timeout reached", log.FieldError, err)
		return
	}
	logger.Info("Charge worker shutdown complete")
}
