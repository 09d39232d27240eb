package main

import (
	"context"
	"errors"
	"os"

	"rentdesk/internal/amqp"
	"rentdesk/internal/cli"
	"rentdesk/internal/log"
	"rentdesk/internal/rentroll"
	"rentdesk/internal/rentroll/google"
	"rentdesk/internal/rentroll/memory"
	"rentdesk/internal/services"
	"rentdesk/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL")).WithComponent(log.ComponentWorker)
	logger.Info("Starting ledger-worker")
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

	var writer rentroll.Writer
	if cfg.RentRollEnabled() {
		sheets, err := google.New(ctx, google.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.RentRollSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		}, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		writer = sheets
		logger.Info("Google Sheets rent roll enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		writer = memory.New()
		logger.Info("Google Sheets disabled - rent roll kept in memory")
	}

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the ledger worker")
		os.Exit(1)
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	ledger := worker.NewLedgerWorker(repo, writer, summaries, services.SystemClock(cfg.Location()), cfg.ExportBatchSize, logger)

	logger.Info("Performing startup sync check...")
	if err := ledger.StartupSyncCheck(ctx); err != nil {
		// Keep consuming; the next restart retries the backlog.
		logger.Error("Failed startup sync check", log.FieldError, err)
	}

	if err := client.ConsumePaymentEvents(ctx, ledger.HandlePaymentEvent); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
