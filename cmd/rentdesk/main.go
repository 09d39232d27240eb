package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"rentdesk/internal/cli"
	apphttp "rentdesk/internal/http"
	"rentdesk/internal/log"
	"rentdesk/internal/middleware/ratelimit"
	"rentdesk/internal/services"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
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

	publisher, closePublisher := cli.InitPublisher(cfg, logger)
	defer closePublisher()

	clock := services.SystemClock(cfg.Location())
	reconciler := services.NewReconciler(
		services.WithClock(clock),
		services.WithLogger(logger.WithComponent(log.ComponentDashboard).Slog()))
	dashboards := services.NewDashboardService(repo, repo, reconciler, clock,
		services.WithSummaryCache(summaries),
		services.WithRentRollConcurrency(cfg.RentRollConcurrency),
		services.WithDashboardLogger(logger))
	payments := services.NewPaymentService(repo, repo, publisher, summaries, logger)

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Dashboards:     dashboards,
		Payments:       payments,
		Ready:          repo,
		Logger:         logger,
		CurrencySymbol: cfg.CurrencySymbol,
		RateLimit:      ratelimit.DefaultConfig(),
	})
	if err != nil {
		logger.Error("Failed to build HTTP server", log.FieldError, err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting rentdesk server", "port", cfg.Port, "timezone", cfg.Timezone)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := cli.ShutdownContext(30 * time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
