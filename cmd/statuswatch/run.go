package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"statuswatch/internal/infra/worker"
	"statuswatch/internal/observability/logging"
	"statuswatch/internal/observability/tracing"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the poll loop until interrupted",
	Long: `Run migrates the seen store, then polls the account on the configured
interval or cron schedule until SIGINT or SIGTERM. The health and metrics
servers run alongside the loop.`,
	Args: cobra.NoArgs,
	RunE: runRelay,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRelay(cmd *cobra.Command, _ []string) error {
	ctx, stop := notifySignals(cmd.Context())
	defer stop()

	workerMetrics := worker.NewWorkerMetrics()
	cfg, logger, err := loadRelayConfig(workerMetrics.ConfigMetrics)
	if err != nil {
		return err
	}
	workerMetrics.RecordStart(Version)
	logger.Info("configuration loaded", slog.Any("config", cfg), slog.Bool("dry_run", dryRun))

	shutdownTracing := tracing.Init()
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("failed to shut down tracing", slog.Any("error", err))
		}
	}()

	ctx = logging.WithLogger(ctx, logger)
	svc, cleanup, err := newService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	health := worker.NewHealthServer(worker.Addr(cfg.HealthPort), svc, logger).
		WithMaxConsecutiveFailures(cfg.ReadyMaxFailures)
	metrics := worker.NewMetricsServer(worker.Addr(cfg.MetricsPort), logger)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.HealthPort != 0 {
		g.Go(func() error { return health.Start(gctx) })
	}
	if cfg.MetricsPort != 0 {
		g.Go(func() error { return metrics.Start(gctx) })
	}
	g.Go(func() error {
		health.SetReady(true)
		workerMetrics.SetReady(true)
		defer func() {
			health.SetReady(false)
			workerMetrics.SetReady(false)
		}()

		logger.Info("relay started", slog.String("account", cfg.Account))
		err := svc.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	err = g.Wait()
	logger.Info("relay stopped", slog.Any("error", err))
	return err
}
