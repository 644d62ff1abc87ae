package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"statuswatch/internal/observability/logging"
)

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single poll cycle and exit",
	Long: `Once fetches the account's posts, relays the unseen ones and records
them, exactly like one tick of run. It exits non-zero when the tick fails.`,
	Args: cobra.NoArgs,
	RunE: runOnce,
}

func init() {
	rootCmd.AddCommand(onceCmd)
}

func runOnce(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadRelayConfig(nil)
	if err != nil {
		return err
	}

	ctx, stop := notifySignals(cmd.Context())
	defer stop()
	ctx = logging.WithLogger(ctx, logger)
	svc, cleanup, err := newService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := svc.Tick(ctx)
	if err != nil {
		return fmt.Errorf("tick %s: %w", res.TickID, err)
	}

	logger.Info("poll cycle finished",
		slog.String("tick_id", res.TickID),
		slog.Int("fetched", res.Fetched),
		slog.Int("delivered", res.Delivered),
		slog.Int("failed", res.Failed))
	fmt.Fprintf(cmd.OutOrStdout(), "fetched %d, already seen %d, delivered %d, failed %d\n",
		res.Fetched, res.AlreadySeen, res.Delivered, res.Failed)
	return nil
}
