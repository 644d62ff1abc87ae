package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"statuswatch/internal/config"
	"statuswatch/internal/observability/logging"
	pkgconfig "statuswatch/internal/pkg/config"
)

// Version is set via ldflags at build time.
var Version = "dev"

var (
	configFile string
	envFile    string
	dryRun     bool
)

var rootCmd = &cobra.Command{
	Use:   "statuswatch",
	Short: "Relay new posts from one social account to a webhook",
	Long: `statuswatch polls one account's public posts on a Mastodon-compatible
instance, relays every post it has not seen before to Discord or Slack, and
records delivered posts so nothing is sent twice across restarts.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "statuswatch %s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML file of settings (environment overrides it)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config file")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "keep seen posts in memory and log messages instead of sending them")
	rootCmd.AddCommand(versionCmd)
}

func loadOptions(metrics *pkgconfig.ConfigMetrics) config.LoadOptions {
	return config.LoadOptions{
		File:     configFile,
		EnvFiles: []string{envFile},
		Metrics:  metrics,
	}
}

// loadRelayConfig loads the full configuration. In dry-run mode the webhook
// and database are not used, so they are not required.
func loadRelayConfig(metrics *pkgconfig.ConfigMetrics) (*config.Config, *slog.Logger, error) {
	opts := loadOptions(metrics)
	if err := config.ApplySources(opts); err != nil {
		return nil, nil, err
	}

	cfg := config.FromEnv(logging.NewLogger(), metrics)
	if dryRun {
		cfg.Notify.Enabled = false
		if cfg.DatabaseURL == "" {
			cfg.DatabaseURL = "memory"
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger := setupLogger(cfg)
	return cfg, logger, nil
}

func setupLogger(cfg *config.Config) *slog.Logger {
	if _, ok := logging.ParseLevel(cfg.LogLevel); !ok {
		slog.Warn("unknown LOG_LEVEL, using info", slog.String("value", cfg.LogLevel))
	}
	if !logging.ValidFormat(cfg.LogFormat) {
		slog.Warn("unknown LOG_FORMAT, using json", slog.String("value", cfg.LogFormat))
	}
	logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	slog.SetDefault(logger)
	return logger
}
