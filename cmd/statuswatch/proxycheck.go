package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"statuswatch/internal/config"
	"statuswatch/internal/infra/upstream"
	"statuswatch/internal/observability/logging"
)

var (
	echoURL      string
	checkTimeout time.Duration
)

var proxyCheckCmd = &cobra.Command{
	Use:   "proxy-check",
	Short: "Show the public IP seen through the configured proxy",
	Long: `proxy-check sends one request through the transport selected by
PROXY_MODE to an IP echo service and prints the address the remote side saw.
Use it to confirm the proxy is reachable and routes traffic as expected.`,
	Args: cobra.NoArgs,
	RunE: runProxyCheck,
}

func init() {
	proxyCheckCmd.Flags().StringVar(&echoURL, "echo-url", upstream.IPEchoURL, "service that answers with {\"ip\": ...}")
	proxyCheckCmd.Flags().DurationVar(&checkTimeout, "timeout", time.Minute, "overall timeout")
	rootCmd.AddCommand(proxyCheckCmd)
}

func runProxyCheck(cmd *cobra.Command, _ []string) error {
	if err := config.ApplySources(loadOptions(nil)); err != nil {
		return err
	}
	cfg := config.FromEnv(logging.NewLogger(), nil)
	logger := setupLogger(cfg)

	transport, err := upstream.NewTransport(upstreamOptions(cfg))
	if err != nil {
		return &config.Error{Problems: []string{err.Error()}}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), checkTimeout)
	defer cancel()

	start := time.Now()
	ip, err := upstream.PublicIP(ctx, transport, echoURL)
	if err != nil {
		return fmt.Errorf("proxy check via %s: %w", transport.Name(), err)
	}

	logger.Info("proxy check succeeded",
		slog.String("transport", transport.Name()),
		slog.String("ip", ip),
		slog.Duration("elapsed", time.Since(start)))
	fmt.Fprintf(cmd.OutOrStdout(), "%s: public ip %s\n", transport.Name(), ip)
	return nil
}
