package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"statuswatch/internal/config"
	"statuswatch/internal/infra/adapter/persistence/memory"
	"statuswatch/internal/infra/adapter/persistence/postgres"
	"statuswatch/internal/infra/adapter/persistence/sqlite"
	"statuswatch/internal/infra/db"
	"statuswatch/internal/infra/notifier"
	"statuswatch/internal/infra/upstream"
	"statuswatch/internal/repository"
	"statuswatch/internal/resilience/circuitbreaker"
	"statuswatch/internal/resilience/retry"
	"statuswatch/internal/usecase/relay"
)

func upstreamOptions(cfg *config.Config) upstream.Options {
	return upstream.Options{
		Instance:         cfg.Upstream.Instance,
		FetchMode:        cfg.Upstream.FetchMode,
		ProxyMode:        cfg.Upstream.ProxyMode,
		RequestTimeout:   cfg.Upstream.RequestTimeout,
		HTTPProxyURL:     cfg.Upstream.HTTPProxyURL,
		ScrapeOpsAPIKey:  cfg.Upstream.ScrapeOpsAPIKey,
		ScrapeOpsCountry: cfg.Upstream.ScrapeOpsCountry,
		FlareSolverrHost: cfg.Upstream.FlareSolverrHost,
		FlareSolverrPort: cfg.Upstream.FlareSolverrPort,
		IncludeReplies:   cfg.Upstream.IncludeReplies,
		IncludeReblogs:   cfg.Upstream.IncludeReblogs,
		MaxAttempts:      cfg.Upstream.MaxRetries,
	}
}

func newFetcher(cfg *config.Config) (relay.PostFetcher, error) {
	opts := upstreamOptions(cfg)
	transport, err := upstream.NewTransport(opts)
	if err != nil {
		return nil, fmt.Errorf("create %s transport: %w", opts.ProxyMode, err)
	}
	fetcher, err := upstream.NewFetcher(opts, transport)
	if err != nil {
		return nil, err
	}
	return fetcher, nil
}

func newNotifier(cfg *config.Config) relay.Notifier {
	formatter := notifier.MessageFormatter{
		Label:    cfg.Notify.PostLabel,
		Location: cfg.Location(),
	}
	if !cfg.Notify.Enabled {
		return notifier.NewNoOpNotifier(formatter)
	}

	switch cfg.Notify.Channel {
	case config.ChannelSlack:
		return notifier.NewSlackNotifier(notifier.SlackConfig{
			WebhookURL:  cfg.Notify.WebhookURL,
			Formatter:   formatter,
			Timeout:     cfg.Upstream.RequestTimeout,
			MinInterval: cfg.Notify.MinInterval,
			Retry:       retry.NotifyConfig(cfg.Notify.MaxRetries),
		})
	default:
		return notifier.NewDiscordNotifier(notifier.DiscordConfig{
			WebhookURL:  cfg.Notify.WebhookURL,
			Username:    cfg.Notify.Username,
			Formatter:   formatter,
			Timeout:     cfg.Upstream.RequestTimeout,
			MinInterval: cfg.Notify.MinInterval,
			Retry:       retry.NotifyConfig(cfg.Notify.MaxRetries),
		})
	}
}

// openStore opens the seen store named by DATABASE_URL and migrates its schema.
// In dry-run mode an in-memory store is used instead.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.SeenRepository, func(), error) {
	if dryRun {
		logger.Info("dry run: seen posts are kept in memory")
		return memory.NewSeenRepo(), func() {}, nil
	}

	// The database container may still be starting; connection refusals are retried.
	var (
		database *sql.DB
		driver   db.Driver
	)
	err := retry.WithBackoff(ctx, retry.DBConfig(), func() error {
		var openErr error
		database, driver, openErr = db.Open(ctx, cfg.DatabaseURL)
		return openErr
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	closeFn := func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}

	if err := db.MigrateUp(ctx, database, driver); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}

	if driver == db.DriverPostgres {
		return postgres.NewSeenRepoWithBreaker(circuitbreaker.NewDBCircuitBreaker(database)), closeFn, nil
	}
	return sqlite.NewSeenRepo(database), closeFn, nil
}

// newService wires the relay from cfg. The returned cleanup closes the store.
func newService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*relay.Service, func(), error) {
	schedule, err := relay.NewSchedule(cfg.Poll.Interval, cfg.Poll.Schedule)
	if err != nil {
		return nil, nil, err
	}
	fetcher, err := newFetcher(cfg)
	if err != nil {
		return nil, nil, err
	}
	store, cleanup, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	svc := relay.NewService(relay.Config{
		Account:        cfg.Account,
		IncludeReplies: cfg.Upstream.IncludeReplies,
		IncludeReblogs: cfg.Upstream.IncludeReblogs,
		Schedule:       schedule,
	}, fetcher, newNotifier(cfg), store)
	return svc, cleanup, nil
}
