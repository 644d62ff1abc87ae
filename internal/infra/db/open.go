package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	pkgconfig "statuswatch/internal/pkg/config"
)

// Driver is a database/sql driver name.
type Driver string

const (
	DriverPostgres Driver = "pgx"
	DriverSQLite   Driver = "sqlite"
)

// ConnectionConfig holds database connection pool configuration.
type ConnectionConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConnectionConfig returns the default connection pool configuration.
// The relay issues one statement at a time, so the pool stays small.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 1 * time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}
}

// ParseDSN picks the driver for dsn and returns the DSN in the form the driver expects.
//
//	postgres://..., postgresql://...  -> pgx
//	sqlite://path, sqlite:path        -> sqlite, prefix stripped
//	file:..., :memory:, anything else -> sqlite, as-is
func ParseDSN(dsn string) (Driver, string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", "", errors.New("database url is empty")
	}

	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DriverPostgres, dsn, nil
	case strings.HasPrefix(lower, "sqlite://"):
		return DriverSQLite, dsn[len("sqlite://"):], nil
	case strings.HasPrefix(lower, "sqlite:"):
		return DriverSQLite, dsn[len("sqlite:"):], nil
	case strings.Contains(lower, "://"):
		return "", "", fmt.Errorf("unsupported database url scheme in %q", redact(dsn))
	default:
		return DriverSQLite, dsn, nil
	}
}

// Open opens and pings the database named by dsn.
func Open(ctx context.Context, dsn string) (*sql.DB, Driver, error) {
	driver, source, err := ParseDSN(dsn)
	if err != nil {
		return nil, "", err
	}

	if driver == DriverSQLite {
		if err := ensureSQLiteDir(source); err != nil {
			return nil, "", err
		}
	}

	db, err := sql.Open(string(driver), source)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", driver, err)
	}

	cfg := getConnectionConfigFromEnv()
	if driver == DriverSQLite {
		// A single writer avoids SQLITE_BUSY and keeps :memory: databases on one connection.
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		if strings.Contains(source, ":memory:") || strings.Contains(source, "mode=memory") {
			cfg.ConnMaxLifetime = 0
			cfg.ConnMaxIdleTime = 0
		}
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	slog.Info("database connection pool configured",
		slog.String("driver", string(driver)),
		slog.Int("max_open_conns", cfg.MaxOpenConns),
		slog.Int("max_idle_conns", cfg.MaxIdleConns),
		slog.Duration("conn_max_lifetime", cfg.ConnMaxLifetime),
		slog.Duration("conn_max_idle_time", cfg.ConnMaxIdleTime))

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("ping %s: %w", driver, err)
	}

	slog.Info("database connection established successfully", slog.String("driver", string(driver)))
	return db, driver, nil
}

func ensureSQLiteDir(source string) error {
	if source == ":memory:" || strings.HasPrefix(source, "file:") {
		return nil
	}
	dir := filepath.Dir(source)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db dir: %w", err)
	}
	return nil
}

// redact drops credentials from a URL-shaped DSN for error messages.
func redact(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = "***" + rest[at:]
	}
	return scheme + "://" + rest
}

// getConnectionConfigFromEnv reads the DB_* pool settings. Invalid values
// keep the defaults with a warning.
func getConnectionConfigFromEnv() ConnectionConfig {
	cfg := DefaultConnectionConfig()
	conns := func(v int) error { return pkgconfig.ValidateIntRange(v, 1, 1000) }
	age := func(d time.Duration) error { return pkgconfig.ValidateDuration(d, time.Second, 24*time.Hour) }

	cfg.MaxOpenConns = pooled(pkgconfig.LoadEnvInt("DB_MAX_OPEN_CONNS", cfg.MaxOpenConns, conns))
	cfg.MaxIdleConns = pooled(pkgconfig.LoadEnvInt("DB_MAX_IDLE_CONNS", cfg.MaxIdleConns, conns))
	cfg.ConnMaxLifetime = pooled(pkgconfig.LoadEnvDuration("DB_CONN_MAX_LIFETIME", cfg.ConnMaxLifetime, age))
	cfg.ConnMaxIdleTime = pooled(pkgconfig.LoadEnvDuration("DB_CONN_MAX_IDLE_TIME", cfg.ConnMaxIdleTime, age))
	return cfg
}

func pooled[T any](r pkgconfig.LoadResult[T]) T {
	for _, w := range r.Warnings {
		slog.Warn("database pool setting ignored", slog.String("warning", w))
	}
	return r.Value
}
