package circuitbreaker

import (
	"context"
	"database/sql"
	"errors"
)

// DBCircuitBreaker guards the seen-store connection. When the database is down
// the relay stops hammering it and the tick fails fast.
type DBCircuitBreaker struct {
	cb *CircuitBreaker
	db *sql.DB
}

// NewDBCircuitBreaker wraps db with the DBConfig preset.
func NewDBCircuitBreaker(db *sql.DB) *DBCircuitBreaker {
	return NewDBCircuitBreakerWithConfig(db, DBConfig())
}

func NewDBCircuitBreakerWithConfig(db *sql.DB, cfg Config) *DBCircuitBreaker {
	return &DBCircuitBreaker{cb: New(cfg), db: db}
}

// ExecContext runs a statement through the breaker.
func (dcb *DBCircuitBreaker) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return Do(dcb.cb, func() (sql.Result, error) {
		return dcb.db.ExecContext(ctx, query, args...)
	})
}

// QueryRowScan runs a single-row query and scans it into dest through the breaker.
// Unlike QueryRowContext the error surfaces inside the breaker, so failed scans count.
// sql.ErrNoRows is returned to the caller but is not a database failure.
func (dcb *DBCircuitBreaker) QueryRowScan(ctx context.Context, query string, args []any, dest ...any) error {
	var noRows bool
	err := dcb.cb.Run(func() error {
		err := dcb.db.QueryRowContext(ctx, query, args...).Scan(dest...)
		if errors.Is(err, sql.ErrNoRows) {
			noRows = true
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	if noRows {
		return sql.ErrNoRows
	}
	return nil
}

// Breaker exposes the underlying breaker for state checks.
func (dcb *DBCircuitBreaker) Breaker() *CircuitBreaker {
	return dcb.cb
}
