package db

import (
	"context"
	"database/sql"
	"fmt"
)

// seenPostsDDL holds the seen_posts schema per dialect.
// post_id is the primary key, so a second insert of the same id can never
// create a second row.
var seenPostsDDL = map[Driver]string{
	DriverPostgres: `
CREATE TABLE IF NOT EXISTS seen_posts (
    post_id         TEXT PRIMARY KEY,
    processed_at    TIMESTAMPTZ NOT NULL,
    username        TEXT NOT NULL DEFAULT '',
    display_name    TEXT NOT NULL DEFAULT '',
    content         TEXT NOT NULL DEFAULT '',
    post_created_at TIMESTAMPTZ,
    media           JSONB NOT NULL DEFAULT '[]'
)`,
	DriverSQLite: `
CREATE TABLE IF NOT EXISTS seen_posts (
    post_id         TEXT PRIMARY KEY,
    processed_at    DATETIME NOT NULL,
    username        TEXT NOT NULL DEFAULT '',
    display_name    TEXT NOT NULL DEFAULT '',
    content         TEXT NOT NULL DEFAULT '',
    post_created_at DATETIME,
    media           TEXT NOT NULL DEFAULT '[]'
)`,
}

var seenPostsIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_seen_posts_processed_at ON seen_posts(processed_at DESC)`,
}

// MigrateUp creates the seen_posts table and its indexes. It is safe to run on
// every start.
func MigrateUp(ctx context.Context, db *sql.DB, driver Driver) error {
	ddl, ok := seenPostsDDL[driver]
	if !ok {
		return fmt.Errorf("migrate: unsupported driver %q", driver)
	}

	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("migrate: create seen_posts: %w", err)
	}

	for _, idx := range seenPostsIndexes {
		if _, err := db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("migrate: create index: %w", err)
		}
	}

	return nil
}

// MigrateDown drops the seen_posts table.
// Use with caution: every post will be delivered again on the next tick.
func MigrateDown(ctx context.Context, db *sql.DB) error {
	dropStatements := []string{
		`DROP INDEX IF EXISTS idx_seen_posts_processed_at`,
		`DROP TABLE IF EXISTS seen_posts`,
	}

	for _, stmt := range dropStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
	}

	return nil
}
