package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"statuswatch/internal/domain/entity"
	"statuswatch/internal/repository"
	"statuswatch/internal/resilience/circuitbreaker"
)

// SeenRepo is the SQLite seen-set store used for single-host deployments.
type SeenRepo struct {
	db   *circuitbreaker.DBCircuitBreaker
	stmt sq.StatementBuilderType
}

func NewSeenRepo(db *sql.DB) *SeenRepo {
	return &SeenRepo{
		db:   circuitbreaker.NewDBCircuitBreaker(db),
		stmt: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
}

var _ repository.SeenRepository = (*SeenRepo)(nil)

func (repo *SeenRepo) HasSeen(ctx context.Context, postID string) (bool, error) {
	query, args, err := repo.stmt.
		Select("1").
		From("seen_posts").
		Where(sq.Eq{"post_id": postID}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, repository.NewStoreError(repository.StoreUnavailable, "has_seen", fmt.Errorf("build query: %w", err))
	}

	var one int
	err = repo.db.QueryRowScan(ctx, query, args, &one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, repository.NewStoreError(classify(err), "has_seen", err)
	}
	return true, nil
}

func (repo *SeenRepo) MarkSeen(ctx context.Context, rec entity.SeenRecord) error {
	if rec.PostID == "" {
		return fmt.Errorf("MarkSeen: %w", &entity.ValidationError{Field: "post_id", Message: "is required"})
	}

	media := "[]"
	if len(rec.Media) > 0 {
		b, err := json.Marshal(rec.Media)
		if err != nil {
			return fmt.Errorf("MarkSeen: marshal media: %w", err)
		}
		media = string(b)
	}

	var postCreatedAt sql.NullTime
	if !rec.PostCreatedAt.IsZero() {
		postCreatedAt = sql.NullTime{Time: rec.PostCreatedAt.UTC(), Valid: true}
	}

	// INSERT OR IGNORE keeps the first record for an id.
	query, args, err := repo.stmt.
		Insert("seen_posts").
		Options("OR IGNORE").
		Columns("post_id", "processed_at", "username", "display_name", "content", "post_created_at", "media").
		Values(rec.PostID, rec.ProcessedAt.UTC(), rec.Username, rec.DisplayName, rec.Content, postCreatedAt, media).
		ToSql()
	if err != nil {
		return repository.NewStoreError(repository.StoreUnavailable, "mark_seen", fmt.Errorf("build query: %w", err))
	}

	if _, err := repo.db.ExecContext(ctx, query, args...); err != nil {
		return repository.NewStoreError(classify(err), "mark_seen", err)
	}
	return nil
}

func classify(err error) repository.StoreErrorKind {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		// extended result codes carry the primary code in the low byte
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return repository.StoreWriteConflict
		}
	}
	return repository.StoreUnavailable
}
