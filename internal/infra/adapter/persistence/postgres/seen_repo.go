package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"

	"statuswatch/internal/domain/entity"
	"statuswatch/internal/repository"
	"statuswatch/internal/resilience/circuitbreaker"
)

const seenTable = "seen_posts"

var seenColumns = []string{
	"post_id", "processed_at", "username", "display_name", "content", "post_created_at", "media",
}

// SeenRepo is the PostgreSQL seen-set store.
type SeenRepo struct {
	db   *circuitbreaker.DBCircuitBreaker
	stmt sq.StatementBuilderType
}

// NewSeenRepo creates a store on db, guarded by the database circuit breaker.
func NewSeenRepo(db *sql.DB) *SeenRepo {
	return NewSeenRepoWithBreaker(circuitbreaker.NewDBCircuitBreaker(db))
}

// NewSeenRepoWithBreaker creates a store on an existing breaker-wrapped connection.
func NewSeenRepoWithBreaker(db *circuitbreaker.DBCircuitBreaker) *SeenRepo {
	return &SeenRepo{
		db:   db,
		stmt: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

var _ repository.SeenRepository = (*SeenRepo)(nil)

func (repo *SeenRepo) HasSeen(ctx context.Context, postID string) (bool, error) {
	query, args, err := repo.stmt.
		Select("1").
		From(seenTable).
		Where(sq.Eq{"post_id": postID}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, repository.NewStoreError(repository.StoreUnavailable, "has_seen", fmt.Errorf("build query: %w", err))
	}

	var one int
	err = repo.db.QueryRowScan(ctx, query, args, &one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, repository.NewStoreError(classify(err), "has_seen", err)
	}
	return true, nil
}

func (repo *SeenRepo) MarkSeen(ctx context.Context, rec entity.SeenRecord) error {
	if rec.PostID == "" {
		return fmt.Errorf("MarkSeen: %w", &entity.ValidationError{Field: "post_id", Message: "is required"})
	}

	media, err := marshalMedia(rec.Media)
	if err != nil {
		return fmt.Errorf("MarkSeen: %w", err)
	}

	query, args, err := repo.stmt.
		Insert(seenTable).
		Columns(seenColumns...).
		Values(
			rec.PostID,
			rec.ProcessedAt.UTC(),
			rec.Username,
			rec.DisplayName,
			rec.Content,
			nullTime(rec),
			media,
		).
		Suffix("ON CONFLICT (post_id) DO NOTHING").
		ToSql()
	if err != nil {
		return repository.NewStoreError(repository.StoreUnavailable, "mark_seen", fmt.Errorf("build query: %w", err))
	}

	if _, err := repo.db.ExecContext(ctx, query, args...); err != nil {
		return repository.NewStoreError(classify(err), "mark_seen", err)
	}
	return nil
}

// classify maps driver errors to store error kinds.
func classify(err error) repository.StoreErrorKind {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01", // deadlock_detected
			"55P03": // lock_not_available
			return repository.StoreWriteConflict
		}
	}
	return repository.StoreUnavailable
}

func marshalMedia(items []entity.MediaItem) (string, error) {
	if len(items) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("marshal media: %w", err)
	}
	return string(b), nil
}

func nullTime(rec entity.SeenRecord) sql.NullTime {
	if rec.PostCreatedAt.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: rec.PostCreatedAt.UTC(), Valid: true}
}
