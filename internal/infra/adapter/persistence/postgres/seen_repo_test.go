package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statuswatch/internal/domain/entity"
	"statuswatch/internal/infra/adapter/persistence/postgres"
	"statuswatch/internal/repository"
)

var hasSeenSQL = regexp.QuoteMeta(`SELECT 1 FROM seen_posts WHERE post_id = $1 LIMIT 1`)
var markSeenSQL = regexp.QuoteMeta(`INSERT INTO seen_posts (post_id,processed_at,username,display_name,content,post_created_at,media) VALUES ($1,$2,$3,$4,$5,$6,$7) ON CONFLICT (post_id) DO NOTHING`)

func sampleRecord() entity.SeenRecord {
	return entity.SeenRecord{
		PostID:        "113456789012345678",
		ProcessedAt:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Username:      "alice",
		DisplayName:   "Alice",
		Content:       "<p>hello</p>",
		PostCreatedAt: time.Date(2025, 3, 1, 11, 59, 0, 0, time.UTC),
		Media:         []entity.MediaItem{{URL: "https://cdn.example/a.png", Kind: entity.MediaImage}},
	}
}

/* ──────────────────────────────── HasSeen ──────────────────────────────── */

func TestSeenRepo_HasSeen(t *testing.T) {
	tests := []struct {
		name string
		rows *sqlmock.Rows
		want bool
	}{
		{name: "present", rows: sqlmock.NewRows([]string{"?column?"}).AddRow(1), want: true},
		{name: "absent", rows: sqlmock.NewRows([]string{"?column?"}), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer func() { _ = db.Close() }()

			mock.ExpectQuery(hasSeenSQL).WithArgs("42").WillReturnRows(tt.rows)

			got, err := postgres.NewSeenRepo(db).HasSeen(context.Background(), "42")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSeenRepo_HasSeen_Unavailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(hasSeenSQL).WillReturnError(sql.ErrConnDone)

	seen, err := postgres.NewSeenRepo(db).HasSeen(context.Background(), "42")
	require.Error(t, err)
	assert.False(t, seen)
	assert.ErrorIs(t, err, entity.ErrStore)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.Equal(t, repository.StoreUnavailable, storeKind(t, err))
}

/* ──────────────────────────────── MarkSeen ──────────────────────────────── */

func TestSeenRepo_MarkSeen(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	rec := sampleRecord()
	mock.ExpectExec(markSeenSQL).
		WithArgs(rec.PostID, rec.ProcessedAt, "alice", "Alice", "<p>hello</p>",
			sqlmock.AnyArg(), `[{"url":"https://cdn.example/a.png","kind":"image"}]`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = postgres.NewSeenRepo(db).MarkSeen(context.Background(), rec)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeenRepo_MarkSeen_DuplicateIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	// ON CONFLICT DO NOTHING reports zero affected rows
	mock.ExpectExec(markSeenSQL).WillReturnResult(sqlmock.NewResult(0, 0))

	err = postgres.NewSeenRepo(db).MarkSeen(context.Background(), sampleRecord())
	assert.NoError(t, err)
}

func TestSeenRepo_MarkSeen_EmptyMediaAndCreatedAt(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	rec := entity.SeenRecord{PostID: "7", ProcessedAt: time.Now()}
	mock.ExpectExec(markSeenSQL).
		WithArgs("7", sqlmock.AnyArg(), "", "", "", nil, "[]").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, postgres.NewSeenRepo(db).MarkSeen(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeenRepo_MarkSeen_MissingID(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	err = postgres.NewSeenRepo(db).MarkSeen(context.Background(), entity.SeenRecord{})
	assert.ErrorIs(t, err, entity.ErrValidationFailed)
}

func TestSeenRepo_MarkSeen_ErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want repository.StoreErrorKind
	}{
		{name: "serialization failure", err: &pgconn.PgError{Code: "40001"}, want: repository.StoreWriteConflict},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, want: repository.StoreWriteConflict},
		{name: "undefined table", err: &pgconn.PgError{Code: "42P01"}, want: repository.StoreUnavailable},
		{name: "connection lost", err: errors.New("unexpected EOF"), want: repository.StoreUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer func() { _ = db.Close() }()

			mock.ExpectExec(markSeenSQL).WillReturnError(tt.err)

			err = postgres.NewSeenRepo(db).MarkSeen(context.Background(), sampleRecord())
			require.Error(t, err)
			assert.ErrorIs(t, err, entity.ErrStore)
			assert.Equal(t, tt.want, storeKind(t, err))
		})
	}
}

// storeKind returns the kind of the StoreError in err's chain.
func storeKind(t *testing.T, err error) repository.StoreErrorKind {
	t.Helper()
	var se *repository.StoreError
	require.ErrorAs(t, err, &se)
	return se.Kind
}
