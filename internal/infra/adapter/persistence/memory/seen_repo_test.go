package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statuswatch/internal/domain/entity"
)

func TestSeenRepo_FirstRecordWins(t *testing.T) {
	repo := NewSeenRepo()
	ctx := context.Background()

	require.NoError(t, repo.MarkSeen(ctx, entity.SeenRecord{PostID: "1", Content: "a"}))
	require.NoError(t, repo.MarkSeen(ctx, entity.SeenRecord{PostID: "1", Content: "b"}))

	rec, ok := repo.Get("1")
	require.True(t, ok)
	assert.Equal(t, "a", rec.Content)
	assert.Equal(t, 1, repo.Len())

	seen, err := repo.HasSeen(ctx, "1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestSeenRepo_CanceledContext(t *testing.T) {
	repo := NewSeenRepo()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.HasSeen(ctx, "1")
	assert.ErrorIs(t, err, entity.ErrStore)
	assert.ErrorIs(t, err, context.Canceled)

	err = repo.MarkSeen(ctx, entity.SeenRecord{PostID: "1"})
	assert.ErrorIs(t, err, entity.ErrStore)
	assert.Equal(t, 0, repo.Len())
}

func TestSeenRepo_Concurrent(t *testing.T) {
	repo := NewSeenRepo()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = repo.MarkSeen(ctx, entity.SeenRecord{PostID: "same", ProcessedAt: time.Now()})
			_, _ = repo.HasSeen(ctx, "same")
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, repo.Len())
}
