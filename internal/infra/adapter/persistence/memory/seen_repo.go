// Package memory is an in-process seen-set store for dry runs and tests.
// Nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"sync"

	"statuswatch/internal/domain/entity"
	"statuswatch/internal/repository"
)

type SeenRepo struct {
	mu      sync.RWMutex
	records map[string]entity.SeenRecord
}

func NewSeenRepo() *SeenRepo {
	return &SeenRepo{records: make(map[string]entity.SeenRecord)}
}

var _ repository.SeenRepository = (*SeenRepo)(nil)

func (r *SeenRepo) HasSeen(ctx context.Context, postID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, repository.NewStoreError(repository.StoreUnavailable, "has_seen", err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.records[postID]
	return ok, nil
}

func (r *SeenRepo) MarkSeen(ctx context.Context, rec entity.SeenRecord) error {
	if rec.PostID == "" {
		return fmt.Errorf("MarkSeen: %w", &entity.ValidationError{Field: "post_id", Message: "is required"})
	}
	if err := ctx.Err(); err != nil {
		return repository.NewStoreError(repository.StoreUnavailable, "mark_seen", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.PostID]; !ok {
		r.records[rec.PostID] = rec
	}
	return nil
}

// Get returns the stored record for postID.
func (r *SeenRepo) Get(postID string) (entity.SeenRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[postID]
	return rec, ok
}

// Len returns the number of records.
func (r *SeenRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
