package repository

import (
	"context"
	"fmt"

	"statuswatch/internal/domain/entity"
)

// SeenRepository is the durable set of delivered post IDs.
type SeenRepository interface {
	// HasSeen reports whether a SeenRecord exists for postID.
	// A failure to answer is returned as an error, never as false.
	HasSeen(ctx context.Context, postID string) (bool, error)

	// MarkSeen inserts rec. Marking an already-seen ID is a silent no-op,
	// the first record wins and is never overwritten.
	MarkSeen(ctx context.Context, rec entity.SeenRecord) error
}

// StoreErrorKind classifies seen-store failures.
type StoreErrorKind string

const (
	// StoreUnavailable covers connection loss, an open breaker and anything unclassified.
	StoreUnavailable StoreErrorKind = "unavailable"
	// StoreWriteConflict is a serialization failure, deadlock or locked database.
	StoreWriteConflict StoreErrorKind = "write-conflict"
)

// StoreError is returned by every SeenRepository implementation.
type StoreError struct {
	Kind StoreErrorKind
	Op   string
	Err  error
}

// NewStoreError wraps err for operation op.
func NewStoreError(kind StoreErrorKind, op string, err error) *StoreError {
	return &StoreError{Kind: kind, Op: op, Err: err}
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("seen store %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ErrorKind returns Kind as a plain string for logs and metrics.
func (e *StoreError) ErrorKind() string { return string(e.Kind) }

// Is makes every StoreError match entity.ErrStore.
func (e *StoreError) Is(target error) bool {
	return target == entity.ErrStore
}
