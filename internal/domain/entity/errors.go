package entity

import (
	"errors"
	"fmt"
)

// ErrValidationFailed is matched by every *ValidationError.
var ErrValidationFailed = errors.New("validation failed")

// Collaborator failure classes. The concrete error types of the fetcher, the
// seen store and the notifier match these with errors.Is.
var (
	ErrFetch  = errors.New("fetch failed")
	ErrStore  = errors.New("seen store failed")
	ErrNotify = errors.New("notify failed")
)

// ValidationError names the post or media field that failed a check.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}
