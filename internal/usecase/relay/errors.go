// Package relay implements the poll loop that mirrors new upstream posts to a
// downstream channel. Each tick fetches the latest posts, drops the ones already
// delivered, sends the rest oldest-first and marks each one seen right after
// it was sent.
package relay

import (
	"errors"

	"statuswatch/internal/domain/entity"
)

// Collaborator failure classes. Every error returned by the fetcher, the seen
// store and the notifier matches one of these with errors.Is.
var (
	ErrFetch  = entity.ErrFetch
	ErrStore  = entity.ErrStore
	ErrNotify = entity.ErrNotify
)

// kinded is implemented by the typed collaborator errors.
type kinded interface {
	ErrorKind() string
}

// errorKind returns the kind of the first typed error in err's chain.
func errorKind(err error) string {
	var k kinded
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	return "unknown"
}
