package relay_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"statuswatch/internal/domain/entity"
	"statuswatch/internal/repository"
)

/* ───────── モック実装 ───────── */

var baseTime = time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

func post(id string, minute int) entity.Post {
	return entity.Post{
		ID:        id,
		CreatedAt: baseTime.Add(time.Duration(minute) * time.Minute),
		Text:      "<p>post " + id + "</p>",
		Type:      entity.PostTypePost,
		Account:   entity.Account{Username: "alice", DisplayName: "Alice"},
	}
}

// fakeFetcher returns batches in order, repeating the last one.
type fakeFetcher struct {
	mu      sync.Mutex
	batches [][]entity.Post
	errs    []error
	calls   int
}

func (f *fakeFetcher) Fetch(ctx context.Context, handle string) ([]entity.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	if i >= len(f.batches) {
		i = len(f.batches) - 1
	}
	return f.batches[i], nil
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fetchError and notifyError mimic the typed errors of the upstream and
// notifier packages.
type fetchError struct{ kind string }

func (e *fetchError) Error() string        { return "upstream " + e.kind }
func (e *fetchError) ErrorKind() string    { return e.kind }
func (e *fetchError) Is(target error) bool { return target == entity.ErrFetch }

type notifyError struct{ kind string }

func (e *notifyError) Error() string        { return "notify " + e.kind }
func (e *notifyError) ErrorKind() string    { return e.kind }
func (e *notifyError) Is(target error) bool { return target == entity.ErrNotify }

// recordingNotifier records sent post IDs; posts listed in fail are rejected.
type recordingNotifier struct {
	mu     sync.Mutex
	sent   []string
	fail   map[string]error
	onSend func(entity.Post)
}

func (n *recordingNotifier) Channel() string { return "test" }

func (n *recordingNotifier) Send(ctx context.Context, p entity.Post) error {
	if n.onSend != nil {
		n.onSend(p)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.fail[p.ID]; err != nil {
		return err
	}
	n.sent = append(n.sent, p.ID)
	return nil
}

func (n *recordingNotifier) Sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent...)
}

// faultyStore wraps a store and fails selected operations.
type faultyStore struct {
	repository.SeenRepository
	hasSeenErr    error
	markSeenErrAt int // 1-based MarkSeen call that fails; 0 never
	markCalls     int
}

func (s *faultyStore) HasSeen(ctx context.Context, id string) (bool, error) {
	if s.hasSeenErr != nil {
		return false, s.hasSeenErr
	}
	return s.SeenRepository.HasSeen(ctx, id)
}

func (s *faultyStore) MarkSeen(ctx context.Context, rec entity.SeenRecord) error {
	s.markCalls++
	if s.markCalls == s.markSeenErrAt {
		return repository.NewStoreError(repository.StoreUnavailable, "mark_seen", errors.New("connection refused"))
	}
	return s.SeenRepository.MarkSeen(ctx, rec)
}

// tickSchedule fires every d, for Run tests.
type tickSchedule struct{ d time.Duration }

func (s tickSchedule) Next(t time.Time) time.Time { return t.Add(s.d) }

func ids(posts ...entity.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}
