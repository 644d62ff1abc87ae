package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"statuswatch/internal/domain/entity"
	"statuswatch/internal/observability/logging"
	"statuswatch/internal/observability/metrics"
	"statuswatch/internal/observability/tracing"
	"statuswatch/internal/repository"
	"statuswatch/internal/resilience/retry"
)

// markSeenTimeout bounds the write that follows a successful send. It runs on a
// context detached from cancellation so a post delivered during shutdown is
// still recorded.
const markSeenTimeout = 10 * time.Second

// PostFetcher returns the latest posts of an account, newest first or in any order.
type PostFetcher interface {
	Fetch(ctx context.Context, handle string) ([]entity.Post, error)
}

// Notifier delivers one post downstream.
type Notifier interface {
	Send(ctx context.Context, post entity.Post) error
	Channel() string
}

// Config holds the poll loop settings.
type Config struct {
	// Account is the monitored handle.
	Account string

	// IncludeReplies and IncludeReblogs relay those post types too.
	IncludeReplies bool
	IncludeReblogs bool

	// Schedule decides when the next tick starts. Required by Run only.
	Schedule Schedule
}

// PollCycleResult summarises one tick.
type PollCycleResult struct {
	TickID      string
	Fetched     int
	Duplicates  int
	Filtered    int
	AlreadySeen int
	Delivered   int
	Failed      int
	Duration    time.Duration
}

// Status is a snapshot of the loop for health reporting.
type Status struct {
	State               State
	LastTickAt          time.Time
	LastSuccessAt       time.Time
	ConsecutiveFailures int
}

// Service runs the poll loop. Tick and Run must not be called concurrently;
// Status may be called from any goroutine.
type Service struct {
	cfg      Config
	fetcher  PostFetcher
	notifier Notifier
	store    repository.SeenRepository

	now          func() time.Time
	onTransition TransitionFunc

	mu     sync.Mutex
	status Status
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTransitionHook registers fn to observe every state change.
func WithTransitionHook(fn TransitionFunc) Option {
	return func(s *Service) { s.onTransition = fn }
}

// NewService creates a relay Service.
func NewService(cfg Config, fetcher PostFetcher, notifier Notifier, store repository.SeenRepository, opts ...Option) *Service {
	s := &Service{
		cfg:      cfg,
		fetcher:  fetcher,
		notifier: notifier,
		store:    store,
		now:      time.Now,
		status:   Status{State: StateIdle},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status returns the current loop status.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// State returns the current loop state.
func (s *Service) State() State {
	return s.Status().State
}

func (s *Service) transition(to State) {
	s.mu.Lock()
	from := s.status.State
	s.status.State = to
	s.mu.Unlock()

	if !CanTransition(from, to) {
		slog.Error("unexpected relay state transition",
			slog.String("from", from.String()),
			slog.String("to", to.String()))
	}
	metrics.RecordTransition(from.String(), to.String())
	if s.onTransition != nil {
		s.onTransition(from, to)
	}
}

func (s *Service) finishTick(at time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.LastTickAt = at
	if ok {
		s.status.LastSuccessAt = at
		s.status.ConsecutiveFailures = 0
	} else {
		s.status.ConsecutiveFailures++
	}
}

// Run ticks immediately and then on every schedule activation until ctx is
// cancelled. Tick failures are logged and never stop the loop. It returns
// ctx.Err().
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.Schedule == nil {
		return errors.New("relay: no schedule configured")
	}
	logger := logging.FromContext(ctx)
	logger.Info("relay started",
		slog.String("account", s.cfg.Account),
		slog.String("channel", s.notifier.Channel()))

	for {
		// Errors are already logged and counted by Tick.
		_, _ = s.Tick(ctx)
		if err := ctx.Err(); err != nil {
			logger.Info("relay stopped", slog.String("account", s.cfg.Account))
			return err
		}

		now := s.now()
		next := s.cfg.Schedule.Next(now)
		logger.Debug("sleeping until next tick",
			slog.Time("next_tick", next),
			slog.Duration("wait", next.Sub(now)))
		if err := retry.Sleep(ctx, next.Sub(now)); err != nil {
			logger.Info("relay stopped", slog.String("account", s.cfg.Account))
			return err
		}
	}
}

// Tick runs one poll cycle: FETCHING, RECONCILING, DELIVERING and then
// SLEEPING, or ERROR followed by SLEEPING when a phase fails.
//
// A fetch or seen-store failure aborts the tick and is returned. Notify
// failures are logged and counted in the result; the affected posts stay
// unseen and are retried on the next tick. Cancellation stops the batch and
// returns ctx.Err().
func (s *Service) Tick(ctx context.Context) (res PollCycleResult, err error) {
	start := s.now()
	res.TickID = uuid.New().String()
	logger := logging.WithTick(logging.FromContext(ctx), res.TickID, s.cfg.Account)
	ctx = logging.WithLogger(ctx, logger)

	ctx, span := tracing.StartSpan(ctx, "relay.tick",
		attribute.String("tick_id", res.TickID),
		attribute.String("account", s.cfg.Account))
	defer func() {
		res.Duration = s.now().Sub(start)
		span.SetAttributes(
			attribute.Int("posts.fetched", res.Fetched),
			attribute.Int("posts.delivered", res.Delivered),
			attribute.Int("posts.failed", res.Failed))
		tracing.EndSpan(span, err)
		s.endTick(ctx, &res, err)
	}()

	posts, err := s.fetch(ctx)
	if err != nil {
		return res, err
	}
	res.Fetched = len(posts)

	pending, err := s.reconcile(ctx, posts, &res)
	if err != nil {
		return res, err
	}

	err = s.deliver(ctx, pending, &res)
	return res, err
}

func (s *Service) endTick(ctx context.Context, res *PollCycleResult, err error) {
	logger := logging.FromContext(ctx)
	finished := s.now()

	result := metrics.ResultSuccess
	switch {
	case err == nil:
		s.transition(StateSleeping)
		logger.Info("tick completed",
			slog.Int("fetched", res.Fetched),
			slog.Int("duplicates", res.Duplicates),
			slog.Int("filtered", res.Filtered),
			slog.Int("already_seen", res.AlreadySeen),
			slog.Int("delivered", res.Delivered),
			slog.Int("failed", res.Failed),
			slog.Duration("duration", res.Duration))
	case ctx.Err() != nil:
		result = metrics.ResultCanceled
		s.transition(StateError)
		s.transition(StateSleeping)
		logger.Info("tick canceled",
			slog.Int("delivered", res.Delivered),
			slog.Duration("duration", res.Duration))
	default:
		result = metrics.ResultError
		s.transition(StateError)
		s.transition(StateSleeping)
		logger.Error("tick failed",
			slog.String("error_kind", errorKind(err)),
			slog.Int("delivered", res.Delivered),
			slog.Any("error", err))
	}

	metrics.RecordTick(result, res.Duration, finished)
	s.finishTick(finished, err == nil)
}

func (s *Service) fetch(ctx context.Context) (posts []entity.Post, err error) {
	s.transition(StateFetching)
	ctx, span := tracing.StartSpan(ctx, "relay.fetch")
	defer func() { tracing.EndSpan(span, err) }()

	start := s.now()
	posts, err = s.fetcher.Fetch(ctx, s.cfg.Account)
	if err != nil {
		metrics.RecordFetch(0, errorKind(err), s.now().Sub(start))
		logging.FromContext(ctx).Warn("fetch failed",
			slog.String("phase", StateFetching.String()),
			slog.String("error_kind", errorKind(err)),
			slog.Any("error", err))
		return nil, fmt.Errorf("fetch posts: %w", err)
	}
	metrics.RecordFetch(len(posts), "", s.now().Sub(start))
	return posts, nil
}

// reconcile orders and filters posts and drops the ones already seen. Any
// store failure aborts before anything is sent.
func (s *Service) reconcile(ctx context.Context, posts []entity.Post, res *PollCycleResult) (pending []entity.Post, err error) {
	s.transition(StateReconciling)
	ctx, span := tracing.StartSpan(ctx, "relay.reconcile")
	defer func() { tracing.EndSpan(span, err) }()

	b := prepare(posts, s.cfg.IncludeReplies, s.cfg.IncludeReblogs)
	res.Duplicates = b.duplicates
	res.Filtered = b.filtered
	metrics.RecordSkipped(metrics.SkipDuplicate, b.duplicates)
	metrics.RecordSkipped(metrics.SkipFiltered, b.filtered)

	for _, p := range b.posts {
		start := s.now()
		seen, err := s.store.HasSeen(ctx, p.ID)
		if err != nil {
			metrics.RecordStoreOp("has_seen", errorKind(err), s.now().Sub(start))
			logging.FromContext(ctx).Error("seen lookup failed",
				slog.String("phase", StateReconciling.String()),
				slog.String("post_id", p.ID),
				slog.String("error_kind", errorKind(err)),
				slog.Any("error", err))
			return nil, fmt.Errorf("check post %s: %w", p.ID, err)
		}
		metrics.RecordStoreOp("has_seen", "", s.now().Sub(start))
		if seen {
			res.AlreadySeen++
			continue
		}
		pending = append(pending, p)
	}
	metrics.RecordSkipped(metrics.SkipSeen, res.AlreadySeen)
	return pending, nil
}

// deliver sends pending posts in order and marks each one seen right after
// its send succeeded.
func (s *Service) deliver(ctx context.Context, pending []entity.Post, res *PollCycleResult) (err error) {
	s.transition(StateDelivering)
	ctx, span := tracing.StartSpan(ctx, "relay.deliver", attribute.Int("posts.pending", len(pending)))
	defer func() { tracing.EndSpan(span, err) }()

	logger := logging.FromContext(ctx)
	channel := s.notifier.Channel()

	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := s.now()
		if err := s.notifier.Send(ctx, p); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			res.Failed++
			metrics.RecordNotify(channel, errorKind(err), s.now().Sub(start))
			logger.Warn("notify failed, post will be retried next tick",
				slog.String("phase", StateDelivering.String()),
				slog.String("post_id", p.ID),
				slog.String("error_kind", errorKind(err)),
				slog.Any("error", err))
			continue
		}
		metrics.RecordNotify(channel, "", s.now().Sub(start))

		if err := s.markSeen(ctx, p); err != nil {
			logger.Error("mark seen failed, aborting batch",
				slog.String("phase", StateDelivering.String()),
				slog.String("post_id", p.ID),
				slog.String("error_kind", errorKind(err)),
				slog.Any("error", err))
			return fmt.Errorf("mark post %s seen: %w", p.ID, err)
		}
		res.Delivered++
		logger.Info("post relayed",
			slog.String("post_id", p.ID),
			slog.Time("created_at", p.CreatedAt))
	}
	return nil
}

func (s *Service) markSeen(ctx context.Context, p entity.Post) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markSeenTimeout)
	defer cancel()

	start := s.now()
	err := s.store.MarkSeen(ctx, entity.NewSeenRecord(p, start.UTC()))
	kind := ""
	if err != nil {
		kind = errorKind(err)
	}
	metrics.RecordStoreOp("mark_seen", kind, s.now().Sub(start))
	return err
}
