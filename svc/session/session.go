package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/astra-social/entitlements/pkg/broadcast"
	"github.com/astra-social/entitlements/pkg/logger"
	"github.com/astra-social/entitlements/pkg/subscription"
	"github.com/astra-social/entitlements/pkg/usage"
)

// ErrClosed is returned by Login on a session that was closed.
var ErrClosed = errors.New("session closed")

// run holds the resources of one login: the background loop and the
// in-flight usage writes.
type run struct {
	cancel   context.CancelFunc
	done     chan struct{}
	kick     chan struct{}
	persists sync.WaitGroup
	// writes serializes tracker increments; read-modify-write trackers
	// would otherwise lose counts between them.
	writes sync.Mutex
}

func (r *run) stop() {
	r.cancel()
	<-r.done
	r.persists.Wait()
}

// Session caches the plan and today's usage of one logged-in user and
// exposes the evaluator pre-bound to them.
//
// Reads never fail: until the first successful load, and while the initial
// load is failing, they answer for the free plan. Every method is safe for
// concurrent use.
type Session struct {
	catalog *subscription.Catalog
	store   subscription.Store
	tracker usage.Tracker
	opts    options
	logger  *slog.Logger
	origin  string

	mu      sync.Mutex
	state   State
	closed  bool
	userID  uuid.UUID
	sub     *subscription.Subscription
	usage   subscription.Usage
	lastErr error
	gen     uint64 // bumped on login and logout; stale loads are dropped
	run     *run
}

// New creates a session in the uninitialized state.
func New(catalog *subscription.Catalog, store subscription.Store, tracker usage.Tracker, opts ...Option) *Session {
	if catalog == nil || store == nil || tracker == nil {
		panic("session: catalog, store and tracker are required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	origin := uuid.NewString()
	return &Session{
		catalog: catalog,
		store:   store,
		tracker: tracker,
		opts:    o,
		logger:  o.logger.With(logger.Component("session"), logger.Origin(origin)),
		origin:  origin,
		state:   StateUninitialized,
	}
}

// Origin identifies the changes this session publishes.
func (s *Session) Origin() string { return s.origin }

// Login binds the session to userID and loads the subscription and today's
// usage. Logging in as another user logs the current one out first; logging
// in again as the same user is a no-op.
//
// A failed load leaves the session in StateError, answering for the free
// plan and retrying in the background, and returns a NETWORK_ERROR.
func (s *Session) Login(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return subscription.NewAuthRequired()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state != StateUninitialized && s.userID == userID {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	var feedSub broadcast.Subscriber[subscription.Change]
	if s.opts.feed != nil {
		feedSub = s.opts.feed.Subscribe(runCtx, subscription.Topic(userID))
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		if feedSub != nil {
			_ = feedSub.Close()
		}
		return ErrClosed
	}
	old := s.detachLocked()

	now := s.opts.now()
	s.gen++
	gen := s.gen
	s.userID = userID
	s.sub = subscription.FreeSubscription(userID, now)
	s.usage = subscription.NewUsage(userID, s.today(now))
	s.fire(ctx, EventLogin)

	r := &run{cancel: cancel, done: make(chan struct{}), kick: make(chan struct{}, 1)}
	s.run = r
	go s.loop(runCtx, r, gen, userID, feedSub)
	s.mu.Unlock()

	if old != nil {
		old.stop()
	}

	s.logger.InfoContext(ctx, "session login", logger.UserID(userID))
	// The session outlives the request that logged it in; only the load
	// timeout bounds the first load.
	return s.load(context.WithoutCancel(ctx), gen, userID)
}

// Refresh refetches subscription and usage. A session in StateError returns
// to StateReady on success.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateUninitialized {
		s.mu.Unlock()
		return subscription.NewAuthRequired()
	}
	gen, userID := s.gen, s.userID
	s.mu.Unlock()

	return s.load(ctx, gen, userID)
}

// retrySoon asks the background loop to refetch without waiting for the
// retry interval.
func (s *Session) retrySoon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kickLocked()
}

func (s *Session) kickLocked() {
	if s.run == nil {
		return
	}
	select {
	case s.run.kick <- struct{}{}:
	default:
	}
}

// Logout stops the background loop, waits for pending usage writes and
// discards every cached value. The session can log in again afterwards.
func (s *Session) Logout() {
	s.mu.Lock()
	userID := s.userID
	r := s.detachLocked()
	s.mu.Unlock()

	if r == nil {
		return
	}
	r.stop()
	s.logger.Info("session logout", logger.UserID(userID))
}

// Close logs out and rejects further logins.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.Logout()
	return nil
}

// detachLocked resets the cached state and hands back the current run for
// the caller to stop outside the lock.
func (s *Session) detachLocked() *run {
	r := s.run
	s.run = nil
	if s.state != StateUninitialized {
		s.gen++
		s.fire(context.Background(), EventLogout)
	}
	s.userID = uuid.Nil
	s.sub = nil
	s.usage = subscription.Usage{}
	s.lastErr = nil
	return r
}

// fire applies ev under s.mu.
func (s *Session) fire(ctx context.Context, ev Event) {
	from := s.state
	to, err := next(from, ev)
	if err != nil {
		s.logger.WarnContext(ctx, "session event ignored", logger.State(from), logger.Error(err))
		return
	}
	if to == from {
		return
	}
	s.state = to
	s.opts.metrics.recordTransition(from, to)
	s.logger.DebugContext(ctx, "session state changed",
		logger.UserID(s.userID),
		slog.String("from", string(from)),
		slog.String("to", string(to)))
}

func (s *Session) today(now time.Time) subscription.Day {
	return subscription.Today(now, s.opts.location)
}

// load fetches subscription and usage concurrently within the load timeout
// and applies them if the login that started it is still current.
func (s *Session) load(ctx context.Context, gen uint64, userID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.loadTimeout)
	defer cancel()

	now := s.opts.now()
	day := s.today(now)

	var (
		sub *subscription.Subscription
		u   subscription.Usage
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sub, err = s.fetchSubscription(gctx, userID, now)
		return err
	})
	g.Go(func() error {
		var err error
		u, err = s.tracker.Get(gctx, userID, day)
		if err != nil {
			return fmt.Errorf("fetch usage: %w", err)
		}
		u.UserID, u.Day = userID, day
		return nil
	})

	// Stores that ignore cancellation must not hold the session in loading.
	waited := make(chan error, 1)
	go func() { waited <- g.Wait() }()

	select {
	case err := <-waited:
		return s.apply(ctx, gen, sub, u, err)
	case <-ctx.Done():
		return s.apply(ctx, gen, nil, subscription.Usage{}, fmt.Errorf("load entitlements: %w", ctx.Err()))
	}
}

func (s *Session) fetchSubscription(ctx context.Context, userID uuid.UUID, now time.Time) (*subscription.Subscription, error) {
	sub, err := s.store.Get(ctx, userID)
	switch {
	case errors.Is(err, subscription.ErrSubscriptionNotFound):
		return subscription.FreeSubscription(userID, now), nil
	case err != nil:
		return nil, fmt.Errorf("fetch subscription: %w", err)
	}

	if sub.NeedsDemotion(now) {
		sub.Demote(now)
		s.writeDemotion(ctx, sub.Clone())
	}
	return sub, nil
}

// writeDemotion stores an expired subscription rewritten to free. Failures
// are logged; the session keeps answering for free either way.
func (s *Session) writeDemotion(ctx context.Context, sub *subscription.Subscription) {
	if err := s.store.Save(ctx, sub); err != nil {
		s.logger.ErrorContext(ctx, "expired subscription demotion not saved",
			logger.UserID(sub.UserID), logger.Error(err))
		return
	}
	s.logger.InfoContext(ctx, "expired subscription demoted to free", logger.UserID(sub.UserID))
	s.publish(ctx, sub.UserID, subscription.ChangeSubscription)
}

func (s *Session) apply(ctx context.Context, gen uint64, sub *subscription.Subscription, u subscription.Usage, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		return nil
	}

	if err != nil {
		s.lastErr = err
		s.fire(ctx, EventFailed)
		s.logger.WarnContext(ctx, "entitlement load failed",
			logger.UserID(s.userID), logger.State(s.state), logger.Error(err))
		return subscription.NewNetworkError(err)
	}

	s.sub = sub
	switch {
	case u.Day == s.usage.Day:
		// Counters only grow within a day; keep optimistic increments the
		// store has not seen yet.
		s.usage = u.Merge(s.usage)
	case u.Day > s.usage.Day:
		s.usage = u
	}
	s.lastErr = nil
	s.fire(ctx, EventLoaded)
	return nil
}

// loop runs the periodic checks and the change feed of one login.
func (s *Session) loop(ctx context.Context, r *run, gen uint64, userID uuid.UUID, feedSub broadcast.Subscriber[subscription.Change]) {
	defer close(r.done)
	defer func() {
		if feedSub != nil {
			_ = feedSub.Close()
		}
	}()

	rollover := time.NewTicker(s.opts.rolloverInterval)
	defer rollover.Stop()
	retry := time.NewTicker(s.opts.retryInterval)
	defer retry.Stop()

	var changes <-chan broadcast.Message[subscription.Change]
	if feedSub != nil {
		changes = feedSub.Receive(ctx)
	}
	var resubscribe <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case <-rollover.C:
			s.tick(ctx, gen)

		case <-retry.C:
			if s.State() == StateError {
				s.refetch(ctx, gen, userID)
			}

		case <-r.kick:
			s.refetch(ctx, gen, userID)

		case msg, ok := <-changes:
			if !ok {
				_ = feedSub.Close()
				feedSub, changes = nil, nil
				if ctx.Err() == nil {
					s.logger.WarnContext(ctx, "change feed closed, resubscribing", logger.UserID(userID))
					resubscribe = time.After(s.opts.retryInterval)
				}
				continue
			}
			if msg.Data.Origin == s.origin {
				continue
			}
			s.logger.DebugContext(ctx, "change received",
				logger.UserID(userID),
				logger.Origin(msg.Data.Origin),
				slog.String("kind", string(msg.Data.Kind)))
			s.refetch(ctx, gen, userID)

		case <-resubscribe:
			resubscribe = nil
			feedSub = s.opts.feed.Subscribe(ctx, subscription.Topic(userID))
			changes = feedSub.Receive(ctx)
			// Changes may have been missed while unsubscribed.
			s.refetch(ctx, gen, userID)
		}
	}
}

func (s *Session) refetch(ctx context.Context, gen uint64, userID uuid.UUID) {
	_ = s.load(ctx, gen, userID)
}

// tick checks the day boundary and demotes a subscription that expired
// while cached.
func (s *Session) tick(ctx context.Context, gen uint64) {
	now := s.opts.now()

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.rolloverLocked(ctx, now)
	var expired *subscription.Subscription
	if s.state == StateReady && s.sub.NeedsDemotion(now) {
		s.sub.Demote(now)
		expired = s.sub.Clone()
	}
	s.mu.Unlock()

	if expired != nil {
		ctx, cancel := context.WithTimeout(ctx, s.opts.persistTimeout)
		defer cancel()
		s.writeDemotion(ctx, expired)
	}
}

// rolloverLocked starts a fresh usage record when the calendar day changed
// and asks the loop to fetch the new day from the tracker.
func (s *Session) rolloverLocked(ctx context.Context, now time.Time) {
	if s.state == StateUninitialized {
		return
	}
	today := s.today(now)
	if s.usage.Day == today {
		return
	}

	s.logger.InfoContext(ctx, "calendar day rolled over",
		logger.UserID(s.userID), logger.Day(s.usage.Day), slog.String("today", string(today)))
	s.usage = subscription.NewUsage(s.userID, today)
	s.kickLocked()
}

func (s *Session) publish(ctx context.Context, userID uuid.UUID, kind subscription.ChangeKind) {
	if s.opts.feed == nil {
		return
	}
	change := subscription.Change{
		UserID: userID,
		Kind:   kind,
		Origin: s.origin,
		At:     s.opts.now().UTC(),
	}
	if err := s.opts.feed.Broadcast(ctx, subscription.Topic(userID), change); err != nil {
		s.logger.WarnContext(ctx, "change broadcast failed",
			logger.UserID(userID), slog.String("kind", string(kind)), logger.Error(err))
	}
}
