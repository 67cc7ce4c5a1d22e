package session_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/astra-social/entitlements/pkg/subscription"
	"github.com/astra-social/entitlements/pkg/usage"
	"github.com/astra-social/entitlements/svc/session"
)

var testNow = time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *testClock { return &testClock{t: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// countingStore counts subscription fetches.
type countingStore struct {
	subscription.Store
	gets atomic.Int32
}

func (s *countingStore) Get(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	s.gets.Add(1)
	return s.Store.Get(ctx, userID)
}

// flakyStore fails every call while down is set.
type flakyStore struct {
	subscription.Store
	down atomic.Bool
}

func (s *flakyStore) Get(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	if s.down.Load() {
		return nil, fmt.Errorf("%w: connection refused", subscription.ErrNetwork)
	}
	return s.Store.Get(ctx, userID)
}

// hangingStore never answers until released, whatever the context says.
type hangingStore struct {
	subscription.Store
	release chan struct{}
}

func (s *hangingStore) Get(context.Context, uuid.UUID) (*subscription.Subscription, error) {
	<-s.release
	return nil, subscription.ErrNetwork
}

// gatedStore holds every Get until open is closed and reports each entry on
// entered.
type gatedStore struct {
	subscription.Store
	entered chan struct{}
	open    chan struct{}
}

func newGatedStore(store subscription.Store) *gatedStore {
	return &gatedStore{Store: store, entered: make(chan struct{}, 16), open: make(chan struct{})}
}

func (s *gatedStore) Get(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.open
	return s.Store.Get(ctx, userID)
}

// slowCounter increments by reading, pausing and writing back, like a store
// without an atomic increment.
type slowCounter struct {
	usage.Tracker
	mu     sync.Mutex
	counts map[subscription.LimitName]int64
}

func (c *slowCounter) Increment(_ context.Context, _ uuid.UUID, _ subscription.Day, l subscription.LimitName, amount int64) error {
	c.mu.Lock()
	n := c.counts[l]
	c.mu.Unlock()

	time.Sleep(time.Millisecond)

	c.mu.Lock()
	c.counts[l] = n + amount
	c.mu.Unlock()
	return nil
}

func (c *slowCounter) count(l subscription.LimitName) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[l]
}

// failingTracker rejects every write.
type failingTracker struct {
	usage.Tracker
}

func (failingTracker) Increment(context.Context, uuid.UUID, subscription.Day, subscription.LimitName, int64) error {
	return usage.ErrStoreUnavailable
}

func newTracker(t *testing.T) *usage.MemoryTracker {
	t.Helper()
	tr := usage.NewMemoryTracker(usage.WithCleanupInterval(0))
	t.Cleanup(tr.Close)
	return tr
}

func newSession(t *testing.T, store subscription.Store, tracker usage.Tracker, clock *testClock, opts ...session.Option) *session.Session {
	t.Helper()
	base := []session.Option{
		session.WithClock(clock.Now),
		session.WithLocation(time.UTC),
	}
	sess := session.New(subscription.DefaultCatalog(), store, tracker, append(base, opts...)...)
	t.Cleanup(func() { _ = sess.Close() })
	return sess
}

func saveSubscription(t *testing.T, store subscription.Store, userID uuid.UUID, plan subscription.PlanID, expiresAt time.Time) {
	t.Helper()
	sub := &subscription.Subscription{
		UserID:    userID,
		PlanID:    plan,
		Status:    subscription.StatusActive,
		Premium:   plan != subscription.PlanFree,
		ExpiresAt: &expiresAt,
	}
	if err := store.Save(context.Background(), sub); err != nil {
		t.Fatalf("save subscription: %v", err)
	}
}
