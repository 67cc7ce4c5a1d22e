package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astra-social/entitlements/pkg/subscription"
	"github.com/astra-social/entitlements/svc/session"
)

func newRegistry(t *testing.T, capacity int, store subscription.Store) *session.Registry {
	t.Helper()
	clock := newClock(testNow)
	reg := session.NewRegistry(capacity, subscription.DefaultCatalog(), store, newTracker(t),
		session.WithClock(clock.Now),
		session.WithLocation(time.UTC),
	)
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

func TestRegistry_Get(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := subscription.NewMemoryStore()
	userID := uuid.New()
	saveSubscription(t, store, userID, subscription.PlanPremium, testNow.Add(time.Hour))
	reg := newRegistry(t, 4, store)

	sess, err := reg.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, session.StateReady, sess.State())
	assert.Equal(t, subscription.PlanPremium, sess.Plan().ID)

	again, err := reg.Get(ctx, userID)
	require.NoError(t, err)
	assert.Same(t, sess, again)
	assert.Equal(t, 1, reg.Len())

	_, err = reg.Get(ctx, uuid.Nil)
	assert.Equal(t, subscription.KindAuthRequired, subscription.KindOf(err))
}

func TestRegistry_Eviction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg := newRegistry(t, 2, subscription.NewMemoryStore())
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	sessA, err := reg.Get(ctx, a)
	require.NoError(t, err)
	_, err = reg.Get(ctx, b)
	require.NoError(t, err)

	// Touch a so that b becomes the least recently used.
	_, err = reg.Get(ctx, a)
	require.NoError(t, err)

	_, err = reg.Get(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())

	sessB, ok := reg.Peek(b)
	assert.False(t, ok)
	assert.Nil(t, sessB)

	peeked, ok := reg.Peek(a)
	require.True(t, ok)
	assert.Same(t, sessA, peeked)
	assert.Equal(t, session.StateReady, sessA.State())
}

func TestRegistry_EvictedSessionIsClosed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg := newRegistry(t, 1, subscription.NewMemoryStore())
	a := uuid.New()

	sessA, err := reg.Get(ctx, a)
	require.NoError(t, err)

	_, err = reg.Get(ctx, uuid.New())
	require.NoError(t, err)

	assert.Equal(t, session.StateUninitialized, sessA.State())
	assert.ErrorIs(t, sessA.Login(ctx, a), session.ErrClosed)

	// The user gets a fresh session on the next request.
	fresh, err := reg.Get(ctx, a)
	require.NoError(t, err)
	assert.NotSame(t, sessA, fresh)
}

func TestRegistry_DegradedSessionIsReturned(t *testing.T) {
	t.Parallel()

	store := &flakyStore{Store: subscription.NewMemoryStore()}
	store.down.Store(true)
	reg := newRegistry(t, 2, store)

	sess, err := reg.Get(context.Background(), uuid.New())
	require.Error(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, subscription.KindNetworkError, subscription.KindOf(err))
	assert.Equal(t, session.StateError, sess.State())
	assert.Equal(t, subscription.PlanFree, sess.Plan().ID)
}

func TestRegistry_RemoveAndClose(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newClock(testNow)
	reg := session.NewRegistry(4, subscription.DefaultCatalog(), subscription.NewMemoryStore(), newTracker(t),
		session.WithClock(clock.Now))
	a, b := uuid.New(), uuid.New()

	sessA, err := reg.Get(ctx, a)
	require.NoError(t, err)
	sessB, err := reg.Get(ctx, b)
	require.NoError(t, err)

	assert.True(t, reg.Remove(a))
	assert.False(t, reg.Remove(a))
	assert.Equal(t, session.StateUninitialized, sessA.State())
	assert.Equal(t, 1, reg.Len())

	require.NoError(t, reg.Close())
	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, session.StateUninitialized, sessB.State())

	_, err = reg.Get(ctx, a)
	assert.ErrorIs(t, err, session.ErrClosed)
}

func TestRegistry_ConcurrentFirstGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := subscription.NewMemoryStore()
	reg := newRegistry(t, 64, store)

	users := make([]uuid.UUID, 32)
	for i := range users {
		users[i] = uuid.New()
		saveSubscription(t, store, users[i], subscription.PlanPremium, testNow.Add(time.Hour))
	}

	type result struct {
		sess   *session.Session
		userID uuid.UUID
		state  session.State
		kind   subscription.ErrorKind
	}
	results := make(chan result, len(users)*8)

	var wg sync.WaitGroup
	for _, userID := range users {
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				sess, release, err := reg.Acquire(ctx, userID)
				if !assert.NoError(t, err) {
					return
				}
				defer release()
				_, err = sess.Attempt(ctx, subscription.LimitSignalsPerDay)
				results <- result{sess: sess, userID: sess.UserID(), state: sess.State(), kind: subscription.KindOf(err)}
			}()
		}
	}
	wg.Wait()
	close(results)

	seen := make(map[uuid.UUID]*session.Session)
	for res := range results {
		assert.Equal(t, session.StateReady, res.state)
		assert.NotEqual(t, subscription.KindAuthRequired, res.kind)
		require.NotEqual(t, uuid.Nil, res.userID)
		if first, ok := seen[res.userID]; ok {
			assert.Same(t, first, res.sess)
		} else {
			seen[res.userID] = res.sess
		}
	}
	assert.Len(t, seen, len(users))
}

func TestRegistry_WaitersShareFirstLogin(t *testing.T) {
	t.Parallel()

	mem := subscription.NewMemoryStore()
	userID := uuid.New()
	saveSubscription(t, mem, userID, subscription.PlanPremiumElite, testNow.Add(time.Hour))
	store := newGatedStore(mem)
	reg := newRegistry(t, 4, store)

	first := make(chan *session.Session, 1)
	go func() {
		sess, err := reg.Get(context.Background(), userID)
		assert.NoError(t, err)
		first <- sess
	}()
	<-store.entered

	// A caller that gives up while the first login runs gets no session.
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	sess, release, err := reg.Acquire(cancelled, userID)
	assert.Nil(t, sess)
	assert.Nil(t, release)
	assert.Equal(t, subscription.KindNetworkError, subscription.KindOf(err))

	second := make(chan *session.Session, 1)
	go func() {
		sess, err := reg.Get(context.Background(), userID)
		assert.NoError(t, err)
		second <- sess
	}()

	close(store.open)
	a, b := <-first, <-second
	assert.Same(t, a, b)
	assert.Equal(t, session.StateReady, b.State())
	assert.Equal(t, subscription.PlanPremiumElite, b.Plan().ID)
}

func TestRegistry_HeldSessionSurvivesEviction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg := newRegistry(t, 1, subscription.NewMemoryStore())
	a := uuid.New()

	sessA, release, err := reg.Acquire(ctx, a)
	require.NoError(t, err)

	_, err = reg.Get(ctx, uuid.New())
	require.NoError(t, err)
	_, ok := reg.Peek(a)
	assert.False(t, ok)

	// Still logged in while held.
	assert.Equal(t, session.StateReady, sessA.State())
	_, err = sessA.Attempt(ctx, subscription.LimitSignalsPerDay)
	require.NoError(t, err)

	release()
	release()
	assert.Equal(t, session.StateUninitialized, sessA.State())
	assert.ErrorIs(t, sessA.Login(ctx, a), session.ErrClosed)
}

func TestRegistry_RemoveWaitsForHolders(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg := newRegistry(t, 4, subscription.NewMemoryStore())
	userID := uuid.New()

	sess, release, err := reg.Acquire(ctx, userID)
	require.NoError(t, err)

	assert.True(t, reg.Remove(userID))
	assert.Equal(t, session.StateReady, sess.State())

	release()
	assert.Equal(t, session.StateUninitialized, sess.State())
}

func TestRegistry_FirstLoadIgnoresRequestCancellation(t *testing.T) {
	t.Parallel()

	store := subscription.NewMemoryStore()
	userID := uuid.New()
	saveSubscription(t, store, userID, subscription.PlanPremium, testNow.Add(time.Hour))
	reg := newRegistry(t, 4, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sess, err := reg.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, session.StateReady, sess.State())

	again, err := reg.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Same(t, sess, again)
	assert.Equal(t, subscription.PlanPremium, again.Plan().ID)
}

func TestRegistry_DegradedSessionRetriesOnAccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mem := subscription.NewMemoryStore()
	userID := uuid.New()
	saveSubscription(t, mem, userID, subscription.PlanPremium, testNow.Add(time.Hour))
	store := &flakyStore{Store: mem}
	store.down.Store(true)

	// The retry interval is far longer than the test.
	reg := newRegistry(t, 4, store)
	sess, err := reg.Get(ctx, userID)
	require.Error(t, err)
	require.Equal(t, session.StateError, sess.State())

	store.down.Store(false)
	_, err = reg.Get(ctx, userID)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return sess.State() == session.StateReady
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, subscription.PlanPremium, sess.Plan().ID)
}

func TestRegistry_PanicsOnInvalidCapacity(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		session.NewRegistry(0, subscription.DefaultCatalog(), subscription.NewMemoryStore(), newTracker(t))
	})
}
