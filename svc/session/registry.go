package session

import (
	"container/list"
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/astra-social/entitlements/pkg/logger"
	"github.com/astra-social/entitlements/pkg/subscription"
	"github.com/astra-social/entitlements/pkg/usage"
)

// registryEntry tracks one cached session. ready is closed once the first
// login finished; err holds its result. refs counts the callers holding the
// session, and a removed entry is closed when the last one lets go.
type registryEntry struct {
	userID  uuid.UUID
	session *Session
	ready   chan struct{}
	err     error
	refs    int
	removed bool
}

// Registry keeps the sessions of the most recently active users. When it
// reaches its capacity, the least recently used session is closed.
type Registry struct {
	catalog *subscription.Catalog
	store   subscription.Store
	tracker usage.Tracker
	opts    []Option
	logger  *slog.Logger

	capacity int
	items    map[uuid.UUID]*list.Element
	eviction *list.List
	closed   bool
	mu       sync.Mutex
}

// NewRegistry creates a registry whose sessions share the given backends and
// options. The capacity must be positive, otherwise it panics.
func NewRegistry(capacity int, catalog *subscription.Catalog, store subscription.Store, tracker usage.Tracker, opts ...Option) *Registry {
	if capacity <= 0 {
		panic("session registry capacity must be positive")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &Registry{
		catalog:  catalog,
		store:    store,
		tracker:  tracker,
		opts:     opts,
		logger:   o.logger.With(logger.Component("session_registry")),
		capacity: capacity,
		items:    make(map[uuid.UUID]*list.Element),
		eviction: list.New(),
	}
}

// Get returns the session of userID, logging a new one in when absent.
// A load failure is returned together with the session, which keeps serving
// free-plan answers while it retries.
//
// The session may be closed by a later eviction at any time; request
// handlers should use Acquire.
func (r *Registry) Get(ctx context.Context, userID uuid.UUID) (*Session, error) {
	sess, release, err := r.Acquire(ctx, userID)
	if release != nil {
		release()
	}
	return sess, err
}

// Acquire is Get for callers that use the session for a while. The session
// is not closed by eviction or Remove until release is called. Concurrent
// callers for the same new user all wait for its first login, so none of
// them sees an uninitialized session.
//
// release is nil when no session is returned. It is safe to call it more
// than once.
func (r *Registry) Acquire(ctx context.Context, userID uuid.UUID) (sess *Session, release func(), err error) {
	if userID == uuid.Nil {
		return nil, nil, subscription.NewAuthRequired()
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, nil, ErrClosed
	}
	if elem, ok := r.items[userID]; ok {
		r.eviction.MoveToFront(elem)
		entry := elem.Value.(*registryEntry)
		entry.refs++
		r.mu.Unlock()
		return r.awaitLogin(ctx, entry)
	}

	entry := &registryEntry{
		userID:  userID,
		session: New(r.catalog, r.store, r.tracker, r.opts...),
		ready:   make(chan struct{}),
		refs:    1,
	}
	r.items[userID] = r.eviction.PushFront(entry)

	var (
		evicted      *registryEntry
		closeEvicted bool
	)
	if r.eviction.Len() > r.capacity {
		evicted, closeEvicted = r.removeElement(r.eviction.Back())
	}
	r.mu.Unlock()

	if evicted != nil {
		r.logger.DebugContext(ctx, "session evicted", logger.UserID(evicted.userID))
		if closeEvicted {
			_ = evicted.session.Close()
		}
	}

	err = entry.session.Login(ctx, userID)

	r.mu.Lock()
	entry.err = err
	close(entry.ready)
	r.mu.Unlock()

	return entry.session, r.releaser(entry), err
}

// awaitLogin waits for the first login of a session another caller created.
// A session whose load failed is asked to retry right away.
func (r *Registry) awaitLogin(ctx context.Context, entry *registryEntry) (*Session, func(), error) {
	release := r.releaser(entry)

	select {
	case <-entry.ready:
	default:
		select {
		case <-entry.ready:
			r.mu.Lock()
			err := entry.err
			r.mu.Unlock()
			return entry.session, release, err
		case <-ctx.Done():
			release()
			return nil, nil, subscription.NewNetworkError(ctx.Err())
		}
	}

	if entry.session.State() == StateError {
		entry.session.retrySoon()
	}
	return entry.session, release, nil
}

func (r *Registry) releaser(entry *registryEntry) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			entry.refs--
			closeNow := entry.removed && entry.refs == 0
			r.mu.Unlock()

			if closeNow {
				_ = entry.session.Close()
			}
		})
	}
}

// Peek returns the session of userID without creating it or marking it used.
func (r *Registry) Peek(userID uuid.UUID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if elem, ok := r.items[userID]; ok {
		return elem.Value.(*registryEntry).session, true
	}
	return nil, false
}

// Remove forgets the session of userID and closes it once no caller holds it.
func (r *Registry) Remove(userID uuid.UUID) bool {
	r.mu.Lock()
	elem, ok := r.items[userID]
	var (
		entry    *registryEntry
		closeNow bool
	)
	if ok {
		entry, closeNow = r.removeElement(elem)
	}
	r.mu.Unlock()

	if closeNow {
		_ = entry.session.Close()
	}
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eviction.Len()
}

// Close closes every session, held or not. Later Get calls fail with
// ErrClosed.
func (r *Registry) Close() error {
	r.mu.Lock()
	r.closed = true
	entries := make([]*registryEntry, 0, r.eviction.Len())
	for r.eviction.Len() > 0 {
		entry, _ := r.removeElement(r.eviction.Back())
		entries = append(entries, entry)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.session.Close()
		}()
	}
	wg.Wait()
	return nil
}

// removeElement unlinks elem under r.mu. It reports whether the session is
// unused and must be closed by the caller after unlocking; otherwise the
// last release closes it.
func (r *Registry) removeElement(elem *list.Element) (*registryEntry, bool) {
	r.eviction.Remove(elem)
	entry := elem.Value.(*registryEntry)
	delete(r.items, entry.userID)
	entry.removed = true
	return entry, entry.refs == 0
}
