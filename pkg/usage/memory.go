package usage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/astra-social/entitlements/pkg/subscription"
)

type dayKey struct {
	user uuid.UUID
	day  subscription.Day
}

type memoryRecord struct {
	usage      subscription.Usage
	lastAccess time.Time // used by cleanup to identify stale days
}

// MemoryTracker implements Tracker in process memory.
type MemoryTracker struct {
	mu      sync.RWMutex
	records map[dayKey]*memoryRecord

	retention       time.Duration
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	closeOnce       sync.Once
	now             func() time.Time
}

// MemoryOption configures a MemoryTracker.
type MemoryOption func(*MemoryTracker)

// WithCleanupInterval sets how often stale days are dropped.
// Set to 0 to disable automatic cleanup.
func WithCleanupInterval(interval time.Duration) MemoryOption {
	return func(t *MemoryTracker) {
		t.cleanupInterval = interval
	}
}

// WithMemoryRetention sets how long an untouched day is kept.
func WithMemoryRetention(d time.Duration) MemoryOption {
	return func(t *MemoryTracker) {
		if d > 0 {
			t.retention = d
		}
	}
}

// NewMemoryTracker creates an in-memory tracker with optional cleanup.
func NewMemoryTracker(opts ...MemoryOption) *MemoryTracker {
	t := &MemoryTracker{
		records:         make(map[dayKey]*memoryRecord),
		retention:       48 * time.Hour,
		cleanupInterval: time.Hour,
		stopCleanup:     make(chan struct{}),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.cleanupInterval > 0 {
		go t.cleanup()
	}
	return t
}

func (t *MemoryTracker) Get(ctx context.Context, userID uuid.UUID, day subscription.Day) (subscription.Usage, error) {
	if err := ctx.Err(); err != nil {
		return subscription.Usage{}, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if r, ok := t.records[dayKey{userID, day}]; ok {
		return r.usage, nil
	}
	return subscription.NewUsage(userID, day), nil
}

func (t *MemoryTracker) Increment(ctx context.Context, userID uuid.UUID, day subscription.Day, l subscription.LimitName, amount int64) error {
	if err := ValidateIncrement(l, amount); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	key := dayKey{userID, day}
	r, ok := t.records[key]
	if !ok {
		r = &memoryRecord{usage: subscription.NewUsage(userID, day)}
		t.records[key] = r
	}
	r.usage.Add(l, amount)
	r.usage.UpdatedAt = now
	r.lastAccess = now
	return nil
}

func (t *MemoryTracker) ResetDay(ctx context.Context, userID uuid.UUID, day subscription.Day) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.records, dayKey{userID, day})
	return nil
}

func (t *MemoryTracker) cleanup() {
	ticker := time.NewTicker(t.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.removeStale()
		case <-t.stopCleanup:
			return
		}
	}
}

func (t *MemoryTracker) removeStale() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for key, r := range t.records {
		if now.Sub(r.lastAccess) > t.retention {
			delete(t.records, key)
		}
	}
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (t *MemoryTracker) Close() {
	t.closeOnce.Do(func() { close(t.stopCleanup) })
}
