package subscription

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Store persists subscription records. Each user has at most one record, so
// the user id serves as the primary key.
type Store interface {
	// Get retrieves the subscription of a user.
	// Returns ErrSubscriptionNotFound if the user never had one.
	Get(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// Save creates or updates the record keyed by its UserID.
	Save(ctx context.Context, sub *Subscription) error
}

// MemoryStore is a process-local Store. Records are cloned on the way in
// and out.
type MemoryStore struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]*Subscription
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[uuid.UUID]*Subscription)}
}

func (m *MemoryStore) Get(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.subs[userID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return sub.Clone(), nil
}

func (m *MemoryStore) Save(ctx context.Context, sub *Subscription) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sub == nil || sub.UserID == uuid.Nil {
		return ErrMissingUserID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.UserID] = sub.Clone()
	return nil
}
