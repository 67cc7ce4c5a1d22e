package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/astra-social/entitlements/pkg/pg"
	"github.com/astra-social/entitlements/pkg/subscription"
	"github.com/astra-social/entitlements/pkg/usage"
)

// UsageStore keeps daily counters in the usage_tracking table, one row per
// user and day.
type UsageStore struct {
	db DB
}

var _ usage.Tracker = (*UsageStore)(nil)

// NewUsageStore returns a tracker over db, usually a *pgxpool.Pool.
func NewUsageStore(db DB) *UsageStore {
	if db == nil {
		panic("pgstore: db is required")
	}
	return &UsageStore{db: db}
}

// Queries are built from the closed column mapping, never from input.
var (
	selectUsage    string
	resetUsage     string
	incrementUsage = map[subscription.LimitName]string{}
)

func init() {
	limits := subscription.Limits()
	cols := make([]string, 0, len(limits))
	zeros := make([]string, 0, len(limits))
	for _, l := range limits {
		col := l.Column()
		cols = append(cols, col)
		zeros = append(zeros, col+" = 0")
		incrementUsage[l] = fmt.Sprintf(`
INSERT INTO usage_tracking (user_id, date, %[1]s, updated_at)
VALUES ($1, $2::date, $3, now())
ON CONFLICT (user_id, date) DO UPDATE SET
    %[1]s = usage_tracking.%[1]s + EXCLUDED.%[1]s,
    updated_at = now()`, col)
	}
	selectUsage = fmt.Sprintf(`
SELECT %s, updated_at FROM usage_tracking WHERE user_id = $1 AND date = $2::date`,
		strings.Join(cols, ", "))
	resetUsage = fmt.Sprintf(`
UPDATE usage_tracking SET %s, updated_at = now() WHERE user_id = $1 AND date = $2::date`,
		strings.Join(zeros, ", "))
}

func (s *UsageStore) Get(ctx context.Context, userID uuid.UUID, day subscription.Day) (subscription.Usage, error) {
	limits := subscription.Limits()
	counts := make([]int64, len(limits))
	var updatedAt time.Time

	dest := make([]any, 0, len(limits)+1)
	for i := range counts {
		dest = append(dest, &counts[i])
	}
	dest = append(dest, &updatedAt)

	u := subscription.NewUsage(userID, day)
	err := s.db.QueryRow(ctx, selectUsage, userID, day.String()).Scan(dest...)
	if pg.IsNotFoundError(err) {
		return u, nil
	}
	if err != nil {
		return subscription.Usage{}, errors.Join(ErrQueryFailed, err)
	}
	for i, l := range limits {
		u.Set(l, counts[i])
	}
	u.UpdatedAt = updatedAt
	return u, nil
}

// Increment adds amount atomically in a single upsert.
func (s *UsageStore) Increment(ctx context.Context, userID uuid.UUID, day subscription.Day, l subscription.LimitName, amount int64) error {
	if err := usage.ValidateIncrement(l, amount); err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, incrementUsage[l], userID, day.String(), amount); err != nil {
		return errors.Join(ErrQueryFailed, err)
	}
	return nil
}

func (s *UsageStore) ResetDay(ctx context.Context, userID uuid.UUID, day subscription.Day) error {
	if _, err := s.db.Exec(ctx, resetUsage, userID, day.String()); err != nil {
		return errors.Join(ErrQueryFailed, err)
	}
	return nil
}
