package supastore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/supabase-community/supabase-go"

	"github.com/astra-social/entitlements/pkg/subscription"
	"github.com/astra-social/entitlements/pkg/usage"
)

// UsageStore keeps daily counters in the usage table through PostgREST.
//
// PostgREST offers no atomic increment without a stored procedure, so
// Increment reads the row and upserts the sum. Callers must serialize their
// own increments; writers in different processes may still lose updates,
// and the limits are soft.
type UsageStore struct {
	client *supabase.Client
	table  string
	now    func() time.Time
}

var _ usage.Tracker = (*UsageStore)(nil)

func NewUsageStore(client *supabase.Client, cfg Config) *UsageStore {
	if client == nil {
		panic("supastore: client is required")
	}
	return &UsageStore{client: client, table: cfg.usageTable(), now: time.Now}
}

func (s *UsageStore) Get(ctx context.Context, userID uuid.UUID, day subscription.Day) (subscription.Usage, error) {
	if err := ctx.Err(); err != nil {
		return subscription.Usage{}, err
	}
	data, _, err := s.client.From(s.table).
		Select("*", "", false).
		Eq("user_id", userID.String()).
		Eq("date", day.String()).
		Execute()
	if err != nil {
		return subscription.Usage{}, errors.Join(ErrRequestFailed, err)
	}

	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return subscription.Usage{}, errors.Join(ErrDecodeFailed, err)
	}
	u := subscription.NewUsage(userID, day)
	if len(rows) == 0 {
		return u, nil
	}
	row := rows[0]
	for _, l := range subscription.Limits() {
		u.Set(l, toInt64(row[l.Column()]))
	}
	if raw, ok := row["updated_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			u.UpdatedAt = t
		}
	}
	return u, nil
}

func (s *UsageStore) Increment(ctx context.Context, userID uuid.UUID, day subscription.Day, l subscription.LimitName, amount int64) error {
	if err := usage.ValidateIncrement(l, amount); err != nil {
		return err
	}
	current, err := s.Get(ctx, userID, day)
	if err != nil {
		return err
	}
	current.Add(l, amount)
	return s.write(current)
}

func (s *UsageStore) ResetDay(ctx context.Context, userID uuid.UUID, day subscription.Day) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.write(subscription.NewUsage(userID, day))
}

func (s *UsageStore) write(u subscription.Usage) error {
	row := map[string]any{
		"user_id":    u.UserID.String(),
		"date":       u.Day.String(),
		"updated_at": s.now().UTC().Format(time.RFC3339Nano),
	}
	for col, n := range u.Columns() {
		row[col] = n
	}
	_, _, err := s.client.From(s.table).
		Upsert(row, "user_id,date", "minimal", "").
		Execute()
	if err != nil {
		return errors.Join(ErrRequestFailed, err)
	}
	return nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case json.Number:
		i, _ := n.Int64()
		return i
	}
	return 0
}
