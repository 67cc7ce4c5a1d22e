package usage

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/astra-social/entitlements/pkg/subscription"
)

const updatedAtField = "updated_at"

// RedisTracker keeps one hash per user and day. Fields are the usage storage
// columns; HINCRBY makes concurrent increments from several devices add up.
type RedisTracker struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

// RedisOption configures a RedisTracker.
type RedisOption func(*RedisTracker)

// WithKeyPrefix sets the key prefix. Default "usage:".
func WithKeyPrefix(prefix string) RedisOption {
	return func(t *RedisTracker) {
		if prefix != "" {
			t.prefix = prefix
		}
	}
}

// WithRetention sets the TTL refreshed on every increment. Default 72h, so
// yesterday's counters stay readable across time zones.
func WithRetention(d time.Duration) RedisOption {
	return func(t *RedisTracker) {
		if d > 0 {
			t.retention = d
		}
	}
}

// NewRedisTracker creates a tracker on top of an existing client.
func NewRedisTracker(client redis.UniversalClient, opts ...RedisOption) *RedisTracker {
	if client == nil {
		panic("usage: redis client is required")
	}
	t := &RedisTracker{
		client:    client,
		prefix:    "usage:",
		retention: 72 * time.Hour,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *RedisTracker) key(userID uuid.UUID, day subscription.Day) string {
	return t.prefix + userID.String() + ":" + day.String()
}

func (t *RedisTracker) Get(ctx context.Context, userID uuid.UUID, day subscription.Day) (subscription.Usage, error) {
	fields, err := t.client.HGetAll(ctx, t.key(userID, day)).Result()
	if err != nil {
		return subscription.Usage{}, errors.Join(ErrStoreUnavailable, err)
	}

	u := subscription.NewUsage(userID, day)
	for field, raw := range fields {
		if field == updatedAtField {
			if ts, err := strconv.ParseInt(raw, 10, 64); err == nil {
				u.UpdatedAt = time.UnixMilli(ts).UTC()
			}
			continue
		}
		l, ok := subscription.LimitForColumn(field)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		u.Set(l, n)
	}
	return u, nil
}

func (t *RedisTracker) Increment(ctx context.Context, userID uuid.UUID, day subscription.Day, l subscription.LimitName, amount int64) error {
	if err := ValidateIncrement(l, amount); err != nil {
		return err
	}

	key := t.key(userID, day)
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, l.Column(), amount)
		pipe.HSet(ctx, key, updatedAtField, time.Now().UnixMilli())
		pipe.Expire(ctx, key, t.retention)
		return nil
	})
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (t *RedisTracker) ResetDay(ctx context.Context, userID uuid.UUID, day subscription.Day) error {
	if err := t.client.Del(ctx, t.key(userID, day)).Err(); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}
