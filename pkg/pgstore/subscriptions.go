package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/astra-social/entitlements/pkg/pg"
	"github.com/astra-social/entitlements/pkg/subscription"
)

// SubscriptionStore keeps one subscription per user in the profiles table.
type SubscriptionStore struct {
	db  DB
	now func() time.Time
}

var _ subscription.Store = (*SubscriptionStore)(nil)

// NewSubscriptionStore returns a store over db, usually a *pgxpool.Pool.
func NewSubscriptionStore(db DB) *SubscriptionStore {
	if db == nil {
		panic("pgstore: db is required")
	}
	return &SubscriptionStore{db: db, now: time.Now}
}

const selectSubscription = `
SELECT id, is_premium, subscription_tier, subscription_status, subscription_expires_at,
       COALESCE(billing_customer_id, ''), COALESCE(billing_subscription_id, ''),
       subscription_cancelled_at, created_at, updated_at
FROM profiles
WHERE id = $1`

func (s *SubscriptionStore) Get(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	var (
		sub          subscription.Subscription
		tier, status string
	)
	err := s.db.QueryRow(ctx, selectSubscription, userID).Scan(
		&sub.UserID, &sub.Premium, &tier, &status, &sub.ExpiresAt,
		&sub.ProviderCustomerID, &sub.ProviderSubID,
		&sub.CancelledAt, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if pg.IsNotFoundError(err) {
		return nil, subscription.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrQueryFailed, err)
	}
	sub.PlanID = subscription.NormalizePlanID(tier)
	sub.Status = subscription.NormalizeStatus(status)
	return &sub, nil
}

const upsertSubscription = `
INSERT INTO profiles (
    id, is_premium, subscription_tier, subscription_status, subscription_expires_at,
    billing_customer_id, billing_subscription_id, subscription_cancelled_at, updated_at
) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9)
ON CONFLICT (id) DO UPDATE SET
    is_premium = EXCLUDED.is_premium,
    subscription_tier = EXCLUDED.subscription_tier,
    subscription_status = EXCLUDED.subscription_status,
    subscription_expires_at = EXCLUDED.subscription_expires_at,
    billing_customer_id = EXCLUDED.billing_customer_id,
    billing_subscription_id = EXCLUDED.billing_subscription_id,
    subscription_cancelled_at = EXCLUDED.subscription_cancelled_at,
    updated_at = EXCLUDED.updated_at`

// Save upserts the record keyed by user id.
func (s *SubscriptionStore) Save(ctx context.Context, sub *subscription.Subscription) error {
	if sub == nil || sub.UserID == uuid.Nil {
		return subscription.ErrMissingUserID
	}
	updated := sub.UpdatedAt
	if updated.IsZero() {
		updated = s.now().UTC()
	}
	_, err := s.db.Exec(ctx, upsertSubscription,
		sub.UserID, sub.Premium, string(sub.PlanID), string(sub.Status), sub.ExpiresAt,
		sub.ProviderCustomerID, sub.ProviderSubID, sub.CancelledAt, updated,
	)
	if err != nil {
		return errors.Join(ErrQueryFailed, err)
	}
	return nil
}
