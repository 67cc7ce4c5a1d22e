package supastore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/supabase-community/supabase-go"

	"github.com/astra-social/entitlements/pkg/subscription"
)

type profileRow struct {
	ID                    uuid.UUID  `json:"id"`
	IsPremium             bool       `json:"is_premium"`
	SubscriptionTier      *string    `json:"subscription_tier"`
	SubscriptionStatus    *string    `json:"subscription_status"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at"`
	BillingCustomerID     *string    `json:"billing_customer_id"`
	BillingSubscriptionID *string    `json:"billing_subscription_id"`
	CancelledAt           *time.Time `json:"subscription_cancelled_at"`
	CreatedAt             *time.Time `json:"created_at,omitempty"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func (r profileRow) subscription() *subscription.Subscription {
	sub := &subscription.Subscription{
		UserID:             r.ID,
		PlanID:             subscription.NormalizePlanID(deref(r.SubscriptionTier)),
		Status:             subscription.NormalizeStatus(deref(r.SubscriptionStatus)),
		Premium:            r.IsPremium,
		ExpiresAt:          r.SubscriptionExpiresAt,
		ProviderCustomerID: deref(r.BillingCustomerID),
		ProviderSubID:      deref(r.BillingSubscriptionID),
		CancelledAt:        r.CancelledAt,
		UpdatedAt:          r.UpdatedAt,
	}
	if r.CreatedAt != nil {
		sub.CreatedAt = *r.CreatedAt
	}
	return sub
}

func rowFromSubscription(s *subscription.Subscription, now time.Time) profileRow {
	tier, status := string(s.PlanID), string(s.Status)
	updated := s.UpdatedAt
	if updated.IsZero() {
		updated = now.UTC()
	}
	return profileRow{
		ID:                    s.UserID,
		IsPremium:             s.Premium,
		SubscriptionTier:      &tier,
		SubscriptionStatus:    &status,
		SubscriptionExpiresAt: s.ExpiresAt,
		BillingCustomerID:     nilIfEmpty(s.ProviderCustomerID),
		BillingSubscriptionID: nilIfEmpty(s.ProviderSubID),
		CancelledAt:           s.CancelledAt,
		UpdatedAt:             updated,
	}
}

// SubscriptionStore reads and upserts the profiles table through PostgREST.
type SubscriptionStore struct {
	client *supabase.Client
	table  string
	now    func() time.Time
}

var _ subscription.Store = (*SubscriptionStore)(nil)

func NewSubscriptionStore(client *supabase.Client, cfg Config) *SubscriptionStore {
	if client == nil {
		panic("supastore: client is required")
	}
	return &SubscriptionStore{client: client, table: cfg.profilesTable(), now: time.Now}
}

// Get returns the user's record. The PostgREST client has no context
// support; a done ctx is checked before the request only.
func (s *SubscriptionStore) Get(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, _, err := s.client.From(s.table).
		Select("*", "", false).
		Eq("id", userID.String()).
		Execute()
	if err != nil {
		return nil, errors.Join(ErrRequestFailed, err)
	}

	var rows []profileRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, errors.Join(ErrDecodeFailed, err)
	}
	if len(rows) == 0 {
		return nil, subscription.ErrSubscriptionNotFound
	}
	return rows[0].subscription(), nil
}

func (s *SubscriptionStore) Save(ctx context.Context, sub *subscription.Subscription) error {
	if sub == nil || sub.UserID == uuid.Nil {
		return subscription.ErrMissingUserID
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := s.client.From(s.table).
		Upsert(rowFromSubscription(sub, s.now()), "id", "minimal", "").
		Execute()
	if err != nil {
		return errors.Join(ErrRequestFailed, err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
