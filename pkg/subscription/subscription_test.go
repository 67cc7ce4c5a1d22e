package subscription_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astra-social/entitlements/pkg/subscription"
)

func TestSubscription_EffectivePlanID(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	yesterday := now.AddDate(0, 0, -1)
	nextMonth := now.AddDate(0, 1, 0)

	tests := []struct {
		name string
		sub  *subscription.Subscription
		want subscription.PlanID
	}{
		{"nil record", nil, subscription.PlanFree},
		{"active premium", &subscription.Subscription{PlanID: subscription.PlanPremium, Status: subscription.StatusActive, ExpiresAt: &nextMonth}, subscription.PlanPremium},
		{"no expiry", &subscription.Subscription{PlanID: subscription.PlanPremiumElite, Status: subscription.StatusActive}, subscription.PlanPremiumElite},
		{"expired premium", &subscription.Subscription{PlanID: subscription.PlanPremium, Status: subscription.StatusActive, ExpiresAt: &yesterday}, subscription.PlanFree},
		{"expired status", &subscription.Subscription{PlanID: subscription.PlanPremium, Status: subscription.StatusExpired}, subscription.PlanFree},
		{"unknown tier", &subscription.Subscription{PlanID: "vip", Status: subscription.StatusActive}, subscription.PlanFree},
		{"cancelled until period end", &subscription.Subscription{PlanID: subscription.PlanPremium, Status: subscription.StatusCancelled, ExpiresAt: &nextMonth}, subscription.PlanPremium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.sub.EffectivePlanID(now))
		})
	}
}

func TestSubscription_Demotion(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	yesterday := now.AddDate(0, 0, -1)

	sub := &subscription.Subscription{
		UserID:             uuid.New(),
		PlanID:             subscription.PlanPremium,
		Status:             subscription.StatusActive,
		Premium:            true,
		ExpiresAt:          &yesterday,
		ProviderCustomerID: "ctm_1",
		ProviderSubID:      "sub_1",
	}
	require.True(t, sub.NeedsDemotion(now))
	assert.Equal(t, subscription.PlanFree, sub.EffectivePlanID(now))

	sub.Demote(now)
	assert.Equal(t, subscription.PlanFree, sub.PlanID)
	assert.Equal(t, subscription.StatusExpired, sub.Status)
	assert.False(t, sub.Premium)
	assert.Equal(t, now, sub.UpdatedAt)
	assert.Equal(t, "ctm_1", sub.ProviderCustomerID)
	assert.False(t, sub.NeedsDemotion(now))

	t.Run("unexpired records are left alone", func(t *testing.T) {
		t.Parallel()
		future := now.Add(time.Hour)
		s := &subscription.Subscription{PlanID: subscription.PlanPremium, ExpiresAt: &future}
		assert.False(t, s.NeedsDemotion(now))
		assert.False(t, (*subscription.Subscription)(nil).NeedsDemotion(now))
	})
}

func TestSubscription_DaysRemainingAt(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	in := func(d time.Duration) *time.Time {
		t := now.Add(d)
		return &t
	}

	assert.Equal(t, 0, (&subscription.Subscription{}).DaysRemainingAt(now))
	assert.Equal(t, 0, (&subscription.Subscription{ExpiresAt: in(-time.Hour)}).DaysRemainingAt(now))
	assert.Equal(t, 1, (&subscription.Subscription{ExpiresAt: in(29 * time.Hour)}).DaysRemainingAt(now))
	assert.Equal(t, 2, (&subscription.Subscription{ExpiresAt: in(40 * time.Hour)}).DaysRemainingAt(now))
}

func TestSubscription_Clone(t *testing.T) {
	t.Parallel()

	exp := time.Now()
	sub := &subscription.Subscription{UserID: uuid.New(), PlanID: subscription.PlanPremium, ExpiresAt: &exp}
	c := sub.Clone()
	require.NotSame(t, sub.ExpiresAt, c.ExpiresAt)
	assert.Equal(t, *sub, *c)

	c.PlanID = subscription.PlanFree
	assert.Equal(t, subscription.PlanPremium, sub.PlanID)
	assert.Nil(t, (*subscription.Subscription)(nil).Clone())
}

func TestFreeSubscription(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	sub := subscription.FreeSubscription(id, time.Now())
	assert.Equal(t, id, sub.UserID)
	assert.Equal(t, subscription.PlanFree, sub.PlanID)
	assert.True(t, sub.IsActive())
	assert.False(t, sub.IsCancelled())
	assert.Nil(t, sub.ExpiresAt)
}
