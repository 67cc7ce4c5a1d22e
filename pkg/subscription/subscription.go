package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Subscription is a user's association with a plan.
// Each user has exactly one subscription record; users without one are on free.
type Subscription struct {
	UserID             uuid.UUID  `json:"user_id"`
	PlanID             PlanID     `json:"plan_id"`
	Status             Status     `json:"status"`
	Premium            bool       `json:"premium"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
	ProviderCustomerID string     `json:"provider_customer_id,omitempty"`
	ProviderSubID      string     `json:"provider_subscription_id,omitempty"` // empty for free
	CreatedAt          time.Time  `json:"created_at,omitzero"`
	UpdatedAt          time.Time  `json:"updated_at,omitzero"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
}

// FreeSubscription returns the implicit record of a user who never paid.
func FreeSubscription(userID uuid.UUID, now time.Time) *Subscription {
	return &Subscription{
		UserID:    userID,
		PlanID:    PlanFree,
		Status:    StatusActive,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

// IsExpiredAt reports whether the expiry timestamp lies before now.
func (s *Subscription) IsExpiredAt(now time.Time) bool {
	return s.ExpiresAt != nil && s.ExpiresAt.Before(now)
}

// EffectivePlanID returns the plan that applies at now.
// Unknown tiers and expired subscriptions resolve to free.
func (s *Subscription) EffectivePlanID(now time.Time) PlanID {
	if s == nil {
		return PlanFree
	}
	if s.IsExpiredAt(now) || s.Status == StatusExpired {
		return PlanFree
	}
	return NormalizePlanID(string(s.PlanID))
}

// NeedsDemotion reports whether the stored record still names a paid plan
// although it has expired.
func (s *Subscription) NeedsDemotion(now time.Time) bool {
	if s == nil || !s.IsExpiredAt(now) {
		return false
	}
	return NormalizePlanID(string(s.PlanID)) != PlanFree || s.Premium || s.Status != StatusExpired
}

// Demote rewrites the record to the free plan after expiry.
// Billing references are kept so the user can resume from the provider portal.
func (s *Subscription) Demote(now time.Time) {
	s.PlanID = PlanFree
	s.Status = StatusExpired
	s.Premium = false
	s.UpdatedAt = now.UTC()
}

// IsActive returns true if the subscription is active (paid or free).
func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

// IsCancelled returns true if the subscription is cancelled.
func (s *Subscription) IsCancelled() bool {
	return s.Status == StatusCancelled
}

// DaysRemainingAt returns whole days left until expiry, rounded to nearest.
// Returns 0 without an expiry or after it.
func (s *Subscription) DaysRemainingAt(now time.Time) int {
	if s.ExpiresAt == nil {
		return 0
	}
	remaining := s.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	days := remaining.Hours() / 24
	return int(days + 0.5)
}

// Clone returns a deep copy.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	out := *s
	if s.ExpiresAt != nil {
		t := *s.ExpiresAt
		out.ExpiresAt = &t
	}
	if s.CancelledAt != nil {
		t := *s.CancelledAt
		out.CancelledAt = &t
	}
	return &out
}
