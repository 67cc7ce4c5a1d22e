package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/astra-social/entitlements/pkg/subscription"
)

// view is a consistent copy of the cached state taken under s.mu.
type view struct {
	plan  subscription.Plan
	usage subscription.Usage
}

func (s *Session) view() view {
	now := s.opts.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.rolloverLocked(context.Background(), now)
	return view{plan: s.planLocked(now), usage: s.usage}
}

// planLocked resolves the plan that applies at now. Anything but a loaded
// session gets free.
func (s *Session) planLocked(now time.Time) subscription.Plan {
	if s.state != StateReady {
		return s.catalog.GetPlan(subscription.PlanFree)
	}
	return s.catalog.GetPlan(s.sub.EffectivePlanID(now))
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UserID returns the logged-in user, or uuid.Nil.
func (s *Session) UserID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Err returns the error of the last failed load, cleared by the next success.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Plan returns the effective plan. Expired subscriptions resolve to free at
// read time, before the demotion is written back.
func (s *Session) Plan() subscription.Plan {
	return s.view().plan
}

// Subscription returns a copy of the cached record, or nil when logged out.
func (s *Session) Subscription() *subscription.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub.Clone()
}

// Usage returns today's counters. A changed calendar day is detected here
// and yields a zeroed record.
func (s *Session) Usage() subscription.Usage {
	return s.view().usage
}

func (s *Session) HasFeature(f subscription.Feature) bool {
	return subscription.HasFeature(s.Plan(), f)
}

func (s *Session) Limit(l subscription.LimitName) subscription.Limit {
	return subscription.GetLimit(s.Plan(), l)
}

// CanPerformAction evaluates l against the current plan and today's usage.
func (s *Session) CanPerformAction(l subscription.LimitName) subscription.LimitCheckResult {
	v := s.view()
	return subscription.CanPerformAction(v.plan, v.usage, l)
}

func (s *Session) RequiresUpgradeFor(f subscription.Feature) subscription.UpgradeInfo {
	return s.catalog.RequiresUpgradeFor(s.Plan(), f)
}

func (s *Session) UpgradeForLimit(l subscription.LimitName) subscription.UpgradeInfo {
	v := s.view()
	return s.catalog.UpgradeForLimit(v.plan, v.usage, l)
}

// CompareWith compares the current plan (A) with target (B).
func (s *Session) CompareWith(target subscription.PlanID) subscription.PlanComparison {
	return subscription.ComparePlans(s.Plan(), s.catalog.GetPlan(target))
}

// Snapshot is the serializable entitlement state of a session.
type Snapshot struct {
	UserID        uuid.UUID                                `json:"user_id"`
	State         State                                    `json:"state"`
	Plan          subscription.Plan                        `json:"plan"`
	Subscription  *subscription.Subscription               `json:"subscription,omitempty"`
	Usage         subscription.Usage                       `json:"usage"`
	Limits        map[string]subscription.LimitCheckResult `json:"limits"`
	Features      map[string]bool                          `json:"features"`
	DaysRemaining int                                      `json:"days_remaining"`
	Error         string                                   `json:"error,omitempty"`
}

// Snapshot evaluates every limit and feature at once.
func (s *Session) Snapshot() Snapshot {
	now := s.opts.now()

	s.mu.Lock()
	s.rolloverLocked(context.Background(), now)
	snap := Snapshot{
		UserID:       s.userID,
		State:        s.state,
		Plan:         s.planLocked(now),
		Subscription: s.sub.Clone(),
		Usage:        s.usage,
	}
	if s.lastErr != nil {
		snap.Error = s.lastErr.Error()
	}
	s.mu.Unlock()

	if snap.Subscription != nil {
		snap.DaysRemaining = snap.Subscription.DaysRemainingAt(now)
	}
	snap.Features = snap.Plan.Features.Map()
	snap.Limits = make(map[string]subscription.LimitCheckResult, len(subscription.Limits()))
	for _, l := range subscription.Limits() {
		snap.Limits[l.String()] = subscription.CanPerformAction(snap.Plan, snap.Usage, l)
	}
	return snap
}
