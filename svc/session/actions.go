package session

import (
	"context"

	"github.com/google/uuid"

	"github.com/astra-social/entitlements/pkg/billing"
	"github.com/astra-social/entitlements/pkg/logger"
	"github.com/astra-social/entitlements/pkg/subscription"
	"github.com/astra-social/entitlements/pkg/usage"
)

// IncrementUsage adds amount to today's counter of l. The local counter is
// updated before returning, in call order; the tracker write happens in the
// background and a failure is logged without rolling the local value back.
func (s *Session) IncrementUsage(ctx context.Context, l subscription.LimitName, amount int64) error {
	if err := usage.ValidateIncrement(l, amount); err != nil {
		return err
	}

	now := s.opts.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateUninitialized {
		return subscription.NewAuthRequired()
	}
	s.rolloverLocked(ctx, now)
	s.reserveLocked(ctx, l, amount)
	return nil
}

// Attempt gates one l action: it checks the required features and today's
// limit and, when allowed, counts the action. Check and count happen
// atomically, so concurrent attempts cannot overshoot the local limit.
//
// The returned result reflects usage after the action was counted. Denials
// are *subscription.ActionError values carrying the upgrade that unlocks the
// action.
func (s *Session) Attempt(ctx context.Context, l subscription.LimitName, requires ...subscription.Feature) (subscription.LimitCheckResult, error) {
	if err := usage.ValidateIncrement(l, 1); err != nil {
		return subscription.LimitCheckResult{}, err
	}

	now := s.opts.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateUninitialized {
		s.opts.metrics.recordAction(l, outcomeAuthRequired)
		return subscription.LimitCheckResult{}, subscription.NewAuthRequired()
	}
	s.rolloverLocked(ctx, now)
	plan := s.planLocked(now)

	for _, f := range requires {
		if !plan.HasFeature(f) {
			s.opts.metrics.recordAction(l, outcomeFeatureLocked)
			return subscription.LimitCheckResult{}, subscription.NewFeatureLocked(s.catalog.RequiresUpgradeFor(plan, f))
		}
	}

	check := subscription.CanPerformAction(plan, s.usage, l)
	if !check.Allowed {
		s.opts.metrics.recordAction(l, outcomeLimitReached)
		return check, subscription.NewLimitReached(check, s.catalog.UpgradeForLimit(plan, s.usage, l))
	}

	s.reserveLocked(ctx, l, 1)
	s.opts.metrics.recordAction(l, outcomeAllowed)
	return subscription.CanPerformAction(plan, s.usage, l), nil
}

// reserveLocked applies an increment locally and schedules its write.
func (s *Session) reserveLocked(ctx context.Context, l subscription.LimitName, amount int64) {
	s.usage.Add(l, amount)
	s.usage.UpdatedAt = s.opts.now()

	r := s.run
	if r == nil {
		return
	}
	r.persists.Add(1)
	go s.persist(ctx, r, s.userID, s.usage.Day, l, amount)
}

func (s *Session) persist(ctx context.Context, r *run, userID uuid.UUID, day subscription.Day, l subscription.LimitName, amount int64) {
	defer r.persists.Done()

	r.writes.Lock()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.persistTimeout)
	defer cancel()
	err := s.tracker.Increment(ctx, userID, day, l, amount)
	r.writes.Unlock()

	s.opts.metrics.recordPersist(l, err)
	if err != nil {
		s.logger.ErrorContext(ctx, "usage increment not persisted",
			logger.UserID(userID), logger.Day(day), logger.Limit(l), logger.Error(err))
		return
	}
	s.publish(ctx, userID, subscription.ChangeUsage)
}

// UpgradeIntent builds the checkout hand-off to target. Only plans above the
// current one are accepted.
func (s *Session) UpgradeIntent(target subscription.PlanID, successURL, cancelURL string) (billing.CheckoutIntent, error) {
	if s.State() == StateUninitialized {
		return billing.CheckoutIntent{}, subscription.NewAuthRequired()
	}

	intent := billing.CheckoutIntent{
		Target:     target,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
	}
	if err := billing.ValidateIntent(s.catalog, s.Plan().ID, intent); err != nil {
		return billing.CheckoutIntent{}, err
	}
	return intent, nil
}
