package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/astra-social/entitlements/pkg/broadcast"
	"github.com/astra-social/entitlements/pkg/logger"
	"github.com/astra-social/entitlements/pkg/subscription"
)

// Prices maps paid plans to provider price ids.
type Prices map[subscription.PlanID]string

// PlanFor returns the plan sold under priceID.
func (p Prices) PlanFor(priceID string) (subscription.PlanID, bool) {
	for plan, id := range p {
		if id == priceID && id != "" {
			return plan, true
		}
	}
	return "", false
}

// CheckoutIntent is the hand-off from an upgrade prompt to checkout.
type CheckoutIntent struct {
	Target     subscription.PlanID `json:"target"`
	SuccessURL string              `json:"success_url"`
	CancelURL  string              `json:"cancel_url,omitempty"`
	Email      string              `json:"email,omitempty"`
}

// ValidateIntent checks that intent names a plan of the catalog above current.
func ValidateIntent(catalog *subscription.Catalog, current subscription.PlanID, intent CheckoutIntent) error {
	if !intent.Target.Valid() {
		return fmt.Errorf("%w: unknown plan %q", ErrInvalidRequest, intent.Target)
	}
	if catalog.GetPlan(intent.Target).Tier <= catalog.GetPlan(current).Tier {
		return fmt.Errorf("%w: %s to %s", ErrNotAnUpgrade, current, intent.Target)
	}
	return nil
}

// Service connects a Provider to the subscription store and the change feed.
type Service struct {
	provider Provider
	store    subscription.Store
	catalog  *subscription.Catalog
	prices   Prices
	feed     broadcast.Broadcaster[subscription.Change]
	log      *slog.Logger
	now      func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithChangeFeed publishes a subscription change after every applied webhook.
func WithChangeFeed(feed broadcast.Broadcaster[subscription.Change]) ServiceOption {
	return func(s *Service) {
		s.feed = feed
	}
}

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService panics on missing dependencies.
func NewService(provider Provider, store subscription.Store, catalog *subscription.Catalog, prices Prices, opts ...ServiceOption) *Service {
	if provider == nil || store == nil || catalog == nil {
		panic("billing: provider, store and catalog are required")
	}
	s := &Service{
		provider: provider,
		store:    store,
		catalog:  catalog,
		prices:   prices,
		log:      logger.Discard(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("billing"))
	return s
}

// Checkout validates intent against the user's stored plan and creates a
// hosted checkout link for the target plan's price.
func (s *Service) Checkout(ctx context.Context, userID uuid.UUID, intent CheckoutIntent) (*CheckoutLink, error) {
	sub, err := s.current(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := ValidateIntent(s.catalog, sub.EffectivePlanID(s.now()), intent); err != nil {
		return nil, err
	}
	priceID := s.prices[intent.Target]
	if priceID == "" {
		return nil, fmt.Errorf("%w: %s", ErrPriceNotConfigured, intent.Target)
	}

	link, err := s.provider.CreateCheckoutLink(ctx, CheckoutRequest{
		PriceID:    priceID,
		UserID:     userID,
		CustomerID: sub.ProviderCustomerID,
		Email:      intent.Email,
		SuccessURL: intent.SuccessURL,
		CancelURL:  intent.CancelURL,
	})
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "checkout created",
		logger.UserID(userID),
		logger.PlanID(intent.Target),
		slog.String("session_id", link.SessionID))
	return link, nil
}

// PortalLink returns the customer portal for users with a billing account.
func (s *Service) PortalLink(ctx context.Context, userID uuid.UUID, returnURL string) (*PortalLink, error) {
	sub, err := s.current(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.ProviderCustomerID == "" {
		return nil, ErrNoBillingAccount
	}
	return s.provider.GetCustomerPortalLink(ctx, sub, returnURL)
}

// HandleWebhook verifies and applies a provider event to the user's record,
// then notifies live sessions. Events that do not affect entitlements are
// acknowledged without a write.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.provider.ParseWebhook(ctx, payload, signature)
	if err != nil {
		return err
	}
	log := s.log.With(logger.EventType(event.ProviderEvent))

	if !affectsEntitlements(event.Type) {
		log.DebugContext(ctx, "webhook ignored")
		return nil
	}
	if event.UserID == uuid.Nil {
		log.WarnContext(ctx, "webhook without user id",
			slog.String("customer_id", event.CustomerID),
			slog.String("subscription_id", event.SubscriptionID))
		return ErrUnresolvedUser
	}

	sub, err := s.current(ctx, event.UserID)
	if err != nil {
		return err
	}
	s.apply(sub, event)
	if err := s.store.Save(ctx, sub); err != nil {
		log.ErrorContext(ctx, "failed to save subscription", logger.UserID(event.UserID), logger.Error(err))
		return err
	}
	log.InfoContext(ctx, "subscription updated from webhook",
		logger.UserID(sub.UserID),
		logger.PlanID(sub.PlanID),
		slog.String("status", string(sub.Status)))

	if s.feed != nil {
		change := subscription.Change{UserID: sub.UserID, Kind: subscription.ChangeSubscription, At: s.now().UTC()}
		if err := s.feed.Broadcast(ctx, subscription.Topic(sub.UserID), change); err != nil {
			// Sessions still pick the change up on their next refresh.
			log.WarnContext(ctx, "failed to publish subscription change", logger.Error(err))
		}
	}
	return nil
}

func (s *Service) current(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	sub, err := s.store.Get(ctx, userID)
	if errors.Is(err, subscription.ErrSubscriptionNotFound) {
		return subscription.FreeSubscription(userID, s.now()), nil
	}
	return sub, err
}

func (s *Service) apply(sub *subscription.Subscription, event *WebhookEvent) {
	now := s.now().UTC()
	sub.UpdatedAt = now
	if event.CustomerID != "" {
		sub.ProviderCustomerID = event.CustomerID
	}
	if event.SubscriptionID != "" {
		sub.ProviderSubID = event.SubscriptionID
	}

	switch event.Type {
	case EventSubscriptionCancelled:
		sub.Status = subscription.StatusCancelled
		cancelled := now
		if event.CancelledAt != nil {
			cancelled = *event.CancelledAt
		}
		sub.CancelledAt = &cancelled
		// Access lasts until the paid period ends; without one it ends now.
		end := now
		if event.PeriodEnd != nil {
			end = *event.PeriodEnd
		}
		sub.ExpiresAt = &end
		if !end.After(now) {
			sub.Demote(now)
		}
		return

	case EventPaymentFailed:
		sub.Status = subscription.StatusPastDue
		return
	}

	if plan, ok := s.prices.PlanFor(event.PriceID); ok {
		sub.PlanID = plan
	}
	if event.Status != "" {
		sub.Status = subscription.NormalizeStatus(event.Status)
	} else {
		sub.Status = subscription.StatusActive
	}
	if event.PeriodEnd != nil {
		sub.ExpiresAt = event.PeriodEnd
	}
	sub.CancelledAt = nil
	sub.Premium = s.catalog.GetPlan(sub.PlanID).IsPaid()
}

func affectsEntitlements(t EventType) bool {
	switch t {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionCancelled,
		EventSubscriptionResumed, EventPaymentSucceeded, EventPaymentFailed:
		return true
	}
	return false
}
