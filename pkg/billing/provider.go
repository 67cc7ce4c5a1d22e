package billing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/astra-social/entitlements/pkg/subscription"
)

// Provider is the payment provider integration. Providers host checkout and
// the customer portal, so no card data passes through this service.
type Provider interface {
	// CreateCheckoutLink creates a hosted checkout session.
	CreateCheckoutLink(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error)

	// GetCustomerPortalLink returns a temporary link to the customer portal
	// where users can update payment methods, cancel, or change plans.
	GetCustomerPortalLink(ctx context.Context, sub *subscription.Subscription, returnURL string) (*PortalLink, error)

	// ParseWebhook validates the signature and normalizes the event.
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error)
}

// CheckoutRequest contains data needed to create a checkout session.
type CheckoutRequest struct {
	PriceID    string    // provider's price identifier
	UserID     uuid.UUID // echoed back in webhooks as metadata
	CustomerID string    // provider customer, empty for first purchase
	Email      string
	SuccessURL string
	CancelURL  string
}

// CheckoutLink represents a hosted checkout session.
type CheckoutLink struct {
	URL       string    `json:"url"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PortalLink represents a customer portal session.
type PortalLink struct {
	URL              string    `json:"url"`
	CancelURL        string    `json:"cancel_url,omitempty"`
	UpdatePaymentURL string    `json:"update_payment_url,omitempty"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// WebhookEvent is a provider event normalized to what the subscription
// record needs.
type WebhookEvent struct {
	Type           EventType
	ProviderEvent  string
	SubscriptionID string
	CustomerID     string    // provider customer id
	UserID         uuid.UUID // from checkout metadata; Nil when absent
	Status         string
	PriceID        string
	PeriodEnd      *time.Time
	CancelledAt    *time.Time
	Raw            map[string]any
}

// EventType represents the normalized billing event type.
type EventType string

const (
	EventSubscriptionCreated   EventType = "subscription_created"
	EventSubscriptionUpdated   EventType = "subscription_updated"
	EventSubscriptionCancelled EventType = "subscription_cancelled"
	EventSubscriptionResumed   EventType = "subscription_resumed"

	EventPaymentSucceeded EventType = "payment_succeeded"
	EventPaymentFailed    EventType = "payment_failed"
)

// metadataUserID is the custom data key carrying our user id through checkout.
const metadataUserID = "user_id"

func parseUserID(raw string) uuid.UUID {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil
	}
	return id
}
