package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	portal "github.com/stripe/stripe-go/v82/billingportal/session"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/astra-social/entitlements/pkg/subscription"
)

// StripeConfig holds configuration for the Stripe billing provider.
type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	// APIURL overrides the API endpoint; used against stripe-mock and in tests.
	APIURL string `env:"STRIPE_API_URL"`
}

// StripeProvider implements Provider with Stripe Checkout and the Stripe
// customer portal.
type StripeProvider struct {
	checkout      session.Client
	portal        portal.Client
	webhookSecret string
}

var _ Provider = (*StripeProvider)(nil)

// NewStripeProvider creates a provider with its own backend; the global
// stripe.Key is left untouched.
func NewStripeProvider(config StripeConfig) (*StripeProvider, error) {
	if config.SecretKey == "" || config.WebhookSecret == "" {
		return nil, fmt.Errorf("%w: stripe secret key and webhook secret are required", ErrMissingConfig)
	}

	backend := stripe.GetBackend(stripe.APIBackend)
	if config.APIURL != "" {
		backend = stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL: stripe.String(config.APIURL),
		})
	}

	return &StripeProvider{
		checkout:      session.Client{B: backend, Key: config.SecretKey},
		portal:        portal.Client{B: backend, Key: config.SecretKey},
		webhookSecret: config.WebhookSecret,
	}, nil
}

// CreateCheckoutLink starts a subscription-mode Checkout Session. The user id
// travels as client reference and subscription metadata.
func (p *StripeProvider) CreateCheckoutLink(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error) {
	if req.PriceID == "" || req.SuccessURL == "" {
		return nil, fmt.Errorf("%w: price id and success url are required", ErrInvalidRequest)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		ClientReferenceID: stripe.String(req.UserID.String()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{metadataUserID: req.UserID.String()},
		},
		SuccessURL: stripe.String(req.SuccessURL),
	}
	params.Context = ctx
	if req.CancelURL != "" {
		params.CancelURL = stripe.String(req.CancelURL)
	}
	switch {
	case req.CustomerID != "":
		params.Customer = stripe.String(req.CustomerID)
	case req.Email != "":
		params.CustomerEmail = stripe.String(req.Email)
	}

	sess, err := p.checkout.New(params)
	if err != nil {
		return nil, errors.Join(ErrProviderFailed, err)
	}

	link := &CheckoutLink{URL: sess.URL, SessionID: sess.ID}
	if sess.ExpiresAt > 0 {
		link.ExpiresAt = time.Unix(sess.ExpiresAt, 0).UTC()
	}
	return link, nil
}

// GetCustomerPortalLink creates a billing portal session returning to returnURL.
func (p *StripeProvider) GetCustomerPortalLink(ctx context.Context, sub *subscription.Subscription, returnURL string) (*PortalLink, error) {
	if sub == nil || sub.ProviderCustomerID == "" {
		return nil, ErrNoBillingAccount
	}

	params := &stripe.BillingPortalSessionParams{
		Customer: stripe.String(sub.ProviderCustomerID),
	}
	params.Context = ctx
	if returnURL != "" {
		params.ReturnURL = stripe.String(returnURL)
	}

	sess, err := p.portal.New(params)
	if err != nil {
		return nil, errors.Join(ErrProviderFailed, err)
	}
	// Portal sessions last five minutes unless used.
	return &PortalLink{URL: sess.URL, ExpiresAt: time.Now().Add(5 * time.Minute)}, nil
}

// stripeSubscription is the part of a subscription object webhooks need.
// Period ends moved to subscription items in recent API versions; both
// places are read.
type stripeSubscription struct {
	ID               string            `json:"id"`
	Status           string            `json:"status"`
	Customer         json.RawMessage   `json:"customer"`
	Metadata         map[string]string `json:"metadata"`
	CurrentPeriodEnd int64             `json:"current_period_end"`
	CanceledAt       int64             `json:"canceled_at"`
	Items            struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
			Price            struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// stripeInvoice is the part of an invoice object webhooks need.
type stripeInvoice struct {
	Customer     json.RawMessage `json:"customer"`
	Subscription string          `json:"subscription"`
	Status       string          `json:"status"`
	Parent       struct {
		SubscriptionDetails struct {
			Subscription string            `json:"subscription"`
			Metadata     map[string]string `json:"metadata"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// ParseWebhook verifies the Stripe-Signature header value and normalizes
// customer.subscription.* and invoice.* events.
func (p *StripeProvider) ParseWebhook(_ context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}
	if event.Data == nil {
		return nil, ErrInvalidPayload
	}

	out := &WebhookEvent{
		Type:          mapStripeEventType(string(event.Type)),
		ProviderEvent: string(event.Type),
		Raw:           event.Data.Object,
	}

	switch out.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionCancelled, EventSubscriptionResumed:
		var sub stripeSubscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, errors.Join(ErrInvalidPayload, err)
		}
		out.SubscriptionID = sub.ID
		out.CustomerID = expandableID(sub.Customer)
		out.Status = sub.Status
		out.UserID = parseUserID(sub.Metadata[metadataUserID])
		periodEnd := sub.CurrentPeriodEnd
		if len(sub.Items.Data) > 0 {
			out.PriceID = sub.Items.Data[0].Price.ID
			periodEnd = max(periodEnd, sub.Items.Data[0].CurrentPeriodEnd)
		}
		out.PeriodEnd = unixPtr(periodEnd)
		out.CancelledAt = unixPtr(sub.CanceledAt)

	case EventPaymentSucceeded, EventPaymentFailed:
		var inv stripeInvoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, errors.Join(ErrInvalidPayload, err)
		}
		out.CustomerID = expandableID(inv.Customer)
		out.Status = inv.Status
		out.SubscriptionID = inv.Subscription
		if details := inv.Parent.SubscriptionDetails; details.Subscription != "" {
			out.SubscriptionID = details.Subscription
			out.UserID = parseUserID(details.Metadata[metadataUserID])
		}
	}

	return out, nil
}

func mapStripeEventType(stripeEvent string) EventType {
	switch stripeEvent {
	case "customer.subscription.created":
		return EventSubscriptionCreated
	case "customer.subscription.updated":
		return EventSubscriptionUpdated
	case "customer.subscription.deleted":
		return EventSubscriptionCancelled
	case "customer.subscription.resumed":
		return EventSubscriptionResumed
	case "invoice.paid":
		return EventPaymentSucceeded
	case "invoice.payment_failed":
		return EventPaymentFailed
	default:
		return EventType(stripeEvent)
	}
}

// expandableID reads an expandable field: either an id string or an object with an id.
func expandableID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}
	return ""
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
