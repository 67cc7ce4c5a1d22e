package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/google/uuid"

	"github.com/astra-social/entitlements/pkg/subscription"
)

// PaddleConfig holds configuration for Paddle billing provider.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// PaddleProvider implements Provider for Paddle Billing.
type PaddleProvider struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
}

var _ Provider = (*PaddleProvider)(nil)

// NewPaddleProvider creates a new Paddle billing provider.
func NewPaddleProvider(config PaddleConfig) (*PaddleProvider, error) {
	if config.APIKey == "" || config.WebhookSecret == "" {
		return nil, fmt.Errorf("%w: paddle api key and webhook secret are required", ErrMissingConfig)
	}

	var client *paddle.SDK
	var err error

	switch strings.ToLower(config.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(config.APIKey)
	case "production", "":
		client, err = paddle.New(config.APIKey)
	default:
		return nil, fmt.Errorf("%w: invalid paddle environment %q", ErrMissingConfig, config.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	return &PaddleProvider{
		client:   client,
		verifier: paddle.NewWebhookVerifier(config.WebhookSecret),
	}, nil
}

// CreateCheckoutLink creates a Paddle transaction and returns its checkout URL.
func (p *PaddleProvider) CreateCheckoutLink(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error) {
	if req.PriceID == "" || req.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: price id and user id are required", ErrInvalidRequest)
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  req.PriceID,
		Quantity: 1,
	})

	transactionReq := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			metadataUserID: req.UserID.String(),
		},
	}
	if req.CustomerID != "" {
		transactionReq.CustomerID = paddle.PtrTo(req.CustomerID)
	}
	if req.Email != "" {
		// Paddle attaches emails to customers, not transactions.
		transactionReq.CustomData["email"] = req.Email
	}
	if req.SuccessURL != "" {
		transactionReq.Checkout = &paddle.TransactionCheckout{
			URL: paddle.PtrTo(req.SuccessURL),
		}
	}

	transaction, err := p.client.TransactionsClient.CreateTransaction(ctx, transactionReq)
	if err != nil {
		return nil, errors.Join(ErrProviderFailed, err)
	}
	if transaction.Checkout == nil || transaction.Checkout.URL == nil {
		return nil, errors.Join(ErrProviderFailed, errors.New("no checkout url returned from paddle"))
	}

	return &CheckoutLink{
		URL:       *transaction.Checkout.URL,
		SessionID: transaction.ID,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}, nil
}

// GetCustomerPortalLink returns a link to Paddle's customer portal.
// Paddle portal sessions carry no return URL.
func (p *PaddleProvider) GetCustomerPortalLink(ctx context.Context, sub *subscription.Subscription, _ string) (*PortalLink, error) {
	if sub == nil || sub.ProviderCustomerID == "" {
		return nil, ErrNoBillingAccount
	}

	portalReq := &paddle.CreateCustomerPortalSessionRequest{
		CustomerID: sub.ProviderCustomerID,
	}
	if sub.ProviderSubID != "" {
		portalReq.SubscriptionIDs = []string{sub.ProviderSubID}
	}

	portalSession, err := p.client.CustomerPortalSessionsClient.CreateCustomerPortalSession(ctx, portalReq)
	if err != nil {
		return nil, errors.Join(ErrProviderFailed, err)
	}

	link := &PortalLink{
		URL:       portalSession.URLs.General.Overview,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
	for _, subURL := range portalSession.URLs.Subscriptions {
		if subURL.ID == sub.ProviderSubID {
			link.CancelURL = subURL.CancelSubscription
			link.UpdatePaymentURL = subURL.UpdateSubscriptionPaymentMethod
			break
		}
	}
	if link.URL == "" {
		return nil, errors.Join(ErrProviderFailed, errors.New("no portal url returned from paddle"))
	}
	return link, nil
}

// ParseWebhook verifies the Paddle-Signature header value and normalizes
// subscription and transaction events.
func (p *PaddleProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Join(ErrInvalidPayload, err)
	}
	req.Header.Set("Paddle-Signature", signature)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}
	if !valid {
		return nil, ErrInvalidSignature
	}

	var paddleEvent struct {
		EventID   string         `json:"event_id"`
		EventType string         `json:"event_type"`
		Data      map[string]any `json:"data"`
	}
	if err := json.Unmarshal(payload, &paddleEvent); err != nil {
		return nil, errors.Join(ErrInvalidPayload, err)
	}

	data := paddleEvent.Data
	event := &WebhookEvent{
		Type:          mapPaddleEventType(paddleEvent.EventType),
		ProviderEvent: paddleEvent.EventType,
		CustomerID:    str(data, "customer_id"),
		Status:        str(data, "status"),
		Raw:           data,
	}
	if customData, ok := data["custom_data"].(map[string]any); ok {
		event.UserID = parseUserID(str(customData, metadataUserID))
	}

	switch {
	case strings.HasPrefix(paddleEvent.EventType, "subscription."):
		event.SubscriptionID = str(data, "id")
		if items, ok := data["items"].([]any); ok && len(items) > 0 {
			if item, ok := items[0].(map[string]any); ok {
				if price, ok := item["price"].(map[string]any); ok {
					event.PriceID = str(price, "id")
				}
			}
		}
		if period, ok := data["current_billing_period"].(map[string]any); ok {
			event.PeriodEnd = timestamp(period, "ends_at")
		}
		event.CancelledAt = timestamp(data, "canceled_at")

	case strings.HasPrefix(paddleEvent.EventType, "transaction."):
		event.SubscriptionID = str(data, "subscription_id")
		if items, ok := data["items"].([]any); ok && len(items) > 0 {
			if item, ok := items[0].(map[string]any); ok {
				event.PriceID = str(item, "price_id")
			}
		}
		if period, ok := data["billing_period"].(map[string]any); ok {
			event.PeriodEnd = timestamp(period, "ends_at")
		}
	}

	return event, nil
}

func mapPaddleEventType(paddleEvent string) EventType {
	switch paddleEvent {
	case "transaction.completed", "subscription.created", "subscription.activated":
		return EventSubscriptionCreated
	case "subscription.updated":
		return EventSubscriptionUpdated
	case "subscription.canceled":
		return EventSubscriptionCancelled
	case "subscription.resumed":
		return EventSubscriptionResumed
	case "transaction.paid":
		return EventPaymentSucceeded
	case "transaction.payment_failed", "subscription.past_due":
		return EventPaymentFailed
	default:
		return EventType(paddleEvent)
	}
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func timestamp(m map[string]any, key string) *time.Time {
	raw := str(m, key)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
