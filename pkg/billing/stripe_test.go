package billing_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/astra-social/entitlements/pkg/billing"
	"github.com/astra-social/entitlements/pkg/subscription"
)

const stripeSecret = "whsec_test_secret"

func signStripe(t *testing.T, payload []byte, secret string) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func newStripe(t *testing.T, apiURL string) *billing.StripeProvider {
	t.Helper()
	p, err := billing.NewStripeProvider(billing.StripeConfig{
		SecretKey:     "sk_test_123",
		WebhookSecret: stripeSecret,
		APIURL:        apiURL,
	})
	require.NoError(t, err)
	return p
}

func TestNewStripeProvider_Config(t *testing.T) {
	t.Parallel()

	_, err := billing.NewStripeProvider(billing.StripeConfig{SecretKey: "sk"})
	assert.ErrorIs(t, err, billing.ErrMissingConfig)
}

func TestStripeProvider_ParseWebhook(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	subscriptionEvent := []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"object": "event",
		"type": "customer.subscription.updated",
		"data": {"object": {
			"id": "sub_1",
			"object": "subscription",
			"status": "trialing",
			"customer": "cus_1",
			"metadata": {"user_id": %q},
			"items": {"object": "list", "data": [{"id": "si_1", "current_period_end": 1748736000, "price": {"id": "price_elite"}}]}
		}}
	}`, userID))

	t.Run("subscription event", func(t *testing.T) {
		t.Parallel()
		event, err := newStripe(t, "").ParseWebhook(context.Background(), subscriptionEvent, signStripe(t, subscriptionEvent, stripeSecret))
		require.NoError(t, err)
		assert.Equal(t, billing.EventSubscriptionUpdated, event.Type)
		assert.Equal(t, userID, event.UserID)
		assert.Equal(t, "sub_1", event.SubscriptionID)
		assert.Equal(t, "cus_1", event.CustomerID)
		assert.Equal(t, "trialing", event.Status)
		assert.Equal(t, "price_elite", event.PriceID)
		require.NotNil(t, event.PeriodEnd)
		assert.Equal(t, time.Unix(1748736000, 0).UTC(), *event.PeriodEnd)
	})

	t.Run("deleted subscription", func(t *testing.T) {
		t.Parallel()
		payload := []byte(fmt.Sprintf(`{"id":"evt_2","object":"event","type":"customer.subscription.deleted","data":{"object":{"id":"sub_1","customer":{"id":"cus_2"},"status":"canceled","canceled_at":1748000000,"metadata":{"user_id":%q}}}}`, userID))
		event, err := newStripe(t, "").ParseWebhook(context.Background(), payload, signStripe(t, payload, stripeSecret))
		require.NoError(t, err)
		assert.Equal(t, billing.EventSubscriptionCancelled, event.Type)
		assert.Equal(t, "cus_2", event.CustomerID)
		require.NotNil(t, event.CancelledAt)
		assert.Nil(t, event.PeriodEnd)
	})

	t.Run("invoice event", func(t *testing.T) {
		t.Parallel()
		payload := []byte(fmt.Sprintf(`{"id":"evt_3","object":"event","type":"invoice.payment_failed","data":{"object":{"id":"in_1","customer":"cus_1","status":"open","parent":{"subscription_details":{"subscription":"sub_1","metadata":{"user_id":%q}}}}}}`, userID))
		event, err := newStripe(t, "").ParseWebhook(context.Background(), payload, signStripe(t, payload, stripeSecret))
		require.NoError(t, err)
		assert.Equal(t, billing.EventPaymentFailed, event.Type)
		assert.Equal(t, "sub_1", event.SubscriptionID)
		assert.Equal(t, userID, event.UserID)
	})

	t.Run("bad signature", func(t *testing.T) {
		t.Parallel()
		_, err := newStripe(t, "").ParseWebhook(context.Background(), subscriptionEvent, signStripe(t, subscriptionEvent, "whsec_other"))
		assert.ErrorIs(t, err, billing.ErrInvalidSignature)
	})
}

func TestStripeProvider_CreateCheckoutLink(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	forms := make(chan map[string][]string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/checkout/sessions" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = r.ParseForm()
		forms <- r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":         "cs_test_1",
			"object":     "checkout.session",
			"url":        "https://checkout.stripe.com/c/pay/cs_test_1",
			"expires_at": 1748736000,
		})
	}))
	t.Cleanup(srv.Close)

	link, err := newStripe(t, srv.URL).CreateCheckoutLink(context.Background(), billing.CheckoutRequest{
		PriceID:    "price_premium",
		UserID:     userID,
		Email:      "a@example.com",
		SuccessURL: "https://app/ok",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", link.SessionID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", link.URL)
	assert.Equal(t, time.Unix(1748736000, 0).UTC(), link.ExpiresAt)

	form := <-forms
	assert.Equal(t, []string{"subscription"}, form["mode"])
	assert.Equal(t, []string{userID.String()}, form["client_reference_id"])
	assert.Equal(t, []string{"price_premium"}, form["line_items[0][price]"])
	assert.Equal(t, []string{"a@example.com"}, form["customer_email"])
	assert.Equal(t, []string{userID.String()}, form["subscription_data[metadata][user_id]"])
}

func TestStripeProvider_PortalRequiresCustomer(t *testing.T) {
	t.Parallel()

	_, err := newStripe(t, "").GetCustomerPortalLink(context.Background(), subscription.FreeSubscription(uuid.New(), time.Now()), "https://app")
	assert.ErrorIs(t, err, billing.ErrNoBillingAccount)
}
