package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/astra-social/entitlements/pkg/billing"
	"github.com/astra-social/entitlements/pkg/broadcast"
	"github.com/astra-social/entitlements/pkg/subscription"
	"github.com/astra-social/entitlements/pkg/usage"
	"github.com/astra-social/entitlements/svc/httpapi"
	"github.com/astra-social/entitlements/svc/session"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) CreateCheckoutLink(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutLink, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.CheckoutLink), args.Error(1)
}

func (m *mockProvider) GetCustomerPortalLink(ctx context.Context, sub *subscription.Subscription, returnURL string) (*billing.PortalLink, error) {
	args := m.Called(ctx, sub, returnURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.PortalLink), args.Error(1)
}

func (m *mockProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*billing.WebhookEvent, error) {
	args := m.Called(ctx, payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.WebhookEvent), args.Error(1)
}

type fixture struct {
	store    *subscription.MemoryStore
	feed     *broadcast.MemoryBroadcaster[subscription.Change]
	registry *session.Registry
	provider *mockProvider
	promReg  *prometheus.Registry
	handler  http.Handler
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	billing bool
	api     []httpapi.Option
}

func withBilling() fixtureOption {
	return func(c *fixtureConfig) { c.billing = true }
}

func withAPIOptions(opts ...httpapi.Option) fixtureOption {
	return func(c *fixtureConfig) { c.api = append(c.api, opts...) }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	var cfg fixtureConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	catalog := subscription.DefaultCatalog()
	tracker := usage.NewMemoryTracker(usage.WithCleanupInterval(0))
	f := &fixture{
		store:    subscription.NewMemoryStore(),
		feed:     broadcast.NewMemoryBroadcaster[subscription.Change](8),
		provider: &mockProvider{},
		promReg:  prometheus.NewRegistry(),
	}
	f.registry = session.NewRegistry(8, catalog, f.store, tracker,
		session.WithLocation(time.UTC),
		session.WithChangeFeed(f.feed))
	t.Cleanup(func() {
		_ = f.registry.Close()
		_ = f.feed.Close()
		tracker.Close()
	})

	apiOpts := []httpapi.Option{
		httpapi.WithMetrics(httpapi.NewMetrics("astra", f.promReg), f.promReg),
	}
	if cfg.billing {
		svc := billing.NewService(f.provider, f.store, catalog, billing.Prices{
			subscription.PlanPremium:      "pri_premium",
			subscription.PlanPremiumElite: "pri_elite",
		}, billing.WithChangeFeed(f.feed))
		apiOpts = append(apiOpts, httpapi.WithBilling(svc))
	}
	f.handler = httpapi.New(f.registry, catalog, append(apiOpts, cfg.api...)...).Router()
	return f
}

func (f *fixture) seed(t *testing.T, userID uuid.UUID, plan subscription.PlanID) {
	t.Helper()
	sub := subscription.FreeSubscription(userID, time.Now())
	sub.PlanID = plan
	sub.Premium = plan != subscription.PlanFree
	sub.ProviderCustomerID = "cus_1"
	expires := time.Now().Add(30 * 24 * time.Hour)
	sub.ExpiresAt = &expires
	require.NoError(t, f.store.Save(context.Background(), sub))
}

// do sends a request as userID; uuid.Nil sends it unauthenticated.
func (f *fixture) do(t *testing.T, method, target string, userID uuid.UUID, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, r)
	if userID != uuid.Nil {
		req.Header.Set(httpapi.UserIDHeader, userID.String())
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
