package subscription_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astra-social/entitlements/pkg/subscription"
)

const testCatalogYAML = `
plans:
  - id: free
    name: Free
    tier: 0
    price: {amount: 0, currency: USD}
    limits:
      signalsPerDay: 3
      astraMessagesPerDay: 5
      matchMessagesPerDay: 10
      superLikesPerDay: 1
  - id: premium
    name: Premium
    tier: 1
    price: {amount: 999, currency: USD}
    interval: monthly
    limits:
      signalsPerDay: 30
      astraMessagesPerDay: 30
      matchMessagesPerDay: unlimited
      superNovasPerDay: 1
      superLikesPerDay: 3
    features: [seeWhoLikedYou, rewind]
  - id: premium_elite
    name: Premium Elite
    tier: 2
    price: {amount: 1999, currency: USD}
    interval: monthly
    limits:
      signalsPerDay: unlimited
      astraMessagesPerDay: 100
      matchMessagesPerDay: unlimited
      superNovasPerDay: 2
      superLikesPerDay: 6
    features: [seeWhoLikedYou, rewind, eliteBadge]
`

func TestYAMLSource(t *testing.T) {
	t.Parallel()

	t.Run("loads catalog", func(t *testing.T) {
		t.Parallel()
		catalog, err := subscription.LoadCatalog(context.Background(),
			subscription.NewYAMLSource(strings.NewReader(testCatalogYAML)))
		require.NoError(t, err)

		free := catalog.GetPlan(subscription.PlanFree)
		assert.Equal(t, subscription.BillingIntervalNone, free.Interval)
		assert.Equal(t, subscription.Finite(0), free.Limit(subscription.LimitSuperNovasPerDay))
		assert.False(t, free.IsPaid())

		premium := catalog.GetPlan(subscription.PlanPremium)
		assert.True(t, premium.IsPaid())
		assert.Equal(t, subscription.Unlimited, premium.Limit(subscription.LimitMatchMessagesPerDay))
		assert.True(t, premium.HasFeature(subscription.FeatureRewind))
		assert.False(t, premium.HasFeature(subscription.FeatureAdFree))

		p, ok := catalog.MinimumPlanForFeature(subscription.FeatureEliteBadge)
		require.True(t, ok)
		assert.Equal(t, subscription.PlanPremiumElite, p.ID)
	})

	t.Run("file source", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "plans.yaml")
		require.NoError(t, os.WriteFile(path, []byte(testCatalogYAML), 0o600))

		plans, err := subscription.NewYAMLFileSource(path).Load(context.Background())
		require.NoError(t, err)
		assert.Len(t, plans, 3)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := subscription.LoadCatalog(context.Background(),
			subscription.NewYAMLFileSource(filepath.Join(t.TempDir(), "nope.yaml")))
		assert.ErrorIs(t, err, subscription.ErrFailedToLoadPlans)
	})

	t.Run("unknown feature", func(t *testing.T) {
		t.Parallel()
		doc := strings.Replace(testCatalogYAML, "eliteBadge", "goldCrown", 1)
		_, err := subscription.NewYAMLSource(strings.NewReader(doc)).Load(context.Background())
		assert.ErrorIs(t, err, subscription.ErrUnknownFeature)
	})

	t.Run("unknown limit", func(t *testing.T) {
		t.Parallel()
		doc := strings.Replace(testCatalogYAML, "superLikesPerDay: 1", "hugsPerDay: 1", 1)
		_, err := subscription.NewYAMLSource(strings.NewReader(doc)).Load(context.Background())
		assert.ErrorIs(t, err, subscription.ErrUnknownLimit)
	})

	t.Run("non monotonic catalog is rejected", func(t *testing.T) {
		t.Parallel()
		doc := strings.Replace(testCatalogYAML, "astraMessagesPerDay: 100", "astraMessagesPerDay: 10", 1)
		_, err := subscription.LoadCatalog(context.Background(),
			subscription.NewYAMLSource(strings.NewReader(doc)))
		assert.ErrorIs(t, err, subscription.ErrInvalidPlanConfiguration)
	})
}

func TestInMemSource(t *testing.T) {
	t.Parallel()

	catalog, err := subscription.LoadCatalog(context.Background(),
		subscription.NewInMemSource(subscription.DefaultPlans()...))
	require.NoError(t, err)
	assert.Equal(t, subscription.DefaultCatalog().AllPlans(), catalog.AllPlans())
}
