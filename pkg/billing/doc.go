// Package billing hands upgrades off to a payment provider and applies the
// provider's webhooks to stored subscriptions.
//
// Provider abstracts hosted checkout, the customer portal and webhook
// verification; PaddleProvider and StripeProvider implement it. Service
// resolves plans to price ids, validates that a checkout is an upgrade and,
// for each verified webhook, updates the user's record and publishes a
// subscription.Change so live sessions pick up promotions and cancellations
// without a reload.
//
//	svc := billing.NewService(provider, store, catalog, billing.Prices{
//		subscription.PlanPremium:      "pri_premium",
//		subscription.PlanPremiumElite: "pri_elite",
//	}, billing.WithChangeFeed(feed), billing.WithLogger(log))
package billing
