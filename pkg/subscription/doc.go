// Package subscription implements the Astra entitlement model: the plan
// catalog, per-day usage records and the evaluator deciding what a user may
// do on their current plan.
//
// Plans are immutable values with a tier, a price, one Limit per LimitName and
// a FeatureSet. A Limit is either Finite(n) or Unlimited; callers never do
// arithmetic on it directly but go through Allows, Remaining and Compare.
//
// # Catalog
//
// DefaultCatalog returns the built-in free, premium and premium_elite plans.
// Custom catalogs are loaded from a PlansListSource and validated so that no
// higher tier offers less than a lower one:
//
//	catalog, err := subscription.LoadCatalog(ctx, subscription.NewYAMLFileSource("plans.yaml"))
//	if err != nil {
//		return err
//	}
//	premium := catalog.GetPlan(subscription.PlanPremium)
//
// Lookups never fail. Unknown plan ids resolve to the free plan.
//
// # Evaluation
//
// Evaluator functions are pure and total:
//
//	res := subscription.CanPerformAction(plan, usage, subscription.LimitAstraMessagesPerDay)
//	if !res.Allowed {
//		info := catalog.UpgradeForLimit(plan, usage, subscription.LimitAstraMessagesPerDay)
//		// info.MinimumPlanRequired, info.PriceDelta, info.FeaturesGained
//	}
//
// The caller passes usage of the current day. Gated actions report failures
// as *ActionError values carrying an ErrorKind and, for locked features and
// spent limits, the upgrade that would unlock them.
//
// # Subscriptions
//
// A Subscription's plan applies only until ExpiresAt. EffectivePlanID checks
// the expiry at read time; NeedsDemotion and Demote let the reader write the
// downgrade back to the Store.
package subscription
