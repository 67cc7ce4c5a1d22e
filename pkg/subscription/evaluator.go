package subscription

import "log/slog"

// LimitCheckResult is the outcome of a limit evaluation. It is computed on
// every call and never cached.
type LimitCheckResult struct {
	Limit       LimitName `json:"limit_name"`
	Allowed     bool      `json:"allowed"`
	Remaining   Limit     `json:"remaining"`
	Max         Limit     `json:"limit"`
	Used        int64     `json:"used"`
	IsUnlimited bool      `json:"is_unlimited"`
}

// UpgradeInfo describes what unlocks a feature or a spent limit.
// MinimumPlanRequired is empty when no plan in the catalog offers it.
type UpgradeInfo struct {
	Feature             *Feature   `json:"feature,omitempty"`
	Limit               *LimitName `json:"limit_name,omitempty"`
	Required            bool       `json:"required"`
	CurrentPlan         PlanID     `json:"current_plan"`
	MinimumPlanRequired PlanID     `json:"minimum_plan_required,omitempty"`
	PriceDelta          Money      `json:"price_delta"`
	FeaturesGained      []Feature  `json:"features_gained"`
}

// HasFeature reports whether plan grants f.
func HasFeature(plan Plan, f Feature) bool {
	return plan.HasFeature(f)
}

// GetLimit returns plan's per-day limit for l.
func GetLimit(plan Plan, l LimitName) Limit {
	return plan.Limit(l)
}

// CanPerformAction evaluates l for plan against usage.
// The caller is responsible for passing usage of the current day.
func CanPerformAction(plan Plan, usage Usage, l LimitName) LimitCheckResult {
	limit := plan.Limit(l)
	used := usage.Used(l)
	return LimitCheckResult{
		Limit:       l,
		Allowed:     limit.Allows(used),
		Remaining:   limit.Remaining(used),
		Max:         limit,
		Used:        used,
		IsUnlimited: limit.IsUnlimited(),
	}
}

// RequiresUpgradeFor reports whether plan lacks f and, if so, the cheapest
// plan granting it together with the other features that plan adds.
func (c *Catalog) RequiresUpgradeFor(plan Plan, f Feature) UpgradeInfo {
	info := UpgradeInfo{
		Feature:        &f,
		CurrentPlan:    plan.ID,
		FeaturesGained: []Feature{},
	}
	if plan.HasFeature(f) {
		return info
	}

	info.Required = true
	target, ok := c.MinimumPlanForFeature(f)
	if !ok {
		c.logger.Error("no plan grants feature",
			slog.String("feature", f.String()),
			slog.String("plan_id", string(plan.ID)))
		return info
	}
	return c.fillUpgrade(info, plan, target, target.Features.Without(f))
}

// UpgradeForLimit reports whether usage exhausted plan's limit l and, if so,
// the cheapest plan that would allow another action today.
func (c *Catalog) UpgradeForLimit(plan Plan, usage Usage, l LimitName) UpgradeInfo {
	info := UpgradeInfo{
		Limit:          &l,
		CurrentPlan:    plan.ID,
		FeaturesGained: []Feature{},
	}
	used := usage.Used(l)
	if plan.Limit(l).Allows(used) {
		return info
	}

	info.Required = true
	target, ok := c.MinimumPlanForLimit(l, used)
	if !ok {
		// Top tier spent too; only tomorrow helps.
		return info
	}
	return c.fillUpgrade(info, plan, target, target.Features)
}

func (c *Catalog) fillUpgrade(info UpgradeInfo, current, target Plan, offered FeatureSet) UpgradeInfo {
	info.MinimumPlanRequired = target.ID
	info.PriceDelta = target.Price.Sub(current.Price)
	info.FeaturesGained = offered.Minus(current.Features).List()
	return info
}

// RequiresUpgradeFor queries the default catalog.
func RequiresUpgradeFor(plan Plan, f Feature) UpgradeInfo {
	return DefaultCatalog().RequiresUpgradeFor(plan, f)
}
