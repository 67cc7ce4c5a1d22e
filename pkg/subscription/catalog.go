package subscription

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Catalog is the immutable set of plans, ordered by tier.
// All methods are safe for concurrent use.
type Catalog struct {
	plans  []Plan // ascending tier
	byID   map[PlanID]int
	logger *slog.Logger
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithCatalogLogger sets the logger used to report catalog misconfiguration
// discovered at evaluation time.
func WithCatalogLogger(l *slog.Logger) CatalogOption {
	return func(c *Catalog) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCatalog validates the plans and builds a catalog.
// Every known plan id must be present exactly once, tiers must follow
// free < premium < premium_elite, and capabilities must not decrease with tier.
func NewCatalog(plans []Plan, opts ...CatalogOption) (*Catalog, error) {
	sorted := slices.Clone(plans)
	slices.SortFunc(sorted, func(a, b Plan) int { return a.Tier - b.Tier })

	if err := validatePlans(sorted); err != nil {
		return nil, err
	}

	c := &Catalog{
		plans:  sorted,
		byID:   make(map[PlanID]int, len(sorted)),
		logger: slog.Default(),
	}
	for i, p := range sorted {
		c.byID[p.ID] = i
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// MustNewCatalog is like NewCatalog but panics on invalid configuration.
func MustNewCatalog(plans []Plan, opts ...CatalogOption) *Catalog {
	c, err := NewCatalog(plans, opts...)
	if err != nil {
		panic(fmt.Sprintf("subscription: %v", err))
	}
	return c
}

// GetPlan returns the plan for id. Unknown or empty ids resolve to free.
func (c *Catalog) GetPlan(id PlanID) Plan {
	if i, ok := c.byID[id]; ok {
		return c.plans[i]
	}
	return c.plans[c.byID[PlanFree]]
}

// AllPlans returns every plan in ascending tier order.
func (c *Catalog) AllPlans() []Plan {
	return slices.Clone(c.plans)
}

// PlansHavingFeature returns the plans granting f in ascending tier order.
func (c *Catalog) PlansHavingFeature(f Feature) []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		if p.Features.Has(f) {
			out = append(out, p)
		}
	}
	return out
}

// MinimumPlanForFeature returns the lowest-tier plan granting f.
func (c *Catalog) MinimumPlanForFeature(f Feature) (Plan, bool) {
	for _, p := range c.plans {
		if p.Features.Has(f) {
			return p, true
		}
	}
	return Plan{}, false
}

// MinimumPlanForLimit returns the lowest-tier plan whose limit l still allows
// an action after used actions.
func (c *Catalog) MinimumPlanForLimit(l LimitName, used int64) (Plan, bool) {
	for _, p := range c.plans {
		if p.Limit(l).Allows(used) {
			return p, true
		}
	}
	return Plan{}, false
}

// validatePlans expects plans sorted by tier.
func validatePlans(plans []Plan) error {
	ids := PlanIDs()
	if len(plans) != len(ids) {
		return errors.Join(ErrInvalidPlanConfiguration,
			fmt.Errorf("expected %d plans, got %d", len(ids), len(plans)))
	}

	for i, p := range plans {
		if p.ID != ids[i] {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan at tier %d must be %q, got %q", i, ids[i], p.ID))
		}
		if p.Tier != i {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s has tier %d, want %d", p.ID, p.Tier, i))
		}
		if p.Price.Amount < 0 {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s has negative price", p.ID))
		}
		if i == 0 {
			continue
		}

		lower := plans[i-1]
		if p.Price.Amount < lower.Price.Amount {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s is cheaper than %s", p.ID, lower.ID))
		}
		for l := range limitCount {
			if p.Limits[l].Compare(lower.Limits[l]) < 0 {
				return errors.Join(ErrInvalidPlanConfiguration,
					fmt.Errorf("plan %s lowers %s from %s to %s", p.ID, l, lower.Limits[l], p.Limits[l]))
			}
		}
		if lost := lower.Features.Minus(p.Features); lost != 0 {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s drops features %v of %s", p.ID, lost.List(), lower.ID))
		}
	}
	return nil
}

// DefaultPlans returns the built-in Astra plans.
func DefaultPlans() []Plan {
	basic := NewFeatureSet(
		FeatureSeeWhoLikedYou,
		FeatureAdvancedFilters,
		FeatureReadReceipts,
		FeatureRewind,
		FeatureProfileBoost,
		FeatureLiveStreamHosting,
		FeatureCompatibilityInsights,
		FeatureAdFree,
	)

	return []Plan{
		{
			ID:          PlanFree,
			Name:        "Free",
			Description: "Swipe, match and chat with daily limits.",
			Tier:        0,
			Price:       Money{Amount: 0, Currency: "USD"},
			Interval:    BillingIntervalNone,
			Limits: PlanLimits{
				LimitSignalsPerDay:       Finite(5),
				LimitAstraMessagesPerDay: Finite(10),
				LimitMatchMessagesPerDay: Finite(20),
				LimitSuperNovasPerDay:    Finite(0),
				LimitSuperLikesPerDay:    Finite(1),
			},
		},
		{
			ID:          PlanPremium,
			Name:        "Premium",
			Description: "More signals, more Astra guidance, see who liked you.",
			Tier:        1,
			Price:       Money{Amount: 1499, Currency: "USD"},
			Interval:    BillingIntervalMonthly,
			Limits: PlanLimits{
				LimitSignalsPerDay:       Finite(20),
				LimitAstraMessagesPerDay: Finite(40),
				LimitMatchMessagesPerDay: Finite(100),
				LimitSuperNovasPerDay:    Finite(1),
				LimitSuperLikesPerDay:    Finite(5),
			},
			Features: basic,
		},
		{
			ID:          PlanPremiumElite,
			Name:        "Premium Elite",
			Description: "Unlimited signals and messages, incognito and the elite badge.",
			Tier:        2,
			Price:       Money{Amount: 2999, Currency: "USD"},
			Interval:    BillingIntervalMonthly,
			Limits: PlanLimits{
				LimitSignalsPerDay:       Unlimited,
				LimitAstraMessagesPerDay: Finite(100),
				LimitMatchMessagesPerDay: Unlimited,
				LimitSuperNovasPerDay:    Finite(3),
				LimitSuperLikesPerDay:    Finite(10),
			},
			Features: basic.
				With(FeatureIncognitoMode).
				With(FeaturePriorityMatching).
				With(FeatureEliteBadge),
		},
	}
}

var defaultCatalog = sync.OnceValue(func() *Catalog {
	return MustNewCatalog(DefaultPlans())
})

// DefaultCatalog returns the catalog built from DefaultPlans.
func DefaultCatalog() *Catalog { return defaultCatalog() }

// GetPlan looks up id in the default catalog.
func GetPlan(id PlanID) Plan { return DefaultCatalog().GetPlan(id) }

// AllPlans returns the default catalog's plans by ascending tier.
func AllPlans() []Plan { return DefaultCatalog().AllPlans() }

// PlansHavingFeature queries the default catalog.
func PlansHavingFeature(f Feature) []Plan { return DefaultCatalog().PlansHavingFeature(f) }

// MinimumPlanForFeature queries the default catalog.
func MinimumPlanForFeature(f Feature) (Plan, bool) { return DefaultCatalog().MinimumPlanForFeature(f) }
