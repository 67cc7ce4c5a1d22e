package subscription

import (
	"encoding/json"
	"maps"
	"slices"
)

// Recommendation is the coarse direction of a plan change.
type Recommendation string

const (
	RecommendUpgrade   Recommendation = "upgrade"
	RecommendDowngrade Recommendation = "downgrade"
	RecommendSame      Recommendation = "same"
)

// LimitChange holds a limit that differs between two plans.
type LimitChange struct {
	A Limit `json:"a"`
	B Limit `json:"b"`
}

// FeatureChange holds a feature that differs between two plans.
type FeatureChange struct {
	A bool `json:"a"`
	B bool `json:"b"`
}

// PlanComparison lists every difference between plan A and plan B.
// Used to render comparison tables and to validate downgrades.
type PlanComparison struct {
	A              PlanID
	B              PlanID
	Limits         map[LimitName]LimitChange
	Features       map[Feature]FeatureChange
	PriceDiff      Money // B.Price - A.Price
	Recommendation Recommendation
}

// ComparePlans returns the differences going from a to b.
// ComparePlans(b, a) reports the same keys with sides swapped.
func ComparePlans(a, b Plan) PlanComparison {
	c := PlanComparison{
		A:         a.ID,
		B:         b.ID,
		Limits:    make(map[LimitName]LimitChange),
		Features:  make(map[Feature]FeatureChange),
		PriceDiff: b.Price.Sub(a.Price),
	}

	for l := range limitCount {
		if a.Limits[l] != b.Limits[l] {
			c.Limits[l] = LimitChange{A: a.Limits[l], B: b.Limits[l]}
		}
	}

	for f := range featureCount {
		if ha, hb := a.Features.Has(f), b.Features.Has(f); ha != hb {
			c.Features[f] = FeatureChange{A: ha, B: hb}
		}
	}

	switch {
	case b.Tier > a.Tier:
		c.Recommendation = RecommendUpgrade
	case b.Tier < a.Tier:
		c.Recommendation = RecommendDowngrade
	default:
		c.Recommendation = RecommendSame
	}
	return c
}

// NewFeatures returns the features B has and A lacks.
func (c PlanComparison) NewFeatures() []Feature {
	return c.featuresWhere(func(ch FeatureChange) bool { return ch.B })
}

// LostFeatures returns the features A has and B lacks.
func (c PlanComparison) LostFeatures() []Feature {
	return c.featuresWhere(func(ch FeatureChange) bool { return ch.A })
}

// HasLimitDecreases reports whether any limit is lower in B.
func (c PlanComparison) HasLimitDecreases() bool {
	for _, ch := range c.Limits {
		if ch.B.Compare(ch.A) < 0 {
			return true
		}
	}
	return false
}

func (c PlanComparison) featuresWhere(pred func(FeatureChange) bool) []Feature {
	out := make([]Feature, 0, len(c.Features))
	for _, f := range slices.Sorted(maps.Keys(c.Features)) {
		if pred(c.Features[f]) {
			out = append(out, f)
		}
	}
	return out
}

func (c PlanComparison) MarshalJSON() ([]byte, error) {
	limits := make(map[string]LimitChange, len(c.Limits))
	for l, ch := range c.Limits {
		limits[l.String()] = ch
	}
	features := make(map[string]FeatureChange, len(c.Features))
	for f, ch := range c.Features {
		features[f.String()] = ch
	}
	return json.Marshal(struct {
		A              PlanID                   `json:"a"`
		B              PlanID                   `json:"b"`
		Limits         map[string]LimitChange   `json:"limits"`
		Features       map[string]FeatureChange `json:"features"`
		PriceDiff      Money                    `json:"price_diff"`
		Recommendation Recommendation           `json:"recommendation"`
	}{c.A, c.B, limits, features, c.PriceDiff, c.Recommendation})
}
