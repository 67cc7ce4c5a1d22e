package subscription

import "encoding/json"

// PlanLimits holds one Limit per LimitName. Missing entries are Finite(0).
type PlanLimits [limitCount]Limit

// Plan describes a subscription tier and its per-day limits and features.
// Plans are values; the catalog hands out copies.
type Plan struct {
	ID          PlanID
	Name        string
	Description string
	Tier        int // 0 free, 1 premium, 2 premium_elite
	Price       Money
	Interval    BillingInterval
	Limits      PlanLimits
	Features    FeatureSet
}

// Limit returns the plan's limit for l. Invalid names get Finite(0).
func (p Plan) Limit(l LimitName) Limit {
	if !l.Valid() {
		return Limit{}
	}
	return p.Limits[l]
}

// HasFeature reports whether the plan grants f.
func (p Plan) HasFeature(f Feature) bool {
	return p.Features.Has(f)
}

// IsPaid reports whether the plan is billed.
func (p Plan) IsPaid() bool {
	return p.Interval != BillingIntervalNone && p.Price.Amount > 0
}

type planJSON struct {
	ID          PlanID           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Tier        int              `json:"tier"`
	Price       Money            `json:"price"`
	Interval    BillingInterval  `json:"interval"`
	Limits      map[string]Limit `json:"limits"`
	Features    FeatureSet       `json:"features"`
}

func (p Plan) MarshalJSON() ([]byte, error) {
	limits := make(map[string]Limit, limitCount)
	for l := range limitCount {
		limits[limitNames[l]] = p.Limits[l]
	}
	return json.Marshal(planJSON{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Tier:        p.Tier,
		Price:       p.Price,
		Interval:    p.Interval,
		Limits:      limits,
		Features:    p.Features,
	})
}

func (p *Plan) UnmarshalJSON(b []byte) error {
	var raw planJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	limits, err := planLimitsFromMap(raw.Limits)
	if err != nil {
		return err
	}
	*p = Plan{
		ID:          raw.ID,
		Name:        raw.Name,
		Description: raw.Description,
		Tier:        raw.Tier,
		Price:       raw.Price,
		Interval:    raw.Interval,
		Limits:      limits,
		Features:    raw.Features,
	}
	return nil
}

func planLimitsFromMap(m map[string]Limit) (PlanLimits, error) {
	var limits PlanLimits
	for name, v := range m {
		l, err := ParseLimitName(name)
		if err != nil {
			return limits, err
		}
		limits[l] = v
	}
	return limits, nil
}
