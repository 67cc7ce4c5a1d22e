package subscription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// PlansListSource defines how plans are loaded into a catalog.
type PlansListSource interface {
	Load(ctx context.Context) ([]Plan, error)
}

// LoadCatalog loads plans from src and validates them into a catalog.
func LoadCatalog(ctx context.Context, src PlansListSource, opts ...CatalogOption) (*Catalog, error) {
	if src == nil {
		panic("subscription: PlansListSource is required")
	}
	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	return NewCatalog(plans, opts...)
}

type inMemSource struct {
	plans []Plan
}

// NewInMemSource returns a source serving the given plans.
func NewInMemSource(plans ...Plan) PlansListSource {
	return inMemSource{plans: slices.Clone(plans)}
}

func (s inMemSource) Load(context.Context) ([]Plan, error) {
	return slices.Clone(s.plans), nil
}

type yamlCatalog struct {
	Plans []yamlPlan `yaml:"plans"`
}

type yamlPlan struct {
	ID          PlanID           `yaml:"id"`
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Tier        int              `yaml:"tier"`
	Price       Money            `yaml:"price"`
	Interval    BillingInterval  `yaml:"interval"`
	Limits      map[string]Limit `yaml:"limits"`
	Features    []string         `yaml:"features"`
}

type yamlSource struct {
	open func() (io.ReadCloser, error)
}

// NewYAMLSource reads a plan catalog document of the form
//
//	plans:
//	  - id: premium
//	    name: Premium
//	    tier: 1
//	    price: {amount: 1499, currency: USD}
//	    interval: monthly
//	    limits: {signalsPerDay: 20, matchMessagesPerDay: unlimited}
//	    features: [seeWhoLikedYou, rewind]
//
// Limits left out default to 0. The reader is consumed on the first Load.
func NewYAMLSource(r io.Reader) PlansListSource {
	return yamlSource{open: func() (io.ReadCloser, error) { return io.NopCloser(r), nil }}
}

// NewYAMLFileSource reads the catalog from path on every Load.
func NewYAMLFileSource(path string) PlansListSource {
	return yamlSource{open: func() (io.ReadCloser, error) { return os.Open(path) }}
}

func (s yamlSource) Load(ctx context.Context) ([]Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rc, err := s.open()
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer rc.Close()

	var doc yamlCatalog
	if err := yaml.NewDecoder(rc).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	plans := make([]Plan, 0, len(doc.Plans))
	for _, yp := range doc.Plans {
		p, err := yp.plan()
		if err != nil {
			return nil, fmt.Errorf("plan %q: %w", yp.ID, err)
		}
		plans = append(plans, p)
	}
	return plans, nil
}

func (yp yamlPlan) plan() (Plan, error) {
	limits, err := planLimitsFromMap(yp.Limits)
	if err != nil {
		return Plan{}, err
	}
	var features FeatureSet
	for _, name := range yp.Features {
		f, err := ParseFeature(name)
		if err != nil {
			return Plan{}, err
		}
		features = features.With(f)
	}
	interval := yp.Interval
	if interval == "" {
		interval = BillingIntervalNone
	}
	return Plan{
		ID:          yp.ID,
		Name:        yp.Name,
		Description: yp.Description,
		Tier:        yp.Tier,
		Price:       yp.Price,
		Interval:    interval,
		Limits:      limits,
		Features:    features,
	}, nil
}
