package supastore

import (
	"errors"

	"github.com/supabase-community/supabase-go"
)

var ErrMissingCredentials = errors.New("supabase url and service key must be provided")

// Config selects the Supabase project and the tables holding entitlements.
type Config struct {
	URL        string `env:"SUPABASE_URL"`
	ServiceKey string `env:"SUPABASE_SERVICE_KEY"`
	Schema     string `env:"SUPABASE_SCHEMA" envDefault:"public"`

	ProfilesTable string `env:"SUPABASE_PROFILES_TABLE" envDefault:"profiles"`
	UsageTable    string `env:"SUPABASE_USAGE_TABLE" envDefault:"usage_tracking"`
}

// Connect builds a client for cfg. No request is made.
func Connect(cfg Config) (*supabase.Client, error) {
	if cfg.URL == "" || cfg.ServiceKey == "" {
		return nil, ErrMissingCredentials
	}
	client, err := supabase.NewClient(cfg.URL, cfg.ServiceKey, &supabase.ClientOptions{Schema: cfg.Schema})
	if err != nil {
		return nil, errors.Join(ErrMissingCredentials, err)
	}
	return client, nil
}

func (c Config) profilesTable() string {
	if c.ProfilesTable == "" {
		return "profiles"
	}
	return c.ProfilesTable
}

func (c Config) usageTable() string {
	if c.UsageTable == "" {
		return "usage_tracking"
	}
	return c.UsageTable
}
