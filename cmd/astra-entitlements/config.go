package main

import (
	"time"

	"github.com/astra-social/entitlements/pkg/billing"
	"github.com/astra-social/entitlements/pkg/httpserver"
	"github.com/astra-social/entitlements/pkg/supastore"
)

const (
	driverMemory   = "memory"
	driverPostgres = "postgres"
	driverSupabase = "supabase"

	providerPaddle = "paddle"
	providerStripe = "stripe"
	providerNone   = "none"

	authHeader = "header"
	authJWT    = "jwt"
)

type appConfig struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	Name     string `env:"APP_NAME" envDefault:"astra-entitlements"`
	LogLevel string `env:"LOG_LEVEL"`

	// Memory, postgres or supabase. Postgres and supabase read their own
	// PG_* and SUPABASE_* settings.
	StoreDriver string `env:"STORE_DRIVER" envDefault:"memory"`
	// Usage counters and the change feed move to Redis when set.
	RedisEnabled bool   `env:"REDIS_ENABLED" envDefault:"false"`
	CatalogFile  string `env:"CATALOG_FILE"`

	// Header trusts X-User-ID from the gateway; jwt verifies bearer tokens
	// with SUPABASE_JWT_SECRET.
	AuthMode  string `env:"AUTH_MODE" envDefault:"header"`
	JWTSecret string `env:"SUPABASE_JWT_SECRET"`

	BillingProvider string `env:"BILLING_PROVIDER" envDefault:"none"`
	PremiumPriceID  string `env:"PRICE_ID_PREMIUM"`
	ElitePriceID    string `env:"PRICE_ID_PREMIUM_ELITE"`

	MetricsNamespace string `env:"METRICS_NAMESPACE" envDefault:"astra"`

	HTTP     httpserver.Config
	Session  sessionConfig
	Supabase supastore.Config
	Paddle   billing.PaddleConfig
	Stripe   billing.StripeConfig
}

type sessionConfig struct {
	RegistrySize     int           `env:"SESSION_REGISTRY_SIZE" envDefault:"10000"`
	LoadTimeout      time.Duration `env:"SESSION_LOAD_TIMEOUT" envDefault:"10s"`
	RolloverInterval time.Duration `env:"SESSION_ROLLOVER_INTERVAL" envDefault:"1m"`
	RetryInterval    time.Duration `env:"SESSION_RETRY_INTERVAL" envDefault:"30s"`
	PersistTimeout   time.Duration `env:"SESSION_PERSIST_TIMEOUT" envDefault:"5s"`
	TimeZone         string        `env:"SESSION_TIME_ZONE" envDefault:"UTC"`
}
