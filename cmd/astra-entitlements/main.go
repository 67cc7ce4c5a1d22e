package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/astra-social/entitlements/pkg/billing"
	"github.com/astra-social/entitlements/pkg/config"
	"github.com/astra-social/entitlements/pkg/httpserver"
	"github.com/astra-social/entitlements/pkg/jwt"
	"github.com/astra-social/entitlements/pkg/logger"
	"github.com/astra-social/entitlements/pkg/subscription"
	"github.com/astra-social/entitlements/svc/httpapi"
	"github.com/astra-social/entitlements/svc/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "astra-entitlements: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return err
	}

	log := logger.New(
		logger.WithEnvironment(logger.ParseEnvironment(cfg.Env), cfg.Name),
		logger.WithLevelName(cfg.LogLevel),
		logger.WithContextExtractors(httpapi.RequestIDExtractor()),
	)

	loc, err := time.LoadLocation(cfg.Session.TimeZone)
	if err != nil {
		return fmt.Errorf("session time zone: %w", err)
	}

	catalog, err := loadCatalog(ctx, cfg.CatalogFile, log)
	if err != nil {
		return err
	}

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	registry := session.NewRegistry(cfg.Session.RegistrySize, catalog, b.store, b.tracker,
		session.WithLogger(log),
		session.WithLocation(loc),
		session.WithLoadTimeout(cfg.Session.LoadTimeout),
		session.WithRolloverInterval(cfg.Session.RolloverInterval),
		session.WithRetryInterval(cfg.Session.RetryInterval),
		session.WithPersistTimeout(cfg.Session.PersistTimeout),
		session.WithChangeFeed(b.feed),
		session.WithMetrics(session.NewMetrics(cfg.MetricsNamespace, promReg)),
	)
	defer func() {
		if err := registry.Close(); err != nil {
			log.ErrorContext(ctx, "failed to close sessions", logger.Error(err))
		}
	}()

	auth, err := newAuthenticator(cfg)
	if err != nil {
		return err
	}

	apiOpts := []httpapi.Option{
		httpapi.WithLogger(log),
		httpapi.WithAuthenticator(auth),
		httpapi.WithMetrics(httpapi.NewMetrics(cfg.MetricsNamespace, promReg), promReg),
		httpapi.WithHealthChecks(2*time.Second, b.checks...),
	}
	billingSvc, err := newBilling(cfg, b, catalog, log)
	if err != nil {
		return err
	}
	if billingSvc != nil {
		apiOpts = append(apiOpts, httpapi.WithBilling(billingSvc))
	}
	api := httpapi.New(registry, catalog, apiOpts...)

	log.InfoContext(ctx, "starting",
		slog.String("store", cfg.StoreDriver),
		slog.Bool("redis", cfg.RedisEnabled),
		slog.String("billing", cfg.BillingProvider),
		slog.String("auth", cfg.AuthMode),
		slog.Int("plans", len(catalog.AllPlans())))

	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
	return srv.Run(ctx, api.Router())
}

func loadCatalog(ctx context.Context, path string, log *slog.Logger) (*subscription.Catalog, error) {
	if path == "" {
		return subscription.DefaultCatalog(), nil
	}
	catalog, err := subscription.LoadCatalog(ctx, subscription.NewYAMLFileSource(path),
		subscription.WithCatalogLogger(log))
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}
	return catalog, nil
}

func newAuthenticator(cfg appConfig) (httpapi.Authenticator, error) {
	switch cfg.AuthMode {
	case authHeader:
		return httpapi.HeaderAuthenticator{}, nil
	case authJWT:
		v, err := jwt.New(cfg.JWTSecret)
		if err != nil {
			return nil, fmt.Errorf("jwt auth: %w", err)
		}
		return httpapi.TokenAuthenticator{Verifier: v}, nil
	}
	return nil, fmt.Errorf("unknown AUTH_MODE %q", cfg.AuthMode)
}

func newBilling(cfg appConfig, b *backends, catalog *subscription.Catalog, log *slog.Logger) (*billing.Service, error) {
	var (
		provider billing.Provider
		err      error
	)
	switch cfg.BillingProvider {
	case providerNone, "":
		return nil, nil
	case providerPaddle:
		provider, err = billing.NewPaddleProvider(cfg.Paddle)
	case providerStripe:
		provider, err = billing.NewStripeProvider(cfg.Stripe)
	default:
		err = fmt.Errorf("unknown BILLING_PROVIDER %q", cfg.BillingProvider)
	}
	if err != nil {
		return nil, errors.Join(billing.ErrMissingConfig, err)
	}

	prices := billing.Prices{
		subscription.PlanPremium:      cfg.PremiumPriceID,
		subscription.PlanPremiumElite: cfg.ElitePriceID,
	}
	return billing.NewService(provider, b.store, catalog, prices,
		billing.WithChangeFeed(b.feed),
		billing.WithLogger(log)), nil
}
