package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/astra-social/entitlements/pkg/billing"
	"github.com/astra-social/entitlements/pkg/httpserver"
	"github.com/astra-social/entitlements/pkg/logger"
	"github.com/astra-social/entitlements/pkg/subscription"
	"github.com/astra-social/entitlements/svc/session"
)

// maxBodySize bounds JSON bodies and webhook payloads.
const maxBodySize = 1 << 20

// API serves the entitlement endpoints.
type API struct {
	registry      *session.Registry
	catalog       *subscription.Catalog
	billing       *billing.Service
	auth          Authenticator
	log           *slog.Logger
	metrics       *Metrics
	gatherer      prometheus.Gatherer
	checks        []httpserver.Check
	healthTimeout time.Duration
}

// Option configures an API.
type Option func(*API)

// WithBilling enables checkout, portal and webhook routes.
func WithBilling(svc *billing.Service) Option {
	return func(a *API) { a.billing = svc }
}

// WithAuthenticator replaces the default X-User-ID header authenticator.
func WithAuthenticator(auth Authenticator) Option {
	return func(a *API) {
		if auth != nil {
			a.auth = auth
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.log = l
		}
	}
}

// WithMetrics records request metrics and serves g on /metrics.
func WithMetrics(m *Metrics, g prometheus.Gatherer) Option {
	return func(a *API) {
		a.metrics = m
		a.gatherer = g
	}
}

// WithHealthChecks adds readiness probes to /healthz.
func WithHealthChecks(timeout time.Duration, checks ...httpserver.Check) Option {
	return func(a *API) {
		a.healthTimeout = timeout
		a.checks = append(a.checks, checks...)
	}
}

// New panics on missing dependencies.
func New(registry *session.Registry, catalog *subscription.Catalog, opts ...Option) *API {
	if registry == nil || catalog == nil {
		panic("httpapi: registry and catalog are required")
	}
	a := &API{
		registry:      registry,
		catalog:       catalog,
		auth:          HeaderAuthenticator{},
		log:           logger.Discard(),
		healthTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With(logger.Component("httpapi"))
	return a
}

// Router returns the chi router with every route mounted.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(a.metrics.instrument)
	r.Use(a.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", httpserver.HealthHandler(a.log, a.healthTimeout, a.checks...))
	if a.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/plans", func(r chi.Router) {
		r.Get("/", a.listPlans)
		r.Get("/compare", a.comparePlans)
	})

	r.Route("/me", func(r chi.Router) {
		r.Use(a.authenticate)
		r.Get("/", a.me)
		r.Get("/features/{feature}", a.feature)
		r.Get("/limits/{limit}", a.limit)
		r.Post("/actions/{limit}", a.attempt)
		r.Post("/usage/{limit}", a.incrementUsage)
		r.Post("/refresh", a.refresh)
		r.Post("/checkout", a.checkout)
		r.Post("/portal", a.portal)
		r.Post("/logout", a.logout)
	})

	if a.billing != nil {
		r.Post("/webhooks/billing", a.webhook)
	}
	return r
}

// authenticate resolves the caller and stores the id in the request context.
func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.auth.Authenticate(r)
		if err != nil {
			a.log.DebugContext(r.Context(), "authentication failed", logger.Error(err))
			a.writeError(w, r, subscription.NewAuthRequired())
			return
		}
		next.ServeHTTP(w, r.WithContext(logger.ContextWithUserID(r.Context(), userID)))
	})
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		a.log.Log(r.Context(), level, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			logger.Duration(time.Since(start)))
	})
}
