package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/dmitrymomot/entitlements/binder"
	"github.com/dmitrymomot/entitlements/core"
	"github.com/dmitrymomot/entitlements/pkg/httpserver"
	"github.com/dmitrymomot/entitlements/pkg/logger"
	"github.com/dmitrymomot/entitlements/pkg/quota"
	"github.com/dmitrymomot/entitlements/pkg/requestid"
	"github.com/dmitrymomot/entitlements/pkg/subscription"
)

// MaxWebhookBytes bounds provider webhook bodies.
const MaxWebhookBytes int64 = 1 << 20

// Option configures the router.
type Option func(*router)

func WithLogger(l *slog.Logger) Option {
	return func(r *router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(r *router) {
		r.metrics = h
	}
}

// WithReadinessChecks sets the dependencies probed by /health/ready.
func WithReadinessChecks(checks map[string]httpserver.Check) Option {
	return func(r *router) {
		r.checks = checks
	}
}

// WithReadinessTimeout bounds each readiness probe. Defaults to 2s.
func WithReadinessTimeout(d time.Duration) Option {
	return func(r *router) {
		if d > 0 {
			r.readyTimeout = d
		}
	}
}

type router struct {
	svc          subscription.Service
	quota        *quota.Engine
	logger       *slog.Logger
	validate     *validator.Validate
	metrics      http.Handler
	checks       map[string]httpserver.Check
	readyTimeout time.Duration
}

// NewRouter builds the HTTP handler for the client API, the provider webhook,
// health probes and metrics.
// Panics if svc or engine is nil.
func NewRouter(svc subscription.Service, engine *quota.Engine, opts ...Option) http.Handler {
	if svc == nil {
		panic("api: subscription.Service is required")
	}
	if engine == nil {
		panic("api: quota.Engine is required")
	}

	rt := &router{
		svc:          svc,
		quota:        engine,
		logger:       logger.Discard(),
		validate:     binder.NewValidator(),
		readyTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(rt)
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", httpserver.Liveness())
	r.Get("/health/ready", httpserver.Readiness(rt.logger, rt.readyTimeout, rt.checks))
	if rt.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/subscription", wrapClient(rt, rt.createSubscription, binder.BindJSON(), binder.Validate(rt.validate)))
		r.Delete("/subscription", wrapClient(rt, rt.cancelSubscription))
		r.Get("/entitlement", wrapClient(rt, rt.getEntitlement))
		r.Post("/usage/{metric}", wrapClient(rt, rt.consumeUsage, binder.BindJSON(), binder.Validate(rt.validate)))
	})

	r.Post("/webhooks/stripe", core.Wrap(rt.stripeWebhook,
		core.WithBinders[core.Context, webhookRequest](bindWebhook(MaxWebhookBytes)),
		core.WithErrorHandler[core.Context, webhookRequest](core.NewErrorHandler[core.Context](rt.logger)),
	))

	return r
}

// wrapClient adapts a client handler: user id from the header, JSON errors
// logged through the router logger.
func wrapClient[R any](rt *router, h core.HandlerFunc[Context, R], binders ...core.Bind) http.HandlerFunc {
	return core.Wrap(h,
		core.WithContextFactory[Context, R](newContext),
		core.WithBinders[Context, R](binders...),
		core.WithErrorHandler[Context, R](core.NewErrorHandler[Context](rt.logger)),
		core.WithDecorators[Context, R](requireUser[R]),
	)
}

// fail renders err after mapping domain errors and logs server-side failures.
func (rt *router) fail(ctx core.Context, err error, opts ...core.JSONOption) core.Response {
	mapped := httpError(err)
	if core.StatusOf(mapped) >= http.StatusInternalServerError {
		rt.logger.ErrorContext(ctx, "request failed",
			logger.Error(err),
			slog.String("path", ctx.Request().URL.Path),
		)
	}
	return core.JSONError(mapped, opts...)
}
