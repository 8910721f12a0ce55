package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/entitlements/internal/api"
	"github.com/dmitrymomot/entitlements/internal/metrics"
	"github.com/dmitrymomot/entitlements/internal/mongostore"
	"github.com/dmitrymomot/entitlements/internal/pgstore"
	"github.com/dmitrymomot/entitlements/internal/redisstore"
	"github.com/dmitrymomot/entitlements/pkg/config"
	"github.com/dmitrymomot/entitlements/pkg/entitlement"
	"github.com/dmitrymomot/entitlements/pkg/httpserver"
	"github.com/dmitrymomot/entitlements/pkg/logger"
	"github.com/dmitrymomot/entitlements/pkg/mongo"
	"github.com/dmitrymomot/entitlements/pkg/pg"
	"github.com/dmitrymomot/entitlements/pkg/quota"
	"github.com/dmitrymomot/entitlements/pkg/redis"
	"github.com/dmitrymomot/entitlements/pkg/signal"
	"github.com/dmitrymomot/entitlements/pkg/subscription"
	"github.com/dmitrymomot/entitlements/pkg/webhook"
)

// app owns every long-lived dependency of the process.
type app struct {
	cfg      appConfig
	quotaCfg quota.Config
	log      *slog.Logger
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	checks   map[string]httpserver.Check
	closers  []func(context.Context) error

	pool  *pgxpool.Pool
	redis *goredis.Client

	store   entitlement.Store
	usage   quota.UsageStore
	events  subscription.EventLog
	signals *signal.Recorder

	engine  *quota.Engine
	service subscription.Service
	pruner  *quota.Pruner
}

func newApp(cfg appConfig, log *slog.Logger) (*app, error) {
	var quotaCfg quota.Config
	if err := config.Load(&quotaCfg); err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		quotaCfg: quotaCfg,
		log:      log,
		checks:   make(map[string]httpserver.Check),
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.registry)
	return a, nil
}

// connect opens the connections the configured backends need.
func (a *app) connect(ctx context.Context) error {
	if a.cfg.needsPostgres() {
		var pgCfg pg.Config
		if err := config.Load(&pgCfg); err != nil {
			return err
		}
		pool, err := pg.Connect(ctx, pgCfg)
		if err != nil {
			return err
		}
		a.pool = pool
		a.checks["postgres"] = pg.Healthcheck(pool)
		a.closers = append(a.closers, func(context.Context) error {
			pool.Close()
			return nil
		})
	}

	if a.cfg.UsageBackend == backendRedis {
		var redisCfg redis.Config
		if err := config.Load(&redisCfg); err != nil {
			return err
		}
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return err
		}
		a.redis = client
		a.checks["redis"] = redis.Healthcheck(client)
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
	}

	return nil
}

// openStores picks the store implementations for the configured backends.
func (a *app) openStores() error {
	switch a.cfg.StorageBackend {
	case backendPostgres:
		a.store = pgstore.NewEntitlementStore(a.pool)
		a.events = pgstore.NewEventLog(a.pool)
	default:
		a.store = entitlement.NewMemoryStore()
		a.events = subscription.NewMemoryEventLog()
	}

	switch a.cfg.UsageBackend {
	case backendPostgres:
		a.usage = pgstore.NewUsageStore(a.pool)
	case backendRedis:
		var redisCfg redis.Config
		if err := config.Load(&redisCfg); err != nil {
			return err
		}
		a.usage = redisstore.NewUsageStore(a.redis, redisCfg.KeyPrefix, a.quotaCfg.Retention())
		a.events = redisstore.NewEventLog(a.redis, redisCfg.KeyPrefix, a.cfg.EventClaimTTL)
	default:
		a.usage = quota.NewMemoryStore()
	}
	return nil
}

// openSignals builds the monitoring recorder: Mongo storage when configured,
// operator alerts when ALERT_WEBHOOK_URL is set, and a counter per kind.
func (a *app) openSignals(ctx context.Context) error {
	opts := []signal.RecorderOption{
		signal.WithLogger(a.log.With(logger.Component("signals"))),
		signal.WithObserver(a.metrics.SignalObserver()),
	}

	var mongoCfg mongo.Config
	if err := config.Load(&mongoCfg); err != nil {
		return err
	}
	if mongoCfg.Enabled() {
		client, db, err := mongo.Connect(ctx, mongoCfg)
		if err != nil {
			return err
		}
		store := mongostore.NewSignalStore(db, mongostore.DefaultCollection)
		if err := store.EnsureIndexes(ctx, a.cfg.SignalRetention); err != nil {
			_ = client.Disconnect(ctx)
			return err
		}
		writer := signal.NewAsyncWriter(store, signal.AsyncOptions{}, func(err error) {
			a.log.Error("failed to store signals", logger.Error(err), logger.Component("signals"))
		})
		opts = append(opts, signal.WithStorage(writer))
		a.checks["mongodb"] = mongo.Healthcheck(client)
		a.closers = append(a.closers, writer.Close, client.Disconnect)
	}

	var alertCfg webhook.Config
	if err := config.Load(&alertCfg); err != nil {
		return err
	}
	if alertCfg.Enabled() {
		alerts := signal.NewAsyncNotifier(signal.NewWebhookNotifier(webhook.NewSender(), alertCfg), 0, 0, func(err error) {
			a.log.Error("failed to deliver alert", logger.Error(err), logger.Component("signals"))
		})
		opts = append(opts, signal.WithNotifier(alerts))
		a.closers = append(a.closers, alerts.Close)
	}

	a.signals = signal.NewRecorder(opts...)
	return nil
}

// build wires the domain services on top of the opened stores.
func (a *app) build(ctx context.Context, provider subscription.BillingProvider) error {
	machine := entitlement.NewMachine(a.store,
		entitlement.WithLogger(a.log.With(logger.Component("entitlement"))),
		entitlement.WithObserver(a.metrics.TransitionObserver()),
	)

	engine, err := quota.NewEngine(ctx, a.quotaCfg.Source(), a.usage, quota.EntitlementTiers(a.store),
		quota.WithLogger(a.log.With(logger.Component("quota"))),
		quota.WithObserver(a.metrics.QuotaObserver()),
	)
	if err != nil {
		return err
	}
	a.engine = engine

	var plansCfg subscription.PlansConfig
	if err := config.Load(&plansCfg); err != nil {
		return err
	}
	svc, err := subscription.NewService(ctx, plansCfg.Source(), provider, a.store, machine, a.events,
		subscription.WithLogger(a.log.With(logger.Component("subscription"))),
		subscription.WithSignals(a.signals),
		subscription.WithQuota(engine),
		subscription.WithProviderObserver(a.metrics.ProviderObserver()),
		subscription.WithWebhookObserver(a.metrics.WebhookObserver()),
	)
	if err != nil {
		return err
	}
	a.service = svc

	a.pruner = a.newPruner()
	return nil
}

// newPruner prunes usage and, when the event log keeps ids forever, the
// processed webhook events older than EVENT_CLAIM_TTL.
func (a *app) newPruner() *quota.Pruner {
	opts := []quota.PrunerOption{
		quota.WithPruneInterval(a.quotaCfg.PruneInterval),
		quota.WithPrunerLogger(a.log.With(logger.Component("pruner"))),
		quota.WithPrunerObserver(a.metrics.PruneObserver()),
	}
	if events, ok := a.events.(quota.Prunable); ok {
		opts = append(opts, quota.WithPruneTarget("processed_events", events, a.cfg.EventClaimTTL))
	}
	return quota.NewPruner(a.usage, a.quotaCfg.Retention(), opts...)
}

func (a *app) handler() http.Handler {
	opts := []api.Option{
		api.WithLogger(a.log.With(logger.Component("api"))),
		api.WithReadinessChecks(a.checks),
	}
	if a.cfg.MetricsEnabled {
		opts = append(opts, api.WithMetrics(a.metrics.Handler()))
	}
	return api.NewRouter(a.service, a.engine, opts...)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
