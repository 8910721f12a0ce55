// Package metrics exposes Prometheus instruments for the entitlement service
// and adapts them to the observer hooks of the domain packages.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/entitlements/pkg/entitlement"
	"github.com/dmitrymomot/entitlements/pkg/quota"
	"github.com/dmitrymomot/entitlements/pkg/signal"
	"github.com/dmitrymomot/entitlements/pkg/subscription"
)

const namespace = "entitlements"

// Metrics holds every instrument registered by New.
type Metrics struct {
	WebhookRequests *prometheus.CounterVec
	WebhookDuration *prometheus.HistogramVec
	Transitions     *prometheus.CounterVec
	QuotaDecisions  *prometheus.CounterVec
	ProviderCalls   *prometheus.CounterVec
	Signals         *prometheus.CounterVec
	UsagePruned     prometheus.Counter

	gatherer prometheus.Gatherer
}

// New registers the instruments with reg, which also backs Handler.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		WebhookRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_requests_total",
			Help:      "Provider webhooks by event type and reconciliation outcome.",
		}, []string{"event_type", "outcome"}),
		WebhookDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_duration_seconds",
			Help:      "Provider webhook handling latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "State machine decisions by trigger and outcome.",
		}, []string{"cause", "outcome"}),
		QuotaDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_decisions_total",
			Help:      "Gated action decisions by metric, tier and decision.",
		}, []string{"metric", "tier", "decision"}),
		ProviderCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Billing provider API calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		Signals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Monitoring signals recorded by kind.",
		}, []string{"kind"}),
		UsagePruned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_records_pruned_total",
			Help:      "Usage records deleted by the retention pruner.",
		}),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// WebhookObserver feeds subscription.WithWebhookObserver.
func (m *Metrics) WebhookObserver() subscription.WebhookObserver {
	return func(eventType string, outcome subscription.WebhookOutcome, elapsed time.Duration) {
		m.WebhookRequests.WithLabelValues(eventType, string(outcome)).Inc()
		m.WebhookDuration.WithLabelValues(eventType).Observe(elapsed.Seconds())
	}
}

// ProviderObserver feeds subscription.WithProviderObserver.
func (m *Metrics) ProviderObserver() subscription.ProviderObserver {
	return func(operation string, err error) {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		m.ProviderCalls.WithLabelValues(operation, outcome).Inc()
	}
}

// TransitionObserver feeds entitlement.WithObserver.
func (m *Metrics) TransitionObserver() entitlement.Observer {
	return func(_ context.Context, tr entitlement.Transition, res entitlement.Result) {
		m.Transitions.WithLabelValues(string(tr.Trigger), string(res.Outcome)).Inc()
	}
}

// QuotaObserver feeds quota.WithObserver.
func (m *Metrics) QuotaObserver() quota.Observer {
	return func(_ context.Context, _ string, d quota.Decision) {
		decision := "allowed"
		if !d.Allowed {
			decision = "denied"
		}
		m.QuotaDecisions.WithLabelValues(string(d.Metric), string(d.Tier), decision).Inc()
	}
}

// SignalObserver feeds signal.WithObserver.
func (m *Metrics) SignalObserver() signal.Observer {
	return func(s signal.Signal) {
		m.Signals.WithLabelValues(string(s.Kind)).Inc()
	}
}

// PruneObserver feeds quota.WithPrunerObserver.
func (m *Metrics) PruneObserver() func(deleted int64) {
	return func(deleted int64) {
		m.UsagePruned.Add(float64(deleted))
	}
}
