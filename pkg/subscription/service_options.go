package subscription

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/entitlements/pkg/quota"
	"github.com/dmitrymomot/entitlements/pkg/signal"
)

// ProviderObserver is told about every outbound provider call.
type ProviderObserver func(operation string, err error)

// WebhookObserver is told about every webhook once its outcome is known.
// eventType is the provider's type string, or "unknown" before verification.
type WebhookObserver func(eventType string, outcome WebhookOutcome, elapsed time.Duration)

// ServiceOption configures a Service instance.
type ServiceOption func(*service)

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSignals records monitoring signals through r.
func WithSignals(r *signal.Recorder) ServiceOption {
	return func(s *service) {
		s.signals = r
	}
}

// WithQuota adds today's usage to GetStatus.
func WithQuota(e *quota.Engine) ServiceOption {
	return func(s *service) {
		s.quota = e
	}
}

func WithProviderObserver(o ProviderObserver) ServiceOption {
	return func(s *service) {
		if o != nil {
			s.providerObservers = append(s.providerObservers, o)
		}
	}
}

func WithWebhookObserver(o WebhookObserver) ServiceOption {
	return func(s *service) {
		if o != nil {
			s.webhookObservers = append(s.webhookObservers, o)
		}
	}
}
