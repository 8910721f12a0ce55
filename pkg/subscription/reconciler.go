package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/entitlements/pkg/entitlement"
	"github.com/dmitrymomot/entitlements/pkg/logger"
	"github.com/dmitrymomot/entitlements/pkg/signal"
)

// HandleWebhook verifies payload, deduplicates it by event id and applies it.
func (s *service) HandleWebhook(ctx context.Context, payload []byte, signature string) (WebhookResult, error) {
	start := s.now()
	event, err := s.provider.ParseWebhook(ctx, payload, signature)
	if err != nil {
		s.logger.WarnContext(ctx, "webhook rejected", logger.Error(err))
		s.signals.Record(ctx, signal.KindBadSignature, signal.WithMessage(err.Error()))
		s.observeWebhook("unknown", WebhookError, start)
		if !errors.Is(err, ErrBadSignature) {
			err = errors.Join(ErrBadSignature, err)
		}
		return WebhookResult{}, err
	}

	log := s.logger.With(logger.EventID(event.ID), logger.EventType(event.ProviderType))
	result := WebhookResult{EventID: event.ID, Kind: event.Kind}

	claimed, err := s.events.Claim(ctx, event.ID)
	switch {
	case err != nil:
		// Markers still make reapplication harmless, so carry on without dedup.
		log.ErrorContext(ctx, "failed to claim webhook event", logger.Error(err))
		claimed = true
	case !claimed:
		log.DebugContext(ctx, "duplicate webhook event acknowledged")
		result.Outcome = WebhookDuplicate
		s.observeWebhook(event.ProviderType, result.Outcome, start)
		return result, nil
	}

	if event.Malformed != nil {
		// Redelivery carries the same payload, so the claim is kept.
		s.reportReconcileError(ctx, "", event.ID, event.Malformed)
		result.Outcome = WebhookMalformed
		s.observeWebhook(event.ProviderType, result.Outcome, start)
		return result, nil
	}

	outcome, userID, err := s.dispatch(ctx, log, event)
	if err != nil {
		outcome = WebhookError
		s.reportReconcileError(ctx, userID, event.ID, err)
		if rerr := s.events.Release(ctx, event.ID); rerr != nil {
			log.ErrorContext(ctx, "failed to release webhook event", logger.Error(rerr))
		}
	}
	result.Outcome = outcome
	s.observeWebhook(event.ProviderType, outcome, start)
	return result, nil
}

// dispatch is the closed match over event kinds. Unknown kinds are ignored.
func (s *service) dispatch(ctx context.Context, log *slog.Logger, event *WebhookEvent) (WebhookOutcome, string, error) {
	switch event.Kind {
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		return s.onSubscriptionChanged(ctx, log, event)
	case EventSubscriptionDeleted:
		return s.onSubscriptionDeleted(ctx, log, event)
	case EventInvoicePaymentPaid:
		return s.onPaymentSucceeded(ctx, log, event)
	case EventInvoicePaymentFailed:
		return s.onPaymentFailed(ctx, log, event)
	default:
		log.InfoContext(ctx, "webhook event ignored")
		return WebhookIgnored, "", nil
	}
}

func (s *service) onSubscriptionChanged(ctx context.Context, log *slog.Logger, event *WebhookEvent) (WebhookOutcome, string, error) {
	sub := event.Subscription
	if sub == nil {
		return WebhookInvalid, "", ErrMalformedEvent
	}
	userID, err := s.resolveUser(ctx, sub)
	if err != nil {
		return WebhookError, "", err
	}
	if userID == "" {
		log.WarnContext(ctx, "webhook for unknown customer ignored", logger.CustomerID(sub.CustomerID))
		return WebhookIgnored, "", nil
	}

	trigger, ok := entitlement.ProviderTrigger(sub.Status, sub.CancelAtPeriodEnd)
	if !ok {
		if sub.RequiresConfirmation() {
			// Still waiting for the first payment to be confirmed.
			if err := s.store.AttachExternalIDs(ctx, userID, sub.CustomerID, sub.ID); err != nil {
				return WebhookError, userID, err
			}
			return WebhookIgnored, userID, nil
		}
		log.WarnContext(ctx, "unrecognized provider status",
			logger.UserID(userID), logger.Status(sub.Status))
		s.signals.Record(ctx, signal.KindInvalidTransition,
			signal.WithUser(userID), signal.WithEvent(event.ID),
			signal.WithDetail("provider_status", sub.Status))
		return WebhookInvalid, userID, nil
	}

	outcome, _, err := s.apply(ctx, event, entitlement.Transition{
		UserID:         userID,
		Trigger:        trigger,
		ExpiresAt:      periodEnd(sub),
		CustomerID:     sub.CustomerID,
		SubscriptionID: sub.ID,
		Marker:         event.Marker(),
	})
	if outcome == WebhookApplied && sub.Status == "past_due" {
		log.WarnContext(ctx, "past_due subscription keeps premium access", logger.UserID(userID))
		s.signals.Record(ctx, signal.KindPastDueGrace,
			signal.WithUser(userID), signal.WithEvent(event.ID),
			signal.WithDetail("subscription_id", sub.ID))
	}
	return outcome, userID, err
}

func (s *service) onSubscriptionDeleted(ctx context.Context, log *slog.Logger, event *WebhookEvent) (WebhookOutcome, string, error) {
	sub := event.Subscription
	if sub == nil {
		return WebhookInvalid, "", ErrMalformedEvent
	}
	userID, err := s.resolveUser(ctx, sub)
	if err != nil {
		return WebhookError, "", err
	}
	if userID == "" {
		log.WarnContext(ctx, "webhook for unknown customer ignored", logger.CustomerID(sub.CustomerID))
		return WebhookIgnored, "", nil
	}
	return s.apply(ctx, event, entitlement.Transition{
		UserID:         userID,
		Trigger:        entitlement.TriggerDelete,
		CustomerID:     sub.CustomerID,
		SubscriptionID: sub.ID,
		Marker:         event.Marker(),
	})
}

// onPaymentSucceeded needs one provider lookup: the invoice does not carry
// the subscription's new period end.
func (s *service) onPaymentSucceeded(ctx context.Context, log *slog.Logger, event *WebhookEvent) (WebhookOutcome, string, error) {
	inv := event.Invoice
	if inv == nil {
		return WebhookInvalid, "", ErrMalformedEvent
	}

	subID := inv.SubscriptionID
	if subID == "" {
		var err error
		subID, err = call(s, "retrieve_invoice", func() (string, error) {
			return s.provider.GetInvoiceSubscriptionID(ctx, inv.ID)
		})
		if err != nil {
			return WebhookError, "", err
		}
	}
	if subID == "" {
		log.DebugContext(ctx, "invoice without subscription ignored")
		return WebhookIgnored, "", nil
	}

	sub, err := call(s, "retrieve_subscription", func() (*Subscription, error) {
		return s.provider.GetSubscription(ctx, subID)
	})
	if err != nil {
		return WebhookError, "", err
	}
	if sub.CustomerID == "" {
		sub.CustomerID = inv.CustomerID
	}
	userID, err := s.resolveUser(ctx, sub)
	if err != nil {
		return WebhookError, "", err
	}
	if userID == "" {
		log.WarnContext(ctx, "webhook for unknown customer ignored", logger.CustomerID(sub.CustomerID))
		return WebhookIgnored, "", nil
	}

	return s.apply(ctx, event, entitlement.Transition{
		UserID:         userID,
		Trigger:        entitlement.TriggerPaymentSucceeded,
		ExpiresAt:      periodEnd(sub),
		CustomerID:     sub.CustomerID,
		SubscriptionID: sub.ID,
		Marker:         event.Marker(),
	})
}

// onPaymentFailed leaves the entitlement alone: the provider's dunning cycle
// decides when the subscription ends.
func (s *service) onPaymentFailed(ctx context.Context, log *slog.Logger, event *WebhookEvent) (WebhookOutcome, string, error) {
	inv := event.Invoice
	if inv == nil {
		return WebhookInvalid, "", ErrMalformedEvent
	}
	var userID string
	if inv.CustomerID != "" {
		ent, err := s.store.FindByCustomerID(ctx, inv.CustomerID)
		if err == nil {
			userID = ent.UserID
		} else if !errors.Is(err, entitlement.ErrNotFound) {
			return WebhookError, "", err
		}
	}
	log.WarnContext(ctx, "invoice payment failed",
		logger.UserID(userID), logger.CustomerID(inv.CustomerID),
		slog.Int64("attempt_count", inv.AttemptCount))
	s.signals.Record(ctx, signal.KindPaymentFailed,
		signal.WithUser(userID), signal.WithEvent(event.ID),
		signal.WithDetail("invoice_id", inv.ID),
		signal.WithDetail("attempt_count", inv.AttemptCount),
		signal.WithDetail("amount_due", inv.AmountDue))
	return WebhookRecorded, userID, nil
}

func (s *service) apply(ctx context.Context, event *WebhookEvent, tr entitlement.Transition) (WebhookOutcome, string, error) {
	res, err := s.machine.Apply(ctx, tr)
	if err != nil {
		return WebhookError, tr.UserID, err
	}
	switch res.Outcome {
	case entitlement.OutcomeApplied:
		return WebhookApplied, tr.UserID, nil
	case entitlement.OutcomeStale:
		return WebhookStale, tr.UserID, nil
	default:
		s.signals.Record(ctx, signal.KindInvalidTransition,
			signal.WithUser(tr.UserID), signal.WithEvent(event.ID),
			signal.WithDetail("trigger", string(tr.Trigger)),
			signal.WithDetail("from", string(res.From)),
			signal.WithMessage(res.Reason))
		return WebhookInvalid, tr.UserID, nil
	}
}

// resolveUser prefers the user id stamped in provider metadata and falls
// back to the customer mapping. An unknown customer resolves to "".
func (s *service) resolveUser(ctx context.Context, sub *Subscription) (string, error) {
	if sub.UserID != "" {
		return sub.UserID, nil
	}
	if sub.CustomerID == "" {
		return "", nil
	}
	ent, err := s.store.FindByCustomerID(ctx, sub.CustomerID)
	if errors.Is(err, entitlement.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return ent.UserID, nil
}

func (s *service) observeWebhook(eventType string, outcome WebhookOutcome, start time.Time) {
	if eventType == "" {
		eventType = "unknown"
	}
	elapsed := s.now().Sub(start)
	for _, o := range s.webhookObservers {
		o(eventType, outcome, elapsed)
	}
}
