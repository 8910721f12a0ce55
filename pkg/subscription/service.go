package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/entitlements/pkg/entitlement"
	"github.com/dmitrymomot/entitlements/pkg/logger"
	"github.com/dmitrymomot/entitlements/pkg/quota"
	"github.com/dmitrymomot/entitlements/pkg/signal"
)

// Service is the client-facing gateway plus the provider webhook reconciler.
type Service interface {
	// Create subscribes userID to planID using paymentMethodID.
	Create(ctx context.Context, userID, paymentMethodID, planID string) (*CreateResult, error)

	// Cancel schedules the user's subscription to end at period end.
	Cancel(ctx context.Context, userID string) (*CancelResult, error)

	// GetStatus reports the user's tier, status, expiry and usage.
	GetStatus(ctx context.Context, userID string) (*Status, error)

	// HandleWebhook verifies and applies a provider event. The only error it
	// returns wraps ErrBadSignature.
	HandleWebhook(ctx context.Context, payload []byte, signature string) (WebhookResult, error)

	// Plans returns the catalog.
	Plans() []Plan
}

type service struct {
	plans    map[string]Plan
	provider BillingProvider
	store    entitlement.Store
	machine  *entitlement.Machine
	events   EventLog

	quota             *quota.Engine
	signals           *signal.Recorder
	logger            *slog.Logger
	now               func() time.Time
	providerObservers []ProviderObserver
	webhookObservers  []WebhookObserver
}

// NewService loads the plan catalog and wires the gateway.
// Panics if a required dependency is nil.
func NewService(
	ctx context.Context,
	src PlansListSource,
	provider BillingProvider,
	store entitlement.Store,
	machine *entitlement.Machine,
	events EventLog,
	opts ...ServiceOption,
) (Service, error) {
	if src == nil {
		panic("subscription: PlansListSource is required")
	}
	if provider == nil {
		panic("subscription: BillingProvider is required")
	}
	if store == nil {
		panic("subscription: entitlement.Store is required")
	}
	if machine == nil {
		panic("subscription: entitlement.Machine is required")
	}
	if events == nil {
		panic("subscription: EventLog is required")
	}

	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	if err := validatePlans(plans); err != nil {
		return nil, err
	}

	s := &service{
		plans:    plans,
		provider: provider,
		store:    store,
		machine:  machine,
		events:   events,
		logger:   logger.Discard(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *service) Plans() []Plan {
	out := make([]Plan, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, p)
	}
	return out
}

// Create runs: ensure customer, check the provider for a live subscription,
// attach and default the payment method, create the subscription, apply.
// Every step before the apply is safe to repeat when the caller retries.
func (s *service) Create(ctx context.Context, userID, paymentMethodID, planID string) (*CreateResult, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	if paymentMethodID == "" {
		return nil, ErrMissingPaymentMethod
	}
	plan, ok := s.plans[planID]
	if !ok {
		return nil, ErrPlanNotFound
	}

	ent, err := s.store.Ensure(ctx, userID)
	if err != nil {
		return nil, errors.Join(ErrEntitlementStore, err)
	}

	customerID := ent.CustomerID
	if customerID == "" {
		customerID, err = call(s, "create_customer", func() (string, error) {
			return s.provider.CreateCustomer(ctx, userID)
		})
		if err != nil {
			return nil, err
		}
		if err := s.store.AttachExternalIDs(ctx, userID, customerID, ""); err != nil {
			return nil, errors.Join(ErrEntitlementStore, err)
		}
	} else {
		// Local state may lag the provider; ask the provider.
		live, err := call(s, "list_subscriptions", func() (bool, error) {
			return s.provider.HasLiveSubscription(ctx, customerID)
		})
		if err != nil {
			return nil, err
		}
		if live {
			return nil, ErrAlreadySubscribed
		}
	}

	if _, err := call(s, "attach_payment_method", func() (struct{}, error) {
		return struct{}{}, s.provider.AttachPaymentMethod(ctx, customerID, paymentMethodID)
	}); err != nil {
		return nil, err
	}
	if _, err := call(s, "set_default_payment_method", func() (struct{}, error) {
		return struct{}{}, s.provider.SetDefaultPaymentMethod(ctx, customerID, paymentMethodID)
	}); err != nil {
		return nil, err
	}

	sub, err := call(s, "create_subscription", func() (*Subscription, error) {
		return s.provider.CreateSubscription(ctx, SubscriptionRequest{
			CustomerID: customerID,
			PriceID:    plan.PriceID,
			UserID:     userID,
			TrialDays:  plan.TrialDays,
		})
	})
	if err != nil {
		return nil, err
	}

	result := &CreateResult{
		SubscriptionID:       sub.ID,
		ProviderStatus:       sub.Status,
		Status:               ent.Status,
		RequiresConfirmation: sub.RequiresConfirmation(),
	}
	if result.RequiresConfirmation {
		result.ClientSecret = sub.ClientSecret
	}

	if err := s.store.AttachExternalIDs(ctx, userID, customerID, sub.ID); err != nil {
		// The provider side is done; the webhook will carry the ids again.
		s.reportReconcileError(ctx, userID, "create:"+sub.ID, err)
		return result, nil
	}

	trigger, ok := entitlement.ProviderTrigger(sub.Status, sub.CancelAtPeriodEnd)
	if !ok {
		// incomplete: wait for confirmation and the provider's update event.
		return result, nil
	}
	if sub.Status == "past_due" {
		s.signals.Record(ctx, signal.KindPastDueGrace,
			signal.WithUser(userID), signal.WithDetail("subscription_id", sub.ID))
	}

	created := sub.Created
	if created.IsZero() {
		created = s.now()
	}
	res, err := s.machine.Apply(ctx, entitlement.Transition{
		UserID:         userID,
		Trigger:        trigger,
		ExpiresAt:      periodEnd(sub),
		CustomerID:     customerID,
		SubscriptionID: sub.ID,
		Marker:         entitlement.Marker{EventID: "create:" + sub.ID, CreatedAt: created},
	})
	if err != nil {
		s.reportReconcileError(ctx, userID, "create:"+sub.ID, err)
		return result, nil
	}
	result.Status = res.Entitlement.Status
	return result, nil
}

// Cancel asks the provider to cancel at period end, then marks the record
// CANCELLED without touching tier or expiry.
func (s *service) Cancel(ctx context.Context, userID string) (*CancelResult, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	ent, err := s.store.Get(ctx, userID)
	if errors.Is(err, entitlement.ErrNotFound) {
		return nil, ErrNoActiveSubscription
	}
	if err != nil {
		return nil, errors.Join(ErrEntitlementStore, err)
	}
	if !ent.HasSubscription() || ent.Status == entitlement.StatusExpired {
		return nil, ErrNoActiveSubscription
	}

	sub, err := call(s, "cancel_subscription", func() (*Subscription, error) {
		return s.provider.CancelAtPeriodEnd(ctx, ent.SubscriptionID)
	})
	if err != nil {
		return nil, err
	}

	cancelAt := sub.PeriodEnd
	if cancelAt.IsZero() && ent.ExpiresAt != nil {
		cancelAt = *ent.ExpiresAt
	}

	at := sub.CanceledAt
	if at.IsZero() {
		at = s.now()
	}
	_, err = s.machine.Apply(ctx, entitlement.Transition{
		UserID:  userID,
		Trigger: entitlement.TriggerClientCancel,
		Marker:  entitlement.Marker{EventID: "cancel:" + sub.ID, CreatedAt: at},
	})
	if err != nil {
		// The provider will echo the cancel as an update event.
		s.reportReconcileError(ctx, userID, "cancel:"+sub.ID, err)
	}
	return &CancelResult{CancelAt: cancelAt.UTC()}, nil
}

func (s *service) GetStatus(ctx context.Context, userID string) (*Status, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	ent, err := s.store.Ensure(ctx, userID)
	if err != nil {
		return nil, errors.Join(ErrEntitlementStore, err)
	}

	st := &Status{
		Tier:      ent.EffectiveTier(s.now()),
		Status:    ent.Status,
		ExpiresAt: ent.ExpiresAt,
	}
	if s.quota != nil {
		snap, err := s.quota.Snapshot(ctx, userID)
		if err != nil {
			return nil, err
		}
		st.Usage = &snap
	}
	return st, nil
}

// call runs one provider operation, wraps failures in ErrProviderError and
// notifies observers.
func call[T any](s *service, operation string, fn func() (T, error)) (T, error) {
	v, err := fn()
	for _, o := range s.providerObservers {
		o(operation, err)
	}
	if err != nil {
		s.logger.Error("billing provider call failed",
			slog.String("operation", operation), logger.Error(err))
		var zero T
		return zero, errors.Join(ErrProviderError, err)
	}
	return v, nil
}

func (s *service) reportReconcileError(ctx context.Context, userID, eventID string, err error) {
	s.logger.ErrorContext(ctx, "failed to reconcile entitlement",
		logger.UserID(userID), logger.EventID(eventID), logger.Error(err))
	s.signals.Record(ctx, signal.KindReconcileError,
		signal.WithUser(userID), signal.WithEvent(eventID), signal.WithMessage(err.Error()))
}

func periodEnd(sub *Subscription) *time.Time {
	if sub.PeriodEnd.IsZero() {
		return nil
	}
	t := sub.PeriodEnd.UTC()
	return &t
}
