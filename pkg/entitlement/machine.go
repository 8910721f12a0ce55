package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/entitlements/pkg/logger"
	"github.com/dmitrymomot/entitlements/pkg/statemachine"
)

// Trigger names the cause of a transition.
type Trigger string

const (
	// TriggerActivate: provider reports an active (or past_due) subscription.
	TriggerActivate Trigger = "activate"
	// TriggerTrial: provider reports a trialing subscription.
	TriggerTrial Trigger = "trial"
	// TriggerCancelPending: provider reports a live subscription set to end at period end.
	TriggerCancelPending Trigger = "cancel_pending"
	// TriggerExpire: provider reports a terminal status.
	TriggerExpire Trigger = "expire"
	// TriggerDelete: provider deleted the subscription.
	TriggerDelete Trigger = "delete"
	// TriggerPaymentSucceeded: an invoice was paid and the period extended.
	TriggerPaymentSucceeded Trigger = "payment_succeeded"
	// TriggerClientCancel: the user asked to cancel through the gateway.
	TriggerClientCancel Trigger = "client_cancel"
)

// Name implements statemachine.Event.
func (t Trigger) Name() string { return string(t) }

// Outcome is the result class of applying a transition.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeStale   Outcome = "stale"
	OutcomeInvalid Outcome = "invalid"
)

// Transition is a request to move a user's record.
// A nil ExpiresAt keeps the stored expiry.
type Transition struct {
	UserID         string
	Trigger        Trigger
	ExpiresAt      *time.Time
	CustomerID     string
	SubscriptionID string
	Marker         Marker
}

// Result describes what Apply did.
type Result struct {
	Outcome     Outcome
	From        Status
	Entitlement Entitlement
	Reason      string
}

// Observer is notified after every decided transition.
type Observer func(ctx context.Context, tr Transition, res Result)

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithLogger sets the logger used for stale and invalid outcomes.
func WithLogger(l *slog.Logger) MachineOption {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides the time source used to compute tiers.
func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// WithMaxAttempts bounds compare-and-swap retries under contention.
func WithMaxAttempts(n int) MachineOption {
	return func(m *Machine) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

// WithObserver registers a callback for every decided transition.
func WithObserver(o Observer) MachineOption {
	return func(m *Machine) {
		if o != nil {
			m.observers = append(m.observers, o)
		}
	}
}

// Machine is the single authority allowed to change tier and status.
type Machine struct {
	store       Store
	table       *statemachine.Table
	logger      *slog.Logger
	now         func() time.Time
	maxAttempts int
	observers   []Observer
}

// NewMachine creates a Machine over the given store.
// Panics if store is nil.
func NewMachine(store Store, opts ...MachineOption) *Machine {
	if store == nil {
		panic("entitlement: Store is required")
	}
	m := &Machine{
		store:       store,
		table:       transitionTable(),
		logger:      slog.New(slog.DiscardHandler),
		now:         time.Now,
		maxAttempts: 8,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type guardInput struct {
	current Entitlement
	marker  Marker
}

func newerThanApplied(_ context.Context, _ statemachine.State, _ statemachine.Event, data any) bool {
	in, ok := data.(guardInput)
	return ok && in.marker.IsNewerThan(in.current.LastEvent)
}

// transitionTable lists every legal move. Provider-driven triggers are
// accepted from any status since the provider is the source of truth; a
// client cancel only makes sense while the user has a live subscription.
func transitionTable() *statemachine.Table {
	all := make([]statemachine.State, 0, 4)
	for _, s := range Statuses() {
		all = append(all, s)
	}
	live := []statemachine.State{StatusActive, StatusTrialing, StatusCancelled}
	fresh := statemachine.WithGuard(newerThanApplied)

	return statemachine.MustNewTable(
		statemachine.WithFanIn(all, StatusActive, TriggerActivate, fresh),
		statemachine.WithFanIn(all, StatusTrialing, TriggerTrial, fresh),
		statemachine.WithFanIn(all, StatusCancelled, TriggerCancelPending, fresh),
		statemachine.WithFanIn(all, StatusExpired, TriggerExpire, fresh),
		statemachine.WithFanIn(all, StatusExpired, TriggerDelete, fresh),
		statemachine.WithFanIn(all, StatusActive, TriggerPaymentSucceeded, fresh),
		statemachine.WithFanIn(live, StatusCancelled, TriggerClientCancel, fresh),
	)
}

// Apply validates tr against the user's current record and commits it with a
// compare-and-swap on the last applied marker. Stale and invalid transitions
// are outcomes, not errors; an error means the store failed.
func (m *Machine) Apply(ctx context.Context, tr Transition) (Result, error) {
	if tr.UserID == "" {
		return Result{}, ErrMissingUserID
	}
	if tr.Marker.IsZero() {
		return Result{}, ErrMissingMarker
	}

	for range m.maxAttempts {
		current, err := m.store.Ensure(ctx, tr.UserID)
		if err != nil {
			return Result{}, fmt.Errorf("load entitlement: %w", err)
		}

		to, err := m.table.Fire(ctx, current.Status, tr.Trigger, guardInput{current: current, marker: tr.Marker})
		switch {
		case statemachine.IsTransitionRejectedError(err):
			return m.decide(ctx, tr, Result{
				Outcome:     OutcomeStale,
				From:        current.Status,
				Entitlement: current,
				Reason:      "event is not newer than the last applied one",
			}), nil
		case statemachine.IsNoTransitionAvailableError(err):
			return m.decide(ctx, tr, Result{
				Outcome:     OutcomeInvalid,
				From:        current.Status,
				Entitlement: current,
				Reason:      err.Error(),
			}), nil
		case err != nil:
			return Result{}, err
		}

		next := current
		next.Status = to.(Status)
		if tr.ExpiresAt != nil {
			expires := tr.ExpiresAt.UTC()
			next.ExpiresAt = &expires
		}
		mergeExternalIDs(&next, tr.CustomerID, tr.SubscriptionID)
		next.LastEvent = tr.Marker
		next.Tier = TierFor(next.Status, next.ExpiresAt, m.now())

		if err := m.store.CompareAndSwap(ctx, next, current.LastEvent); err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			return Result{}, fmt.Errorf("commit entitlement: %w", err)
		}

		return m.decide(ctx, tr, Result{
			Outcome:     OutcomeApplied,
			From:        current.Status,
			Entitlement: next,
		}), nil
	}

	return Result{}, ErrTooManyConflicts
}

func (m *Machine) decide(ctx context.Context, tr Transition, res Result) Result {
	attrs := []any{
		logger.UserID(tr.UserID),
		logger.EventID(tr.Marker.EventID),
		logger.Trigger(string(tr.Trigger)),
		slog.String("from", string(res.From)),
	}
	switch res.Outcome {
	case OutcomeStale:
		m.logger.DebugContext(ctx, "stale transition discarded", attrs...)
	case OutcomeInvalid:
		m.logger.WarnContext(ctx, "invalid transition rejected", append(attrs, slog.String("reason", res.Reason))...)
	case OutcomeApplied:
		m.logger.InfoContext(ctx, "transition applied",
			append(attrs, logger.Status(string(res.Entitlement.Status)), slog.String("tier", string(res.Entitlement.Tier)))...)
	}
	for _, o := range m.observers {
		o(ctx, tr, res)
	}
	return res
}

// MapProviderStatus translates a provider subscription status.
// past_due keeps access while the provider retries the payment.
func MapProviderStatus(status string) (Status, bool) {
	switch status {
	case "active", "past_due":
		return StatusActive, true
	case "trialing":
		return StatusTrialing, true
	case "canceled", "incomplete_expired", "unpaid":
		return StatusExpired, true
	}
	return "", false
}

// ProviderTrigger picks the trigger for a provider-reported subscription state.
// A live subscription scheduled to end at period end maps to cancel_pending so
// that the provider's echo of a client cancel does not undo it.
func ProviderTrigger(status string, cancelAtPeriodEnd bool) (Trigger, bool) {
	mapped, ok := MapProviderStatus(status)
	if !ok {
		return "", false
	}
	switch mapped {
	case StatusActive, StatusTrialing:
		if cancelAtPeriodEnd {
			return TriggerCancelPending, true
		}
		if mapped == StatusTrialing {
			return TriggerTrial, true
		}
		return TriggerActivate, true
	default:
		return TriggerExpire, true
	}
}
