package quota

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/entitlements/pkg/entitlement"
	"github.com/dmitrymomot/entitlements/pkg/logger"
)

// TierResolver reports the tier a user holds at an instant.
type TierResolver interface {
	TierOf(ctx context.Context, userID string, now time.Time) (entitlement.Tier, error)
}

// TierResolverFunc adapts a function to TierResolver.
type TierResolverFunc func(ctx context.Context, userID string, now time.Time) (entitlement.Tier, error)

func (f TierResolverFunc) TierOf(ctx context.Context, userID string, now time.Time) (entitlement.Tier, error) {
	return f(ctx, userID, now)
}

// EntitlementTiers resolves tiers from entitlement records, creating the
// default record for users seen for the first time.
func EntitlementTiers(store entitlement.Store) TierResolver {
	return TierResolverFunc(func(ctx context.Context, userID string, now time.Time) (entitlement.Tier, error) {
		e, err := store.Ensure(ctx, userID)
		if err != nil {
			return "", err
		}
		return e.EffectiveTier(now), nil
	})
}

// Decision is the answer to a gated action.
type Decision struct {
	Allowed bool
	Metric  Metric
	Tier    entitlement.Tier
	Used    int64
	Limit   int64
	// Reason is set when Allowed is false.
	Reason *ExceededError
}

// Err returns the denial as an error, or nil when allowed.
func (d Decision) Err() error {
	if d.Allowed || d.Reason == nil {
		return nil
	}
	return d.Reason
}

// Observer is called after every decision.
type Observer func(ctx context.Context, userID string, d Decision)

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source. Day keys come from it.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObserver registers a decision callback.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// Engine decides whether gated actions are permitted and counts them.
type Engine struct {
	usage     UsageStore
	tiers     TierResolver
	limits    Limits
	now       func() time.Time
	logger    *slog.Logger
	observers []Observer
}

// NewEngine loads limits from src and returns an Engine.
// Panics if a required dependency is nil.
func NewEngine(ctx context.Context, src LimitsSource, usage UsageStore, tiers TierResolver, opts ...Option) (*Engine, error) {
	if src == nil {
		panic("quota: LimitsSource is required")
	}
	if usage == nil {
		panic("quota: UsageStore is required")
	}
	if tiers == nil {
		panic("quota: TierResolver is required")
	}

	limits, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadLimits, err)
	}
	if err := limits.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		usage:  usage,
		tiers:  tiers,
		limits: limits,
		now:    time.Now,
		logger: logger.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Limits returns the free-tier limits in effect.
func (e *Engine) Limits() Limits {
	return e.limits
}

// CheckAndConsume decides whether userID may spend amount of metric and, when
// allowed, records it in the same atomic step. Premium users are always
// allowed and still counted. A denial is a normal Decision, not an error.
func (e *Engine) CheckAndConsume(ctx context.Context, userID string, metric Metric, amount int64) (Decision, error) {
	if userID == "" {
		return Decision{}, ErrMissingUserID
	}
	if _, err := ParseMetric(string(metric)); err != nil {
		return Decision{}, err
	}
	if amount <= 0 {
		return Decision{}, ErrInvalidAmount
	}

	now := e.now()
	tier, err := e.tiers.TierOf(ctx, userID, now)
	if err != nil {
		return Decision{}, errors.Join(ErrTierLookup, err)
	}

	ceiling := Unlimited
	if tier != entitlement.TierPremium {
		ceiling = e.limits.For(metric)
	}

	used, ok, err := e.usage.Consume(ctx, NewKey(userID, metric, now), amount, ceiling)
	if err != nil {
		return Decision{}, errors.Join(ErrUsageStore, err)
	}

	d := Decision{Allowed: ok, Metric: metric, Tier: tier, Used: used, Limit: ceiling}
	if !ok {
		d.Reason = &ExceededError{Metric: metric, Limit: ceiling, Used: used}
		if metric.Daily() {
			reset := NextReset(now)
			d.Reason.ResetAt = &reset
		}
		e.logger.DebugContext(ctx, "quota denied",
			logger.UserID(userID),
			logger.Metric(string(metric)),
			slog.Int64("used", used),
			slog.Int64("limit", ceiling),
		)
	}

	for _, o := range e.observers {
		o(ctx, userID, d)
	}
	return d, nil
}

// Line is one metric's usage against its ceiling.
type Line struct {
	Used  int64 `json:"used"`
	Limit int64 `json:"limit"`
}

// Snapshot is a read-only view of a user's quota state.
type Snapshot struct {
	Tier         entitlement.Tier `json:"tier"`
	Messages     Line             `json:"messages"`
	VoiceSeconds Line             `json:"voice_seconds"`
	Photos       Line             `json:"photos"`
	ResetAt      time.Time        `json:"reset_at"`
}

// Snapshot reports today's usage without consuming anything.
// Premium users see Unlimited ceilings.
func (e *Engine) Snapshot(ctx context.Context, userID string) (Snapshot, error) {
	if userID == "" {
		return Snapshot{}, ErrMissingUserID
	}
	now := e.now()
	tier, err := e.tiers.TierOf(ctx, userID, now)
	if err != nil {
		return Snapshot{}, errors.Join(ErrTierLookup, err)
	}
	rec, err := e.usage.Record(ctx, userID, now)
	if err != nil {
		return Snapshot{}, errors.Join(ErrUsageStore, err)
	}

	limitFor := func(m Metric) int64 {
		if tier == entitlement.TierPremium {
			return Unlimited
		}
		return e.limits.For(m)
	}

	return Snapshot{
		Tier:         tier,
		Messages:     Line{Used: rec.MessagesUsed, Limit: limitFor(MetricMessages)},
		VoiceSeconds: Line{Used: rec.VoiceSecondsUsed, Limit: limitFor(MetricVoiceSeconds)},
		Photos:       Line{Used: rec.PhotosStored, Limit: limitFor(MetricPhotos)},
		ResetAt:      rec.ResetAt(),
	}, nil
}
