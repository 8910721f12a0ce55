package signal

import (
	"time"

	"github.com/google/uuid"
)

// Kind names a monitored condition.
type Kind string

const (
	KindPastDueGrace      Kind = "past_due_grace"
	KindPaymentFailed     Kind = "payment_failed"
	KindInvalidTransition Kind = "invalid_transition"
	KindBadSignature      Kind = "bad_signature"
	KindReconcileError    Kind = "reconcile_error"
)

// Alerting reports whether kind warrants paging an operator.
func (k Kind) Alerting() bool {
	switch k {
	case KindPastDueGrace, KindPaymentFailed, KindReconcileError:
		return true
	}
	return false
}

// Signal is one recorded occurrence.
type Signal struct {
	ID      string         `json:"id" bson:"_id"`
	Kind    Kind           `json:"kind" bson:"kind"`
	UserID  string         `json:"user_id,omitempty" bson:"user_id,omitempty"`
	EventID string         `json:"event_id,omitempty" bson:"event_id,omitempty"`
	Message string         `json:"message,omitempty" bson:"message,omitempty"`
	Details map[string]any `json:"details,omitempty" bson:"details,omitempty"`
	At      time.Time      `json:"at" bson:"at"`
}

// Option decorates a Signal before it is recorded.
type Option func(*Signal)

func WithUser(userID string) Option {
	return func(s *Signal) { s.UserID = userID }
}

func WithEvent(eventID string) Option {
	return func(s *Signal) { s.EventID = eventID }
}

func WithMessage(msg string) Option {
	return func(s *Signal) { s.Message = msg }
}

// WithDetail attaches a key/value pair.
func WithDetail(key string, value any) Option {
	return func(s *Signal) {
		if s.Details == nil {
			s.Details = make(map[string]any)
		}
		s.Details[key] = value
	}
}

func newSignal(kind Kind, now time.Time, opts []Option) Signal {
	s := Signal{ID: uuid.NewString(), Kind: kind, At: now.UTC()}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Criteria filters stored signals. Zero fields match everything.
// Results are newest first.
type Criteria struct {
	Kind   Kind
	UserID string
	Since  time.Time
	Limit  int
}

// Match reports whether s satisfies c, ignoring Limit.
func (c Criteria) Match(s Signal) bool {
	if c.Kind != "" && s.Kind != c.Kind {
		return false
	}
	if c.UserID != "" && s.UserID != c.UserID {
		return false
	}
	if !c.Since.IsZero() && s.At.Before(c.Since) {
		return false
	}
	return true
}
