package signal

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/entitlements/pkg/logger"
)

// Observer is called for every recorded signal, typically to count it.
type Observer func(s Signal)

// Recorder fans signals out to a log, a Storage and a Notifier.
type Recorder struct {
	storage   Storage
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time
	observers []Observer
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

func WithStorage(s Storage) RecorderOption {
	return func(r *Recorder) { r.storage = s }
}

// WithNotifier sends alerting kinds to n.
func WithNotifier(n Notifier) RecorderOption {
	return func(r *Recorder) { r.notifier = n }
}

func WithLogger(l *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

func WithObserver(o Observer) RecorderOption {
	return func(r *Recorder) {
		if o != nil {
			r.observers = append(r.observers, o)
		}
	}
}

// NewRecorder creates a Recorder. Without options it only logs.
func NewRecorder(opts ...RecorderOption) *Recorder {
	r := &Recorder{
		logger: logger.Discard(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record emits a signal of kind. It returns the recorded value.
// A nil Recorder is valid and records nothing.
func (r *Recorder) Record(ctx context.Context, kind Kind, opts ...Option) Signal {
	if r == nil || kind == "" {
		return Signal{}
	}
	s := newSignal(kind, r.now(), opts)

	r.logger.WarnContext(ctx, "monitoring signal",
		slog.String("signal", string(s.Kind)),
		slog.String("signal_id", s.ID),
		logger.UserID(s.UserID),
		logger.EventID(s.EventID),
		slog.String("message", s.Message),
		slog.Any("details", s.Details),
	)

	if r.storage != nil {
		if err := r.storage.Store(ctx, s); err != nil {
			r.logger.ErrorContext(ctx, "failed to store signal",
				slog.String("signal_id", s.ID), logger.Error(err))
		}
	}
	if r.notifier != nil && kind.Alerting() {
		if err := r.notifier.Notify(ctx, s); err != nil {
			r.logger.ErrorContext(ctx, "failed to notify signal",
				slog.String("signal_id", s.ID), logger.Error(err))
		}
	}
	for _, o := range r.observers {
		o(s)
	}
	return s
}
