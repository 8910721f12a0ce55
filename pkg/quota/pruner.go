package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/entitlements/pkg/logger"
)

// Pruner deletes usage records that aged past the retention window.
// Deletion never affects quota decisions: today's record is recreated on demand.
type Pruner struct {
	store     UsageStore
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger
	observe   func(deleted int64)
	targets   []pruneTarget
}

// Prunable deletes entries older than a cutoff and reports how many it removed.
type Prunable interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

type pruneTarget struct {
	name      string
	target    Prunable
	retention time.Duration
}

// PrunerOption configures a Pruner.
type PrunerOption func(*Pruner)

func WithPruneInterval(d time.Duration) PrunerOption {
	return func(p *Pruner) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithPrunerClock(now func() time.Time) PrunerOption {
	return func(p *Pruner) {
		if now != nil {
			p.now = now
		}
	}
}

func WithPrunerLogger(l *slog.Logger) PrunerOption {
	return func(p *Pruner) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithPrunerObserver is called with the number of deleted records after
// every successful pass.
func WithPrunerObserver(fn func(deleted int64)) PrunerOption {
	return func(p *Pruner) {
		if fn != nil {
			p.observe = fn
		}
	}
}

// WithPruneTarget prunes target on every pass as well, keeping retention
// worth of entries. A failing target does not stop the usage prune.
func WithPruneTarget(name string, target Prunable, retention time.Duration) PrunerOption {
	return func(p *Pruner) {
		if target != nil && retention > 0 {
			p.targets = append(p.targets, pruneTarget{name: name, target: target, retention: retention})
		}
	}
}

// NewPruner creates a Pruner keeping retention worth of daily records.
func NewPruner(store UsageStore, retention time.Duration, opts ...PrunerOption) *Pruner {
	if store == nil {
		panic("quota: UsageStore is required")
	}
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	p := &Pruner{
		store:     store,
		retention: retention,
		interval:  24 * time.Hour,
		now:       time.Now,
		logger:    logger.Discard(),
		observe:   func(int64) {},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PruneOnce deletes records older than the retention window, then prunes
// every extra target. It returns the number of usage records deleted.
func (p *Pruner) PruneOnce(ctx context.Context) (int64, error) {
	now := p.now()
	cutoff := DayOf(now.Add(-p.retention))
	n, err := p.store.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	p.observe(n)
	p.logger.InfoContext(ctx, "usage records pruned",
		slog.Int64("deleted", n),
		slog.Time("cutoff", cutoff),
	)

	var errs []error
	for _, t := range p.targets {
		before := now.Add(-t.retention)
		deleted, err := t.target.Prune(ctx, before)
		if err != nil {
			errs = append(errs, fmt.Errorf("prune %s: %w", t.name, err))
			continue
		}
		p.logger.InfoContext(ctx, "records pruned",
			slog.String("target", t.name),
			slog.Int64("deleted", deleted),
			slog.Time("cutoff", before),
		)
	}
	return n, errors.Join(errs...)
}

// Run prunes immediately and then on every interval until ctx is done.
// Failures are logged; the next tick tries again.
func (p *Pruner) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.PruneOnce(ctx); err != nil && ctx.Err() == nil {
			p.logger.ErrorContext(ctx, "prune failed", logger.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
