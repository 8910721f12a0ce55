package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrymomot/entitlements/pkg/quota"
	"github.com/dmitrymomot/entitlements/pkg/subscription"
)

// EventLog implements subscription.EventLog on the processed_events table.
type EventLog struct {
	db DB
}

var (
	_ subscription.EventLog = (*EventLog)(nil)
	_ quota.Prunable        = (*EventLog)(nil)
)

// NewEventLog panics on a nil db.
func NewEventLog(db DB) *EventLog {
	if db == nil {
		panic("pgstore: nil db")
	}
	return &EventLog{db: db}
}

func (l *EventLog) Claim(ctx context.Context, eventID string) (bool, error) {
	tag, err := l.db.Exec(ctx,
		`INSERT INTO processed_events (event_id) VALUES ($1) ON CONFLICT (event_id) DO NOTHING`,
		eventID,
	)
	if err != nil {
		return false, fmt.Errorf("claim event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (l *EventLog) Release(ctx context.Context, eventID string) error {
	if _, err := l.db.Exec(ctx, `DELETE FROM processed_events WHERE event_id = $1`, eventID); err != nil {
		return fmt.Errorf("release event: %w", err)
	}
	return nil
}

// Prune forgets events processed before the cutoff. The provider stops
// redelivering after a few days, so old ids no longer need to be remembered.
func (l *EventLog) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := l.db.Exec(ctx, `DELETE FROM processed_events WHERE processed_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return tag.RowsAffected(), nil
}
