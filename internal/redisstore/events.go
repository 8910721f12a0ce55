package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/entitlements/pkg/subscription"
)

// EventLog implements subscription.EventLog with SET NX. Claims expire after
// ttl, which should outlast the provider's redelivery window.
type EventLog struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

var _ subscription.EventLog = (*EventLog)(nil)

func NewEventLog(client redis.Cmdable, prefix string, ttl time.Duration) *EventLog {
	if client == nil {
		panic("redisstore: nil client")
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &EventLog{client: client, prefix: prefix, ttl: ttl}
}

func (l *EventLog) Claim(ctx context.Context, eventID string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key(eventID), time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim event: %w", err)
	}
	return ok, nil
}

func (l *EventLog) Release(ctx context.Context, eventID string) error {
	if err := l.client.Del(ctx, l.key(eventID)).Err(); err != nil {
		return fmt.Errorf("release event: %w", err)
	}
	return nil
}

func (l *EventLog) key(eventID string) string {
	return l.prefix + "event:" + eventID
}
