package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/entitlements/pkg/quota"
)

// consumeScript increments KEYS[1] by ARGV[1] unless that would exceed the
// ceiling ARGV[2] (negative means unlimited). A positive ARGV[3] sets the
// key's TTL in seconds. It returns {value, admitted}.
var consumeScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local amount = tonumber(ARGV[1])
local ceiling = tonumber(ARGV[2])
if ceiling >= 0 and current + amount > ceiling then
	return {current, 0}
end
local value = redis.call('INCRBY', KEYS[1], amount)
local ttl = tonumber(ARGV[3])
if ttl > 0 then
	redis.call('EXPIRE', KEYS[1], ttl)
end
return {value, 1}
`)

// UsageStore implements quota.UsageStore.
type UsageStore struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

var _ quota.UsageStore = (*UsageStore)(nil)

// NewUsageStore keeps daily counters for retention after their day ends.
func NewUsageStore(client redis.UniversalClient, prefix string, retention time.Duration) *UsageStore {
	if client == nil {
		panic("redisstore: nil client")
	}
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	return &UsageStore{client: client, prefix: prefix, retention: retention}
}

func (s *UsageStore) Consume(ctx context.Context, key quota.Key, amount, ceiling int64) (int64, bool, error) {
	var ttl int64
	if key.Metric.Daily() {
		ttl = int64((time.Until(quota.NextReset(key.Day)) + s.retention) / time.Second)
		ttl = max(ttl, 1)
	}

	res, err := consumeScript.Run(ctx, s.client, []string{s.key(key.UserID, key.Metric, key.Bucket())},
		amount, ceiling, ttl).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("consume usage: %w", err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("consume usage: unexpected script reply %v", res)
	}
	return res[0], res[1] == 1, nil
}

func (s *UsageStore) Record(ctx context.Context, userID string, day time.Time) (quota.UsageRecord, error) {
	out := quota.UsageRecord{UserID: userID, Day: quota.DayOf(day)}
	bucket := out.Day.Format(time.DateOnly)

	vals, err := s.client.MGet(ctx,
		s.key(userID, quota.MetricMessages, bucket),
		s.key(userID, quota.MetricVoiceSeconds, bucket),
		s.key(userID, quota.MetricPhotos, "lifetime"),
	).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return out, fmt.Errorf("read usage record: %w", err)
	}

	counters := []*int64{&out.MessagesUsed, &out.VoiceSecondsUsed, &out.PhotosStored}
	for i, v := range vals {
		if i >= len(counters) {
			break
		}
		if n, ok := parseCounter(v); ok {
			*counters[i] = n
		}
	}
	return out, nil
}

// Prune is a no-op: daily keys expire on their own.
func (s *UsageStore) Prune(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (s *UsageStore) key(userID string, metric quota.Metric, bucket string) string {
	return s.prefix + strings.Join([]string{"usage", userID, string(metric), bucket}, ":")
}

func parseCounter(v any) (int64, bool) {
	str, ok := v.(string)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(str, 10, 64)
	return n, err == nil
}
