package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/entitlements/pkg/quota"
)

// UsageStore implements quota.UsageStore.
type UsageStore struct {
	db DB
}

var _ quota.UsageStore = (*UsageStore)(nil)

// NewUsageStore panics on a nil db.
func NewUsageStore(db DB) *UsageStore {
	if db == nil {
		panic("pgstore: nil db")
	}
	return &UsageStore{db: db}
}

// consumeSQL inserts or increments one counter. Both arms refuse to cross the
// ceiling ($6), so an empty RETURNING means the request was denied. A
// negative ceiling means unlimited.
const consumeSQL = `
INSERT INTO usage_counters AS c (user_id, metric, bucket, day, used)
SELECT $1, $2, $3, $4::date, $5::bigint
WHERE $6::bigint < 0 OR $5::bigint <= $6::bigint
ON CONFLICT (user_id, metric, bucket) DO UPDATE
	SET used = c.used + EXCLUDED.used, updated_at = now()
	WHERE $6::bigint < 0 OR c.used + EXCLUDED.used <= $6::bigint
RETURNING c.used`

func (s *UsageStore) Consume(ctx context.Context, key quota.Key, amount, ceiling int64) (int64, bool, error) {
	var day *time.Time
	if key.Metric.Daily() {
		d := quota.DayOf(key.Day)
		day = &d
	}

	var used int64
	err := s.db.QueryRow(ctx, consumeSQL,
		key.UserID, string(key.Metric), key.Bucket(), day, amount, ceiling,
	).Scan(&used)
	if err == nil {
		return used, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("consume usage: %w", err)
	}

	// Denied. The current value is informational only.
	err = s.db.QueryRow(ctx,
		`SELECT used FROM usage_counters WHERE user_id = $1 AND metric = $2 AND bucket = $3`,
		key.UserID, string(key.Metric), key.Bucket(),
	).Scan(&used)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("read usage: %w", err)
	}
	return used, false, nil
}

func (s *UsageStore) Record(ctx context.Context, userID string, day time.Time) (quota.UsageRecord, error) {
	out := quota.UsageRecord{UserID: userID, Day: quota.DayOf(day)}
	rows, err := s.db.Query(ctx,
		`SELECT metric, used FROM usage_counters
		 WHERE user_id = $1 AND bucket IN ($2, 'lifetime')`,
		userID, out.Day.Format(time.DateOnly),
	)
	if err != nil {
		return out, fmt.Errorf("read usage record: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			metric string
			used   int64
		)
		if err := rows.Scan(&metric, &used); err != nil {
			return out, fmt.Errorf("scan usage record: %w", err)
		}
		switch quota.Metric(metric) {
		case quota.MetricMessages:
			out.MessagesUsed = used
		case quota.MetricVoiceSeconds:
			out.VoiceSecondsUsed = used
		case quota.MetricPhotos:
			out.PhotosStored = used
		}
	}
	if err := rows.Err(); err != nil {
		return out, fmt.Errorf("read usage record: %w", err)
	}
	return out, nil
}

// Prune removes daily rows before the given day. Lifetime rows have no day
// and are kept.
func (s *UsageStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM usage_counters WHERE day < $1::date`, quota.DayOf(before))
	if err != nil {
		return 0, fmt.Errorf("prune usage: %w", err)
	}
	return tag.RowsAffected(), nil
}
