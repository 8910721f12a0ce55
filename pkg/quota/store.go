package quota

import (
	"context"
	"time"
)

// UsageStore persists usage counters.
type UsageStore interface {
	// Consume adds amount to the counter at key when the result stays within
	// ceiling, as one atomic step per key. Unlimited disables the ceiling.
	// It returns the counter value after the call and whether it was incremented.
	Consume(ctx context.Context, key Key, amount, ceiling int64) (used int64, ok bool, err error)

	// Record returns the user's counters for day. Missing rows read as zero.
	Record(ctx context.Context, userID string, day time.Time) (UsageRecord, error)

	// Prune deletes daily records older than before and reports how many went.
	// Lifetime counters are never pruned.
	Prune(ctx context.Context, before time.Time) (int64, error)
}
