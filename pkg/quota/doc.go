// Package quota enforces free-tier usage limits.
//
// Counters are keyed by (user, metric, UTC day). Messages and voice seconds
// are daily; photos are a lifetime cap. There is no reset job: a new day
// simply addresses a fresh, zero-valued key. UsageStore.Consume performs the
// check and the increment as one atomic step per key, so concurrent requests
// cannot both pass a stale count.
//
//	d, err := engine.CheckAndConsume(ctx, userID, quota.MetricMessages, 1)
//	if err != nil {
//	    return err // infrastructure failure
//	}
//	if !d.Allowed {
//	    return d.Err() // *quota.ExceededError, errors.Is(err, quota.ErrQuotaExceeded)
//	}
//
// Premium users are never denied but are still counted.
package quota
