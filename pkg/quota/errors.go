package quota

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrQuotaExceeded      = errors.New("quota exceeded")
	ErrUnknownMetric      = errors.New("unknown quota metric")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrMissingUserID      = errors.New("user id is required")
	ErrInvalidLimits      = errors.New("invalid quota limits")
	ErrFailedToLoadLimits = errors.New("failed to load quota limits")
	ErrTierLookup         = errors.New("failed to resolve user tier")
	ErrUsageStore         = errors.New("usage store failure")
)

// ExceededError is the denial reason for a free-tier request over its limit.
// ResetAt is nil for the lifetime photo cap: the denial lasts until upgrade.
type ExceededError struct {
	Metric  Metric
	Limit   int64
	Used    int64
	ResetAt *time.Time
}

func (e *ExceededError) Error() string {
	if e.ResetAt == nil {
		return fmt.Sprintf("quota exceeded for %s: %d of %d used, no reset", e.Metric, e.Used, e.Limit)
	}
	return fmt.Sprintf("quota exceeded for %s: %d of %d used, resets at %s",
		e.Metric, e.Used, e.Limit, e.ResetAt.Format(time.RFC3339))
}

func (e *ExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// Permanent reports whether waiting will not help.
func (e *ExceededError) Permanent() bool {
	return e.ResetAt == nil
}
