package quota

import (
	"fmt"
	"time"
)

// Metric is a gated, countable action.
type Metric string

const (
	MetricMessages     Metric = "message"
	MetricVoiceSeconds Metric = "voice_seconds"
	MetricPhotos       Metric = "photo"
)

// Unlimited marks a metric without a ceiling.
const Unlimited int64 = -1

// Metrics lists every metric in a stable order.
func Metrics() []Metric {
	return []Metric{MetricMessages, MetricVoiceSeconds, MetricPhotos}
}

// ParseMetric accepts the metric names used on the wire.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricMessages, MetricVoiceSeconds, MetricPhotos:
		return Metric(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMetric, s)
}

// Daily reports whether the metric replenishes at UTC midnight.
// Photos are a lifetime cap.
func (m Metric) Daily() bool {
	return m != MetricPhotos
}

// Key addresses one counter. Day is ignored for lifetime metrics.
type Key struct {
	UserID string
	Metric Metric
	Day    time.Time
}

// NewKey builds the key for metric at instant now.
func NewKey(userID string, metric Metric, now time.Time) Key {
	k := Key{UserID: userID, Metric: metric}
	if metric.Daily() {
		k.Day = DayOf(now)
	}
	return k
}

// Bucket is the day component of the key as YYYY-MM-DD, or "lifetime".
func (k Key) Bucket() string {
	if !k.Metric.Daily() {
		return "lifetime"
	}
	return k.Day.Format(time.DateOnly)
}

// DayOf truncates t to the start of its UTC day.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NextReset returns the UTC midnight following t.
func NextReset(t time.Time) time.Time {
	return DayOf(t).AddDate(0, 0, 1)
}

// UsageRecord holds one user's counters for one UTC day plus the lifetime photo count.
type UsageRecord struct {
	UserID           string    `json:"user_id"`
	Day              time.Time `json:"day"`
	MessagesUsed     int64     `json:"messages_used"`
	VoiceSecondsUsed int64     `json:"voice_seconds_used"`
	PhotosStored     int64     `json:"photos_stored"`
}

// ResetAt is computed from the day key.
func (r UsageRecord) ResetAt() time.Time {
	return NextReset(r.Day)
}

// Used returns the counter for metric.
func (r UsageRecord) Used(metric Metric) int64 {
	switch metric {
	case MetricMessages:
		return r.MessagesUsed
	case MetricVoiceSeconds:
		return r.VoiceSecondsUsed
	case MetricPhotos:
		return r.PhotosStored
	}
	return 0
}
