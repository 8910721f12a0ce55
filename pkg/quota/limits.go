package quota

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Limits are the free-tier ceilings. Unlimited disables a ceiling.
type Limits struct {
	MessagesPerDay     int64 `yaml:"messages_per_day"`
	VoiceSecondsPerDay int64 `yaml:"voice_seconds_per_day"`
	PhotoCap           int64 `yaml:"photo_cap"`
}

// For returns the ceiling for metric.
func (l Limits) For(metric Metric) int64 {
	switch metric {
	case MetricMessages:
		return l.MessagesPerDay
	case MetricVoiceSeconds:
		return l.VoiceSecondsPerDay
	case MetricPhotos:
		return l.PhotoCap
	}
	return 0
}

// Validate rejects negative ceilings other than Unlimited.
func (l Limits) Validate() error {
	for _, m := range Metrics() {
		if v := l.For(m); v < 0 && v != Unlimited {
			return fmt.Errorf("%w: %s limit %d", ErrInvalidLimits, m, v)
		}
	}
	return nil
}

// LimitsSource loads free-tier limits.
type LimitsSource interface {
	Load(ctx context.Context) (Limits, error)
}

// StaticSource serves fixed limits.
type StaticSource Limits

func (s StaticSource) Load(context.Context) (Limits, error) {
	return Limits(s), nil
}

// YAMLSource reads limits from a YAML file:
//
//	free:
//	  messages_per_day: 10
//	  voice_seconds_per_day: 300
//	  photo_cap: 5
//
// Keys missing from the file keep the fallback values.
type YAMLSource struct {
	Path     string
	Fallback Limits
}

type limitsFile struct {
	Free Limits `yaml:"free"`
}

func (s YAMLSource) Load(ctx context.Context) (Limits, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return Limits{}, errors.Join(ErrFailedToLoadLimits, err)
	}
	doc := limitsFile{Free: s.Fallback}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Limits{}, errors.Join(ErrFailedToLoadLimits, err)
	}
	return doc.Free, nil
}

// Config holds quota settings loaded from the environment.
type Config struct {
	MessagesPerDay     int64         `env:"QUOTA_FREE_MESSAGES_PER_DAY" envDefault:"10"`
	VoiceSecondsPerDay int64         `env:"QUOTA_FREE_VOICE_SECONDS_PER_DAY" envDefault:"300"`
	PhotoCap           int64         `env:"QUOTA_FREE_PHOTO_CAP" envDefault:"5"`
	LimitsFile         string        `env:"QUOTA_LIMITS_FILE"`
	RetentionDays      int           `env:"QUOTA_USAGE_RETENTION_DAYS" envDefault:"90"`
	PruneInterval      time.Duration `env:"QUOTA_PRUNE_INTERVAL" envDefault:"24h"`
}

// Source picks the YAML file when configured and the env values otherwise.
func (c Config) Source() LimitsSource {
	env := Limits{
		MessagesPerDay:     c.MessagesPerDay,
		VoiceSecondsPerDay: c.VoiceSecondsPerDay,
		PhotoCap:           c.PhotoCap,
	}
	if c.LimitsFile != "" {
		return YAMLSource{Path: c.LimitsFile, Fallback: env}
	}
	return StaticSource(env)
}

// Retention converts RetentionDays to a duration.
func (c Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
