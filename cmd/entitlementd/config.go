package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/entitlements/pkg/config"
	"github.com/dmitrymomot/entitlements/pkg/logger"
	"github.com/dmitrymomot/entitlements/pkg/requestid"
)

const (
	backendMemory   = "memory"
	backendPostgres = "postgres"
	backendRedis    = "redis"
)

var errUnknownBackend = errors.New("unknown storage backend")

// appConfig selects backends and process-wide settings. Component settings
// live in their own packages' Config types.
type appConfig struct {
	Env         string `env:"APP_ENV" envDefault:"development"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"entitlementd"`
	LogLevel    string `env:"LOG_LEVEL"`

	// STORAGE_BACKEND holds entitlements and processed event ids.
	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"postgres"`
	// USAGE_BACKEND holds daily usage counters. Redis also takes over event
	// id claims.
	UsageBackend string `env:"USAGE_BACKEND" envDefault:"postgres"`

	EventClaimTTL   time.Duration `env:"EVENT_CLAIM_TTL" envDefault:"168h"`
	SignalRetention time.Duration `env:"SIGNAL_RETENTION" envDefault:"720h"`
	MetricsEnabled  bool          `env:"METRICS_ENABLED" envDefault:"true"`
}

func (c appConfig) validate() error {
	switch c.StorageBackend {
	case backendMemory, backendPostgres:
	default:
		return fmt.Errorf("%w: STORAGE_BACKEND=%q", errUnknownBackend, c.StorageBackend)
	}
	switch c.UsageBackend {
	case backendMemory, backendPostgres, backendRedis:
	default:
		return fmt.Errorf("%w: USAGE_BACKEND=%q", errUnknownBackend, c.UsageBackend)
	}
	return nil
}

func (c appConfig) needsPostgres() bool {
	return c.StorageBackend == backendPostgres || c.UsageBackend == backendPostgres
}

func loadAppConfig() (appConfig, error) {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return appConfig{}, err
	}
	if err := cfg.validate(); err != nil {
		return appConfig{}, err
	}
	return cfg, nil
}

func newLogger(cfg appConfig) *slog.Logger {
	return logger.New(
		logger.WithLevelName(cfg.LogLevel),
		logger.WithEnvironment(cfg.Env, cfg.ServiceName),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	)
}
