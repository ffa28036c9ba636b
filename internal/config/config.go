// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	BackendSpanner = "spanner"
	BackendMemory  = "memory"

	FailurePolicyDrop  = "drop"
	FailurePolicyRetry = "retry"

	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

type Config struct {
	HTTP      HTTP
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	Backend   string `env:"STORE_BACKEND" envDefault:"spanner"`
	Spanner   Spanner
	Reports   Reports
	Redis     Redis
	Archival  Archival
	Telemetry Telemetry
}

type HTTP struct {
	Host        string   `env:"HTTP_HOST"`
	Port        int      `env:"HTTP_PORT" envDefault:"8080"`
	CORSOrigins []string `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`
}

type Spanner struct {
	ProjectID  string `env:"SPANNER_PROJECT_ID" envDefault:"local-project"`
	InstanceID string `env:"SPANNER_INSTANCE_ID" envDefault:"local-instance"`
	DatabaseID string `env:"SPANNER_DATABASE_ID" envDefault:"app-db"`
}

// Reports configures the completion aggregators.
type Reports struct {
	Timezone         string        `env:"REPORTS_TIMEZONE" envDefault:"Asia/Ho_Chi_Minh"`
	TxTimeout        time.Duration `env:"REPORTS_TX_TIMEOUT" envDefault:"30s"`
	ItemConcurrency  int           `env:"REPORTS_ITEM_CONCURRENCY" envDefault:"8"`
	FailurePolicy    string        `env:"REPORTS_FAILURE_POLICY" envDefault:"drop"`
	RetrySchedule    string        `env:"REPORTS_RETRY_SCHEDULE" envDefault:"@every 1m"`
	RetryBatch       int           `env:"REPORTS_RETRY_BATCH" envDefault:"50"`
	RetryMaxAttempts int           `env:"REPORTS_RETRY_MAX_ATTEMPTS" envDefault:"5"`

	location *time.Location
}

// Location returns the loaded reporting time zone. It is set by Load.
func (r Reports) Location() *time.Location {
	if r.location == nil {
		return time.UTC
	}
	return r.location
}

type Redis struct {
	Addr     string `env:"REDIS_ADDR"`
	QueueKey string `env:"REDIS_QUEUE_KEY" envDefault:"reports:failed"`
}

type Archival struct {
	Retention  time.Duration `env:"ARCHIVAL_RETENTION" envDefault:"720h"`
	Schedule   string        `env:"ARCHIVAL_SCHEDULE" envDefault:"0 0 * * *"`
	BatchLimit int           `env:"ARCHIVAL_BATCH_LIMIT" envDefault:"250"`
}

type Telemetry struct {
	Exporter    string `env:"OTEL_TRACES_EXPORTER" envDefault:"none"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"order-reporting"`
}

// Load reads the given .env files, when present, and then the environment.
// Variables already set in the environment take precedence over file values.
func Load(files ...string) (Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	switch c.Backend {
	case BackendSpanner, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND: unknown backend %q", c.Backend))
	}
	switch c.Reports.FailurePolicy {
	case FailurePolicyDrop, FailurePolicyRetry:
	default:
		errs = append(errs, fmt.Errorf("REPORTS_FAILURE_POLICY: unknown policy %q", c.Reports.FailurePolicy))
	}
	switch c.Telemetry.Exporter {
	case ExporterNone, ExporterStdout:
	default:
		errs = append(errs, fmt.Errorf("OTEL_TRACES_EXPORTER: unknown exporter %q", c.Telemetry.Exporter))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	loc, err := time.LoadLocation(c.Reports.Timezone)
	if err != nil {
		errs = append(errs, fmt.Errorf("REPORTS_TIMEZONE: %w", err))
	}
	c.Reports.location = loc

	if c.Reports.TxTimeout <= 0 {
		errs = append(errs, errors.New("REPORTS_TX_TIMEOUT must be positive"))
	}
	if c.Reports.RetryMaxAttempts <= 0 {
		errs = append(errs, errors.New("REPORTS_RETRY_MAX_ATTEMPTS must be positive"))
	}
	if c.Archival.Retention <= 0 {
		errs = append(errs, errors.New("ARCHIVAL_RETENTION must be positive"))
	}
	if c.Archival.BatchLimit <= 0 {
		errs = append(errs, errors.New("ARCHIVAL_BATCH_LIMIT must be positive"))
	}

	return errors.Join(errs...)
}

// SlogLevel maps LOG_LEVEL onto a slog level.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}
