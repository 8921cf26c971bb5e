package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/Veraticus/creditflow-etl/internal/common"
	"github.com/Veraticus/creditflow-etl/internal/service"
	"github.com/spf13/viper"
)

// Supported warehouse drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

const dateLayout = "2006-01-02"

// Config is the complete runtime configuration of a pipeline run.
type Config struct {
	Logging  LoggingConfig
	Database DatabaseConfig
	Input    InputConfig
	Metrics  MetricsConfig
	SCD      SCDConfig
	Risk     RiskConfig
	ETL      ETLConfig
	Quality  QualityConfig
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string
	Format string
}

// DatabaseConfig selects and locates the warehouse.
type DatabaseConfig struct {
	Driver string
	Path   string
	DSN    string
}

// InputConfig locates the upstream CSV extracts.
type InputConfig struct {
	Dir string
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	File string
}

// ETLConfig tunes batching, concurrency and retry.
type ETLConfig struct {
	ProcessingDate time.Time
	DateRangeStart time.Time
	DateRangeEnd   time.Time
	Retry          RetryConfig
	BatchSize      int
	Workers        int
	CommitTimeout  time.Duration
}

// RetryConfig is the transient failure policy for batch commits.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// Options converts the policy into retry options. MaxRetries counts retries,
// not attempts.
func (r RetryConfig) Options() service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  r.MaxRetries + 1,
		InitialDelay: r.InitialDelay,
		MaxDelay:     r.MaxDelay,
		Multiplier:   r.Multiplier,
	}
}

// SCDConfig holds the customer versioning business rules.
type SCDConfig struct {
	TrackedFields         []string
	IncomeChangeThreshold float64
}

// RiskConfig holds the delinquency classification rules.
type RiskConfig struct {
	DPDBucketBounds  []int
	NPAThresholdDays int
}

// QualityConfig holds audit thresholds and outcome tolerance.
type QualityConfig struct {
	CompletenessThreshold float64
	ReferentialThreshold  float64
	DegradedTolerance     float64
	RejectionSampleSize   int
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   filepath.Join("~", ".local", "share", "creditflow", "warehouse.db"),
		},
		Input: InputConfig{Dir: filepath.Join("data", "raw_csv")},
		ETL: ETLConfig{
			BatchSize:     5000,
			Workers:       4,
			CommitTimeout: 30 * time.Second,
			Retry: RetryConfig{
				MaxRetries:   3,
				InitialDelay: 200 * time.Millisecond,
				MaxDelay:     5 * time.Second,
				Multiplier:   2,
			},
			ProcessingDate: time.Now().UTC(),
			DateRangeStart: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
			DateRangeEnd:   time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		},
		SCD: SCDConfig{
			TrackedFields:         []string{"city", "marital_status", "income", "credit_score"},
			IncomeChangeThreshold: 0.20,
		},
		Risk: RiskConfig{
			DPDBucketBounds:  []int{30, 60, 90},
			NPAThresholdDays: 90,
		},
		Quality: QualityConfig{
			CompletenessThreshold: 0.95,
			ReferentialThreshold:  1.0,
			DegradedTolerance:     0.05,
			RejectionSampleSize:   20,
		},
	}
}

// Load reads configuration from viper on top of the defaults. Keys that are
// not set keep their default values.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.GetViper()
	}
	cfg := Default()

	setString(v, "logging.level", &cfg.Logging.Level)
	setString(v, "logging.format", &cfg.Logging.Format)
	setString(v, "database.driver", &cfg.Database.Driver)
	setString(v, "database.path", &cfg.Database.Path)
	setString(v, "database.dsn", &cfg.Database.DSN)
	setString(v, "input.dir", &cfg.Input.Dir)
	setString(v, "metrics.file", &cfg.Metrics.File)

	setInt(v, "etl.batch_size", &cfg.ETL.BatchSize)
	setInt(v, "etl.workers", &cfg.ETL.Workers)
	setDuration(v, "etl.commit_timeout", &cfg.ETL.CommitTimeout)
	setInt(v, "etl.retry.max_retries", &cfg.ETL.Retry.MaxRetries)
	setDuration(v, "etl.retry.initial_delay", &cfg.ETL.Retry.InitialDelay)
	setDuration(v, "etl.retry.max_delay", &cfg.ETL.Retry.MaxDelay)
	setFloat(v, "etl.retry.multiplier", &cfg.ETL.Retry.Multiplier)

	for key, dst := range map[string]*time.Time{
		"etl.processing_date":  &cfg.ETL.ProcessingDate,
		"etl.date_range.start": &cfg.ETL.DateRangeStart,
		"etl.date_range.end":   &cfg.ETL.DateRangeEnd,
	} {
		if err := setDate(v, key, dst); err != nil {
			return nil, err
		}
	}

	if v.IsSet("scd.tracked_fields") {
		cfg.SCD.TrackedFields = v.GetStringSlice("scd.tracked_fields")
	}
	setFloat(v, "scd.income_change_threshold", &cfg.SCD.IncomeChangeThreshold)

	if v.IsSet("risk.dpd_bucket_bounds") {
		cfg.Risk.DPDBucketBounds = v.GetIntSlice("risk.dpd_bucket_bounds")
	}
	setInt(v, "risk.npa_threshold_days", &cfg.Risk.NPAThresholdDays)

	setFloat(v, "quality.completeness_threshold", &cfg.Quality.CompletenessThreshold)
	setFloat(v, "quality.referential_threshold", &cfg.Quality.ReferentialThreshold)
	setFloat(v, "quality.degraded_tolerance", &cfg.Quality.DegradedTolerance)
	setInt(v, "quality.rejection_sample_size", &cfg.Quality.RejectionSampleSize)

	cfg.Database.Path = ExpandPath(cfg.Database.Path)
	cfg.Input.Dir = ExpandPath(cfg.Input.Dir)
	cfg.Metrics.File = ExpandPath(cfg.Metrics.File)
	cfg.ETL.ProcessingDate = time.Date(cfg.ETL.ProcessingDate.Year(), cfg.ETL.ProcessingDate.Month(),
		cfg.ETL.ProcessingDate.Day(), 0, 0, 0, 0, time.UTC)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("%w: database.path is required for sqlite", common.ErrMissingConfig)
		}
	case DriverMySQL:
		if c.Database.DSN == "" {
			return fmt.Errorf("%w: database.dsn is required for mysql", common.ErrMissingConfig)
		}
	default:
		return fmt.Errorf("%w: unsupported database.driver %q", common.ErrInvalidConfig, c.Database.Driver)
	}

	if c.ETL.BatchSize <= 0 {
		return fmt.Errorf("%w: etl.batch_size must be positive", common.ErrInvalidConfig)
	}
	if c.ETL.Workers <= 0 {
		return fmt.Errorf("%w: etl.workers must be positive", common.ErrInvalidConfig)
	}
	if c.ETL.CommitTimeout <= 0 {
		return fmt.Errorf("%w: etl.commit_timeout must be positive", common.ErrInvalidConfig)
	}
	if c.ETL.Retry.MaxRetries < 0 {
		return fmt.Errorf("%w: etl.retry.max_retries cannot be negative", common.ErrInvalidConfig)
	}
	if c.ETL.DateRangeEnd.Before(c.ETL.DateRangeStart) {
		return fmt.Errorf("%w: etl.date_range.end before start", common.ErrInvalidConfig)
	}

	if len(c.SCD.TrackedFields) == 0 {
		return fmt.Errorf("%w: scd.tracked_fields cannot be empty", common.ErrInvalidConfig)
	}
	if c.SCD.IncomeChangeThreshold < 0 {
		return fmt.Errorf("%w: scd.income_change_threshold cannot be negative", common.ErrInvalidConfig)
	}

	if len(c.Risk.DPDBucketBounds) == 0 {
		return fmt.Errorf("%w: risk.dpd_bucket_bounds cannot be empty", common.ErrInvalidConfig)
	}
	if !strictlyAscending(c.Risk.DPDBucketBounds) || c.Risk.DPDBucketBounds[0] <= 0 {
		return fmt.Errorf("%w: risk.dpd_bucket_bounds must be positive and ascending", common.ErrInvalidConfig)
	}
	if c.Risk.NPAThresholdDays <= 0 {
		return fmt.Errorf("%w: risk.npa_threshold_days must be positive", common.ErrInvalidConfig)
	}

	for name, f := range map[string]float64{
		"quality.completeness_threshold": c.Quality.CompletenessThreshold,
		"quality.referential_threshold":  c.Quality.ReferentialThreshold,
		"quality.degraded_tolerance":     c.Quality.DegradedTolerance,
	} {
		if f < 0 || f > 1 {
			return fmt.Errorf("%w: %s must be within [0,1]", common.ErrInvalidConfig, name)
		}
	}

	return nil
}

func setString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}

func setInt(v *viper.Viper, key string, dst *int) {
	if v.IsSet(key) {
		*dst = v.GetInt(key)
	}
}

func setFloat(v *viper.Viper, key string, dst *float64) {
	if v.IsSet(key) {
		*dst = v.GetFloat64(key)
	}
}

func setDuration(v *viper.Viper, key string, dst *time.Duration) {
	if v.IsSet(key) {
		*dst = v.GetDuration(key)
	}
}

func setDate(v *viper.Viper, key string, dst *time.Time) error {
	if !v.IsSet(key) {
		return nil
	}
	raw := v.GetString(key)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", common.ErrInvalidConfig, key, err)
	}
	*dst = t
	return nil
}

func strictlyAscending(xs []int) bool {
	for i := 1; i < len(xs); i++ {
		if xs[i] <= xs[i-1] {
			return false
		}
	}
	return true
}
