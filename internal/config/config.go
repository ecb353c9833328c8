// Package config loads service configuration from defaults, an optional file and RIDING_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	ridinglookup "github.com/wra-sol/ridingLookup-sub000"
)

// Breaker modes.
const (
	BreakerLocal  = "local"
	BreakerShared = "shared"
	BreakerRemote = "remote"
)

type Config struct {
	HTTP     HTTPConfig     `json:"http"`
	Log      LogConfig      `json:"log"`
	Store    StoreConfig    `json:"store"`
	Breaker  BreakerConfig  `json:"breaker"`
	Queue    QueueConfig    `json:"queue"`
	Retry    RetryConfig    `json:"retry"`
	Upstream UpstreamConfig `json:"upstream"`
}

type HTTPConfig struct {
	Addr string `json:"addr"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

type StoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
	Prefix string `json:"prefix"`
}

type BreakerConfig struct {
	Mode             string        `json:"mode"`
	FailureThreshold int           `json:"failure_threshold"`
	RecoveryTimeout  time.Duration `json:"recovery_timeout"`
	SuccessThreshold int           `json:"success_threshold"`
	CoordinatorURL   string        `json:"coordinator_url"`
}

type QueueConfig struct {
	MaxAttempts   int           `json:"max_attempts"`
	JobTimeout    time.Duration `json:"job_timeout"`
	SweepInterval time.Duration `json:"sweep_interval"`
	BatchSize     int           `json:"batch_size"`
	Workers       int           `json:"workers"`
}

type RetryConfig struct {
	MaxAttempts       int           `json:"max_attempts"`
	BaseDelay         time.Duration `json:"base_delay"`
	MaxDelay          time.Duration `json:"max_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
	Jitter            bool          `json:"jitter"`
}

type UpstreamConfig struct {
	GeocoderURL string        `json:"geocoder_url"`
	ResolverURL string        `json:"resolver_url"`
	Timeout     time.Duration `json:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.prefix", "ridinglookup")
	v.SetDefault("breaker.mode", BreakerLocal)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.recovery_timeout", 60*time.Second)
	v.SetDefault("breaker.success_threshold", 2)
	v.SetDefault("breaker.coordinator_url", "")
	v.SetDefault("queue.max_attempts", ridinglookup.DefaultMaxAttempts)
	v.SetDefault("queue.job_timeout", 30*time.Second)
	v.SetDefault("queue.sweep_interval", time.Second)
	v.SetDefault("queue.batch_size", 10)
	v.SetDefault("queue.workers", 2)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", time.Second)
	v.SetDefault("retry.max_delay", 5*time.Second)
	v.SetDefault("retry.backoff_multiplier", 2.0)
	v.SetDefault("retry.jitter", true)
	v.SetDefault("upstream.geocoder_url", "")
	v.SetDefault("upstream.resolver_url", "")
	v.SetDefault("upstream.timeout", 10*time.Second)
}

/*
Load builds the configuration. path may be empty; when set, the file must exist.
Every key can be overridden from the environment as RIDING_<SECTION>_<KEY>, for
example RIDING_STORE_DRIVER=redis.
*/
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RIDING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{
		HTTP: HTTPConfig{Addr: v.GetString("http.addr")},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(v.GetString("store.driver")),
			DSN:    v.GetString("store.dsn"),
			Prefix: v.GetString("store.prefix"),
		},
		Breaker: BreakerConfig{
			Mode:             strings.ToLower(v.GetString("breaker.mode")),
			FailureThreshold: v.GetInt("breaker.failure_threshold"),
			RecoveryTimeout:  v.GetDuration("breaker.recovery_timeout"),
			SuccessThreshold: v.GetInt("breaker.success_threshold"),
			CoordinatorURL:   v.GetString("breaker.coordinator_url"),
		},
		Queue: QueueConfig{
			MaxAttempts:   v.GetInt("queue.max_attempts"),
			JobTimeout:    v.GetDuration("queue.job_timeout"),
			SweepInterval: v.GetDuration("queue.sweep_interval"),
			BatchSize:     v.GetInt("queue.batch_size"),
			Workers:       v.GetInt("queue.workers"),
		},
		Retry: RetryConfig{
			MaxAttempts:       v.GetInt("retry.max_attempts"),
			BaseDelay:         v.GetDuration("retry.base_delay"),
			MaxDelay:          v.GetDuration("retry.max_delay"),
			BackoffMultiplier: v.GetFloat64("retry.backoff_multiplier"),
			Jitter:            v.GetBool("retry.jitter"),
		},
		Upstream: UpstreamConfig{
			GeocoderURL: v.GetString("upstream.geocoder_url"),
			ResolverURL: v.GetString("upstream.resolver_url"),
			Timeout:     v.GetDuration("upstream.timeout"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the service cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "redis", "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: unknown store driver %q", ridinglookup.ErrInvalidInput, c.Store.Driver)
	}

	switch c.Breaker.Mode {
	case BreakerLocal, BreakerShared:
	case BreakerRemote:
		if c.Breaker.CoordinatorURL == "" {
			return fmt.Errorf("%w: breaker.coordinator_url is required in remote mode", ridinglookup.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown breaker mode %q", ridinglookup.ErrInvalidInput, c.Breaker.Mode)
	}

	if err := c.BreakerThresholds().Validate(); err != nil {
		return err
	}

	if c.Queue.MaxAttempts < 1 || c.Queue.BatchSize < 1 || c.Queue.Workers < 1 {
		return fmt.Errorf("%w: queue sizes must be positive", ridinglookup.ErrInvalidInput)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%w: retry.max_attempts must be positive", ridinglookup.ErrInvalidInput)
	}

	return nil
}

// BreakerThresholds converts to the core type.
func (c *Config) BreakerThresholds() ridinglookup.BreakerConfig {
	return ridinglookup.BreakerConfig{
		FailureThreshold: c.Breaker.FailureThreshold,
		RecoveryTimeout:  c.Breaker.RecoveryTimeout,
		SuccessThreshold: c.Breaker.SuccessThreshold,
	}
}

// RetryPolicy converts to the core type.
func (c *Config) RetryPolicy() ridinglookup.RetryPolicy {
	return ridinglookup.RetryPolicy{
		MaxAttempts:       c.Retry.MaxAttempts,
		BaseDelay:         c.Retry.BaseDelay,
		MaxDelay:          c.Retry.MaxDelay,
		BackoffMultiplier: c.Retry.BackoffMultiplier,
		Jitter:            c.Retry.Jitter,
	}
}

// Scheduler converts to the core type.
func (c *Config) Scheduler() ridinglookup.SchedulerConfig {
	return ridinglookup.SchedulerConfig{
		Workers:   c.Queue.Workers,
		Interval:  c.Queue.SweepInterval,
		BatchSize: c.Queue.BatchSize,
	}
}

// Logger builds the service logger from the log section.
func (c LogConfig) Logger() (*log.Logger, error) {
	level, err := log.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ridinglookup.ErrInvalidInput, err)
	}

	formatter := log.TextFormatter
	switch strings.ToLower(c.Format) {
	case "", "text":
	case "json":
		formatter = log.JSONFormatter
	case "logfmt":
		formatter = log.LogfmtFormatter
	default:
		return nil, fmt.Errorf("%w: unknown log format %q", ridinglookup.ErrInvalidInput, c.Format)
	}

	return log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          "ridinglookup",
		Level:           level,
		Formatter:       formatter,
		ReportTimestamp: true,
	}), nil
}
