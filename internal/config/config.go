// Package config handles TOML configuration for fleetop.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/yairfalse/fleetop/pkg/instance"
)

// Config is the root configuration structure.
type Config struct {
	AWS        AWSConfig        `toml:"aws"`
	Poll       PollConfig       `toml:"poll"`
	OTEL       OTELConfig       `toml:"otel"`
	Prometheus PrometheusConfig `toml:"prometheus"`
	Log        LogConfig        `toml:"log"`
}

// AWSConfig holds AWS provider settings.
type AWSConfig struct {
	Region          string `toml:"region"`
	Profile         string `toml:"profile"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	SessionToken    string `toml:"session_token"`
}

// PollConfig holds the convergence poll budget.
type PollConfig struct {
	Attempts    int    `toml:"attempts"`
	IntervalStr string `toml:"interval"`
	Interval    time.Duration
}

// OTELConfig holds OpenTelemetry settings.
type OTELConfig struct {
	Endpoint    string        `toml:"endpoint"`
	Insecure    bool          `toml:"insecure"`
	ServiceName string        `toml:"service_name"`
	Traces      TracesConfig  `toml:"traces"`
	Metrics     MetricsConfig `toml:"metrics"`
}

// TracesConfig holds tracing settings.
type TracesConfig struct {
	Enabled    bool    `toml:"enabled"`
	SampleRate float64 `toml:"sample_rate"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// PrometheusConfig holds Pushgateway settings. An empty Pushgateway
// disables the push.
type PrometheusConfig struct {
	Pushgateway string `toml:"pushgateway"`
	Job         string `toml:"job"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Poll.Interval = instance.DefaultPollBudget().Interval
	return cfg
}

// Load reads and parses a TOML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := parseInterval(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	budget := instance.DefaultPollBudget()
	if cfg.Poll.Attempts == 0 {
		cfg.Poll.Attempts = budget.MaxAttempts
	}
	if cfg.Poll.IntervalStr == "" {
		cfg.Poll.IntervalStr = budget.Interval.String()
	}
	if cfg.OTEL.ServiceName == "" {
		cfg.OTEL.ServiceName = "fleetop"
	}
	if cfg.Prometheus.Job == "" {
		cfg.Prometheus.Job = "fleetop"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}

func parseInterval(cfg *Config) error {
	d, err := time.ParseDuration(cfg.Poll.IntervalStr)
	if err != nil {
		return fmt.Errorf("parse interval %q: %w", cfg.Poll.IntervalStr, err)
	}
	cfg.Poll.Interval = d
	return nil
}

// Budget returns the poll budget described by the configuration.
func (c *Config) Budget() instance.PollBudget {
	return instance.PollBudget{MaxAttempts: c.Poll.Attempts, Interval: c.Poll.Interval}
}

// Validate checks the configuration is valid.
func (c *Config) Validate() error {
	if c.AWS.Region == "" {
		return fmt.Errorf("aws: region required")
	}
	if (c.AWS.AccessKeyID == "") != (c.AWS.SecretAccessKey == "") {
		return fmt.Errorf("aws: access_key_id and secret_access_key must be set together")
	}
	if err := c.Budget().Validate(); err != nil {
		return fmt.Errorf("poll: %w", err)
	}
	if c.OTEL.Traces.SampleRate < 0.0 || c.OTEL.Traces.SampleRate > 1.0 {
		return fmt.Errorf("otel: traces.sample_rate must be between 0.0 and 1.0 (got %v)", c.OTEL.Traces.SampleRate)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log: unknown format %q", c.Log.Format)
	}
	return nil
}
