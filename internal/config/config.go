// Package config handles YAML configuration for sweeper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/yairfalse/sweeper/lifecycle"
)

// Config is the root configuration structure.
type Config struct {
	Account      string   `yaml:"account"`
	Regions      []string `yaml:"regions" validate:"required,min=1,dive,required"`
	GlobalRegion string   `yaml:"global_region" validate:"required"`
	Policies     []string `yaml:"policies"`

	DryRun               bool           `yaml:"dry_run"`
	DaysToTakeAction     int            `yaml:"days_to_take_action" validate:"gte=1"`
	DaysToDeleteResource int            `yaml:"days_to_delete_resource" validate:"gte=0"`
	PolicyDays           map[string]int `yaml:"policy_days" validate:"dive,gte=0"`
	ForceDelete          bool           `yaml:"force_delete"`
	ResourceID           string         `yaml:"resource_id" validate:"required_if=ForceDelete true"`

	PolicyDir string      `yaml:"policy_dir"`
	Scope     ScopeConfig `yaml:"scope"`

	AWS     AWSConfig     `yaml:"aws"`
	Storage StorageConfig `yaml:"storage"`
	Notify  NotifyConfig  `yaml:"notify"`
	Log     LogConfig     `yaml:"log"`
	OTEL    OTELConfig    `yaml:"otel"`
	Daemon  DaemonConfig  `yaml:"daemon"`
}

// AWSConfig holds AWS provider settings.
type AWSConfig struct {
	Profile string `yaml:"profile"`
}

// ScopeConfig holds static exclusion rules applied before the Rego policies.
type ScopeConfig struct {
	ExcludeTypes []string          `yaml:"exclude_types"`
	IncludeTags  map[string]string `yaml:"include_tags"`
	ExcludeTags  map[string]string `yaml:"exclude_tags"`
}

// StorageConfig holds ledger and journal locations.
type StorageConfig struct {
	Path             string `yaml:"path" validate:"required"`
	WALDir           string `yaml:"wal_dir" validate:"required"`
	WALRetentionDays int    `yaml:"wal_retention_days" validate:"gte=0"`
}

// NotifyConfig holds alert delivery settings.
type NotifyConfig struct {
	QueueURL    string `yaml:"queue_url" validate:"omitempty,url"`
	AlertDryRun bool   `yaml:"alert_dry_run"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

// OTELConfig holds OpenTelemetry settings.
type OTELConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	Insecure    bool          `yaml:"insecure"`
	ServiceName string        `yaml:"service_name" validate:"required"`
	Traces      TracesConfig  `yaml:"traces"`
	Metrics     MetricsConfig `yaml:"metrics"`
}

// TracesConfig holds tracing settings.
type TracesConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sample_rate" validate:"gte=0,lte=1"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DaemonConfig holds daemon mode settings.
type DaemonConfig struct {
	Interval    time.Duration `yaml:"interval" validate:"gt=0"`
	MetricsAddr string        `yaml:"metrics_addr" validate:"required"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Regions:          []string{"us-east-1"},
		GlobalRegion:     "us-east-1",
		DryRun:           true,
		DaysToTakeAction: 7,
		Storage: StorageConfig{
			Path:             "./sweeper-data",
			WALDir:           "./sweeper-data/wal",
			WALRetentionDays: 90,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		OTEL: OTELConfig{
			ServiceName: "sweeper",
			Traces:      TracesConfig{SampleRate: 1.0},
		},
		Daemon: DaemonConfig{
			Interval:    24 * time.Hour,
			MetricsAddr: ":2112",
		},
	}
}

// Load reads a YAML config file over the defaults and applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv overrides fields from environment variables. The names match the
// parameters of the scheduled cleanup jobs.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("account"); ok && v != "" {
		c.Account = v
	}
	if v, ok := lookup("AWS_DEFAULT_REGION"); ok && v != "" {
		c.Regions = []string{v}
	}
	if v, ok := lookup("policy"); ok && v != "" {
		c.Policies = []string{v}
	}
	if v, ok := lookup("dry_run"); ok && v != "" {
		b, err := ParseYesNo(v)
		if err != nil {
			return fmt.Errorf("env dry_run: %w", err)
		}
		c.DryRun = b
	}
	if v, ok := lookup("FORCE_DELETE"); ok && v != "" {
		b, err := ParseYesNo(v)
		if err != nil {
			return fmt.Errorf("env FORCE_DELETE: %w", err)
		}
		c.ForceDelete = b
	}
	if v, ok := lookup("ALERT_DRY_RUN"); ok && v != "" {
		b, err := ParseYesNo(v)
		if err != nil {
			return fmt.Errorf("env ALERT_DRY_RUN: %w", err)
		}
		c.Notify.AlertDryRun = b
	}
	if v, ok := lookup("DAYS_TO_TAKE_ACTION"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("env DAYS_TO_TAKE_ACTION: %w", err)
		}
		c.DaysToTakeAction = n
	}
	if v, ok := lookup("DAYS_TO_DELETE_RESOURCE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("env DAYS_TO_DELETE_RESOURCE: %w", err)
		}
		c.DaysToDeleteResource = n
	}
	if v, ok := lookup("RESOURCE_ID"); ok && v != "" {
		c.ResourceID = v
	}
	if v, ok := lookup("AWS_PROFILE"); ok && v != "" {
		c.AWS.Profile = v
	}
	if v, ok := lookup("log_level"); ok && v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	return nil
}

// ParseYesNo accepts yes/no/true/false/1/0 in any case.
func ParseYesNo(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "y", "true", "1":
		return true, nil
	case "no", "n", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", v)
}

// Validate checks the configuration is valid.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Lifecycle returns the engine configuration derived from c.
func (c *Config) Lifecycle() lifecycle.Config {
	return lifecycle.Config{
		DaysToTakeAction: c.DaysToTakeAction,
		DryRun:           c.DryRun,
		ForceDelete:      c.ForceDelete,
		TargetResourceID: c.ResourceID,
	}
}

// DaysToDelete returns the deletion deadline for a policy. 0 means use days_to_take_action.
func (c *Config) DaysToDelete(policy string) int {
	if n, ok := c.PolicyDays[policy]; ok && n > 0 {
		return n
	}
	return c.DaysToDeleteResource
}
