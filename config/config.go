// Package config loads and validates audit engine configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the main configuration
type Config struct {
	Version   string          `yaml:"version"`
	Region    string          `yaml:"region"`
	Discovery DiscoveryConfig `yaml:"discovery,omitempty"`
	Audit     AuditConfig     `yaml:"audit,omitempty"`
	Waivers   WaiversConfig   `yaml:"waivers,omitempty"`
	Storage   StorageConfig   `yaml:"storage,omitempty"`
	Journal   JournalConfig   `yaml:"journal,omitempty"`
	Emitters  EmittersConfig  `yaml:"emitters,omitempty"`
	Daemon    DaemonConfig    `yaml:"daemon,omitempty"`
	OTEL      OTELConfig      `yaml:"otel,omitempty"`
}

// DiscoveryConfig controls which load balancers enter a run
type DiscoveryConfig struct {
	IncludeTestPrefixes bool `yaml:"include_test_prefixes"`
	IncludeYoung        bool `yaml:"include_young"`
	MinAgeDays          int  `yaml:"min_age_days"`
}

// MinAge returns the minimum age cutoff as a duration.
func (d DiscoveryConfig) MinAge() time.Duration {
	return time.Duration(d.MinAgeDays) * 24 * time.Hour
}

// AuditConfig controls audit execution
type AuditConfig struct {
	Workers        int  `yaml:"workers"`
	WindowDays     int  `yaml:"window_days"`
	ParallelChecks bool `yaml:"parallel_checks"`
}

// WaiversConfig points at the waiver policy bundle
type WaiversConfig struct {
	BundleDir string `yaml:"bundle_dir"`
}

// StorageConfig locates the audit history database
type StorageConfig struct {
	Path string `yaml:"path"`
}

// JournalConfig controls the append-only run journal
type JournalConfig struct {
	Dir       string `yaml:"dir"`
	KeepFiles int    `yaml:"keep_files"`
}

// EmittersConfig wires optional output sinks
type EmittersConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// DaemonConfig controls continuous mode
type DaemonConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MetricsAddr string        `yaml:"metrics_addr"`
}

// OTELConfig holds the collector endpoint
type OTELConfig struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Version: "v1",
		Discovery: DiscoveryConfig{
			MinAgeDays: 14,
		},
		Audit: AuditConfig{
			Workers:        4,
			WindowDays:     7,
			ParallelChecks: true,
		},
		Storage: StorageConfig{
			Path: ".vaaka",
		},
		Journal: JournalConfig{
			Dir:       ".vaaka/journal",
			KeepFiles: 30,
		},
		Daemon: DaemonConfig{
			Interval:    time.Hour,
			MetricsAddr: ":9090",
		},
	}
}

// Load loads configuration from file, overlaying defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overlays environment variables onto the config
func (c *Config) ApplyEnv() {
	if v := os.Getenv("VAAKA_REGION"); v != "" {
		c.Region = v
	}
	if v := os.Getenv("VAAKA_INCLUDE_TEST_LBS"); v != "" {
		c.Discovery.IncludeTestPrefixes = isTruthy(v)
	}
	if v := os.Getenv("VAAKA_INCLUDE_YOUNG_LBS"); v != "" {
		c.Discovery.IncludeYoung = isTruthy(v)
	}
	if v := os.Getenv("VAAKA_WEBHOOK_URL"); v != "" {
		c.Emitters.WebhookURL = v
	}
}

func isTruthy(v string) bool {
	return v == "1" || v == "true" || v == "yes"
}

// Validate ensures config has required fields
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}
	if c.Audit.Workers < 1 {
		return fmt.Errorf("audit workers must be >= 1, got %d", c.Audit.Workers)
	}
	if c.Audit.WindowDays < 1 {
		return fmt.Errorf("audit window_days must be >= 1, got %d", c.Audit.WindowDays)
	}
	return nil
}
