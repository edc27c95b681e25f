// Package config captures the operator-adjustable knobs for the
// observation pipeline. Values come from defaults, an optional YAML file,
// and GLIMPSE_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const DefaultFileName = "config.yaml"

// Config is the root configuration document.
type Config struct {
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Privacy  PrivacyConfig  `mapstructure:"privacy"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`

	// Source indicates where the configuration originated (defaults or a
	// file path).
	Source string `mapstructure:"-"`
}

// PipelineConfig holds the windowing and reduction knobs.
type PipelineConfig struct {
	WindowIntervalMs         int     `mapstructure:"window_interval_ms"`
	MoveThrottleMs           int     `mapstructure:"move_throttle_ms"`
	ScrollThrottleMs         int     `mapstructure:"scroll_throttle_ms"`
	ClickTimeToleranceMs     int     `mapstructure:"click_time_tolerance_ms"`
	ClickPositionTolerancePx float64 `mapstructure:"click_position_tolerance_px"`
	MaxBufferedEvents        int     `mapstructure:"max_buffered_events"`
}

// WindowInterval returns the window duration.
func (p PipelineConfig) WindowInterval() time.Duration {
	return time.Duration(p.WindowIntervalMs) * time.Millisecond
}

// MoveThrottle returns the move sampling interval.
func (p PipelineConfig) MoveThrottle() time.Duration {
	return time.Duration(p.MoveThrottleMs) * time.Millisecond
}

// ScrollThrottle returns the scroll aggregation interval.
func (p PipelineConfig) ScrollThrottle() time.Duration {
	return time.Duration(p.ScrollThrottleMs) * time.Millisecond
}

// ClickTimeTolerance returns the click merge window.
func (p PipelineConfig) ClickTimeTolerance() time.Duration {
	return time.Duration(p.ClickTimeToleranceMs) * time.Millisecond
}

// SnapshotConfig controls per-tick screen capture.
type SnapshotConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	TimeoutMs int  `mapstructure:"timeout_ms"`
}

// Timeout returns the per-capture bound.
func (s SnapshotConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// PrivacyConfig controls redaction and application allow-listing.
type PrivacyConfig struct {
	RedactEmails   bool     `mapstructure:"redact_emails"`
	RedactPatterns []string `mapstructure:"redact_patterns"`
	AllowApps      []string `mapstructure:"allow_apps"`
	DropUnknown    bool     `mapstructure:"drop_unknown"`
}

// StorageConfig controls the optional sqlite window sink.
type StorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig defines log verbosity and formatting.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the baseline configuration used when no overrides are
// supplied.
func Default() Config {
	return Config{
		Pipeline: PipelineConfig{
			WindowIntervalMs:         20_000,
			MoveThrottleMs:           100,
			ScrollThrottleMs:         150,
			ClickTimeToleranceMs:     500,
			ClickPositionTolerancePx: 5,
			MaxBufferedEvents:        100_000,
		},
		Snapshot: SnapshotConfig{
			Enabled:   true,
			TimeoutMs: 5_000,
		},
		Privacy: PrivacyConfig{
			RedactEmails: true,
		},
		Storage: StorageConfig{
			Enabled: false,
			Path:    "glimpse.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Source: "<defaults>",
	}
}

// Load reads configuration from disk if present, otherwise returning
// defaults. When path is empty the loader attempts ./config.yaml but
// tolerates a missing file; an explicit path must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	setDefaults(v, cfg)

	v.SetEnvPrefix("GLIMPSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := strings.TrimSpace(path) != ""
	if explicit {
		v.SetConfigFile(strings.TrimSpace(path))
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultFileName, ".yaml"))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !explicit && errors.As(err, &notFound) {
			// Defaults plus environment only.
		} else if explicit {
			return cfg, fmt.Errorf("read config file %q: %w", path, err)
		} else {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}

	if used := v.ConfigFileUsed(); used != "" {
		cfg.Source = used
	} else {
		cfg.Source = "<defaults>"
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("pipeline.window_interval_ms", cfg.Pipeline.WindowIntervalMs)
	v.SetDefault("pipeline.move_throttle_ms", cfg.Pipeline.MoveThrottleMs)
	v.SetDefault("pipeline.scroll_throttle_ms", cfg.Pipeline.ScrollThrottleMs)
	v.SetDefault("pipeline.click_time_tolerance_ms", cfg.Pipeline.ClickTimeToleranceMs)
	v.SetDefault("pipeline.click_position_tolerance_px", cfg.Pipeline.ClickPositionTolerancePx)
	v.SetDefault("pipeline.max_buffered_events", cfg.Pipeline.MaxBufferedEvents)
	v.SetDefault("snapshot.enabled", cfg.Snapshot.Enabled)
	v.SetDefault("snapshot.timeout_ms", cfg.Snapshot.TimeoutMs)
	v.SetDefault("privacy.redact_emails", cfg.Privacy.RedactEmails)
	v.SetDefault("privacy.redact_patterns", cfg.Privacy.RedactPatterns)
	v.SetDefault("privacy.allow_apps", cfg.Privacy.AllowApps)
	v.SetDefault("privacy.drop_unknown", cfg.Privacy.DropUnknown)
	v.SetDefault("storage.enabled", cfg.Storage.Enabled)
	v.SetDefault("storage.path", cfg.Storage.Path)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
}

// Validate ensures essential configuration values are present and sensible.
func (c Config) Validate() error {
	if c.Pipeline.WindowIntervalMs <= 0 {
		return errors.New("pipeline.window_interval_ms must be positive")
	}
	if c.Pipeline.MoveThrottleMs <= 0 {
		return errors.New("pipeline.move_throttle_ms must be positive")
	}
	if c.Pipeline.ScrollThrottleMs <= 0 {
		return errors.New("pipeline.scroll_throttle_ms must be positive")
	}
	if c.Pipeline.ClickTimeToleranceMs <= 0 {
		return errors.New("pipeline.click_time_tolerance_ms must be positive")
	}
	if c.Pipeline.ClickPositionTolerancePx <= 0 {
		return errors.New("pipeline.click_position_tolerance_px must be positive")
	}
	if c.Pipeline.MaxBufferedEvents <= 0 {
		return errors.New("pipeline.max_buffered_events must be positive")
	}
	if c.Snapshot.TimeoutMs <= 0 {
		return errors.New("snapshot.timeout_ms must be positive")
	}
	if c.Storage.Enabled && strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path must not be empty when storage is enabled")
	}
	if _, err := NormalizeLogLevel(c.Logging.Level); err != nil {
		return err
	}
	if _, err := NormalizeFormat(c.Logging.Format); err != nil {
		return err
	}
	return nil
}

func (c *Config) normalize() {
	defaults := Default()

	if c.Pipeline.WindowIntervalMs <= 0 {
		c.Pipeline.WindowIntervalMs = defaults.Pipeline.WindowIntervalMs
	}
	if c.Pipeline.MoveThrottleMs <= 0 {
		c.Pipeline.MoveThrottleMs = defaults.Pipeline.MoveThrottleMs
	}
	if c.Pipeline.ScrollThrottleMs <= 0 {
		c.Pipeline.ScrollThrottleMs = defaults.Pipeline.ScrollThrottleMs
	}
	if c.Pipeline.ClickTimeToleranceMs <= 0 {
		c.Pipeline.ClickTimeToleranceMs = defaults.Pipeline.ClickTimeToleranceMs
	}
	if c.Pipeline.ClickPositionTolerancePx <= 0 {
		c.Pipeline.ClickPositionTolerancePx = defaults.Pipeline.ClickPositionTolerancePx
	}
	if c.Pipeline.MaxBufferedEvents <= 0 {
		c.Pipeline.MaxBufferedEvents = defaults.Pipeline.MaxBufferedEvents
	}
	if c.Snapshot.TimeoutMs <= 0 {
		c.Snapshot.TimeoutMs = defaults.Snapshot.TimeoutMs
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = defaults.Storage.Path
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if strings.TrimSpace(c.Logging.Format) == "" {
		c.Logging.Format = defaults.Logging.Format
	}
}

// NormalizeLogLevel validates and lowercases known logging levels.
func NormalizeLogLevel(level string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return "info", nil
	case "debug":
		return "debug", nil
	case "warn", "warning":
		return "warn", nil
	case "error":
		return "error", nil
	default:
		return "", fmt.Errorf("unsupported log level %q", level)
	}
}

// NormalizeFormat validates and canonicalizes logging format identifiers.
func NormalizeFormat(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		return "json", nil
	case "console", "text":
		return "console", nil
	default:
		return "", fmt.Errorf("unsupported log format %q", format)
	}
}
