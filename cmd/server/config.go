// Package main provides the Warroom server CLI.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/warroom/internal/models"
)

// Environment overrides. They win over the config file and flags.
const (
	envAnalysisURL = "WARROOM_ANALYSIS_URL"
	envLogLevel    = "WARROOM_LOG_LEVEL"
	envSlackURL    = "WARROOM_SLACK_WEBHOOK"
	envTeamsURL    = "WARROOM_TEAMS_WEBHOOK"
)

// Config represents the server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Room      RoomConfig      `yaml:"room"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Notify    NotifyConfig    `yaml:"notify"`
	Verbose   bool            `yaml:"-"` // set via CLI flag
}

// ServerConfig contains HTTP API settings.
type ServerConfig struct {
	HTTPAddress       string   `yaml:"http_address"`        // HTTP listen address (default: :8080)
	RateLimitPerSec   float64  `yaml:"rate_limit_per_sec"`  // per-client sustained rate (default: 50)
	RateLimitBurst    int      `yaml:"rate_limit_burst"`    // per-client burst (default: 100)
	TrustedProxies    []string `yaml:"trusted_proxies"`     // proxies whose X-Forwarded-For is honoured
	RequestTimeout    string   `yaml:"request_timeout"`     // non-streaming handler timeout (default: 30s)
	StreamMaxDuration string   `yaml:"stream_max_duration"` // SSE stream lifetime (default: 30m)
	ShutdownTimeout   string   `yaml:"shutdown_timeout"`    // graceful shutdown budget (default: 15s)
}

// MetricsConfig contains Prometheus endpoint settings.
type MetricsConfig struct {
	Disabled bool   `yaml:"disabled"`
	Address  string `yaml:"address"` // default: :9090
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error (default: info)
	Format string `yaml:"format"` // text or json (default: text)
}

// AnalysisConfig contains incident analysis settings.
type AnalysisConfig struct {
	URL        string `yaml:"url"`         // remote analyzer endpoint; empty uses rules only
	Timeout    string `yaml:"timeout"`     // remote call timeout (default: 30s)
	Cooldown   string `yaml:"cooldown"`    // remote back-off after a failure (default: 1m)
	RulesFile  string `yaml:"rules_file"`  // keyword rules; empty uses the built-in rules
	WatchRules bool   `yaml:"watch_rules"` // reload rules_file on change
	MaxActions int    `yaml:"max_actions"` // suggested actions kept per run (default: 5)
}

// RoomConfig contains live update settings.
type RoomConfig struct {
	DeliveryTimeout string `yaml:"delivery_timeout"` // per-observer send budget (default: 5s)
}

// SchedulerConfig contains background job settings.
type SchedulerConfig struct {
	MaxConcurrent int64 `yaml:"max_concurrent"` // jobs running at once (default: 64)
}

// NotifyConfig contains chat notification settings. Notifications are off
// unless a webhook is set.
type NotifyConfig struct {
	SlackWebhook string `yaml:"slack_webhook"`
	TeamsWebhook string `yaml:"teams_webhook"`
	MinSeverity  string `yaml:"min_severity"`   // lowest severity notified (default: high)
	MaxPerMinute int    `yaml:"max_per_minute"` // across all channels (default: 20)
	Timeout      string `yaml:"timeout"`        // per webhook call (default: 10s)
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Server.HTTPAddress == "" {
		c.Server.HTTPAddress = ":8080"
	}
	if c.Server.RateLimitPerSec == 0 {
		c.Server.RateLimitPerSec = 50
	}
	if c.Server.RateLimitBurst == 0 {
		c.Server.RateLimitBurst = 100
	}
	if c.Server.RequestTimeout == "" {
		c.Server.RequestTimeout = "30s"
	}
	if c.Server.StreamMaxDuration == "" {
		c.Server.StreamMaxDuration = "30m"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "15s"
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Analysis.Timeout == "" {
		c.Analysis.Timeout = "30s"
	}
	if c.Analysis.Cooldown == "" {
		c.Analysis.Cooldown = "1m"
	}
	if c.Analysis.MaxActions == 0 {
		c.Analysis.MaxActions = 5
	}
	if c.Room.DeliveryTimeout == "" {
		c.Room.DeliveryTimeout = "5s"
	}
	if c.Scheduler.MaxConcurrent == 0 {
		c.Scheduler.MaxConcurrent = 64
	}
	if c.Notify.MinSeverity == "" {
		c.Notify.MinSeverity = string(models.SeverityHigh)
	}
	if c.Notify.MaxPerMinute == 0 {
		c.Notify.MaxPerMinute = 20
	}
	if c.Notify.Timeout == "" {
		c.Notify.Timeout = "10s"
	}
}

// applyEnv applies environment overrides.
func (c *Config) applyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(envAnalysisURL)); v != "" {
		c.Analysis.URL = v
	}
	if v := strings.TrimSpace(getenv(envLogLevel)); v != "" {
		c.Log.Level = v
	}
	if v := strings.TrimSpace(getenv(envSlackURL)); v != "" {
		c.Notify.SlackWebhook = v
	}
	if v := strings.TrimSpace(getenv(envTeamsURL)); v != "" {
		c.Notify.TeamsWebhook = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.HTTPAddress == "" {
		return fmt.Errorf("server.http_address is required")
	}
	if c.Server.RateLimitPerSec < 0 {
		return fmt.Errorf("server.rate_limit_per_sec must not be negative")
	}
	if c.Server.RateLimitBurst < 0 {
		return fmt.Errorf("server.rate_limit_burst must not be negative")
	}
	durations := []struct {
		name  string
		value string
	}{
		{"server.request_timeout", c.Server.RequestTimeout},
		{"server.stream_max_duration", c.Server.StreamMaxDuration},
		{"server.shutdown_timeout", c.Server.ShutdownTimeout},
		{"analysis.timeout", c.Analysis.Timeout},
		{"analysis.cooldown", c.Analysis.Cooldown},
		{"room.delivery_timeout", c.Room.DeliveryTimeout},
		{"notify.timeout", c.Notify.Timeout},
	}
	for _, d := range durations {
		if err := validatePositiveDuration(d.name, d.value); err != nil {
			return err
		}
	}
	if !c.Metrics.Disabled && c.Metrics.Address == "" {
		return fmt.Errorf("metrics.address is required unless metrics are disabled")
	}
	if _, err := parseLogLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Analysis.MaxActions < 1 || c.Analysis.MaxActions > 5 {
		return fmt.Errorf("analysis.max_actions must be between 1 and 5")
	}
	if c.Analysis.WatchRules && c.Analysis.RulesFile == "" {
		return fmt.Errorf("analysis.watch_rules requires analysis.rules_file")
	}
	if c.Scheduler.MaxConcurrent < 1 {
		return fmt.Errorf("scheduler.max_concurrent must be positive")
	}
	if _, err := models.ParseSeverity(c.Notify.MinSeverity); err != nil {
		return fmt.Errorf("notify.min_severity: %w", err)
	}
	if c.Notify.MaxPerMinute < 1 {
		return fmt.Errorf("notify.max_per_minute must be positive")
	}
	for name, url := range map[string]string{
		"notify.slack_webhook": c.Notify.SlackWebhook,
		"notify.teams_webhook": c.Notify.TeamsWebhook,
	} {
		if url != "" && !strings.HasPrefix(url, "https://") {
			return fmt.Errorf("%s must use HTTPS", name)
		}
	}
	return nil
}

func validatePositiveDuration(name, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", name, value, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive", name)
	}
	return nil
}

// duration parses a value Validate has already checked.
func duration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// newLogger builds the process logger from the log settings.
func newLogger(cfg LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := parseLogLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
