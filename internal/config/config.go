// Package config provides configuration loading for errwatchd.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SERVER_PORT, AUTOFIX_ENABLED, ...)
//  2. YAML config file
//  3. Hardcoded defaults
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete errwatchd configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Watcher   WatcherConfig   `koanf:"watcher"`
	Notify    NotifyConfig    `koanf:"notify"`
	AutoFix   AutoFixConfig   `koanf:"autofix"`
	GitHub    GitHubConfig    `koanf:"github"`
	AI        AIConfig        `koanf:"ai"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds zap logger configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json or console
}

// TelemetryConfig holds OpenTelemetry configuration.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

// WatcherConfig holds log watcher configuration.
type WatcherConfig struct {
	// LogGlobs are the file path globs to watch.
	LogGlobs []string `koanf:"log_globs"`
	// FlushInterval is the buffer flush cadence for batch events.
	FlushInterval Duration `koanf:"flush_interval"`
	// TailLines caps how many trailing lines are re-read per change.
	TailLines int `koanf:"tail_lines"`
	// QueueSize bounds the per-record event channel.
	QueueSize int `koanf:"queue_size"`
	// Environment and Version are stamped into every record's context.
	Environment string `koanf:"environment"`
	Version     string `koanf:"version"`
}

// BusinessHoursConfig is the local window during which lower-urgency chat
// notifications are permitted. End is inclusive: 6..20 means 06:00 through
// 20:59, matching long-standing alerting behavior.
type BusinessHoursConfig struct {
	Start int `koanf:"start"`
	End   int `koanf:"end"`
}

// EmailConfig holds SMTP delivery settings.
type EmailConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	From     string `koanf:"from"`
	To       string `koanf:"to"`
	Username string `koanf:"username"`
	Password Secret `koanf:"password"`
}

// NotifyConfig holds notification dispatcher configuration.
type NotifyConfig struct {
	SlackWebhookURL Secret              `koanf:"slack_webhook_url"`
	SlackChannel    string              `koanf:"slack_channel"`
	WebhookURL      string              `koanf:"webhook_url"`
	Email           EmailConfig         `koanf:"email"`
	RateLimitWindow Duration            `koanf:"rate_limit_window"`
	BusinessHours   BusinessHoursConfig `koanf:"business_hours"`
}

// AutoFixConfig gates automated pull-request creation.
type AutoFixConfig struct {
	Enabled             bool    `koanf:"enabled"`
	ConfidenceThreshold float64 `koanf:"confidence_threshold"`
	MaxDailyPRs         int     `koanf:"max_daily_prs"`
}

// GitHubConfig holds issue/PR service settings.
type GitHubConfig struct {
	Token      Secret `koanf:"token"`
	Owner      string `koanf:"owner"`
	Repo       string `koanf:"repo"`
	BaseBranch string `koanf:"base_branch"`
}

// AIConfig holds analysis/fix-generation model settings.
type AIConfig struct {
	AnthropicAPIKey Secret `koanf:"anthropic_api_key"`
	AnthropicModel  string `koanf:"anthropic_model"`
	OpenAIAPIKey    Secret `koanf:"openai_api_key"`
	OpenAIModel     string `koanf:"openai_model"`
}

// applyDefaults fills zero values with defaults. The numeric constants
// (5s flush, 5m cooldown, 6..20 business hours, 0.8 confidence, 5 PRs/day,
// 100 tail lines) are behavioral-compatibility values; change with care.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3030
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "errwatchd"
	}
	if len(cfg.Watcher.LogGlobs) == 0 {
		cfg.Watcher.LogGlobs = []string{"logs/*.log"}
	}
	if cfg.Watcher.FlushInterval == 0 {
		cfg.Watcher.FlushInterval = Duration(5 * time.Second)
	}
	if cfg.Watcher.TailLines == 0 {
		cfg.Watcher.TailLines = 100
	}
	if cfg.Watcher.QueueSize == 0 {
		cfg.Watcher.QueueSize = 256
	}
	if cfg.Watcher.Environment == "" {
		cfg.Watcher.Environment = "development"
	}
	if cfg.Notify.RateLimitWindow == 0 {
		cfg.Notify.RateLimitWindow = Duration(5 * time.Minute)
	}
	if cfg.Notify.BusinessHours.Start == 0 && cfg.Notify.BusinessHours.End == 0 {
		cfg.Notify.BusinessHours = BusinessHoursConfig{Start: 6, End: 20}
	}
	if cfg.Notify.Email.Port == 0 {
		cfg.Notify.Email.Port = 587
	}
	if cfg.AutoFix.ConfidenceThreshold == 0 {
		cfg.AutoFix.ConfidenceThreshold = 0.8
	}
	if cfg.AutoFix.MaxDailyPRs == 0 {
		cfg.AutoFix.MaxDailyPRs = 5
	}
	if cfg.GitHub.BaseBranch == "" {
		cfg.GitHub.BaseBranch = "main"
	}
	if cfg.AI.AnthropicModel == "" {
		cfg.AI.AnthropicModel = "claude-3-5-sonnet-20241022"
	}
	if cfg.AI.OpenAIModel == "" {
		cfg.AI.OpenAIModel = "gpt-4o"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Telemetry.Enabled && c.Telemetry.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	if c.Watcher.FlushInterval <= 0 {
		return errors.New("watcher flush interval must be positive")
	}
	if c.Watcher.TailLines < 1 {
		return errors.New("watcher tail_lines must be at least 1")
	}
	if c.Watcher.QueueSize < 1 {
		return errors.New("watcher queue_size must be at least 1")
	}
	bh := c.Notify.BusinessHours
	if bh.Start < 0 || bh.Start > 23 || bh.End < 0 || bh.End > 23 {
		return fmt.Errorf("business hours must be within 0-23, got %d-%d", bh.Start, bh.End)
	}
	if bh.Start >= bh.End {
		return fmt.Errorf("business hours start must be before end, got %d-%d", bh.Start, bh.End)
	}
	if c.Notify.RateLimitWindow <= 0 {
		return errors.New("rate limit window must be positive")
	}
	if t := c.AutoFix.ConfidenceThreshold; t < 0 || t > 1 {
		return fmt.Errorf("autofix confidence threshold must be in [0,1], got %v", t)
	}
	if c.AutoFix.MaxDailyPRs < 0 {
		return errors.New("autofix max_daily_prs cannot be negative")
	}
	if c.AutoFix.Enabled {
		if !c.GitHub.Token.IsSet() {
			return errors.New("github token required when autofix is enabled")
		}
		if c.GitHub.Owner == "" || c.GitHub.Repo == "" {
			return errors.New("github owner and repo required when autofix is enabled")
		}
	}
	return nil
}
