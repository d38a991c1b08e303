// Package config loads marcus's single JSON configuration file (spec.md
// §6) via viper, with MARCUS_-prefixed environment variables overriding
// any key. The teacher loads its own (unrelated) team config straight off
// disk with yaml.v3; marcus's config instead goes through viper so the
// env-var override story named in SPEC_FULL.md §6.9 comes for free.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
)

// AIConfig is the "ai" block: whether the AI Advisor's HTTP path is
// enabled, and where to read its API key from.
type AIConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
	APIKeyEnv string `mapstructure:"api_key_env"`
}

// AssignmentConfig is the "assignment" block, mapping directly onto
// assignment.Config (spec.md §4.3).
type AssignmentConfig struct {
	StaleTTLSeconds      int `mapstructure:"stale_ttl_seconds"`
	StaleCheckSeconds    int `mapstructure:"stale_check_seconds"`
	AssignmentRetryLimit int `mapstructure:"assignment_retry_limit"`
}

// ToolDispatcherConfig is the "tool_dispatcher" block (spec.md §4.9).
type ToolDispatcherConfig struct {
	DeadlineMs int `mapstructure:"deadline_ms"`
}

// LoggingConfig is the "logging" block.
type LoggingConfig struct {
	Directory string `mapstructure:"directory"`
	Level     string `mapstructure:"level"`
}

// NotificationChannelConfig is one entry of the "notifications" block;
// its fields are a superset of what internal/notifications/external's
// three channels need, mirroring internal/types.NotifySlackConfig /
// NotifyDiscordConfig / NotifyEmailConfig but mapstructure-tagged for
// viper instead of the teacher's yaml.v3 tags.
type NotificationChannelConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	WebhookURL  string   `mapstructure:"webhook_url"`
	Channel     string   `mapstructure:"channel"`
	Username    string   `mapstructure:"username"`
	IconEmoji   string   `mapstructure:"icon_emoji"`
	AvatarURL   string   `mapstructure:"avatar_url"`
	SMTPHost    string   `mapstructure:"smtp_host"`
	SMTPPort    int      `mapstructure:"smtp_port"`
	Password    string   `mapstructure:"password"`
	From        string   `mapstructure:"from"`
	To          []string `mapstructure:"to"`
	EventTypes  []string `mapstructure:"events"`
	MinPriority int      `mapstructure:"min_priority"`
}

// DesktopNotificationConfig is the "notifications.desktop" block, backing
// internal/notify's go-toast/toast sink. It carries no webhook/SMTP
// fields since the toast is local, not a remote call.
type DesktopNotificationConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	AppID        string   `mapstructure:"app_id"`
	DashboardURL string   `mapstructure:"dashboard_url"`
	EventTypes   []string `mapstructure:"events"`
	MinPriority  int      `mapstructure:"min_priority"`
}

// NotificationsConfig is the "notifications" block.
type NotificationsConfig struct {
	Slack   NotificationChannelConfig `mapstructure:"slack"`
	Discord NotificationChannelConfig `mapstructure:"discord"`
	Email   NotificationChannelConfig `mapstructure:"email"`
	Desktop DesktopNotificationConfig `mapstructure:"desktop"`
}

// Config is the root of marcus's configuration file. ProviderConfig is
// left as a raw map and re-decoded by the caller into the concrete
// board.PlankaConfig/GitHubConfig/LinearConfig once Provider is known,
// since each adapter's shape differs.
type Config struct {
	Provider        string                 `mapstructure:"provider"`
	ProviderConfig  map[string]interface{} `mapstructure:"provider_config"`
	AI              AIConfig               `mapstructure:"ai"`
	Assignment      AssignmentConfig       `mapstructure:"assignment"`
	ToolDispatcher  ToolDispatcherConfig   `mapstructure:"tool_dispatcher"`
	Logging         LoggingConfig          `mapstructure:"logging"`
	Notifications   NotificationsConfig    `mapstructure:"notifications"`
	RequireProvider bool                   `mapstructure:"require_provider_on_start"`
}

// ErrConfig wraps any failure to load or validate configuration; cmd/marcus
// maps it to exit code 64 (spec.md §6 "Exit codes").
type ErrConfig struct{ Cause error }

func (e *ErrConfig) Error() string { return fmt.Sprintf("config: %v", e.Cause) }
func (e *ErrConfig) Unwrap() error { return e.Cause }

func defaults(v *viper.Viper) {
	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.timeout_ms", 5000)
	v.SetDefault("ai.api_key_env", "MARCUS_AI_API_KEY")
	v.SetDefault("assignment.stale_ttl_seconds", 300)
	v.SetDefault("assignment.stale_check_seconds", 30)
	v.SetDefault("assignment.assignment_retry_limit", 3)
	v.SetDefault("tool_dispatcher.deadline_ms", 30000)
	v.SetDefault("logging.directory", "./logs")
	v.SetDefault("logging.level", "info")
	v.SetDefault("notifications.slack.min_priority", 2)
	v.SetDefault("notifications.discord.min_priority", 2)
	v.SetDefault("notifications.email.min_priority", 1)
	v.SetDefault("notifications.desktop.enabled", false)
	v.SetDefault("notifications.desktop.app_id", "marcus")
	v.SetDefault("notifications.desktop.dashboard_url", "http://localhost:8080")
	v.SetDefault("notifications.desktop.min_priority", 2)
	v.SetDefault("require_provider_on_start", false)
}

// Load reads the JSON config file at path (if it exists; a missing file
// is not an error, only missing required fields are) and layers
// MARCUS_-prefixed environment variables over it.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("json")
	if path != "" {
		v.SetConfigFile(path)
	}
	defaults(v)

	v.SetEnvPrefix("MARCUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, &ErrConfig{Cause: err}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ErrConfig{Cause: err}
	}

	if err := cfg.validate(); err != nil {
		return nil, &ErrConfig{Cause: err}
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Provider {
	case "planka", "github", "linear", "":
	default:
		return fmt.Errorf("unknown provider %q: must be planka, github, or linear", c.Provider)
	}
	return nil
}
