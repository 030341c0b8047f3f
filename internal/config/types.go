// Package config manages application configuration from environment variables,
// config files, and default values.
package config

import (
	"time"
)

// Config defines the application configuration. Values can be set via environment
// variables prefixed with BOT_ (e.g., BOT_DISCORD_TOKEN) or through config.yaml.
// DISCORD_TOKEN and PORT are honoured as well for container platforms.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Discord   DiscordConfig   `mapstructure:"discord"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Health    HealthConfig    `mapstructure:"health"`
	AntiPing  AntiPingConfig  `mapstructure:"anti_ping"`
	Tickets   TicketsConfig   `mapstructure:"tickets"`
	Sessions  SessionsConfig  `mapstructure:"sessions"`
	Messages  MessagesConfig  `mapstructure:"messages"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DiscordConfig holds the gateway credentials and guild layout the bot operates on.
type DiscordConfig struct {
	Token          string          `mapstructure:"token"           validate:"required"`
	GuildID        string          `mapstructure:"guild_id"        validate:"omitempty,numeric"`
	RequestTimeout time.Duration   `mapstructure:"request_timeout" validate:"min=1s,max=2m"`
	HandlerTimeout time.Duration   `mapstructure:"handler_timeout" validate:"min=1s,max=5m"`
	FooterGIF      string          `mapstructure:"footer_gif"      validate:"omitempty,url"`
	Channels       ChannelsConfig  `mapstructure:"channels"`
	ProtectedRoles []ProtectedRole `mapstructure:"protected_roles" validate:"dive"`
}

// ChannelsConfig lists the channels the bot posts to.
type ChannelsConfig struct {
	TicketPanel string `mapstructure:"ticket_panel" validate:"required,numeric"`
	Infractions string `mapstructure:"infractions"  validate:"required,numeric"`
	Promotions  string `mapstructure:"promotions"   validate:"required,numeric"`
}

// ProtectedRole is a senior staff role that regular members may not ping.
// Holders of a protected role also count as staff.
type ProtectedRole struct {
	Name string `mapstructure:"name" validate:"required"`
	ID   string `mapstructure:"id"   validate:"required,numeric"`
}

// DatabaseConfig holds database settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// SchedulerConfig holds the cron configuration for scheduled tasks, keyed by task name.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" validate:"dive"`
}

// TaskConfig configures a single scheduled task.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required_if=Enabled true"`
}

// HealthConfig holds settings for the HTTP health endpoint.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port" validate:"min=1,max=65535"`
}

// AntiPingConfig controls protected-role ping enforcement.
type AntiPingConfig struct {
	Enabled        bool             `mapstructure:"enabled"`
	NoticeTTL      time.Duration    `mapstructure:"notice_ttl"      validate:"min=0,max=10m"`
	NoticeInterval time.Duration    `mapstructure:"notice_interval" validate:"min=0,max=10m"`
	Escalation     EscalationConfig `mapstructure:"escalation"`
}

// EscalationConfig controls the automatic timeout for repeat offenders.
// A zero Threshold disables escalation.
type EscalationConfig struct {
	Threshold int           `mapstructure:"threshold" validate:"min=0,max=100"`
	Window    time.Duration `mapstructure:"window"    validate:"min=1m,max=720h"`
	Timeout   time.Duration `mapstructure:"timeout"   validate:"min=1m,max=672h"`
}

// TicketsConfig holds ticket thread settings.
type TicketsConfig struct {
	AutoArchiveMinutes int `mapstructure:"auto_archive_minutes" validate:"oneof=60 1440 4320 10080"`
}

// SessionsConfig holds session thread settings.
type SessionsConfig struct {
	MaxAge time.Duration `mapstructure:"max_age" validate:"min=1h,max=720h"`
}

// MessagesConfig holds user-facing bot messages.
type MessagesConfig struct {
	NotAuthorized     string `mapstructure:"not_authorized"      validate:"required"`
	GuildOnly         string `mapstructure:"guild_only"          validate:"required"`
	UnknownCommand    string `mapstructure:"unknown_command"     validate:"required"`
	TicketPanelTitle  string `mapstructure:"ticket_panel_title"  validate:"required"`
	TicketPanelBody   string `mapstructure:"ticket_panel_body"   validate:"required"`
	TicketPanelHowTo  string `mapstructure:"ticket_panel_how_to" validate:"required"`
	TicketIntro       string `mapstructure:"ticket_intro"        validate:"required"`
	AntiPingNotice    string `mapstructure:"anti_ping_notice"    validate:"required"`
	PromotionCongrats string `mapstructure:"promotion_congrats"  validate:"required"`
	DefaultReason     string `mapstructure:"default_reason"      validate:"required"`
}
