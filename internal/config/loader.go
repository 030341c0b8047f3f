package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrValidation wraps every configuration validation failure.
var ErrValidation = errors.New("validation error")

// LoadDotEnv loads environment variables from a .env file if it exists.
// Variables already present in the environment are not overridden.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	slog.Debug("Loaded environment file", "path", path)
	return nil
}

// LoadConfig loads and validates configuration from:
// 1. Default values
// 2. the YAML file at path (optional)
// 3. BOT_* environment variables, plus DISCORD_TOKEN and PORT
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("discord.token", "BOT_DISCORD_TOKEN", "DISCORD_TOKEN"); err != nil {
		return nil, fmt.Errorf("failed to bind discord token env: %w", err)
	}
	if err := v.BindEnv("health.port", "BOT_HEALTH_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("failed to bind port env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			// A missing file is fine: defaults plus environment may be enough.
			if !errors.Is(err, fs.ErrNotExist) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
			slog.Info("Configuration file not found, using defaults and environment", "path", path)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Discord.Token = strings.TrimSpace(cfg.Discord.Token)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against its struct tags and checks that
// message templates keep their placeholders.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	templates := []struct {
		key  string
		text string
		want int
	}{
		{"messages.anti_ping_notice", c.Messages.AntiPingNotice, 2},
		{"messages.ticket_intro", c.Messages.TicketIntro, 1},
	}
	for _, tpl := range templates {
		if got := countPlaceholders(tpl.text); got != tpl.want {
			return fmt.Errorf("%w: %s must contain exactly %d %%s placeholder(s), found %d",
				ErrValidation, tpl.key, tpl.want, got)
		}
	}
	return nil
}

// countPlaceholders counts the %s verbs in a message template. Any other verb
// makes the template invalid and counts as -1; "%%" is a literal percent sign.
func countPlaceholders(tpl string) int {
	count := 0
	for i := 0; i < len(tpl); i++ {
		if tpl[i] != '%' {
			continue
		}
		if i+1 >= len(tpl) {
			return -1
		}
		i++
		switch tpl[i] {
		case '%':
		case 's':
			count++
		default:
			return -1
		}
	}
	return count
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", DefaultLogLevel)
	v.SetDefault("logger.json", DefaultLogJSON)

	v.SetDefault("discord.token", "")
	v.SetDefault("discord.guild_id", DefaultGuildID)
	v.SetDefault("discord.request_timeout", DefaultDiscordRequestTimeout)
	v.SetDefault("discord.handler_timeout", DefaultDiscordHandlerTimeout)
	v.SetDefault("discord.footer_gif", DefaultFooterGIF)
	v.SetDefault("discord.channels.ticket_panel", DefaultTicketPanelChannelID)
	v.SetDefault("discord.channels.infractions", DefaultInfractionsChannelID)
	v.SetDefault("discord.channels.promotions", DefaultPromotionsChannelID)
	v.SetDefault("discord.protected_roles", protectedRoleDefaults())

	v.SetDefault("database.path", DefaultDBPath)

	for name, task := range DefaultTasks {
		v.SetDefault("scheduler.tasks."+name+".enabled", task.Enabled)
		v.SetDefault("scheduler.tasks."+name+".schedule", task.Schedule)
	}

	v.SetDefault("health.enabled", DefaultHealthEnabled)
	v.SetDefault("health.port", DefaultHealthPort)

	v.SetDefault("anti_ping.enabled", DefaultAntiPingEnabled)
	v.SetDefault("anti_ping.notice_ttl", DefaultAntiPingNoticeTTL)
	v.SetDefault("anti_ping.notice_interval", DefaultAntiPingInterval)
	v.SetDefault("anti_ping.escalation.threshold", DefaultEscalationThreshold)
	v.SetDefault("anti_ping.escalation.window", DefaultEscalationWindow)
	v.SetDefault("anti_ping.escalation.timeout", DefaultEscalationTimeout)

	v.SetDefault("tickets.auto_archive_minutes", DefaultTicketArchiveMinutes)
	v.SetDefault("sessions.max_age", DefaultSessionMaxAge)

	v.SetDefault("messages.not_authorized", DefaultMessages.NotAuthorized)
	v.SetDefault("messages.guild_only", DefaultMessages.GuildOnly)
	v.SetDefault("messages.unknown_command", DefaultMessages.UnknownCommand)
	v.SetDefault("messages.ticket_panel_title", DefaultMessages.TicketPanelTitle)
	v.SetDefault("messages.ticket_panel_body", DefaultMessages.TicketPanelBody)
	v.SetDefault("messages.ticket_panel_how_to", DefaultMessages.TicketPanelHowTo)
	v.SetDefault("messages.ticket_intro", DefaultMessages.TicketIntro)
	v.SetDefault("messages.anti_ping_notice", DefaultMessages.AntiPingNotice)
	v.SetDefault("messages.promotion_congrats", DefaultMessages.PromotionCongrats)
	v.SetDefault("messages.default_reason", DefaultMessages.DefaultReason)
}
