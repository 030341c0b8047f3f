package discord

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Intents are the gateway intents the bot needs: guild structure, members for role
// checks, and message content for anti-ping enforcement.
const Intents = discordgo.IntentGuilds |
	discordgo.IntentGuildMembers |
	discordgo.IntentGuildMessages |
	discordgo.IntentGuildMessageReactions |
	discordgo.IntentMessageContent

// NewSession creates a new Discord session using the discordgo library.
// The gateway connection is not opened until Open is called.
func NewSession(token string, requestTimeout time.Duration, logger *slog.Logger) (*discordgo.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("discord bot token cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "discord_session")

	s, err := discordgo.New("Bot " + token)
	if err != nil {
		log.Error("Failed to create Discord session", "error", err)
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	s.Identify.Intents = Intents
	s.ShouldReconnectOnError = true
	s.StateEnabled = true
	if requestTimeout > 0 {
		s.Client = &http.Client{Timeout: requestTimeout}
	}

	log.Info("Discord session created successfully", "intents", int(Intents))
	return s, nil
}

// SyncCommands overwrites the bot's application commands. With a guild ID the
// commands are registered on that guild and show up immediately; without one they
// are registered globally, which can take up to an hour to propagate.
func SyncCommands(api API, appID, guildID string, commands []*discordgo.ApplicationCommand) (int, error) {
	if appID == "" {
		return 0, errors.New("application id cannot be empty")
	}
	synced, err := api.ApplicationCommandBulkOverwrite(appID, guildID, commands)
	if err != nil {
		scope := "global"
		if guildID != "" {
			scope = "guild " + guildID
		}
		return 0, fmt.Errorf("failed to sync %d command(s) to %s: %w", len(commands), scope, err)
	}
	return len(synced), nil
}

// IsForbidden reports whether err is a Discord 403 response.
func IsForbidden(err error) bool {
	return hasStatus(err, http.StatusForbidden)
}

// IsNotFound reports whether err is a Discord 404 response.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

func hasStatus(err error, status int) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Response == nil {
		return false
	}
	return restErr.Response.StatusCode == status
}

// Timestamp renders t as a Discord timestamp markdown tag. Style "F" is the long
// date/time format.
func Timestamp(t time.Time, style string) string {
	if style == "" {
		return fmt.Sprintf("<t:%d>", t.Unix())
	}
	return fmt.Sprintf("<t:%d:%s>", t.Unix(), style)
}

// HasPermission reports whether the permission bitset contains perm. Administrator
// implies every permission.
func HasPermission(perms, perm int64) bool {
	if perms&discordgo.PermissionAdministrator != 0 {
		return true
	}
	return perms&perm != 0
}
