package handlers

import (
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/clrstaff/staffbot/internal/config"
	"github.com/clrstaff/staffbot/internal/database"
)

// StateCache is the read side of the gateway state cache. *discordgo.State satisfies it.
// Lookups fall back to REST calls when the cache misses.
type StateCache interface {
	Guild(guildID string) (*discordgo.Guild, error)
	Channel(channelID string) (*discordgo.Channel, error)
	Member(guildID, userID string) (*discordgo.Member, error)
}

// HandlerDeps provides dependencies for Discord command, component and message handlers.
type HandlerDeps struct {
	Logger *slog.Logger
	Config *config.Config
	Store  database.Store
	// State is optional; nil means every lookup goes through REST.
	State StateCache
	// Now is optional; it defaults to time.Now in UTC.
	Now func() time.Time
	// BotUserID returns the bot's own user ID once the gateway is ready. It is
	// recorded as the moderator of automated infractions.
	BotUserID func() string
}

// automatedModeratorID stands in for the bot before its user ID is known.
const automatedModeratorID = "0"

func (d HandlerDeps) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d HandlerDeps) botUserID() string {
	if d.BotUserID != nil {
		if id := d.BotUserID(); id != "" {
			return id
		}
	}
	return automatedModeratorID
}
