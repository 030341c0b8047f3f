// Package discord wraps the discordgo session: the REST surface used by handlers,
// interaction routing with middleware, session setup and command sync.
package discord

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
)

// API is the subset of *discordgo.Session used by the bot's handlers and tasks.
// *discordgo.Session satisfies it.
type API interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)

	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelEdit(channelID string, data *discordgo.ChannelEdit, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ThreadStartComplex(channelID string, data *discordgo.ThreadStart, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ThreadMemberAdd(threadID, memberID string, options ...discordgo.RequestOption) error
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)

	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildMemberDeleteWithReason(guildID, userID, reason string, options ...discordgo.RequestOption) error
	GuildBanCreateWithReason(guildID, userID, reason string, days int, options ...discordgo.RequestOption) error
	GuildMemberTimeout(guildID, userID string, until *time.Time, options ...discordgo.RequestOption) error

	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// HandlerType distinguishes slash commands from message components.
type HandlerType int

const (
	// HandlerTypeCommand routes application (slash) commands by name.
	HandlerTypeCommand HandlerType = iota
	// HandlerTypeComponent routes message components by custom ID.
	HandlerTypeComponent
)

func (t HandlerType) String() string {
	switch t {
	case HandlerTypeCommand:
		return "command"
	case HandlerTypeComponent:
		return "component"
	default:
		return "unknown"
	}
}

// HandlerFunc handles a single interaction.
type HandlerFunc func(ctx context.Context, api API, i *discordgo.InteractionCreate)

// MessageHandlerFunc handles a guild or direct message.
type MessageHandlerFunc func(ctx context.Context, api API, m *discordgo.MessageCreate)

// Middleware wraps a HandlerFunc.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain applies middleware so that the first one in the slice is the outermost.
func Chain(handler HandlerFunc, mw ...Middleware) HandlerFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		handler = mw[i](handler)
	}
	return handler
}
