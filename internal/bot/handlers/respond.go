package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/clrstaff/staffbot/internal/discord"
)

var errNotMember = errors.New("user is not a member of this server")

// respondEphemeral sends an immediate ephemeral reply.
func respondEphemeral(ctx context.Context, deps HandlerDeps, api discord.API, i *discordgo.InteractionCreate, content string) {
	err := api.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:         content,
			Flags:           discordgo.MessageFlagsEphemeral,
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		},
	})
	if err != nil {
		deps.Logger.ErrorContext(ctx, "Failed to send interaction response", "error", err, "interaction_id", i.ID)
	}
}

// deferEphemeral acknowledges the interaction so the handler may take longer than
// three seconds; the answer is sent later with followup.
func deferEphemeral(ctx context.Context, deps HandlerDeps, api discord.API, i *discordgo.InteractionCreate) bool {
	err := api.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		deps.Logger.ErrorContext(ctx, "Failed to defer interaction", "error", err, "interaction_id", i.ID)
		return false
	}
	return true
}

// followup sends an ephemeral follow-up message after deferEphemeral.
func followup(ctx context.Context, deps HandlerDeps, api discord.API, i *discordgo.InteractionCreate, content string) {
	_, err := api.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content:         content,
		Flags:           discordgo.MessageFlagsEphemeral,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	})
	if err != nil {
		deps.Logger.ErrorContext(ctx, "Failed to send followup message", "error", err, "interaction_id", i.ID)
	}
}

// followupEmbed sends an ephemeral follow-up carrying a single embed.
func followupEmbed(ctx context.Context, deps HandlerDeps, api discord.API, i *discordgo.InteractionCreate, em *discordgo.MessageEmbed) {
	_, err := api.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{em},
		Flags:  discordgo.MessageFlagsEphemeral,
	})
	if err != nil {
		deps.Logger.ErrorContext(ctx, "Failed to send followup embed", "error", err, "interaction_id", i.ID)
	}
}

// interactionUser returns the user who triggered the interaction, in a guild or a DM.
func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

// displayName prefers the guild nickname, then the global display name, then the username.
func displayName(member *discordgo.Member, user *discordgo.User) string {
	if member != nil && member.Nick != "" {
		return member.Nick
	}
	if user == nil && member != nil {
		user = member.User
	}
	if user == nil {
		return ""
	}
	if user.GlobalName != "" {
		return user.GlobalName
	}
	return user.Username
}

// commandOptions indexes the top-level options of a slash command by name.
type commandOptions map[string]*discordgo.ApplicationCommandInteractionDataOption

func optionsOf(i *discordgo.InteractionCreate) commandOptions {
	opts := make(commandOptions)
	for _, o := range i.ApplicationCommandData().Options {
		opts[o.Name] = o
	}
	return opts
}

func (o commandOptions) stringValue(name, def string) string {
	opt, ok := o[name]
	if !ok || opt.Type != discordgo.ApplicationCommandOptionString {
		return def
	}
	if v := strings.TrimSpace(opt.StringValue()); v != "" {
		return v
	}
	return def
}

func (o commandOptions) intValue(name string, def int64) int64 {
	opt, ok := o[name]
	if !ok || opt.Type != discordgo.ApplicationCommandOptionInteger {
		return def
	}
	return opt.IntValue()
}

func (o commandOptions) userID(name string) string {
	opt, ok := o[name]
	if !ok || opt.Type != discordgo.ApplicationCommandOptionUser {
		return ""
	}
	id, _ := opt.Value.(string)
	return id
}

// resolveMember returns the guild member selected in a user option, with its User
// populated. The interaction's resolved data is used first, then the state cache,
// then REST.
func resolveMember(deps HandlerDeps, api discord.API, i *discordgo.InteractionCreate, option string) (*discordgo.Member, error) {
	userID := optionsOf(i).userID(option)
	if userID == "" {
		return nil, fmt.Errorf("missing %q option", option)
	}

	var user *discordgo.User
	if resolved := i.ApplicationCommandData().Resolved; resolved != nil {
		user = resolved.Users[userID]
		if m, ok := resolved.Members[userID]; ok && m != nil {
			member := *m
			if member.User == nil {
				member.User = user
			}
			if member.User == nil {
				member.User = &discordgo.User{ID: userID}
			}
			member.GuildID = i.GuildID
			return &member, nil
		}
	}

	member, err := lookupMember(deps, api, i.GuildID, userID)
	if err != nil {
		if discord.IsNotFound(err) {
			return nil, errNotMember
		}
		return nil, err
	}
	if member.User == nil {
		member.User = user
	}
	return member, nil
}

func lookupMember(deps HandlerDeps, api discord.API, guildID, userID string) (*discordgo.Member, error) {
	if deps.State != nil {
		if m, err := deps.State.Member(guildID, userID); err == nil && m != nil {
			return m, nil
		}
	}
	return api.GuildMember(guildID, userID)
}

// textChannel returns the guild text channel with channelID, or nil when it does
// not exist or is not a text channel.
func textChannel(deps HandlerDeps, api discord.API, channelID string) *discordgo.Channel {
	ch := lookupChannel(deps, api, channelID)
	if ch == nil || (ch.Type != discordgo.ChannelTypeGuildText && ch.Type != discordgo.ChannelTypeGuildNews) {
		return nil
	}
	return ch
}

func lookupChannel(deps HandlerDeps, api discord.API, channelID string) *discordgo.Channel {
	if channelID == "" {
		return nil
	}
	if deps.State != nil {
		if ch, err := deps.State.Channel(channelID); err == nil && ch != nil {
			return ch
		}
	}
	ch, err := api.Channel(channelID)
	if err != nil {
		deps.Logger.Warn("Failed to fetch channel", "channel_id", channelID, "error", err)
		return nil
	}
	return ch
}

func lookupGuild(deps HandlerDeps, api discord.API, guildID string) *discordgo.Guild {
	if guildID == "" {
		return nil
	}
	if deps.State != nil {
		if g, err := deps.State.Guild(guildID); err == nil && g != nil {
			return g
		}
	}
	g, err := api.Guild(guildID)
	if err != nil {
		deps.Logger.Warn("Failed to fetch guild", "guild_id", guildID, "error", err)
		return nil
	}
	return g
}

func guildName(deps HandlerDeps, api discord.API, guildID string) string {
	if g := lookupGuild(deps, api, guildID); g != nil && g.Name != "" {
		return g.Name
	}
	return "the server"
}

// sendDM delivers a direct message. Members with closed DMs are common, so
// failures are returned for logging only.
func sendDM(api discord.API, userID, content string) error {
	ch, err := api.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("failed to open DM channel: %w", err)
	}
	if _, err := api.ChannelMessageSendComplex(ch.ID, &discordgo.MessageSend{Content: content}); err != nil {
		return fmt.Errorf("failed to send DM: %w", err)
	}
	return nil
}

// auditReason trims a reason to the 512 characters Discord allows in the audit log.
func auditReason(reason string) string {
	return truncate(reason, 512)
}

// truncate cuts s to at most maxLen characters. Discord limits count characters,
// not bytes, and a cut never splits a multibyte character.
func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen])
}
