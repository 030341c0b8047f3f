package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/clrstaff/staffbot/internal/database"
	"github.com/clrstaff/staffbot/internal/discord"
)

// infractionLog is the entry posted to the infractions channel.
type infractionLog struct {
	Title       string
	Description string
	Color       int
	Moderator   *discordgo.User
	Target      *discordgo.Member
	Fields      []embedField
}

// sendInfractionLog posts an entry to the infractions channel. A missing channel or
// a failed post is logged and does not fail the moderation action.
func sendInfractionLog(ctx context.Context, deps HandlerDeps, api discord.API, entry infractionLog) {
	log := deps.Logger.With("component", "infraction_log")

	ch := textChannel(deps, api, deps.Config.Discord.Channels.Infractions)
	if ch == nil {
		log.WarnContext(ctx, "Infractions channel not found", "channel_id", deps.Config.Discord.Channels.Infractions)
		return
	}

	em := bigEmbed(embedOptions{
		Title:       entry.Title,
		Description: entry.Description,
		Color:       entry.Color,
		Author:      entry.Moderator,
		Thumbnail:   avatarURL(entry.Target),
		Fields:      entry.Fields,
		Image:       deps.Config.Discord.FooterGIF,
	}, deps.now())
	if _, err := api.ChannelMessageSendComplex(ch.ID, &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{em}}); err != nil {
		log.ErrorContext(ctx, "Failed to send infraction log", "error", err, "channel_id", ch.ID)
	}
}

func recordInfraction(ctx context.Context, deps HandlerDeps, inf *database.Infraction) {
	if inf.CreatedAt.IsZero() {
		inf.CreatedAt = deps.now()
	}
	if err := deps.Store.SaveInfraction(ctx, inf); err != nil {
		deps.Logger.ErrorContext(ctx, "Failed to record infraction",
			"error", err, "kind", inf.Kind, "user_id", inf.UserID, "guild_id", inf.GuildID)
	}
}

// moderationTarget defers the interaction and resolves the "member" option. On
// failure the user has been told and nil is returned.
func moderationTarget(ctx context.Context, deps HandlerDeps, api discord.API, i *discordgo.InteractionCreate, handler string) *discordgo.Member {
	if !deferEphemeral(ctx, deps, api, i) {
		return nil
	}
	target, err := resolveMember(deps, api, i, "member")
	if err != nil {
		if errors.Is(err, errNotMember) {
			followup(ctx, deps, api, i, "That user is not a member of this server.")
			return nil
		}
		deps.Logger.ErrorContext(ctx, "Failed to resolve member", "handler", handler, "error", err)
		followup(ctx, deps, api, i, "I couldn't find that member.")
		return nil
	}
	return target
}

func dmTarget(ctx context.Context, deps HandlerDeps, api discord.API, target *discordgo.Member, content string) {
	if err := sendDM(api, target.User.ID, content); err != nil {
		deps.Logger.DebugContext(ctx, "Could not DM member", "user_id", target.User.ID, "error", err)
	}
}

// NewWarnHandler creates a handler for the /warn command.
func NewWarnHandler(deps HandlerDeps) discord.HandlerFunc {
	return func(ctx context.Context, api discord.API, i *discordgo.InteractionCreate) {
		target := moderationTarget(ctx, deps, api, i, "warn")
		if target == nil {
			return
		}
		moderator := interactionUser(i)
		reason := deps.Config.ReasonOrDefault(optionsOf(i).stringValue("reason", ""))

		dmTarget(ctx, deps, api, target, fmt.Sprintf("You have been **warned** in **%s**. Reason: %s",
			guildName(deps, api, i.GuildID), reason))

		sendInfractionLog(ctx, deps, api, infractionLog{
			Title:       "⚠️ Warning Issued",
			Description: target.User.Mention() + " has been warned.",
			Color:       colorOrange,
			Moderator:   moderator,
			Target:      target,
			Fields:      []embedField{{Name: "Reason", Value: reason}},
		})
		recordInfraction(ctx, deps, &database.Infraction{
			GuildID:     i.GuildID,
			UserID:      target.User.ID,
			ModeratorID: moderator.ID,
			Kind:        database.InfractionWarn,
			Reason:      reason,
		})

		deps.Logger.InfoContext(ctx, "Member warned", "user_id", target.User.ID, "moderator_id", moderator.ID)
		followup(ctx, deps, api, i, fmt.Sprintf("Warned %s.", target.User.Mention()))
	}
}

// NewKickHandler creates a handler for the /kick command. The member is messaged
// before the kick, while they still share a server with the bot.
func NewKickHandler(deps HandlerDeps) discord.HandlerFunc {
	return func(ctx context.Context, api discord.API, i *discordgo.InteractionCreate) {
		target := moderationTarget(ctx, deps, api, i, "kick")
		if target == nil {
			return
		}
		moderator := interactionUser(i)
		reason := deps.Config.ReasonOrDefault(optionsOf(i).stringValue("reason", ""))

		dmTarget(ctx, deps, api, target, fmt.Sprintf("You were **kicked** from **%s**. Reason: %s",
			guildName(deps, api, i.GuildID), reason))

		if err := api.GuildMemberDeleteWithReason(i.GuildID, target.User.ID, auditReason(reason)); err != nil {
			if discord.IsForbidden(err) {
				followup(ctx, deps, api, i, "I don't have permission to kick this member.")
				return
			}
			deps.Logger.ErrorContext(ctx, "Failed to kick member", "error", err, "user_id", target.User.ID)
			followup(ctx, deps, api, i, fmt.Sprintf("Failed to kick: `%v`", err))
			return
		}

		sendInfractionLog(ctx, deps, api, infractionLog{
			Title:       "👟 Member Kicked",
			Description: target.User.Mention() + " was kicked.",
			Color:       colorRed,
			Moderator:   moderator,
			Target:      target,
			Fields:      []embedField{{Name: "Reason", Value: reason}},
		})
		recordInfraction(ctx, deps, &database.Infraction{
			GuildID:     i.GuildID,
			UserID:      target.User.ID,
			ModeratorID: moderator.ID,
			Kind:        database.InfractionKick,
			Reason:      reason,
		})

		deps.Logger.InfoContext(ctx, "Member kicked", "user_id", target.User.ID, "moderator_id", moderator.ID)
		followup(ctx, deps, api, i, fmt.Sprintf("Kicked %s.", target.User.Mention()))
	}
}

// NewBanHandler creates a handler for the /ban command.
func NewBanHandler(deps HandlerDeps) discord.HandlerFunc {
	return func(ctx context.Context, api discord.API, i *discordgo.InteractionCreate) {
		target := moderationTarget(ctx, deps, api, i, "ban")
		if target == nil {
			return
		}
		moderator := interactionUser(i)
		opts := optionsOf(i)
		reason := deps.Config.ReasonOrDefault(opts.stringValue("reason", ""))
		days := opts.intValue("delete_message_days", 0)
		if days < 0 || days > maxBanDeleteDays {
			followup(ctx, deps, api, i, fmt.Sprintf("delete_message_days must be between 0 and %d.", maxBanDeleteDays))
			return
		}

		dmTarget(ctx, deps, api, target, fmt.Sprintf("You were **banned** from **%s**. Reason: %s",
			guildName(deps, api, i.GuildID), reason))

		if err := api.GuildBanCreateWithReason(i.GuildID, target.User.ID, auditReason(reason), int(days)); err != nil {
			if discord.IsForbidden(err) {
				followup(ctx, deps, api, i, "I don't have permission to ban this member.")
				return
			}
			deps.Logger.ErrorContext(ctx, "Failed to ban member", "error", err, "user_id", target.User.ID)
			followup(ctx, deps, api, i, fmt.Sprintf("Failed to ban: `%v`", err))
			return
		}

		sendInfractionLog(ctx, deps, api, infractionLog{
			Title:       "🔨 Member Banned",
			Description: target.User.Mention() + " was banned.",
			Color:       colorDarkRed,
			Moderator:   moderator,
			Target:      target,
			Fields: []embedField{
				{Name: "Reason", Value: reason},
				{Name: "Deleted Message Days", Value: strconv.FormatInt(days, 10)},
			},
		})
		recordInfraction(ctx, deps, &database.Infraction{
			GuildID:           i.GuildID,
			UserID:            target.User.ID,
			ModeratorID:       moderator.ID,
			Kind:              database.InfractionBan,
			Reason:            reason,
			DeleteMessageDays: int(days),
		})

		deps.Logger.InfoContext(ctx, "Member banned", "user_id", target.User.ID, "moderator_id", moderator.ID, "delete_days", days)
		followup(ctx, deps, api, i, fmt.Sprintf("Banned %s.", target.User.Mention()))
	}
}

// NewTimeoutHandler creates a handler for the /timeout command.
func NewTimeoutHandler(deps HandlerDeps) discord.HandlerFunc {
	return func(ctx context.Context, api discord.API, i *discordgo.InteractionCreate) {
		target := moderationTarget(ctx, deps, api, i, "timeout")
		if target == nil {
			return
		}
		moderator := interactionUser(i)
		opts := optionsOf(i)
		reason := deps.Config.ReasonOrDefault(opts.stringValue("reason", ""))
		minutes := opts.intValue("minutes", 0)
		if minutes < minTimeoutMinutes || minutes > maxTimeoutMinutes {
			followup(ctx, deps, api, i, fmt.Sprintf("Minutes must be between %d and %d.", minTimeoutMinutes, maxTimeoutMinutes))
			return
		}

		until := deps.now().Add(time.Duration(minutes) * time.Minute)
		if err := api.GuildMemberTimeout(i.GuildID, target.User.ID, &until, discordgo.WithAuditLogReason(auditReason(reason))); err != nil {
			if discord.IsForbidden(err) {
				followup(ctx, deps, api, i, "I don't have permission to timeout this member.")
				return
			}
			deps.Logger.ErrorContext(ctx, "Failed to timeout member", "error", err, "user_id", target.User.ID)
			followup(ctx, deps, api, i, fmt.Sprintf("Failed to timeout: `%v`", err))
			return
		}

		sendInfractionLog(ctx, deps, api, infractionLog{
			Title:       "⏳ Member Timed Out",
			Description: fmt.Sprintf("%s timed out for **%d** minute(s).", target.User.Mention(), minutes),
			Color:       colorGold,
			Moderator:   moderator,
			Target:      target,
			Fields: []embedField{
				{Name: "Reason", Value: reason},
				{Name: "Until", Value: discord.Timestamp(until, "F")},
			},
		})
		recordInfraction(ctx, deps, &database.Infraction{
			GuildID:         i.GuildID,
			UserID:          target.User.ID,
			ModeratorID:     moderator.ID,
			Kind:            database.InfractionTimeout,
			Reason:          reason,
			DurationMinutes: int(minutes),
			ExpiresAt:       sql.NullTime{Time: until, Valid: true},
		})

		deps.Logger.InfoContext(ctx, "Member timed out", "user_id", target.User.ID, "moderator_id", moderator.ID, "minutes", minutes)
		followup(ctx, deps, api, i, fmt.Sprintf("Timed out %s for %d minute(s).", target.User.Mention(), minutes))
	}
}

// NewClearTimeoutHandler creates a handler for the /cleartimeout command.
func NewClearTimeoutHandler(deps HandlerDeps) discord.HandlerFunc {
	return func(ctx context.Context, api discord.API, i *discordgo.InteractionCreate) {
		target := moderationTarget(ctx, deps, api, i, "cleartimeout")
		if target == nil {
			return
		}
		moderator := interactionUser(i)
		reason := "Cleared by " + userTag(moderator)

		if err := api.GuildMemberTimeout(i.GuildID, target.User.ID, nil, discordgo.WithAuditLogReason(auditReason(reason))); err != nil {
			if discord.IsForbidden(err) {
				followup(ctx, deps, api, i, "I don't have permission to clear timeout.")
				return
			}
			deps.Logger.ErrorContext(ctx, "Failed to clear timeout", "error", err, "user_id", target.User.ID)
			followup(ctx, deps, api, i, fmt.Sprintf("Failed to clear timeout: `%v`", err))
			return
		}

		sendInfractionLog(ctx, deps, api, infractionLog{
			Title:       "✅ Timeout Cleared",
			Description: "Timeout cleared for " + target.User.Mention() + ".",
			Color:       colorGreen,
			Moderator:   moderator,
			Target:      target,
		})
		recordInfraction(ctx, deps, &database.Infraction{
			GuildID:     i.GuildID,
			UserID:      target.User.ID,
			ModeratorID: moderator.ID,
			Kind:        database.InfractionClearTimeout,
			Reason:      reason,
		})

		deps.Logger.InfoContext(ctx, "Timeout cleared", "user_id", target.User.ID, "moderator_id", moderator.ID)
		followup(ctx, deps, api, i, fmt.Sprintf("Cleared timeout for %s.", target.User.Mention()))
	}
}
