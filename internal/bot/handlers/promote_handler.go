package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/clrstaff/staffbot/internal/database"
	"github.com/clrstaff/staffbot/internal/discord"
)

const promotionDefaultReason = "N/A"

// NewPromoteHandler creates a handler for the /promote command. It announces the
// promotion in the promotions channel and records it.
func NewPromoteHandler(deps HandlerDeps) discord.HandlerFunc {
	return func(ctx context.Context, api discord.API, i *discordgo.InteractionCreate) {
		log := deps.Logger.With("handler", "promote")
		cfg := deps.Config

		if !deferEphemeral(ctx, deps, api, i) {
			return
		}

		target, err := resolveMember(deps, api, i, "member")
		if err != nil {
			if errors.Is(err, errNotMember) {
				followup(ctx, deps, api, i, "That user is not a member of this server.")
				return
			}
			log.ErrorContext(ctx, "Failed to resolve member", "error", err)
			followup(ctx, deps, api, i, "I couldn't find that member.")
			return
		}
		opts := optionsOf(i)
		newRole := opts.stringValue("new_role", "")
		if newRole == "" {
			followup(ctx, deps, api, i, "Please provide the new role title.")
			return
		}
		reason := opts.stringValue("reason", promotionDefaultReason)

		ch := textChannel(deps, api, cfg.Discord.Channels.Promotions)
		if ch == nil {
			followup(ctx, deps, api, i, "Promotions channel not found.")
			return
		}

		promoter := interactionUser(i)
		em := bigEmbed(embedOptions{
			Title: "🎉 Promotion Announcement",
			Description: fmt.Sprintf("%s has been **promoted**!\n\n**New Role:** %s\n**Reason:** %s",
				target.User.Mention(), newRole, reason),
			Color:     colorGreen,
			Author:    promoter,
			Thumbnail: avatarURL(target),
			Fields:    []embedField{{Name: "Congratulations!", Value: cfg.Messages.PromotionCongrats}},
			Image:     cfg.Discord.FooterGIF,
		}, deps.now())
		if _, err := api.ChannelMessageSendComplex(ch.ID, &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{em}}); err != nil {
			if discord.IsForbidden(err) {
				followup(ctx, deps, api, i, "I cannot send messages in the promotions channel.")
				return
			}
			log.ErrorContext(ctx, "Failed to post promotion", "error", err, "channel_id", ch.ID)
			followup(ctx, deps, api, i, fmt.Sprintf("Failed to post promotion: `%v`", err))
			return
		}

		promotion := &database.Promotion{
			GuildID:    i.GuildID,
			UserID:     target.User.ID,
			PromoterID: promoter.ID,
			NewRole:    newRole,
			Reason:     reason,
			CreatedAt:  deps.now(),
		}
		if err := deps.Store.SavePromotion(ctx, promotion); err != nil {
			log.ErrorContext(ctx, "Failed to record promotion", "error", err, "user_id", target.User.ID)
		}

		log.InfoContext(ctx, "Promotion posted", "user_id", target.User.ID, "promoter_id", promoter.ID, "new_role", newRole)
		followup(ctx, deps, api, i, fmt.Sprintf("Promotion posted for %s.", target.User.Mention()))
	}
}
