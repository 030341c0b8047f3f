package handlers

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/clrstaff/staffbot/internal/database"
	"github.com/clrstaff/staffbot/internal/discord"
)

const (
	infractionsPageSize = 10
	// Discord rejects embeds whose description exceeds 4096 characters. The
	// header line is kept out of the list budget.
	maxEmbedDescription  = 4096
	infractionsHeaderCap = 128
	maxListedReason      = 300
)

// NewInfractionsHandler creates a handler for the /infractions command, which lists
// a member's most recent recorded infractions.
func NewInfractionsHandler(deps HandlerDeps) discord.HandlerFunc {
	return func(ctx context.Context, api discord.API, i *discordgo.InteractionCreate) {
		log := deps.Logger.With("handler", "infractions")

		if !deferEphemeral(ctx, deps, api, i) {
			return
		}
		userID := optionsOf(i).userID("member")
		if userID == "" {
			followup(ctx, deps, api, i, "I couldn't find that member.")
			return
		}

		infractions, err := deps.Store.ListInfractions(ctx, i.GuildID, userID, infractionsPageSize)
		if err != nil {
			log.ErrorContext(ctx, "Failed to list infractions", "error", err, "user_id", userID)
			followup(ctx, deps, api, i, "Failed to load infractions. Please try again later.")
			return
		}

		mention := "<@" + userID + ">"
		if len(infractions) == 0 {
			followup(ctx, deps, api, i, fmt.Sprintf("No infractions recorded for %s.", mention))
			return
		}

		var target *discordgo.Member
		if resolved := i.ApplicationCommandData().Resolved; resolved != nil {
			if m := resolved.Members[userID]; m != nil {
				target = m
				if target.User == nil {
					target.User = resolved.Users[userID]
				}
			} else if u := resolved.Users[userID]; u != nil {
				target = &discordgo.Member{User: u}
			}
		}

		list, shown := formatInfractions(infractions, maxEmbedDescription-infractionsHeaderCap)
		followupEmbed(ctx, deps, api, i, bigEmbed(embedOptions{
			Title:       "Recent Infractions",
			Description: fmt.Sprintf("Showing the last %d infraction(s) for %s.\n\n%s", shown, mention, list),
			Color:       colorOrange,
			Author:      interactionUser(i),
			Thumbnail:   avatarURL(target),
		}, deps.now()))
	}
}

// formatInfractions renders infractions newest first, one entry each, until the
// next entry would exceed budget characters. It returns the text and the number
// of entries included.
func formatInfractions(infractions []*database.Infraction, budget int) (string, int) {
	var (
		b     strings.Builder
		used  int
		shown int
	)
	for _, inf := range infractions {
		var e strings.Builder
		if shown > 0 {
			e.WriteString("\n")
		}
		fmt.Fprintf(&e, "`#%d` **%s** %s", inf.ID, infractionLabel(inf.Kind), discord.Timestamp(inf.CreatedAt, "f"))
		if inf.Automated {
			e.WriteString(" (automated)")
		} else {
			fmt.Fprintf(&e, " by <@%s>", inf.ModeratorID)
		}
		if inf.DurationMinutes > 0 {
			fmt.Fprintf(&e, " for %d minute(s)", inf.DurationMinutes)
		}
		if inf.Reason != "" {
			reason := strings.ReplaceAll(inf.Reason, "\n", " ")
			if utf8.RuneCountInString(reason) > maxListedReason {
				reason = truncate(reason, maxListedReason-1) + "…"
			}
			fmt.Fprintf(&e, "\n> %s", reason)
		}

		n := utf8.RuneCountInString(e.String())
		if used+n > budget {
			break
		}
		b.WriteString(e.String())
		used += n
		shown++
	}
	return b.String(), shown
}

func infractionLabel(kind database.InfractionKind) string {
	switch kind {
	case database.InfractionWarn:
		return "Warning"
	case database.InfractionKick:
		return "Kick"
	case database.InfractionBan:
		return "Ban"
	case database.InfractionTimeout:
		return "Timeout"
	case database.InfractionClearTimeout:
		return "Timeout cleared"
	default:
		return string(kind)
	}
}
