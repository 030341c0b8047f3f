package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/clrstaff/staffbot/internal/database"
	"github.com/clrstaff/staffbot/internal/discord"
)

const (
	sessionActionStart = "start"
	sessionActionStop  = "stop"
)

// NewSessionHandler creates a handler for the /session command. A session is a
// private thread off the ticket panel channel; each staff member has at most one.
func NewSessionHandler(deps HandlerDeps) discord.HandlerFunc {
	return func(ctx context.Context, api discord.API, i *discordgo.InteractionCreate) {
		if !deferEphemeral(ctx, deps, api, i) {
			return
		}

		base := textChannel(deps, api, deps.Config.Discord.Channels.TicketPanel)
		if base == nil {
			followup(ctx, deps, api, i, "Configured base channel not found for session threads.")
			return
		}

		opts := optionsOf(i)
		switch action := opts.stringValue("action", ""); action {
		case sessionActionStart:
			startSession(ctx, deps, api, i, base, opts.stringValue("topic", ""))
		case sessionActionStop:
			stopSession(ctx, deps, api, i)
		default:
			followup(ctx, deps, api, i, fmt.Sprintf("Unknown session action %q. Use start or stop.", action))
		}
	}
}

func startSession(ctx context.Context, deps HandlerDeps, api discord.API, i *discordgo.InteractionCreate, base *discordgo.Channel, topic string) {
	log := deps.Logger.With("handler", "session")
	user := interactionUser(i)

	active, err := deps.Store.GetActiveSession(ctx, i.GuildID, user.ID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load active session", "error", err, "user_id", user.ID)
		followup(ctx, deps, api, i, "Failed to start the session. Please try again later.")
		return
	}
	if active != nil {
		followup(ctx, deps, api, i, "You already have an active session.")
		return
	}

	thread, err := api.ThreadStartComplex(base.ID, &discordgo.ThreadStart{
		Name:                threadName("session", user),
		AutoArchiveDuration: deps.Config.Tickets.AutoArchiveMinutes,
		Type:                discordgo.ChannelTypeGuildPrivateThread,
		Invitable:           false,
	})
	if err != nil {
		if discord.IsForbidden(err) {
			followup(ctx, deps, api, i, privateThreadsHint)
			return
		}
		log.ErrorContext(ctx, "Failed to create session thread", "error", err, "user_id", user.ID)
		followup(ctx, deps, api, i, fmt.Sprintf("Failed to start the session: `%v`", err))
		return
	}
	if err := api.ThreadMemberAdd(thread.ID, user.ID); err != nil {
		log.WarnContext(ctx, "Failed to add user to session thread", "error", err, "thread_id", thread.ID)
	}

	shownTopic := topic
	if shownTopic == "" {
		shownTopic = "N/A"
	}
	em := bigEmbed(embedOptions{
		Title:       "Session Started",
		Description: fmt.Sprintf("%s started a session.\n**Topic:** %s", user.Mention(), shownTopic),
		Color:       colorBlurple,
		Author:      user,
	}, deps.now())
	if _, err := api.ChannelMessageSendComplex(thread.ID, &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{em}}); err != nil {
		log.WarnContext(ctx, "Failed to post session intro", "error", err, "thread_id", thread.ID)
	}

	session := &database.Session{
		GuildID:   i.GuildID,
		UserID:    user.ID,
		ThreadID:  thread.ID,
		Topic:     topic,
		StartedAt: deps.now(),
	}
	if err := deps.Store.StartSession(ctx, session); err != nil {
		if archiveErr := archiveThread(api, thread.ID); archiveErr != nil {
			log.WarnContext(ctx, "Failed to archive orphaned session thread", "error", archiveErr, "thread_id", thread.ID)
		}
		if errors.Is(err, database.ErrSessionActive) {
			followup(ctx, deps, api, i, "You already have an active session.")
			return
		}
		log.ErrorContext(ctx, "Failed to record session", "error", err, "user_id", user.ID)
		followup(ctx, deps, api, i, "Failed to start the session. Please try again later.")
		return
	}

	log.InfoContext(ctx, "Session started", "user_id", user.ID, "thread_id", thread.ID, "session_id", session.ID)
	followup(ctx, deps, api, i, "Session started: "+thread.Mention())
}

func stopSession(ctx context.Context, deps HandlerDeps, api discord.API, i *discordgo.InteractionCreate) {
	log := deps.Logger.With("handler", "session")
	user := interactionUser(i)

	active, err := deps.Store.GetActiveSession(ctx, i.GuildID, user.ID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load active session", "error", err, "user_id", user.ID)
		followup(ctx, deps, api, i, "Failed to stop the session. Please try again later.")
		return
	}
	if active == nil {
		followup(ctx, deps, api, i, "You don't have an active session.")
		return
	}

	if err := archiveThread(api, active.ThreadID); err != nil {
		log.WarnContext(ctx, "Failed to archive session thread", "error", err, "thread_id", active.ThreadID)
	}
	if err := deps.Store.EndSession(ctx, active.ID); err != nil {
		log.ErrorContext(ctx, "Failed to end session", "error", err, "session_id", active.ID)
		followup(ctx, deps, api, i, "Failed to stop the session. Please try again later.")
		return
	}

	log.InfoContext(ctx, "Session stopped", "user_id", user.ID, "session_id", active.ID)
	followup(ctx, deps, api, i, "Your session has been stopped.")
}
