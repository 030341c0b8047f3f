package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/clrstaff/staffbot/internal/database"
	"github.com/clrstaff/staffbot/internal/discord"
)

// ticketManagePermissions let a member close any ticket thread.
const ticketManagePermissions = discordgo.PermissionManageThreads |
	discordgo.PermissionManageChannels |
	discordgo.PermissionManageMessages

const privateThreadsHint = "I don't have permissions to create private threads here. " +
	"Please enable **Private Threads** for the bot role."

// NewTicketPanelHandler creates a handler for the /ticketpanel command.
// It posts the support panel with a persistent Open Ticket button.
func NewTicketPanelHandler(deps HandlerDeps) discord.HandlerFunc {
	return func(ctx context.Context, api discord.API, i *discordgo.InteractionCreate) {
		log := deps.Logger.With("handler", "ticketpanel")
		cfg := deps.Config

		if !deferEphemeral(ctx, deps, api, i) {
			return
		}

		channelID := cfg.Discord.Channels.TicketPanel
		ch := textChannel(deps, api, channelID)
		if ch == nil {
			followup(ctx, deps, api, i, fmt.Sprintf("I couldn't find the ticket panel channel (ID: %s).", channelID))
			return
		}

		em := bigEmbed(embedOptions{
			Title:       cfg.Messages.TicketPanelTitle,
			Description: cfg.Messages.TicketPanelBody,
			Color:       colorBlurple,
			Author:      interactionUser(i),
			Fields:      []embedField{{Name: "How it works", Value: cfg.Messages.TicketPanelHowTo}},
		}, deps.now())

		_, err := api.ChannelMessageSendComplex(ch.ID, &discordgo.MessageSend{
			Embeds:     []*discordgo.MessageEmbed{em},
			Components: []discordgo.MessageComponent{ticketButton("📩 Open Ticket", discordgo.PrimaryButton, customIDTicketOpen)},
		})
		if err != nil {
			if discord.IsForbidden(err) {
				followup(ctx, deps, api, i, "I cannot send messages in the panel channel.")
				return
			}
			log.ErrorContext(ctx, "Failed to send ticket panel", "error", err, "channel_id", ch.ID)
			followup(ctx, deps, api, i, fmt.Sprintf("Error sending panel: `%v`", err))
			return
		}

		log.InfoContext(ctx, "Ticket panel sent", "channel_id", ch.ID, "user_id", interactionUser(i).ID)
		followup(ctx, deps, api, i, "Successfully sent the ticket panel.")
	}
}

// NewTicketOpenHandler creates a handler for the Open Ticket button. It creates a
// private thread off the panel channel, adds the requester and records the ticket.
func NewTicketOpenHandler(deps HandlerDeps) discord.HandlerFunc {
	return func(ctx context.Context, api discord.API, i *discordgo.InteractionCreate) {
		log := deps.Logger.With("handler", "ticket_open")
		cfg := deps.Config
		user := interactionUser(i)

		if i.ChannelID != cfg.Discord.Channels.TicketPanel {
			respondEphemeral(ctx, deps, api, i, "Use the ticket panel in the configured channel to open a ticket.")
			return
		}
		if !deferEphemeral(ctx, deps, api, i) {
			return
		}

		thread, err := api.ThreadStartComplex(i.ChannelID, &discordgo.ThreadStart{
			Name:                threadName("ticket", user),
			AutoArchiveDuration: cfg.Tickets.AutoArchiveMinutes,
			Type:                discordgo.ChannelTypeGuildPrivateThread,
			Invitable:           false,
		})
		if err != nil {
			if discord.IsForbidden(err) {
				followup(ctx, deps, api, i, privateThreadsHint)
				return
			}
			log.ErrorContext(ctx, "Error creating ticket thread", "error", err, "user_id", user.ID)
			followup(ctx, deps, api, i, fmt.Sprintf("Something went wrong creating the ticket: `%v`", err))
			return
		}

		if err := api.ThreadMemberAdd(thread.ID, user.ID); err != nil {
			log.WarnContext(ctx, "Failed to add requester to ticket thread", "error", err, "thread_id", thread.ID)
		}

		em := bigEmbed(embedOptions{
			Title:       "New Ticket Opened",
			Description: fmt.Sprintf(cfg.Messages.TicketIntro, user.Mention()),
			Color:       colorBlurple,
			Author:      user,
			Fields:      []embedField{{Name: "Ticket", Value: thread.Mention()}},
		}, deps.now())
		_, err = api.ChannelMessageSendComplex(thread.ID, &discordgo.MessageSend{
			Content:    user.Mention(),
			Embeds:     []*discordgo.MessageEmbed{em},
			Components: []discordgo.MessageComponent{ticketButton("🔒 Close Ticket", discordgo.DangerButton, customIDTicketClose)},
		})
		if err != nil {
			log.ErrorContext(ctx, "Failed to post ticket intro", "error", err, "thread_id", thread.ID)
		}

		ticket := &database.Ticket{
			GuildID:   i.GuildID,
			ChannelID: i.ChannelID,
			ThreadID:  thread.ID,
			OpenerID:  user.ID,
			CreatedAt: deps.now(),
		}
		if err := deps.Store.CreateTicket(ctx, ticket); err != nil {
			log.ErrorContext(ctx, "Failed to record ticket", "error", err, "thread_id", thread.ID)
		}

		log.InfoContext(ctx, "Ticket opened", "thread_id", thread.ID, "user_id", user.ID)
		followup(ctx, deps, api, i, "Ticket created: "+thread.Mention())
	}
}

// NewTicketCloseHandler creates a handler for the Close Ticket button. Members who
// can manage threads, channels or messages may close any ticket; the thread owner
// and the member who opened the ticket may close their own.
func NewTicketCloseHandler(deps HandlerDeps) discord.HandlerFunc {
	return func(ctx context.Context, api discord.API, i *discordgo.InteractionCreate) {
		log := deps.Logger.With("handler", "ticket_close")
		user := interactionUser(i)

		thread := lookupChannel(deps, api, i.ChannelID)
		if thread == nil || !thread.IsThread() {
			respondEphemeral(ctx, deps, api, i, "This isn't a ticket thread.")
			return
		}

		ticket, err := deps.Store.GetTicketByThread(ctx, thread.ID)
		if err != nil {
			log.ErrorContext(ctx, "Failed to load ticket", "error", err, "thread_id", thread.ID)
		}
		if !canCloseTicket(i.Member, thread, ticket, user.ID) {
			respondEphemeral(ctx, deps, api, i, "You cannot close this ticket.")
			return
		}
		if !deferEphemeral(ctx, deps, api, i) {
			return
		}

		if err := archiveThread(api, thread.ID); err != nil {
			log.ErrorContext(ctx, "Ticket close failed", "error", err, "thread_id", thread.ID)
			followup(ctx, deps, api, i, fmt.Sprintf("Failed to close: `%v`", err))
			return
		}
		if ticket != nil {
			if _, err := deps.Store.CloseTicket(ctx, thread.ID, user.ID); err != nil {
				log.ErrorContext(ctx, "Failed to mark ticket closed", "error", err, "thread_id", thread.ID)
			}
		}

		log.InfoContext(ctx, "Ticket closed", "thread_id", thread.ID, "closed_by", user.ID)
		followup(ctx, deps, api, i, "Ticket closed & archived.")
	}
}

func canCloseTicket(member *discordgo.Member, thread *discordgo.Channel, ticket *database.Ticket, userID string) bool {
	if member == nil {
		return false
	}
	if discord.HasPermission(member.Permissions, ticketManagePermissions) {
		return true
	}
	if thread.OwnerID == userID {
		return true
	}
	return ticket != nil && ticket.OpenerID == userID
}

func ticketButton(label string, style discordgo.ButtonStyle, customID string) discordgo.ActionsRow {
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.Button{Label: label, Style: style, CustomID: customID},
	}}
}

// threadName builds "<prefix>-<username>" in lower case, within Discord's
// 100-character channel name limit.
func threadName(prefix string, user *discordgo.User) string {
	return truncate(strings.ToLower(prefix+"-"+user.Username), 100)
}

func archiveThread(api discord.API, threadID string) error {
	archived, locked := true, true
	_, err := api.ChannelEdit(threadID, &discordgo.ChannelEdit{Archived: &archived, Locked: &locked})
	return err
}
