package handlers

import (
	"github.com/bwmarrin/discordgo"
)

// Component custom IDs. They are fixed so buttons keep working across restarts.
const (
	customIDTicketOpen  = "ticket:open"
	customIDTicketClose = "ticket:close"
)

// Option limits enforced by Discord on the command definitions.
const (
	maxBanDeleteDays  = 7
	minTimeoutMinutes = 1
	maxTimeoutMinutes = 40320 // 28 days
)

func guildCommand(name, description string, options ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommand {
	dm := false
	return &discordgo.ApplicationCommand{
		Name:         name,
		Description:  description,
		DMPermission: &dm,
		Options:      options,
	}
}

func memberOption(description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        "member",
		Description: description,
		Required:    true,
	}
}

func reasonOption(description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "reason",
		Description: description,
		MaxLength:   512,
	}
}

func ticketPanelCommand() *discordgo.ApplicationCommand {
	return guildCommand("ticketpanel", "Send the ticket panel to the configured channel.")
}

func warnCommand() *discordgo.ApplicationCommand {
	return guildCommand("warn", "Warn a member.",
		memberOption("Member to warn"),
		reasonOption("Reason"),
	)
}

func kickCommand() *discordgo.ApplicationCommand {
	return guildCommand("kick", "Kick a member.",
		memberOption("Member to kick"),
		reasonOption("Reason"),
	)
}

func banCommand() *discordgo.ApplicationCommand {
	minDays := 0.0
	return guildCommand("ban", "Ban a member.",
		memberOption("Member to ban"),
		reasonOption("Reason"),
		&discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        "delete_message_days",
			Description: "Delete x days of their messages",
			MinValue:    &minDays,
			MaxValue:    maxBanDeleteDays,
		},
	)
}

func timeoutCommand() *discordgo.ApplicationCommand {
	minMinutes := float64(minTimeoutMinutes)
	return guildCommand("timeout", "Timeout a member for X minutes.",
		memberOption("Member"),
		&discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        "minutes",
			Description: "Minutes (1-40320)",
			Required:    true,
			MinValue:    &minMinutes,
			MaxValue:    maxTimeoutMinutes,
		},
		reasonOption("Reason"),
	)
}

func clearTimeoutCommand() *discordgo.ApplicationCommand {
	return guildCommand("cleartimeout", "Remove timeout from a member.",
		memberOption("Member"),
	)
}

func infractionsCommand() *discordgo.ApplicationCommand {
	return guildCommand("infractions", "List a member's recent infractions.",
		memberOption("Member"),
	)
}

func promoteCommand() *discordgo.ApplicationCommand {
	return guildCommand("promote", "Announce a promotion.",
		memberOption("Member being promoted"),
		&discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "new_role",
			Description: "The new role title",
			Required:    true,
			MaxLength:   100,
		},
		reasonOption("Reason or notes"),
	)
}

func sessionCommand() *discordgo.ApplicationCommand {
	return guildCommand("session", "Start or stop a session (creates a private thread).",
		&discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "action",
			Description: "start or stop",
			Required:    true,
			Choices: []*discordgo.ApplicationCommandOptionChoice{
				{Name: "start", Value: sessionActionStart},
				{Name: "stop", Value: sessionActionStop},
			},
		},
		&discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "topic",
			Description: "Optional topic for the session",
			MaxLength:   200,
		},
	)
}
