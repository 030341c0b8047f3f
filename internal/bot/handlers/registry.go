package handlers

import (
	"sort"

	"github.com/bwmarrin/discordgo"

	"github.com/clrstaff/staffbot/internal/discord"
)

// RegisteredHandler represents an interaction handler with its middleware and, for
// slash commands, the definition synced to Discord.
type RegisteredHandler struct {
	Type       discord.HandlerType
	Pattern    string
	Handler    discord.HandlerFunc
	Middleware []discord.Middleware
	Command    *discordgo.ApplicationCommand
}

// RegisterAllCommands initializes and returns a map of all interaction handlers,
// keyed "/name" for slash commands and by custom ID for buttons.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredHandler {
	handlers := make(map[string]RegisteredHandler)

	staffMiddleware := []discord.Middleware{GuildOnly(deps), StaffOnly(deps)}
	guildMiddleware := []discord.Middleware{GuildOnly(deps)}

	command := func(cmd *discordgo.ApplicationCommand, h discord.HandlerFunc) {
		handlers["/"+cmd.Name] = RegisteredHandler{
			Type:       discord.HandlerTypeCommand,
			Pattern:    cmd.Name,
			Handler:    h,
			Middleware: staffMiddleware,
			Command:    cmd,
		}
	}

	command(ticketPanelCommand(), NewTicketPanelHandler(deps))
	command(warnCommand(), NewWarnHandler(deps))
	command(kickCommand(), NewKickHandler(deps))
	command(banCommand(), NewBanHandler(deps))
	command(timeoutCommand(), NewTimeoutHandler(deps))
	command(clearTimeoutCommand(), NewClearTimeoutHandler(deps))
	command(infractionsCommand(), NewInfractionsHandler(deps))
	command(promoteCommand(), NewPromoteHandler(deps))
	command(sessionCommand(), NewSessionHandler(deps))

	handlers[customIDTicketOpen] = RegisteredHandler{
		Type:       discord.HandlerTypeComponent,
		Pattern:    customIDTicketOpen,
		Handler:    NewTicketOpenHandler(deps),
		Middleware: guildMiddleware,
	}
	handlers[customIDTicketClose] = RegisteredHandler{
		Type:       discord.HandlerTypeComponent,
		Pattern:    customIDTicketClose,
		Handler:    NewTicketCloseHandler(deps),
		Middleware: guildMiddleware,
	}

	return handlers
}

// ApplicationCommands returns the slash command definitions of the registered
// handlers, sorted by name.
func ApplicationCommands(handlers map[string]RegisteredHandler) []*discordgo.ApplicationCommand {
	cmds := make([]*discordgo.ApplicationCommand, 0, len(handlers))
	for _, h := range handlers {
		if h.Type == discord.HandlerTypeCommand && h.Command != nil {
			cmds = append(cmds, h.Command)
		}
	}
	sort.Slice(cmds, func(a, b int) bool { return cmds[a].Name < cmds[b].Name })
	return cmds
}
