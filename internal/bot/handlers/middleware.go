// Package handlers contains Discord slash command, component and message handlers,
// along with their registration logic and middleware.
package handlers

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/clrstaff/staffbot/internal/config"
	"github.com/clrstaff/staffbot/internal/discord"
)

// staffPermissions grant staff access on their own.
const staffPermissions = discordgo.PermissionManageServer |
	discordgo.PermissionKickMembers |
	discordgo.PermissionBanMembers

// GuildOnly creates a middleware that rejects interactions sent outside a guild.
func GuildOnly(deps HandlerDeps) discord.Middleware {
	return func(next discord.HandlerFunc) discord.HandlerFunc {
		return func(ctx context.Context, api discord.API, i *discordgo.InteractionCreate) {
			if i.GuildID == "" || i.Member == nil {
				respondEphemeral(ctx, deps, api, i, deps.Config.Messages.GuildOnly)
				return
			}
			next(ctx, api, i)
		}
	}
}

// StaffOnly creates a middleware that checks the caller is staff: Administrator,
// Manage Guild, Kick Members or Ban Members, or a protected role. If not, it sends
// the "not authorized" message and stops processing by returning early.
func StaffOnly(deps HandlerDeps) discord.Middleware {
	return func(next discord.HandlerFunc) discord.HandlerFunc {
		return func(ctx context.Context, api discord.API, i *discordgo.InteractionCreate) {
			if !isStaff(deps.Config, i.Member) {
				user := interactionUser(i)
				userID := ""
				if user != nil {
					userID = user.ID
				}
				deps.Logger.With("middleware", "StaffOnly").WarnContext(ctx, "Unauthorized access attempt",
					"user_id", userID, "guild_id", i.GuildID, "channel_id", i.ChannelID)
				respondEphemeral(ctx, deps, api, i, deps.Config.Messages.NotAuthorized)
				return
			}
			next(ctx, api, i)
		}
	}
}

func isStaff(cfg *config.Config, member *discordgo.Member) bool {
	if member == nil {
		return false
	}
	if discord.HasPermission(member.Permissions, staffPermissions) {
		return true
	}
	return hasProtectedRole(cfg, member)
}

// canPingProtected reports whether member may mention protected roles and their holders.
func canPingProtected(cfg *config.Config, member *discordgo.Member) bool {
	if member == nil {
		return false
	}
	if member.Permissions&discordgo.PermissionAdministrator != 0 {
		return true
	}
	return hasProtectedRole(cfg, member)
}

func hasProtectedRole(cfg *config.Config, member *discordgo.Member) bool {
	if member == nil {
		return false
	}
	for _, roleID := range member.Roles {
		if cfg.IsProtectedRole(roleID) {
			return true
		}
	}
	return false
}

// protectedRolesHeld returns the names of the protected roles member holds, in config order.
func protectedRolesHeld(cfg *config.Config, member *discordgo.Member) []string {
	if member == nil {
		return nil
	}
	held := make(map[string]bool, len(member.Roles))
	for _, id := range member.Roles {
		held[id] = true
	}
	var names []string
	for _, r := range cfg.Discord.ProtectedRoles {
		if held[r.ID] {
			names = append(names, r.Name)
		}
	}
	return names
}
