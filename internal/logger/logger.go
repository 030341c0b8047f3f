// Package logger provides structured logging functionality for staffbot.
// It uses Go's slog package for logging with configurable levels and formats.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/clrstaff/staffbot/internal/discord"
)

// NewLogger creates a new slog Logger with the specified level and format.
// If jsonOutput is true, logs will be formatted as JSON, otherwise as text.
func NewLogger(levelStr string, jsonOutput bool) *slog.Logger {
	return newLogger(os.Stdout, levelStr, jsonOutput)
}

func newLogger(w io.Writer, levelStr string, jsonOutput bool) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(levelStr),
	}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a config level name to a slog level, defaulting to info.
func ParseLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Middleware creates a logging middleware for interaction handlers.
// It logs information about incoming interactions for debugging purposes.
func Middleware(log *slog.Logger) discord.Middleware {
	return func(next discord.HandlerFunc) discord.HandlerFunc {
		return func(ctx context.Context, api discord.API, i *discordgo.InteractionCreate) {
			startTime := time.Now()

			logEntry := log.With(
				"interaction_id", i.ID,
				"guild_id", i.GuildID,
				"channel_id", i.ChannelID,
				"user_id", interactionUserID(i),
			)

			switch i.Type {
			case discordgo.InteractionApplicationCommand:
				logEntry = logEntry.With("interaction_type", "command", "command", i.ApplicationCommandData().Name)
			case discordgo.InteractionMessageComponent:
				logEntry = logEntry.With("interaction_type", "component", "custom_id", i.MessageComponentData().CustomID)
			default:
				logEntry = logEntry.With("interaction_type", "other")
			}

			logEntry.InfoContext(ctx, "Processing interaction")

			next(ctx, api, i)

			logEntry.InfoContext(ctx, "Finished processing interaction", "duration", time.Since(startTime))
		}
	}
}

// RouteDiscordgo sends discordgo's internal log output through log.
func RouteDiscordgo(log *slog.Logger) {
	l := log.With("component", "discordgo")
	discordgo.Logger = func(msgL, caller int, format string, a ...interface{}) {
		msg := fmt.Sprintf(format, a...)
		switch msgL {
		case discordgo.LogError:
			l.Error(msg)
		case discordgo.LogWarning:
			l.Warn(msg)
		case discordgo.LogInformational:
			l.Info(msg)
		default:
			l.Debug(msg)
		}
	}
}

// DiscordgoLevel maps a config level name to the discordgo log level.
func DiscordgoLevel(levelStr string) int {
	switch levelStr {
	case "debug":
		return discordgo.LogInformational
	case "warn":
		return discordgo.LogWarning
	case "error":
		return discordgo.LogError
	default:
		return discordgo.LogWarning
	}
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// TruncateString shortens s to at most maxLen characters, marking the cut with "...".
func TruncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return string([]rune(s)[:maxLen-3]) + "..."
}
