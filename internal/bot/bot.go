// Package bot implements the core bot functionality, lifecycle management,
// and component orchestration for the staff bot.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/sync/errgroup"

	"github.com/clrstaff/staffbot/internal/config"
	"github.com/clrstaff/staffbot/internal/discord"
	"github.com/clrstaff/staffbot/internal/health"
)

// Gateway is the part of *discordgo.Session the orchestrator drives.
type Gateway interface {
	Open() error
	Close() error
}

// Bot represents the main bot application and manages its components' lifecycle.
type Bot struct {
	logger    *slog.Logger
	cfg       *config.Config
	gateway   Gateway
	scheduler *Scheduler
	health    *health.Server
}

// NewBot creates a new instance of the bot. health may be nil when the endpoint
// is disabled.
func NewBot(
	logger *slog.Logger,
	cfg *config.Config,
	gateway Gateway,
	scheduler *Scheduler,
	healthServer *health.Server,
) *Bot {
	return &Bot{
		logger:    logger.With("component", "bot_orchestrator"),
		cfg:       cfg,
		gateway:   gateway,
		scheduler: scheduler,
		health:    healthServer,
	}
}

// Run starts the bot and all its components, handling graceful shutdown on context cancellation.
// It returns an error if any component fails during startup or execution.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator...")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.logger.Info("Opening Discord gateway connection...")
		if err := b.gateway.Open(); err != nil {
			b.logger.Error("Failed to open Discord gateway", "error", err)
			return fmt.Errorf("failed to open discord gateway: %w", err)
		}

		<-gCtx.Done()
		b.logger.Info("Shutdown signal received, closing Discord gateway...")
		if err := b.gateway.Close(); err != nil {
			b.logger.Error("Error closing Discord gateway", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		b.logger.Info("Starting scheduler...")
		if err := b.scheduler.Start(gCtx); err != nil {
			b.logger.Error("Failed to start scheduler", "error", err)
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		<-gCtx.Done()
		b.logger.Info("Shutdown signal received, stopping scheduler...")

		if err := b.scheduler.Stop(); err != nil {
			b.logger.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	if b.health != nil {
		g.Go(func() error {
			if err := b.health.Run(gCtx); err != nil {
				return err
			}
			if gCtx.Err() == nil {
				b.logger.Warn("Health server stopped unexpectedly without context cancellation.")
				return errors.New("health server stopped unexpectedly")
			}
			return nil
		})
	}

	b.logger.Info("Bot orchestrator running. Waiting for shutdown signal or error...")
	err := g.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Bot orchestrator stopped gracefully.")
	return nil
}

// NewReadyHandler returns the gateway READY handler. It logs the bot identity and
// syncs the slash commands, to the configured guild when set and globally
// otherwise. READY fires again after a full reconnect; the overwrite is idempotent.
func NewReadyHandler(logger *slog.Logger, guildID string, commands []*discordgo.ApplicationCommand) func(*discordgo.Session, *discordgo.Ready) {
	log := logger.With("component", "ready")
	return func(s *discordgo.Session, r *discordgo.Ready) {
		if r.User == nil {
			log.Warn("READY event without user")
			return
		}
		log.Info("Logged in", "user", r.User.Username, "user_id", r.User.ID, "guilds", len(r.Guilds))
		appID := r.User.ID
		if r.Application != nil && r.Application.ID != "" {
			appID = r.Application.ID
		}
		syncCommands(log, s, appID, guildID, commands)
	}
}

func syncCommands(log *slog.Logger, api discord.API, appID, guildID string, commands []*discordgo.ApplicationCommand) {
	count, err := discord.SyncCommands(api, appID, guildID, commands)
	if err != nil {
		log.Error("Slash command sync failed", "error", err)
		return
	}
	if guildID != "" {
		log.Info("Synced commands to guild", "count", count, "guild_id", guildID)
		return
	}
	log.Info("Globally synced commands (may take up to an hour to appear)", "count", count)
}

// BotUserID returns a function reporting the session's own user ID once READY
// has been received.
func BotUserID(s *discordgo.Session) func() string {
	return func() string {
		s.State.RLock()
		defer s.State.RUnlock()
		if s.State.User == nil {
			return ""
		}
		return s.State.User.ID
	}
}

// GatewayConnected returns a probe reporting whether the session's websocket is up.
func GatewayConnected(s *discordgo.Session) func() bool {
	return func() bool {
		s.RLock()
		defer s.RUnlock()
		return s.DataReady
	}
}
