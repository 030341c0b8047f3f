package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/bwmarrin/discordgo"

	"github.com/clrstaff/staffbot/internal/bot/handlers"
	"github.com/clrstaff/staffbot/internal/discord"
)

// RegisterHandlers registers interaction handlers with the router, wrapping each
// one in its own middleware.
func RegisterHandlers(r *discord.Router, logger *slog.Logger, registeredHandlers map[string]handlers.RegisteredHandler) error {
	if r == nil {
		return errors.New("router cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "handler_registry")

	if len(registeredHandlers) == 0 {
		log.Warn("No handlers provided for registration.")
		return nil
	}

	log.Info("Registering Discord handlers...", "count", len(registeredHandlers))

	keys := make([]string, 0, len(registeredHandlers))
	for k := range registeredHandlers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	registered := 0
	for _, key := range keys {
		regHandler := registeredHandlers[key]
		if regHandler.Handler == nil {
			log.Warn("Skipping registration for nil handler", "pattern", regHandler.Pattern)
			continue
		}

		finalHandler := discord.Chain(regHandler.Handler, regHandler.Middleware...)
		if err := r.Handle(regHandler.Type, regHandler.Pattern, finalHandler); err != nil {
			return fmt.Errorf("failed to register handler %q: %w", key, err)
		}
		registered++
		log.Debug("Registered handler", "type", regHandler.Type, "pattern", regHandler.Pattern, "middleware_count", len(regHandler.Middleware))
	}

	log.Info("Registered Discord handlers successfully", "count", registered)
	return nil
}

// SessionState returns the session's state cache for handler lookups, or nil when
// state tracking is disabled.
func SessionState(s *discordgo.Session) handlers.StateCache {
	if s == nil || s.State == nil || !s.StateEnabled {
		return nil
	}
	return s.State
}
