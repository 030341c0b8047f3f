package discord

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Router dispatches gateway events to registered handlers. Application commands are
// matched by name and message components by custom ID.
type Router struct {
	logger         *slog.Logger
	timeout        time.Duration
	unknownCommand string

	mu         sync.RWMutex
	commands   map[string]HandlerFunc
	components map[string]HandlerFunc
	messages   []MessageHandlerFunc
	middleware []Middleware
}

// NewRouter creates a router. Every event runs with a context bounded by timeout.
// unknownCommand is sent ephemerally for commands that have no handler.
func NewRouter(logger *slog.Logger, timeout time.Duration, unknownCommand string) *Router {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Router{
		logger:         logger.With("component", "router"),
		timeout:        timeout,
		unknownCommand: unknownCommand,
		commands:       make(map[string]HandlerFunc),
		components:     make(map[string]HandlerFunc),
	}
}

// Use appends middleware applied to every interaction handler.
func (r *Router) Use(mw ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw...)
}

// Handle registers an interaction handler. A later registration for the same
// pattern replaces the earlier one.
func (r *Router) Handle(t HandlerType, pattern string, handler HandlerFunc) error {
	if pattern == "" {
		return fmt.Errorf("empty pattern for %s handler", t)
	}
	if handler == nil {
		return fmt.Errorf("nil handler for %s %q", t, pattern)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	switch t {
	case HandlerTypeCommand:
		r.commands[pattern] = handler
	case HandlerTypeComponent:
		r.components[pattern] = handler
	default:
		return fmt.Errorf("unsupported handler type %d", t)
	}
	return nil
}

// HandleMessage registers a message handler. All message handlers see every message.
func (r *Router) HandleMessage(handler MessageHandlerFunc) {
	if handler == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, handler)
}

// Attach subscribes the router to the session's interaction and message events.
// The returned function removes both subscriptions.
func (r *Router) Attach(ctx context.Context, s *discordgo.Session) func() {
	removeInteraction := s.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		r.DispatchInteraction(ctx, s, i)
	})
	removeMessage := s.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		r.DispatchMessage(ctx, s, m)
	})
	return func() {
		removeInteraction()
		removeMessage()
	}
}

// DispatchInteraction routes a single interaction to its handler.
func (r *Router) DispatchInteraction(ctx context.Context, api API, i *discordgo.InteractionCreate) {
	if i == nil || i.Interaction == nil {
		return
	}

	var (
		handler HandlerFunc
		kind    HandlerType
		key     string
	)

	r.mu.RLock()
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		kind = HandlerTypeCommand
		key = i.ApplicationCommandData().Name
		handler = r.commands[key]
	case discordgo.InteractionMessageComponent:
		kind = HandlerTypeComponent
		key = i.MessageComponentData().CustomID
		handler = r.components[key]
	default:
		r.mu.RUnlock()
		r.logger.Debug("Ignoring unsupported interaction type", "type", i.Type.String())
		return
	}
	mw := append([]Middleware(nil), r.middleware...)
	r.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	defer r.recoverPanic(ctx, kind.String(), key)

	if handler == nil {
		r.logger.WarnContext(ctx, "No handler registered", "type", kind.String(), "key", key)
		if kind == HandlerTypeCommand && r.unknownCommand != "" {
			err := api.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseChannelMessageWithSource,
				Data: &discordgo.InteractionResponseData{
					Content: r.unknownCommand,
					Flags:   discordgo.MessageFlagsEphemeral,
				},
			})
			if err != nil {
				r.logger.ErrorContext(ctx, "Failed to respond to unknown command", "key", key, "error", err)
			}
		}
		return
	}

	Chain(handler, mw...)(ctx, api, i)
}

// DispatchMessage fans a message out to every message handler.
func (r *Router) DispatchMessage(ctx context.Context, api API, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil {
		return
	}

	r.mu.RLock()
	handlers := append([]MessageHandlerFunc(nil), r.messages...)
	r.mu.RUnlock()

	for _, h := range handlers {
		func() {
			ctx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			defer r.recoverPanic(ctx, "message", m.ID)
			h(ctx, api, m)
		}()
	}
}

func (r *Router) recoverPanic(ctx context.Context, kind, key string) {
	if rec := recover(); rec != nil {
		r.logger.ErrorContext(ctx, "Handler panicked",
			"type", kind,
			"key", key,
			"panic", rec,
			"stack", string(debug.Stack()))
	}
}
