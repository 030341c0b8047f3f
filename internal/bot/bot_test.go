package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/clrstaff/staffbot/internal/bot/handlers"
	"github.com/clrstaff/staffbot/internal/bot/tasks"
	"github.com/clrstaff/staffbot/internal/config"
	"github.com/clrstaff/staffbot/internal/discord"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeGateway struct {
	mu      sync.Mutex
	opened  bool
	closed  bool
	openErr error
}

func (g *fakeGateway) Open() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.opened = true
	return g.openErr
}

func (g *fakeGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

func newTestScheduler(t *testing.T, cfg *config.SchedulerConfig, taskMap map[string]tasks.ScheduledTaskFunc) *Scheduler {
	t.Helper()
	s, err := NewScheduler(discardLogger(), cfg, taskMap)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	return s
}

func TestSchedulerRegistersEnabledTasks(t *testing.T) {
	t.Parallel()

	noop := func(context.Context) error { return nil }
	cfg := &config.SchedulerConfig{Tasks: map[string]config.TaskConfig{
		"sql_maintenance":      {Enabled: true, Schedule: "0 0 4 * * *"},
		"session_expiry":       {Enabled: true, Schedule: "0 */30 * * * *"},
		"ping_violation_prune": {Enabled: false, Schedule: "0 15 * * * *"},
		"unknown_task":         {Enabled: true, Schedule: "0 0 * * * *"},
		"empty_schedule":       {Enabled: true},
		"bad_schedule":         {Enabled: true, Schedule: "not a cron"},
	}}
	taskMap := map[string]tasks.ScheduledTaskFunc{
		"sql_maintenance":      noop,
		"session_expiry":       noop,
		"ping_violation_prune": noop,
		"empty_schedule":       noop,
		"bad_schedule":         noop,
	}

	s := newTestScheduler(t, cfg, taskMap)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	got := s.Jobs()
	want := []string{"session_expiry", "sql_maintenance"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Jobs() = %v, want %v", got, want)
	}

	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start() succeeded")
	}
}

func TestSchedulerRunsTasks(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	failing := func(context.Context) error {
		runs.Add(1)
		return errors.New("task failed")
	}
	cfg := &config.SchedulerConfig{Tasks: map[string]config.TaskConfig{
		"every_second": {Enabled: true, Schedule: "* * * * * *"},
	}}

	s := newTestScheduler(t, cfg, map[string]tasks.ScheduledTaskFunc{"every_second": failing})
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	// A failing task keeps its schedule.
	if runs.Load() < 2 {
		t.Errorf("task ran %d time(s), want at least 2", runs.Load())
	}
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestBotRunLifecycle(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	b := NewBot(discardLogger(), &config.Config{}, gw, newTestScheduler(t, nil, nil), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if !gw.opened || !gw.closed {
		t.Errorf("gateway opened=%v closed=%v, want both", gw.opened, gw.closed)
	}
}

func TestBotRunGatewayFailure(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{openErr: errors.New("invalid token")}
	b := NewBot(discardLogger(), &config.Config{}, gw, newTestScheduler(t, nil, nil), nil)

	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Run() error = nil, want gateway failure")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not fail on gateway error")
	}
}

// commandAPI records command overwrites and interaction responses.
type commandAPI struct {
	discord.API
	mu        sync.Mutex
	guildID   string
	commands  []*discordgo.ApplicationCommand
	responses []string
	err       error
}

func (a *commandAPI) ApplicationCommandBulkOverwrite(_ string, guildID string, cmds []*discordgo.ApplicationCommand, _ ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	if a.err != nil {
		return nil, a.err
	}
	a.guildID = guildID
	a.commands = cmds
	return cmds, nil
}

func (a *commandAPI) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.responses = append(a.responses, resp.Data.Content)
	return nil
}

func TestSyncCommands(t *testing.T) {
	t.Parallel()

	cmds := []*discordgo.ApplicationCommand{{Name: "warn"}, {Name: "kick"}}

	api := &commandAPI{}
	syncCommands(discardLogger(), api, "app", "guild", cmds)
	if api.guildID != "guild" || len(api.commands) != 2 {
		t.Errorf("guild sync = %q/%d", api.guildID, len(api.commands))
	}

	global := &commandAPI{guildID: "unset"}
	syncCommands(discardLogger(), global, "app", "", cmds)
	if global.guildID != "" {
		t.Errorf("global sync used guild %q", global.guildID)
	}

	failing := &commandAPI{err: errors.New("401")}
	syncCommands(discardLogger(), failing, "app", "guild", cmds)
	if failing.commands != nil {
		t.Error("failed sync recorded commands")
	}
}

func TestRegisterHandlers(t *testing.T) {
	t.Parallel()

	var calls []string
	record := func(tag string) discord.HandlerFunc {
		return func(context.Context, discord.API, *discordgo.InteractionCreate) {
			calls = append(calls, tag)
		}
	}
	deny := func(discord.HandlerFunc) discord.HandlerFunc {
		return func(context.Context, discord.API, *discordgo.InteractionCreate) {
			calls = append(calls, "denied")
		}
	}

	reg := map[string]handlers.RegisteredHandler{
		"/warn":       {Type: discord.HandlerTypeCommand, Pattern: "warn", Handler: record("warn")},
		"/kick":       {Type: discord.HandlerTypeCommand, Pattern: "kick", Handler: record("kick"), Middleware: []discord.Middleware{deny}},
		"ticket:open": {Type: discord.HandlerTypeComponent, Pattern: "ticket:open", Handler: record("open")},
		"/nil":        {Type: discord.HandlerTypeCommand, Pattern: "nil"},
	}

	r := discord.NewRouter(discardLogger(), time.Second, "Unknown command.")
	if err := RegisterHandlers(r, discardLogger(), reg); err != nil {
		t.Fatalf("RegisterHandlers() error = %v", err)
	}

	api := &commandAPI{}
	dispatch := func(typ discordgo.InteractionType, data discordgo.InteractionData) {
		r.DispatchInteraction(context.Background(), api, &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{Type: typ, Data: data}})
	}
	dispatch(discordgo.InteractionApplicationCommand, discordgo.ApplicationCommandInteractionData{Name: "warn"})
	dispatch(discordgo.InteractionApplicationCommand, discordgo.ApplicationCommandInteractionData{Name: "kick"})
	dispatch(discordgo.InteractionMessageComponent, discordgo.MessageComponentInteractionData{CustomID: "ticket:open"})
	dispatch(discordgo.InteractionApplicationCommand, discordgo.ApplicationCommandInteractionData{Name: "nil"})

	want := []string{"warn", "denied", "open"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, calls[i], want[i])
		}
	}
	if len(api.responses) != 1 || api.responses[0] != "Unknown command." {
		t.Errorf("responses = %v, want the unknown command reply for /nil", api.responses)
	}

	if err := RegisterHandlers(nil, nil, reg); err == nil {
		t.Error("RegisterHandlers(nil router) error = nil")
	}
}

func TestRegisterAllCommandsWithRouter(t *testing.T) {
	t.Parallel()

	deps := handlers.HandlerDeps{Logger: discardLogger(), Config: &config.Config{Messages: config.DefaultMessages}}
	r := discord.NewRouter(discardLogger(), time.Second, "Unknown command.")
	if err := RegisterHandlers(r, deps.Logger, handlers.RegisterAllCommands(deps)); err != nil {
		t.Fatalf("RegisterHandlers() error = %v", err)
	}
	if n := len(handlers.ApplicationCommands(handlers.RegisterAllCommands(deps))); n != 9 {
		t.Errorf("ApplicationCommands() = %d, want 9", n)
	}
}
