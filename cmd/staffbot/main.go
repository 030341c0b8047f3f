// Package main contains the entrypoint for the Discord staff bot.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clrstaff/staffbot/internal/bot"
	"github.com/clrstaff/staffbot/internal/bot/handlers"
	"github.com/clrstaff/staffbot/internal/bot/tasks"
	"github.com/clrstaff/staffbot/internal/config"
	"github.com/clrstaff/staffbot/internal/database"
	"github.com/clrstaff/staffbot/internal/discord"
	"github.com/clrstaff/staffbot/internal/health"
	"github.com/clrstaff/staffbot/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run wires config, logger, database, Discord session, handlers, scheduler and
// health server, then blocks until shutdown. It returns the process exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	envPath := flag.String("env", ".env", "Path to an optional .env file")
	flag.Parse()

	if err := config.LoadDotEnv(*envPath); err != nil {
		slog.Error("Failed to load env file", "path", *envPath, "error", err)
		return 1
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	logger.RouteDiscordgo(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	if cfg.Discord.GuildID == "" {
		log.Warn("No guild ID configured; commands will be synced globally and may take up to an hour to appear")
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	session, err := discord.NewSession(cfg.Discord.Token, cfg.Discord.RequestTimeout, log)
	if err != nil {
		log.Error("Failed to create Discord session", "error", err)
		return 1
	}
	session.LogLevel = logger.DiscordgoLevel(cfg.Logger.Level)

	hDeps := handlers.HandlerDeps{
		Logger:    log,
		Config:    cfg,
		Store:     store,
		State:     bot.SessionState(session),
		BotUserID: bot.BotUserID(session),
	}
	tDeps := tasks.TaskDeps{
		Logger: log,
		Store:  store,
		Config: cfg,
		API:    session,
	}

	router := discord.NewRouter(log, cfg.Discord.HandlerTimeout, cfg.Messages.UnknownCommand)
	router.Use(logger.Middleware(log))

	cmdHandlers := handlers.RegisterAllCommands(hDeps)
	if err := bot.RegisterHandlers(router, log, cmdHandlers); err != nil {
		log.Error("Failed to register Discord handlers", "error", err)
		return 1
	}
	if cfg.AntiPing.Enabled {
		router.HandleMessage(handlers.NewAntiPingHandler(hDeps))
		log.Info("Anti-ping enforcement enabled", "protected_roles", len(cfg.Discord.ProtectedRoles))
	}

	detach := router.Attach(ctx, session)
	defer detach()
	session.AddHandler(bot.NewReadyHandler(log, cfg.Discord.GuildID, handlers.ApplicationCommands(cmdHandlers)))

	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	var healthServer *health.Server
	if cfg.Health.Enabled {
		healthServer = health.NewServer(log, cfg.Health.Port, store, bot.GatewayConnected(session))
	}

	app := bot.NewBot(log, cfg, session, sched, healthServer)

	log.Info("Starting bot...")
	runErr := app.Run(ctx)
	log.Info("Bot run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
