package config

import "time"

// Default values for configuration
const (
	DefaultLogLevel = "info"
	DefaultLogJSON  = false

	DefaultGuildID               = "1377700771683893309"
	DefaultTicketPanelChannelID  = "1377728428647911434"
	DefaultInfractionsChannelID  = "1378002993567367319"
	DefaultPromotionsChannelID   = "1378002943269146796"
	DefaultDiscordRequestTimeout = 20 * time.Second
	DefaultDiscordHandlerTimeout = 30 * time.Second
	DefaultFooterGIF             = "https://media.discordapp.net/attachments/1377729047701753956/1399782056527138847/CLR_SMALLER_BANNER.gif?width=1152&height=180"

	DefaultDBPath = "staffbot.db"

	DefaultHealthEnabled = true
	DefaultHealthPort    = 8080

	DefaultAntiPingEnabled      = true
	DefaultAntiPingNoticeTTL    = 10 * time.Second
	DefaultAntiPingInterval     = 5 * time.Second
	DefaultEscalationThreshold  = 3
	DefaultEscalationWindow     = 24 * time.Hour
	DefaultEscalationTimeout    = 10 * time.Minute
	DefaultTicketArchiveMinutes = 10080 // 7 days
	DefaultSessionMaxAge        = 7 * 24 * time.Hour
)

// DefaultProtectedRoles are the SLT and ALT roles of the home guild.
var DefaultProtectedRoles = []ProtectedRole{
	{Name: "SLT", ID: "1377701315576201308"},
	{Name: "ALT", ID: "1377701319053283379"},
}

// DefaultTasks schedules use the six-field cron format (seconds first).
var DefaultTasks = map[string]TaskConfig{
	"sql_maintenance":      {Enabled: true, Schedule: "0 0 4 * * *"},
	"session_expiry":       {Enabled: true, Schedule: "0 */30 * * * *"},
	"ping_violation_prune": {Enabled: true, Schedule: "0 15 * * * *"},
}

// DefaultMessages are the user-facing strings shipped with the bot.
var DefaultMessages = MessagesConfig{
	NotAuthorized:     "You don't have permission to use this.",
	GuildOnly:         "Use this in a server.",
	UnknownCommand:    "Unknown command.",
	TicketPanelTitle:  "Support Tickets",
	TicketPanelBody:   "Need help? Click **Open Ticket** to create a private support thread.\nA staff member will assist you as soon as possible.",
	TicketPanelHowTo:  "• Private thread with you & staff\n• You can attach images and messages\n• Press 'Close Ticket' when finished",
	TicketIntro:       "Hello %s! A support ticket has been created.\n\nStaff will be with you shortly.\nUse the **Close Ticket** button when you're done.",
	AntiPingNotice:    "Hiya, %s. Please avoid pinging the **%s** role holders. Continuous violations will result in a moderation action which is automated!",
	PromotionCongrats: "Please welcome and support them in their new responsibilities.",
	DefaultReason:     "No reason provided",
}

func protectedRoleDefaults() []map[string]any {
	out := make([]map[string]any, 0, len(DefaultProtectedRoles))
	for _, r := range DefaultProtectedRoles {
		out = append(out, map[string]any{"name": r.Name, "id": r.ID})
	}
	return out
}
