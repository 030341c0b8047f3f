package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"github.com/clrstaff/staffbot/internal/database"
	"github.com/clrstaff/staffbot/internal/discord"
	"github.com/clrstaff/staffbot/internal/logger"
)

const (
	escalationReason   = "Automated: repeated protected role pings"
	noticeLimiterPrune = 1024
)

// antiPing enforces that members without a protected role do not ping protected
// roles or the members holding them.
type antiPing struct {
	deps     HandlerDeps
	limiter  *noticeLimiter
	schedule func(d time.Duration, f func())
}

// NewAntiPingHandler creates the message handler that deletes messages pinging a
// protected role or holder, warns the author and escalates repeat offenders to a
// timeout.
func NewAntiPingHandler(deps HandlerDeps) discord.MessageHandlerFunc {
	return newAntiPing(deps).handle
}

func newAntiPing(deps HandlerDeps) *antiPing {
	return &antiPing{
		deps:    deps,
		limiter: newNoticeLimiter(deps.Config.AntiPing.NoticeInterval),
		schedule: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

func (a *antiPing) handle(ctx context.Context, api discord.API, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" || m.Member == nil {
		return
	}
	if len(m.MentionRoles) == 0 && len(m.Mentions) == 0 {
		return
	}

	cfg := a.deps.Config
	log := a.deps.Logger.With("handler", "anti_ping", "user_id", m.Author.ID, "channel_id", m.ChannelID)

	author := *m.Member
	author.User = m.Author
	author.GuildID = m.GuildID
	if hasProtectedRole(cfg, &author) {
		return
	}

	blocked := a.blockedRoles(ctx, api, m)
	if len(blocked) == 0 {
		return
	}
	author.Permissions = a.memberPermissions(api, m.GuildID, &author)
	if canPingProtected(cfg, &author) {
		return
	}

	log.InfoContext(ctx, "Blocking protected role ping",
		"roles", blocked, "message_id", m.ID, "content", logger.TruncateString(m.Content, 80))

	if err := api.ChannelMessageDelete(m.ChannelID, m.ID); err != nil {
		log.WarnContext(ctx, "Failed to delete message", "error", err, "message_id", m.ID)
	}
	a.sendNotice(ctx, api, m, &author)

	now := a.deps.now()
	violation := &database.PingViolation{
		GuildID:        m.GuildID,
		UserID:         m.Author.ID,
		ChannelID:      m.ChannelID,
		MessageID:      m.ID,
		ProtectedRoles: strings.Join(blocked, ","),
		CreatedAt:      now,
	}
	if err := a.deps.Store.RecordPingViolation(ctx, violation); err != nil {
		log.ErrorContext(ctx, "Failed to record ping violation", "error", err)
		return
	}
	a.escalate(ctx, api, &author, now)
}

// blockedRoles returns the protected role names the message pings, either directly
// or through a mentioned member. Only the first offending member is reported.
func (a *antiPing) blockedRoles(ctx context.Context, api discord.API, m *discordgo.MessageCreate) []string {
	cfg := a.deps.Config

	mentioned := make(map[string]bool, len(m.MentionRoles))
	for _, id := range m.MentionRoles {
		mentioned[id] = true
	}
	var blocked []string
	for _, r := range cfg.Discord.ProtectedRoles {
		if mentioned[r.ID] {
			blocked = append(blocked, r.Name)
		}
	}
	if len(blocked) > 0 {
		return blocked
	}

	for _, u := range m.Mentions {
		if u == nil || u.Bot {
			continue
		}
		member, err := lookupMember(a.deps, api, m.GuildID, u.ID)
		if err != nil {
			a.deps.Logger.DebugContext(ctx, "Skipping mentioned user without membership", "user_id", u.ID, "error", err)
			continue
		}
		if held := protectedRolesHeld(cfg, member); len(held) > 0 {
			return held[:1]
		}
	}
	return nil
}

// memberPermissions returns the member's guild-level permissions. Message events
// carry no computed permissions, so they are derived from the guild roles.
func (a *antiPing) memberPermissions(api discord.API, guildID string, member *discordgo.Member) int64 {
	if member.Permissions != 0 {
		return member.Permissions
	}
	g := lookupGuild(a.deps, api, guildID)
	if g == nil {
		return 0
	}
	if member.User != nil && g.OwnerID == member.User.ID {
		return discordgo.PermissionAll
	}
	held := make(map[string]bool, len(member.Roles))
	for _, id := range member.Roles {
		held[id] = true
	}
	var perms int64
	for _, r := range g.Roles {
		if r.ID == guildID || held[r.ID] {
			perms |= r.Permissions
		}
	}
	return perms
}

func (a *antiPing) sendNotice(ctx context.Context, api discord.API, m *discordgo.MessageCreate, author *discordgo.Member) {
	cfg := a.deps.Config
	if !a.limiter.Allow(m.Author.ID, a.deps.now()) {
		return
	}

	text := fmt.Sprintf(cfg.Messages.AntiPingNotice, displayName(author, m.Author), cfg.ProtectedRoleList())
	notice, err := api.ChannelMessageSendComplex(m.ChannelID, &discordgo.MessageSend{
		Content:         m.Author.Mention() + " " + text,
		AllowedMentions: &discordgo.MessageAllowedMentions{Users: []string{m.Author.ID}},
	})
	if err != nil {
		a.deps.Logger.WarnContext(ctx, "Failed to send anti-ping notice", "error", err, "channel_id", m.ChannelID)
		return
	}

	if ttl := cfg.AntiPing.NoticeTTL; ttl > 0 {
		channelID, noticeID := m.ChannelID, notice.ID
		a.schedule(ttl, func() {
			if err := api.ChannelMessageDelete(channelID, noticeID); err != nil && !discord.IsNotFound(err) {
				a.deps.Logger.Warn("Failed to delete anti-ping notice", "error", err, "message_id", noticeID)
			}
		})
	}
}

// escalate times the author out once their violations within the window reach the
// threshold. Members who are already timed out are left alone.
func (a *antiPing) escalate(ctx context.Context, api discord.API, author *discordgo.Member, now time.Time) {
	esc := a.deps.Config.AntiPing.Escalation
	if esc.Threshold <= 0 {
		return
	}
	log := a.deps.Logger.With("handler", "anti_ping", "user_id", author.User.ID)

	count, err := a.deps.Store.CountPingViolationsSince(ctx, author.GuildID, author.User.ID, now.Add(-esc.Window))
	if err != nil {
		log.ErrorContext(ctx, "Failed to count ping violations", "error", err)
		return
	}
	if count < esc.Threshold {
		return
	}
	if until := author.CommunicationDisabledUntil; until != nil && until.After(now) {
		return
	}

	until := now.Add(esc.Timeout)
	if err := api.GuildMemberTimeout(author.GuildID, author.User.ID, &until, discordgo.WithAuditLogReason(escalationReason)); err != nil {
		log.WarnContext(ctx, "Failed to apply automated timeout", "error", err)
		return
	}
	log.InfoContext(ctx, "Automated timeout applied", "violations", count, "until", until)

	minutes := int(esc.Timeout / time.Minute)
	sendInfractionLog(ctx, a.deps, api, infractionLog{
		Title:       "🤖 Automated Timeout",
		Description: fmt.Sprintf("%s timed out for **%d** minute(s) after repeated protected role pings.", author.User.Mention(), minutes),
		Color:       colorGold,
		Target:      author,
		Fields: []embedField{
			{Name: "Reason", Value: escalationReason},
			{Name: "Violations", Value: fmt.Sprintf("%d in the last %s", count, humanDuration(esc.Window))},
			{Name: "Until", Value: discord.Timestamp(until, "F")},
		},
	})
	recordInfraction(ctx, a.deps, &database.Infraction{
		GuildID:         author.GuildID,
		UserID:          author.User.ID,
		ModeratorID:     a.deps.botUserID(),
		Kind:            database.InfractionTimeout,
		Reason:          escalationReason,
		DurationMinutes: minutes,
		ExpiresAt:       sql.NullTime{Time: until, Valid: true},
		Automated:       true,
		CreatedAt:       now,
	})
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return fmt.Sprintf("%d hour(s)", int(d/time.Hour))
	case d >= time.Minute && d%time.Minute == 0:
		return fmt.Sprintf("%d minute(s)", int(d/time.Minute))
	default:
		return d.String()
	}
}

// noticeLimiter throttles anti-ping notices per user so a burst of pings produces
// one notice. A zero interval disables throttling.
type noticeLimiter struct {
	interval time.Duration

	mu       sync.Mutex
	limiters map[string]*noticeEntry
}

type noticeEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

func newNoticeLimiter(interval time.Duration) *noticeLimiter {
	return &noticeLimiter{interval: interval, limiters: make(map[string]*noticeEntry)}
}

// Allow reports whether a notice may be sent to userID at now.
func (l *noticeLimiter) Allow(userID string, now time.Time) bool {
	if l.interval <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.limiters) >= noticeLimiterPrune {
		for id, e := range l.limiters {
			if now.Sub(e.seen) > l.interval {
				delete(l.limiters, id)
			}
		}
	}

	e, ok := l.limiters[userID]
	if !ok {
		e = &noticeEntry{limiter: rate.NewLimiter(rate.Every(l.interval), 1)}
		l.limiters[userID] = e
	}
	e.seen = now
	return e.limiter.AllowN(now, 1)
}
