package database

import (
	"database/sql"
	"time"
)

// InfractionKind names a moderation action.
type InfractionKind string

// Moderation actions recorded in the infractions table.
const (
	InfractionWarn         InfractionKind = "warn"
	InfractionKick         InfractionKind = "kick"
	InfractionBan          InfractionKind = "ban"
	InfractionTimeout      InfractionKind = "timeout"
	InfractionClearTimeout InfractionKind = "clear_timeout"
)

// Valid reports whether k is a known infraction kind.
func (k InfractionKind) Valid() bool {
	switch k {
	case InfractionWarn, InfractionKick, InfractionBan, InfractionTimeout, InfractionClearTimeout:
		return true
	}
	return false
}

// Infraction is a moderation action taken against a guild member.
// Automated infractions are issued by the bot itself (anti-ping escalation).
type Infraction struct {
	ID                uint           `db:"id"`
	GuildID           string         `db:"guild_id"`
	UserID            string         `db:"user_id"`
	ModeratorID       string         `db:"moderator_id"`
	Kind              InfractionKind `db:"kind"`
	Reason            string         `db:"reason"`
	DurationMinutes   int            `db:"duration_minutes"`
	DeleteMessageDays int            `db:"delete_message_days"`
	ExpiresAt         sql.NullTime   `db:"expires_at"`
	Automated         bool           `db:"automated"`
	CreatedAt         time.Time      `db:"created_at"`
}

// Promotion records a staff promotion announcement.
type Promotion struct {
	ID         uint      `db:"id"`
	GuildID    string    `db:"guild_id"`
	UserID     string    `db:"user_id"`
	PromoterID string    `db:"promoter_id"`
	NewRole    string    `db:"new_role"`
	Reason     string    `db:"reason"`
	CreatedAt  time.Time `db:"created_at"`
}

// Ticket is a support ticket backed by a private thread.
type Ticket struct {
	ID        uint         `db:"id"`
	GuildID   string       `db:"guild_id"`
	ChannelID string       `db:"channel_id"`
	ThreadID  string       `db:"thread_id"`
	OpenerID  string       `db:"opener_id"`
	CreatedAt time.Time    `db:"created_at"`
	ClosedAt  sql.NullTime `db:"closed_at"`
	ClosedBy  string       `db:"closed_by"`
}

// Open reports whether the ticket has not been closed.
func (t *Ticket) Open() bool {
	return !t.ClosedAt.Valid
}

// Session is a staff session backed by a private thread. At most one session per
// user and guild is active (EndedAt is NULL) at any time.
type Session struct {
	ID        uint         `db:"id"`
	GuildID   string       `db:"guild_id"`
	UserID    string       `db:"user_id"`
	ThreadID  string       `db:"thread_id"`
	Topic     string       `db:"topic"`
	StartedAt time.Time    `db:"started_at"`
	EndedAt   sql.NullTime `db:"ended_at"`
}

// PingViolation records a deleted message that pinged a protected role or holder.
type PingViolation struct {
	ID             uint      `db:"id"`
	GuildID        string    `db:"guild_id"`
	UserID         string    `db:"user_id"`
	ChannelID      string    `db:"channel_id"`
	MessageID      string    `db:"message_id"`
	ProtectedRoles string    `db:"protected_roles"`
	CreatedAt      time.Time `db:"created_at"`
}
