package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrSessionActive is returned by StartSession when the user already has an open session.
var ErrSessionActive = errors.New("session already active")

const (
	defaultInfractionLimit = 10
	maxInfractionLimit     = 25
)

// Store defines the interface for database operations.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error

	// SaveInfraction inserts a moderation record and sets its ID.
	SaveInfraction(ctx context.Context, infraction *Infraction) error

	// ListInfractions returns a member's most recent infractions, newest first.
	ListInfractions(ctx context.Context, guildID, userID string, limit int) ([]*Infraction, error)

	// SavePromotion inserts a promotion record and sets its ID.
	SavePromotion(ctx context.Context, promotion *Promotion) error

	// CreateTicket inserts an open ticket for a newly created thread.
	CreateTicket(ctx context.Context, ticket *Ticket) error

	// GetTicketByThread returns the ticket for a thread. Returns nil, nil if not found.
	GetTicketByThread(ctx context.Context, threadID string) (*Ticket, error)

	// CloseTicket marks the ticket for threadID closed. It reports whether an open
	// ticket was closed; closing an unknown or closed ticket is not an error.
	CloseTicket(ctx context.Context, threadID, closedBy string) (bool, error)

	// StartSession inserts a new active session, or returns ErrSessionActive.
	StartSession(ctx context.Context, session *Session) error

	// GetActiveSession returns the user's open session. Returns nil, nil if none.
	GetActiveSession(ctx context.Context, guildID, userID string) (*Session, error)

	// EndSession marks a session ended. Ending an ended session is a no-op.
	EndSession(ctx context.Context, sessionID uint) error

	// ListSessionsStartedBefore returns open sessions that started before t.
	ListSessionsStartedBefore(ctx context.Context, t time.Time) ([]*Session, error)

	// RecordPingViolation inserts an anti-ping violation.
	RecordPingViolation(ctx context.Context, violation *PingViolation) error

	// CountPingViolationsSince counts a member's violations at or after since.
	CountPingViolationsSince(ctx context.Context, guildID, userID string, since time.Time) (int, error)

	// DeletePingViolationsBefore deletes violations older than t and returns how many.
	DeletePingViolationsBefore(ctx context.Context, t time.Time) (int64, error)
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	// VACUUM must run outside a transaction in SQLite.
	if _, err := s.db.ExecContext(ctx, "VACUUM;"); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
			return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)
		}
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize;"); err != nil {
		s.logger.WarnContext(ctx, "PRAGMA optimize failed", "error", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	return nil
}

// withTx runs fn in a transaction, committing on success and rolling back otherwise.
func (s *sqlxStore) withTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction", "operation", op, "error", err)
		return fmt.Errorf("failed to begin transaction for %s: %w", op, err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "operation", op, "error", rollbackErr)
			}
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction", "operation", op, "error", err)
		return fmt.Errorf("failed to commit transaction for %s: %w", op, err)
	}
	tx = nil
	return nil
}

func insertID(result sql.Result) (uint, error) {
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	//nolint:gosec // row ids are positive
	return uint(id), nil
}

// SaveInfraction inserts a moderation record.
func (s *sqlxStore) SaveInfraction(ctx context.Context, infraction *Infraction) error {
	if infraction == nil {
		return errors.New("cannot save nil infraction")
	}
	if infraction.GuildID == "" || infraction.UserID == "" || infraction.ModeratorID == "" {
		return errors.New("infraction must have guild_id, user_id and moderator_id")
	}
	if !infraction.Kind.Valid() {
		return fmt.Errorf("invalid infraction kind %q", infraction.Kind)
	}
	if infraction.CreatedAt.IsZero() {
		infraction.CreatedAt = s.now()
	}

	query := `
        INSERT INTO infractions (guild_id, user_id, moderator_id, kind, reason, duration_minutes,
                                 delete_message_days, expires_at, automated, created_at)
        VALUES (:guild_id, :user_id, :moderator_id, :kind, :reason, :duration_minutes,
                :delete_message_days, :expires_at, :automated, :created_at);
    `

	return s.withTx(ctx, "save_infraction", func(tx *sqlx.Tx) error {
		result, err := tx.NamedExecContext(ctx, query, infraction)
		if err != nil {
			s.logger.ErrorContext(ctx, "Error saving infraction",
				"guild_id", infraction.GuildID, "user_id", infraction.UserID, "kind", infraction.Kind, "error", err)
			return fmt.Errorf("failed to save infraction (user %s, kind %s): %w", infraction.UserID, infraction.Kind, err)
		}
		if id, err := insertID(result); err == nil {
			infraction.ID = id
		} else {
			s.logger.WarnContext(ctx, "Could not retrieve last insert ID after saving infraction", "error", err)
		}
		s.logger.DebugContext(ctx, "Infraction saved",
			"infraction_id", infraction.ID, "user_id", infraction.UserID, "kind", infraction.Kind)
		return nil
	})
}

// ListInfractions returns a member's most recent infractions, newest first.
func (s *sqlxStore) ListInfractions(ctx context.Context, guildID, userID string, limit int) ([]*Infraction, error) {
	if guildID == "" || userID == "" {
		return nil, errors.New("guild_id and user_id cannot be empty")
	}
	if limit <= 0 {
		limit = defaultInfractionLimit
	} else if limit > maxInfractionLimit {
		limit = maxInfractionLimit
	}

	var infractions []*Infraction
	query := `
        SELECT id, guild_id, user_id, moderator_id, kind, reason, duration_minutes,
               delete_message_days, expires_at, automated, created_at
        FROM infractions
        WHERE guild_id = ? AND user_id = ?
        ORDER BY created_at DESC, id DESC
        LIMIT ?;
    `
	if err := s.db.SelectContext(ctx, &infractions, query, guildID, userID, limit); err != nil {
		s.logger.ErrorContext(ctx, "Error listing infractions", "guild_id", guildID, "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to list infractions for user %s: %w", userID, err)
	}
	return infractions, nil
}

// SavePromotion inserts a promotion record.
func (s *sqlxStore) SavePromotion(ctx context.Context, promotion *Promotion) error {
	if promotion == nil {
		return errors.New("cannot save nil promotion")
	}
	if promotion.GuildID == "" || promotion.UserID == "" || promotion.PromoterID == "" {
		return errors.New("promotion must have guild_id, user_id and promoter_id")
	}
	if promotion.NewRole == "" {
		return errors.New("promotion must have a new_role")
	}
	if promotion.CreatedAt.IsZero() {
		promotion.CreatedAt = s.now()
	}

	query := `
        INSERT INTO promotions (guild_id, user_id, promoter_id, new_role, reason, created_at)
        VALUES (:guild_id, :user_id, :promoter_id, :new_role, :reason, :created_at);
    `
	return s.withTx(ctx, "save_promotion", func(tx *sqlx.Tx) error {
		result, err := tx.NamedExecContext(ctx, query, promotion)
		if err != nil {
			s.logger.ErrorContext(ctx, "Error saving promotion", "user_id", promotion.UserID, "error", err)
			return fmt.Errorf("failed to save promotion for user %s: %w", promotion.UserID, err)
		}
		if id, err := insertID(result); err == nil {
			promotion.ID = id
		}
		return nil
	})
}

// CreateTicket inserts an open ticket.
func (s *sqlxStore) CreateTicket(ctx context.Context, ticket *Ticket) error {
	if ticket == nil {
		return errors.New("cannot save nil ticket")
	}
	if ticket.GuildID == "" || ticket.ThreadID == "" || ticket.OpenerID == "" {
		return errors.New("ticket must have guild_id, thread_id and opener_id")
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = s.now()
	}

	query := `
        INSERT INTO tickets (guild_id, channel_id, thread_id, opener_id, created_at, closed_at, closed_by)
        VALUES (:guild_id, :channel_id, :thread_id, :opener_id, :created_at, :closed_at, :closed_by);
    `
	return s.withTx(ctx, "create_ticket", func(tx *sqlx.Tx) error {
		result, err := tx.NamedExecContext(ctx, query, ticket)
		if err != nil {
			s.logger.ErrorContext(ctx, "Error creating ticket", "thread_id", ticket.ThreadID, "error", err)
			return fmt.Errorf("failed to create ticket for thread %s: %w", ticket.ThreadID, err)
		}
		if id, err := insertID(result); err == nil {
			ticket.ID = id
		}
		return nil
	})
}

// GetTicketByThread returns the ticket for a thread, or nil when none exists.
func (s *sqlxStore) GetTicketByThread(ctx context.Context, threadID string) (*Ticket, error) {
	if threadID == "" {
		return nil, errors.New("thread_id cannot be empty")
	}

	var ticket Ticket
	query := `
        SELECT id, guild_id, channel_id, thread_id, opener_id, created_at, closed_at, closed_by
        FROM tickets
        WHERE thread_id = ?;
    `
	if err := s.db.GetContext(ctx, &ticket, query, threadID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ticket for thread %s: %w", threadID, err)
	}
	return &ticket, nil
}

// CloseTicket marks an open ticket closed.
func (s *sqlxStore) CloseTicket(ctx context.Context, threadID, closedBy string) (bool, error) {
	if threadID == "" {
		return false, errors.New("thread_id cannot be empty")
	}

	var closed bool
	err := s.withTx(ctx, "close_ticket", func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE tickets SET closed_at = ?, closed_by = ? WHERE thread_id = ? AND closed_at IS NULL;`,
			s.now(), closedBy, threadID)
		if err != nil {
			return fmt.Errorf("failed to close ticket for thread %s: %w", threadID, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected closing ticket %s: %w", threadID, err)
		}
		closed = affected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return closed, nil
}

// StartSession inserts a new active session.
func (s *sqlxStore) StartSession(ctx context.Context, session *Session) error {
	if session == nil {
		return errors.New("cannot save nil session")
	}
	if session.GuildID == "" || session.UserID == "" || session.ThreadID == "" {
		return errors.New("session must have guild_id, user_id and thread_id")
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = s.now()
	}

	return s.withTx(ctx, "start_session", func(tx *sqlx.Tx) error {
		var active int
		if err := tx.GetContext(ctx, &active,
			`SELECT COUNT(*) FROM sessions WHERE guild_id = ? AND user_id = ? AND ended_at IS NULL;`,
			session.GuildID, session.UserID); err != nil {
			return fmt.Errorf("failed to check active session for user %s: %w", session.UserID, err)
		}
		if active > 0 {
			return ErrSessionActive
		}

		result, err := tx.NamedExecContext(ctx, `
            INSERT INTO sessions (guild_id, user_id, thread_id, topic, started_at, ended_at)
            VALUES (:guild_id, :user_id, :thread_id, :topic, :started_at, NULL);
        `, session)
		if err != nil {
			s.logger.ErrorContext(ctx, "Error starting session", "user_id", session.UserID, "error", err)
			return fmt.Errorf("failed to start session for user %s: %w", session.UserID, err)
		}
		if id, err := insertID(result); err == nil {
			session.ID = id
		}
		return nil
	})
}

// GetActiveSession returns the user's open session, or nil when none exists.
func (s *sqlxStore) GetActiveSession(ctx context.Context, guildID, userID string) (*Session, error) {
	if guildID == "" || userID == "" {
		return nil, errors.New("guild_id and user_id cannot be empty")
	}

	var session Session
	query := `
        SELECT id, guild_id, user_id, thread_id, topic, started_at, ended_at
        FROM sessions
        WHERE guild_id = ? AND user_id = ? AND ended_at IS NULL
        LIMIT 1;
    `
	if err := s.db.GetContext(ctx, &session, query, guildID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active session for user %s: %w", userID, err)
	}
	return &session, nil
}

// EndSession marks a session ended.
func (s *sqlxStore) EndSession(ctx context.Context, sessionID uint) error {
	if sessionID == 0 {
		return errors.New("session id cannot be zero")
	}
	return s.withTx(ctx, "end_session", func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL;`,
			s.now(), sessionID); err != nil {
			return fmt.Errorf("failed to end session %d: %w", sessionID, err)
		}
		return nil
	})
}

// ListSessionsStartedBefore returns open sessions that started before t.
func (s *sqlxStore) ListSessionsStartedBefore(ctx context.Context, t time.Time) ([]*Session, error) {
	var sessions []*Session
	query := `
        SELECT id, guild_id, user_id, thread_id, topic, started_at, ended_at
        FROM sessions
        WHERE ended_at IS NULL AND started_at < ?
        ORDER BY started_at ASC;
    `
	if err := s.db.SelectContext(ctx, &sessions, query, t.UTC()); err != nil {
		return nil, fmt.Errorf("failed to list stale sessions: %w", err)
	}
	return sessions, nil
}

// RecordPingViolation inserts an anti-ping violation.
func (s *sqlxStore) RecordPingViolation(ctx context.Context, violation *PingViolation) error {
	if violation == nil {
		return errors.New("cannot save nil ping violation")
	}
	if violation.GuildID == "" || violation.UserID == "" {
		return errors.New("ping violation must have guild_id and user_id")
	}
	if violation.CreatedAt.IsZero() {
		violation.CreatedAt = s.now()
	}

	query := `
        INSERT INTO ping_violations (guild_id, user_id, channel_id, message_id, protected_roles, created_at)
        VALUES (:guild_id, :user_id, :channel_id, :message_id, :protected_roles, :created_at);
    `
	return s.withTx(ctx, "record_ping_violation", func(tx *sqlx.Tx) error {
		result, err := tx.NamedExecContext(ctx, query, violation)
		if err != nil {
			return fmt.Errorf("failed to record ping violation for user %s: %w", violation.UserID, err)
		}
		if id, err := insertID(result); err == nil {
			violation.ID = id
		}
		return nil
	})
}

// CountPingViolationsSince counts a member's violations at or after since.
func (s *sqlxStore) CountPingViolationsSince(ctx context.Context, guildID, userID string, since time.Time) (int, error) {
	var count int
	query := `
        SELECT COUNT(*) FROM ping_violations
        WHERE guild_id = ? AND user_id = ? AND created_at >= ?;
    `
	if err := s.db.GetContext(ctx, &count, query, guildID, userID, since.UTC()); err != nil {
		return 0, fmt.Errorf("failed to count ping violations for user %s: %w", userID, err)
	}
	return count, nil
}

// DeletePingViolationsBefore deletes violations older than t.
func (s *sqlxStore) DeletePingViolationsBefore(ctx context.Context, t time.Time) (int64, error) {
	var deleted int64
	err := s.withTx(ctx, "delete_ping_violations", func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM ping_violations WHERE created_at < ?;`, t.UTC())
		if err != nil {
			return fmt.Errorf("failed to delete old ping violations: %w", err)
		}
		deleted, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
