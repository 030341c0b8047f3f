package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/clrstaff/staffbot/internal/discord"
)

// newSessionExpiryTask creates a task that ends sessions left open longer than
// sessions.max_age. Their threads are archived and locked on a best-effort basis;
// a thread that no longer exists does not keep the session open.
func newSessionExpiryTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "session_expiry")

	return func(ctx context.Context) error {
		cutoff := deps.now().Add(-deps.Config.Sessions.MaxAge)
		sessions, err := deps.Store.ListSessionsStartedBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("failed to list expired sessions: %w", err)
		}
		if len(sessions) == 0 {
			log.DebugContext(ctx, "No expired sessions")
			return nil
		}

		var errs []error
		ended := 0
		for _, s := range sessions {
			if err := ctx.Err(); err != nil {
				errs = append(errs, err)
				break
			}
			if deps.API != nil {
				archived, locked := true, true
				_, err := deps.API.ChannelEdit(s.ThreadID, &discordgo.ChannelEdit{Archived: &archived, Locked: &locked})
				if err != nil && !discord.IsNotFound(err) {
					log.WarnContext(ctx, "Failed to archive expired session thread",
						"error", err, "session_id", s.ID, "thread_id", s.ThreadID)
				}
			}
			if err := deps.Store.EndSession(ctx, s.ID); err != nil {
				errs = append(errs, fmt.Errorf("session %d: %w", s.ID, err))
				continue
			}
			ended++
			log.InfoContext(ctx, "Expired session ended",
				"session_id", s.ID, "user_id", s.UserID, "age", deps.now().Sub(s.StartedAt).Round(time.Minute))
		}

		log.InfoContext(ctx, "Session expiry completed", "expired", len(sessions), "ended", ended)
		if len(errs) > 0 {
			return fmt.Errorf("failed to end %d expired session(s): %w", len(errs), errors.Join(errs...))
		}
		return nil
	}
}
