package tasks

import (
	"context"
	"fmt"
	"time"
)

// minViolationRetention is the shortest time violations are kept.
const minViolationRetention = 24 * time.Hour

// newPingViolationPruneTask creates a task that deletes anti-ping violations that
// can no longer count towards escalation. Violations are kept for twice the
// escalation window, and at least a day.
func newPingViolationPruneTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "ping_violation_prune")

	return func(ctx context.Context) error {
		retention := violationRetention(deps.Config.AntiPing.Escalation.Window)
		deleted, err := deps.Store.DeletePingViolationsBefore(ctx, deps.now().Add(-retention))
		if err != nil {
			return fmt.Errorf("failed to prune ping violations: %w", err)
		}
		log.InfoContext(ctx, "Pruned ping violations", "deleted", deleted, "retention", retention)
		return nil
	}
}

func violationRetention(window time.Duration) time.Duration {
	return max(2*window, minViolationRetention)
}
