// Package tasks implements scheduled tasks for the staff bot.
// It includes task definitions, dependencies, and registration mechanisms.
package tasks

import (
	"log/slog"
	"time"

	"github.com/clrstaff/staffbot/internal/config"
	"github.com/clrstaff/staffbot/internal/database"
	"github.com/clrstaff/staffbot/internal/discord"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger *slog.Logger
	Store  database.Store
	Config *config.Config
	// API is used to archive expired session threads.
	API discord.API
	// Now is optional; it defaults to time.Now in UTC.
	Now func() time.Time
}

func (d TaskDeps) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}
