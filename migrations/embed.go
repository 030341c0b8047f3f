// Package migrations embeds the SQL files that define the staffbot schema.
package migrations

import "embed"

// FS holds the embedded SQL migration files, applied in version order by golang-migrate.
//
//go:embed *.sql
var FS embed.FS
