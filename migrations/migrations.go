// Package migrations embeds SQL migration files for goose.
//
// Files follow the naming convention YYYYMMDDHHMMSS_description.sql and are
// applied in order by postgres.Migrate.
package migrations

import "embed"

// FS holds every migration file.
//
//go:embed *.sql
var FS embed.FS
