// Package migrations holds the PostgreSQL schema as numbered SQL files,
// applied in lexical order by storage.RunMigrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
