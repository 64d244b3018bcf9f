// Package migrations embeds the SQL migrations shared by the PostgreSQL and SQLite stores.
package migrations

import "embed"

// FS contains the embedded SQL migration files.
//
//go:embed *.sql
var FS embed.FS
