// Package schema embeds the SQL migrations for the results database.
package schema

import "embed"

// FS holds the NNN_description.{up,down}.sql migration files.
//
//go:embed *.sql
var FS embed.FS
