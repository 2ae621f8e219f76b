// Package migrations embeds the SQL migration files so the binaries carry
// their own schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
