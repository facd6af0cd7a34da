// Package migrations embeds the SQL schema migrations for the mirror DB.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
