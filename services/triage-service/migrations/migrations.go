// Package migrations embeds the triage service schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
