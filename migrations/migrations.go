// Package migrations embeds the run store schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
