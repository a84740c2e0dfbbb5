// Package migrations embeds the goose SQL migrations for the local queue.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
