// Package migrations embeds the MariaDB schema migrations so the binary
// can apply them without the source tree.
package migrations

import "embed"

// FS holds the numbered golang-migrate up/down pairs.
//
//go:embed *.sql
var FS embed.FS
