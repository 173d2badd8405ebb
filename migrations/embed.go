// Package migrations embeds the SQL schema migrations so the server and the
// migrate CLI ship them inside the binary.
package migrations

import "embed"

// FS holds the numbered *.up.sql / *.down.sql files
//
//go:embed *.sql
var FS embed.FS
