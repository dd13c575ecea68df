// Package migrations holds the versioned PostgreSQL schema of the inventory service.
package migrations

import "embed"

// FS contains every *.up.sql and *.down.sql file in this directory
//
//go:embed *.sql
var FS embed.FS
