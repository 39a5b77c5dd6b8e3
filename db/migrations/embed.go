// Package dbmigrations exposes embedded SQL migrations for Agora binaries.
package dbmigrations

import "embed"

// Files contains the embedded SQL migrations bundled into Agora binaries.
//
//go:embed *.sql
var Files embed.FS
