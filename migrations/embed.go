// Package migrations holds the SQLite schema for the history store.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed *.sql
var sqlFiles embed.FS

// FS returns the migration files, rooted at the directory containing them.
func FS() fs.FS { return sqlFiles }
