// Package migrations embeds the goose SQL migrations for the local device
// database and the hosted remote store.
package migrations

import (
	"embed"
	"io/fs"
)

// FS holds every migration directory.
//
//go:embed local/*.sql remote/*.sql
var FS embed.FS

// Migration sets
const (
	Local  = "local"
	Remote = "remote"
)

// Sub returns the migration files of one set rooted at the set directory.
func Sub(set string) (fs.FS, error) {
	return fs.Sub(FS, set)
}
