package migrations

import "embed"

// Files exposes the SQL migration files for operators who manage the
// schema out of band instead of letting the daemon create it.
//
//go:embed *.sql
var Files embed.FS
