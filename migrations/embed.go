package migrations

import "embed"

// Files stores forward-only SQL migrations, one directory per dialect.
//
//go:embed postgres/*.sql sqlite/*.sql
var Files embed.FS
