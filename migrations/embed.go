// Package migrations embeds the schema for every supported database driver.
package migrations

import "embed"

// FS holds one directory per driver name (mysql, postgres).
//
//go:embed mysql/*.sql postgres/*.sql
var FS embed.FS
