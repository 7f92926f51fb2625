// Package migrations embeds the goose migrations for the core database.
package migrations

import "embed"

// Core holds the backup_status schema under the "core" directory.
//
//go:embed core/*.sql
var Core embed.FS
