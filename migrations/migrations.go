// Package migrations embeds the goose migration sets for both supported
// store dialects.
package migrations

import "embed"

//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS

// Dir returns the migration directory for a store driver name.
func Dir(driver string) string {
	if driver == "postgres" {
		return "postgres"
	}
	return "sqlite"
}
