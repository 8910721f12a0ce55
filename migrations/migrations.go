// Package migrations embeds the goose SQL migrations for the Postgres stores.
package migrations

import "embed"

// Dir is the directory inside FS holding the migrations.
const Dir = "sql"

//go:embed sql/*.sql
var FS embed.FS
