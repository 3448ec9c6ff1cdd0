package migrations

import "github.com/uptrace/bun/migrate"

// Migrations holds the schema history of the trivia database.
var Migrations = migrate.NewMigrations()
