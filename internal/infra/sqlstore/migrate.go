package sqlstore

import (
	"context"
	"fmt"

	"trivia-night-service/internal/infra/sqlstore/migrations"

	"github.com/uptrace/bun/migrate"
)

// Migrate applies pending schema migrations and returns the names applied.
func (s *Store) Migrate(ctx context.Context) ([]string, error) {
	migrator := migrate.NewMigrator(s.db, migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return nil, fmt.Errorf("init migrations: %w", err)
	}
	group, err := migrator.Migrate(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	var applied []string
	if group != nil {
		for _, m := range group.Migrations {
			applied = append(applied, m.Name)
		}
	}
	return applied, nil
}
