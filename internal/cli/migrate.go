package cli

import (
	"context"
	"fmt"
	"log/slog"

	"trivia-night-service/internal/config"
	"trivia-night-service/internal/infra/sqlstore"

	"github.com/spf13/cobra"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger := newLogger(cmd.ErrOrStderr(), cfg)
			store, err := openSQLStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			return runMigrations(cmd.Context(), store, logger)
		},
	}
}

// openSQLStore opens the configured SQL database. The memory driver has none.
func openSQLStore(ctx context.Context, cfg config.Config) (*sqlstore.Store, error) {
	switch cfg.Store.Driver {
	case config.StorePostgres:
		if cfg.Postgres.URL == "" {
			return nil, fmt.Errorf("postgres url not configured")
		}
		return sqlstore.Open(ctx, sqlstore.DriverPostgres, cfg.Postgres.URL)
	case config.StoreSQLite:
		return sqlstore.Open(ctx, sqlstore.DriverSQLite, cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("store driver %q has no database to migrate", cfg.Store.Driver)
	}
}

func runMigrations(ctx context.Context, store *sqlstore.Store, logger *slog.Logger) error {
	applied, err := store.Migrate(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		logger.Info("schema up to date")
		return nil
	}
	logger.Info("migrations applied", "migrations", applied)
	return nil
}
