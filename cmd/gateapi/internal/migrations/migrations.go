package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// Migrations holds every registered schema migration.
var Migrations = migrate.NewMigrations()

// Apply initializes the migration tables and runs pending migrations under
// the migration lock. It returns the applied group id, 0 when up to date.
func Apply(ctx context.Context, db *bun.DB) (int64, error) {
	migrator := migrate.NewMigrator(db, Migrations)
	if err := migrator.Init(ctx); err != nil {
		return 0, fmt.Errorf("initialize migrator: %w", err)
	}
	if err := migrator.Lock(ctx); err != nil {
		return 0, fmt.Errorf("acquire migration lock: %w", err)
	}
	defer migrator.Unlock(ctx) //nolint:errcheck

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return 0, fmt.Errorf("migrate: %w", err)
	}
	return group.ID, nil
}
