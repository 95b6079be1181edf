package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	"github.com/zgramming/cmsgate/cmd/gateapi/internal/db/bunx"
	"github.com/zgramming/cmsgate/cmd/gateapi/internal/migrations"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database management commands",
	Long:  `Commands for managing the revoked-token denylist schema.`,
}

// withMigrator opens the database and hands fn a migrator for it.
func withMigrator(ctx context.Context, fn func(*bun.DB, *migrate.Migrator) error) error {
	db, err := bunx.NewDB(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer bunx.Close(db)
	return fn(db, migrate.NewMigrator(db, migrations.Migrations))
}

var dbInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize migration tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withMigrator(ctx, func(_ *bun.DB, m *migrate.Migrator) error {
			if err := m.Init(ctx); err != nil {
				return fmt.Errorf("failed to initialize migrator: %w", err)
			}
			logger.Info("migration tables initialized")
			return nil
		})
	},
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long:  `Applies all pending migrations with locking to prevent concurrent runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withMigrator(ctx, func(db *bun.DB, _ *migrate.Migrator) error {
			group, err := migrations.Apply(ctx, db)
			if err != nil {
				return err
			}
			if group == 0 {
				logger.Info("no new migrations to apply")
			} else {
				logger.WithField("group", group).Info("applied migration group")
			}
			return nil
		})
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withMigrator(ctx, func(_ *bun.DB, m *migrate.Migrator) error {
			ms, err := m.MigrationsWithStatus(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			for _, mig := range ms {
				status := "pending"
				if mig.GroupID > 0 {
					status = fmt.Sprintf("applied (group %d)", mig.GroupID)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", mig.Name, status)
			}
			return nil
		})
	},
}

var dbRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Rollback last migration group",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withMigrator(ctx, func(_ *bun.DB, m *migrate.Migrator) error {
			if err := m.Lock(ctx); err != nil {
				return fmt.Errorf("failed to acquire migration lock: %w", err)
			}
			defer func() {
				if err := m.Unlock(ctx); err != nil {
					logger.WithError(err).Warn("failed to release migration lock")
				}
			}()

			group, err := m.Rollback(ctx)
			if err != nil {
				return fmt.Errorf("rollback failed: %w", err)
			}
			if group.ID == 0 {
				logger.Info("no migrations to rollback")
			} else {
				logger.WithField("group", group.ID).Info("rolled back migration group")
			}
			return nil
		})
	},
}

var dbSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired denylist entries now",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sweepDenylist(cmd)
	},
}

func init() {
	dbCmd.AddCommand(dbInitCmd, dbMigrateCmd, dbStatusCmd, dbRollbackCmd, dbSweepCmd)
	rootCmd.AddCommand(dbCmd)
}
