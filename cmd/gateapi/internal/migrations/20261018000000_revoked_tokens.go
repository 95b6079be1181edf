package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/zgramming/cmsgate/cmd/gateapi/internal/db/models"
)

func init() {
	Migrations.MustRegister(up_20261018000000, down_20261018000000)
}

// up_20261018000000 creates the revoked_tokens denylist
func up_20261018000000(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().
		Model((*models.RevokedToken)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create revoked_tokens table: %w", err)
	}

	// sweeper deletes by expiry
	_, err = db.NewCreateIndex().
		Model((*models.RevokedToken)(nil)).
		Index("idx_revoked_tokens_expires_at").
		Column("expires_at").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create revoked_tokens expires_at index: %w", err)
	}
	return nil
}

// down_20261018000000 drops the revoked_tokens denylist
func down_20261018000000(ctx context.Context, db *bun.DB) error {
	_, err := db.NewDropTable().
		Model((*models.RevokedToken)(nil)).
		IfExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to drop revoked_tokens table: %w", err)
	}
	return nil
}
