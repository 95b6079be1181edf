package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zgramming/cmsgate/cmd/gateapi/internal/auth"
	"github.com/zgramming/cmsgate/cmd/gateapi/internal/db/bunx"
	"github.com/zgramming/cmsgate/cmd/gateapi/internal/logging"
	"github.com/zgramming/cmsgate/cmd/gateapi/internal/repository"
)

func sweepDenylist(cmd *cobra.Command) error {
	ctx := cmd.Context()
	db, err := bunx.NewDB(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer bunx.Close(db)

	revoker := auth.NewRevoker(repository.NewBunRevokedTokenRepository(db), cfg.Revocation.GracePeriod, logging.WithComponent(logger, "revocation"))
	n, err := revoker.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired entries\n", n)
	return nil
}
