package auth

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/zgramming/cmsgate/cmd/gatectl/internal/config"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the local session",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.MustFromContext(cmd.Context())
		c, err := cfg.ClientProvider.SDKClient()
		if err != nil {
			return err
		}

		// local state is cleared even when the server call fails
		c.Logout(cmd.Context())
		pterm.Success.Println("Logged out successfully")
		return nil
	},
}
