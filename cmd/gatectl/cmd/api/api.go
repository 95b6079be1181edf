package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/zgramming/cmsgate/cmd/gatectl/internal/config"
	"github.com/zgramming/cmsgate/pkg/sdk"
)

// APICmd is the parent command for authenticated API calls
var APICmd = &cobra.Command{
	Use:   "api",
	Short: "Call the CMS API with the saved session",
}

var getCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "GET a path and print the JSON response",
	Long:  `Performs an authenticated GET. An expired access token is refreshed once.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.MustFromContext(cmd.Context())
		c, err := cfg.ClientProvider.SDKClient()
		if err != nil {
			return err
		}

		var raw json.RawMessage
		err = c.Get(cmd.Context(), args[0], &raw)
		switch {
		case errors.Is(err, sdk.ErrSessionExpired), errors.Is(err, sdk.ErrNotAuthenticated):
			pterm.Error.Println("Not signed in; run `gatectl auth login`.")
			return err
		case err != nil:
			return err
		}

		var out bytes.Buffer
		if err := json.Indent(&out, raw, "", "  "); err != nil {
			out.Reset()
			out.Write(raw)
		}
		fmt.Fprintln(cmd.OutOrStdout(), out.String())
		return nil
	},
}

func init() {
	APICmd.AddCommand(getCmd)
}
