package cmd

import (
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/zgramming/cmsgate/pkg/sdk"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Print the route tables the gate enforces",
	// route tables are static; skip config loading
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(*cobra.Command, []string) error {
		t := sdk.Routes()
		return pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
			{"Class", "Paths"},
			{sdk.RoutePublic.String(), strings.Join(t.Public, ", ")},
			{sdk.RouteAuthOnly.String(), strings.Join(t.AuthOnly, ", ")},
			{sdk.RouteProtected.String(), strings.Join(t.ProtectedPrefixes, ", ")},
			{sdk.RouteAPIExempt.String(), strings.Join(t.APIExemptPrefixes, ", ")},
		}).Render()
	},
}

func init() {
	rootCmd.AddCommand(routesCmd)
}
