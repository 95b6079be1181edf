package route

import (
	"fmt"
	"net/url"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/zgramming/cmsgate/pkg/sdk"
)

// RouteCmd is the parent command for route-table inspection
var RouteCmd = &cobra.Command{
	Use:   "route",
	Short: "Inspect route classification",
}

// Classify returns the table rows for paths: class, then the decision for
// an anonymous and a signed-in visitor.
func Classify(paths []string) (pterm.TableData, error) {
	data := pterm.TableData{{"Path", "Class", "Anonymous", "Signed in"}}
	for _, raw := range paths {
		u, err := url.ParseRequestURI(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid path %q: %w", raw, err)
		}
		anon := sdk.DecideRoute(u, false)
		data = append(data, []string{raw, anon.Class.String(), describe(anon), describe(sdk.DecideRoute(u, true))})
	}
	return data, nil
}

func describe(d sdk.RouteDecision) string {
	if d.Location == "" {
		return d.Action.String()
	}
	return d.Action.String() + " -> " + d.Location
}

var classifyCmd = &cobra.Command{
	Use:   "classify <path>...",
	Short: "Classify paths and show the gate decisions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := Classify(args)
		if err != nil {
			return err
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

func init() {
	RouteCmd.AddCommand(classifyCmd)
}
