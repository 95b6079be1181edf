package access

import (
	"errors"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/zgramming/cmsgate/cmd/gatectl/internal/client"
	"github.com/zgramming/cmsgate/cmd/gatectl/internal/config"
	"github.com/zgramming/cmsgate/pkg/sdk"
)

// AccessCmd is the parent command for access-list checks
var AccessCmd = &cobra.Command{
	Use:   "access",
	Short: "Inspect resource access for the signed-in user",
}

var (
	categories []string
	modules    []string
	menus      []string
	deepLink   string
)

// Check is one resource to evaluate.
type Check struct {
	Kind sdk.ResourceKind
	ID   string
}

// BuildChecks collects the requested checks; a deep link contributes its
// category and module.
func BuildChecks(categories, modules, menus []string, deepLink string) ([]Check, error) {
	var checks []Check
	if deepLink != "" {
		params := sdk.ExtractRouteParams(deepLink)
		if params == nil {
			return nil, fmt.Errorf("%q is not an /app/<category>/<module> path", deepLink)
		}
		categories = append(categories, params.CategoryID)
		modules = append(modules, params.ModuleID)
	}
	for _, id := range categories {
		checks = append(checks, Check{Kind: sdk.ResourceCategory, ID: id})
	}
	for _, id := range modules {
		checks = append(checks, Check{Kind: sdk.ResourceModule, ID: id})
	}
	for _, id := range menus {
		checks = append(checks, Check{Kind: sdk.ResourceMenu, ID: id})
	}
	if len(checks) == 0 {
		return nil, errors.New("nothing to check: pass --category, --module, --menu or --path")
	}
	return checks, nil
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check access to categories, modules or menus",
	Long: `Verifies the session and reports whether each resource is enabled in the
user's access lists. --path takes an /app/<category>/<module>/... deep link.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		checks, err := BuildChecks(categories, modules, menus, deepLink)
		if err != nil {
			return err
		}

		cfg := config.MustFromContext(cmd.Context())
		c, err := cfg.ClientProvider.SDKClient()
		if err != nil {
			return err
		}

		ctx, cancel := client.EnsureTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		user := client.LiveUser(ctx, c)
		if user == nil {
			return fmt.Errorf("not authenticated; run `gatectl auth login`")
		}

		data := pterm.TableData{{"Kind", "ID", "Access"}}
		for _, ch := range checks {
			verdict := pterm.FgRed.Sprint("deny")
			if user.CanAccess(ch.Kind, ch.ID) {
				verdict = pterm.FgGreen.Sprint("allow")
			}
			data = append(data, []string{string(ch.Kind), ch.ID, verdict})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

func init() {
	checkCmd.Flags().StringSliceVar(&categories, "category", nil, "Category ids to check")
	checkCmd.Flags().StringSliceVar(&modules, "module", nil, "Module ids to check")
	checkCmd.Flags().StringSliceVar(&menus, "menu", nil, "Menu ids to check")
	checkCmd.Flags().StringVar(&deepLink, "path", "", "Deep link /app/<category>/<module>/...")
	AccessCmd.AddCommand(checkCmd)
}
