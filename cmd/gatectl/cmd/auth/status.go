package auth

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/zgramming/cmsgate/cmd/gatectl/internal/auth"
	"github.com/zgramming/cmsgate/cmd/gatectl/internal/client"
	"github.com/zgramming/cmsgate/cmd/gatectl/internal/config"
	"github.com/zgramming/cmsgate/pkg/sdk"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display authentication status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.MustFromContext(cmd.Context())
		c, err := cfg.ClientProvider.SDKClient()
		if err != nil {
			return err
		}

		snap := c.Session().Snapshot()
		pterm.DefaultSection.Println("Authentication Status")
		if !snap.IsAuthenticated || snap.User == nil {
			pterm.Info.Println("Not logged in")
			return nil
		}
		pterm.Info.Printf("User: %s <%s> (%s)\n", snap.User.Name, snap.User.Email, snap.User.ID)
		if snap.User.Role != "" {
			pterm.Info.Printf("Role: %s\n", snap.User.Role)
		}
		if exp, ok := auth.TokenExpiry(c.Session().AccessToken()); ok {
			pterm.Info.Printf("Access token expires: %s (%s)\n", exp.Format(time.RFC1123), describeRemaining(time.Until(exp)))
		}

		ctx, cancel := client.EnsureTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		user := client.LiveUser(ctx, c)
		if user == nil {
			pterm.Warning.Println("Session could not be verified; run `gatectl auth login`.")
			return nil
		}
		pterm.Success.Println("Session verified")

		pterm.DefaultSection.Println("Access")
		return pterm.DefaultTable.WithHasHeader().WithData(accessTable(user)).Render()
	},
}

func accessTable(u *sdk.AuthenticatedUser) pterm.TableData {
	data := pterm.TableData{{"Kind", "ID", "Enabled"}}
	for _, c := range u.AccessCategories {
		data = append(data, []string{string(sdk.ResourceCategory), c.CategoryID, fmt.Sprint(c.Enabled)})
	}
	for _, m := range u.AccessModules {
		data = append(data, []string{string(sdk.ResourceModule), m.ModuleID, fmt.Sprint(m.Enabled)})
	}
	for _, m := range u.AccessMenus {
		data = append(data, []string{string(sdk.ResourceMenu), m.MenuID, fmt.Sprint(m.Enabled)})
	}
	return data
}

func describeRemaining(d time.Duration) string {
	if d <= 0 {
		return "expired"
	}
	return "in " + d.Round(time.Minute).String()
}
