package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zgramming/cmsgate/cmd/gatectl/cmd/access"
	"github.com/zgramming/cmsgate/cmd/gatectl/cmd/api"
	"github.com/zgramming/cmsgate/cmd/gatectl/cmd/auth"
	"github.com/zgramming/cmsgate/cmd/gatectl/cmd/route"
	"github.com/zgramming/cmsgate/cmd/gatectl/internal/client"
	"github.com/zgramming/cmsgate/cmd/gatectl/internal/config"
)

const defaultServerURL = "http://localhost:5000/api"

var (
	serverURL      string
	configDir      string
	nonInteractive bool
)

var rootCmd = &cobra.Command{
	Use:   "gatectl",
	Short: "CMS admin session CLI",
	Long: `gatectl signs in to the CMS identity service, keeps the session under
~/.gatectl, and inspects route decisions and access lists.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if os.Getenv("GATECTL_NON_INTERACTIVE") == "1" {
			nonInteractive = true
		}
		if !cmd.Flags().Changed("server") {
			if env := os.Getenv("GATECTL_SERVER"); env != "" {
				serverURL = env
			}
		}
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("failed to get user home directory: %w", err)
			}
			configDir = filepath.Join(home, ".gatectl")
		}

		cmd.SetContext(config.InjectConfig(cmd.Context(), &config.GlobalConfig{
			ServerURL:      serverURL,
			ConfigDir:      configDir,
			NonInteractive: nonInteractive,
			ClientProvider: client.NewProvider(serverURL, configDir),
		}))
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServerURL, "Identity service base URL (env: GATECTL_SERVER)")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Directory for session files (default ~/.gatectl)")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "Disable interactive prompts (also set via GATECTL_NON_INTERACTIVE=1)")

	rootCmd.AddCommand(auth.AuthCmd)
	rootCmd.AddCommand(access.AccessCmd)
	rootCmd.AddCommand(route.RouteCmd)
	rootCmd.AddCommand(api.APICmd)
}
