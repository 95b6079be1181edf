package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zgramming/cmsgate/cmd/gateapi/internal/config"
	"github.com/zgramming/cmsgate/cmd/gateapi/internal/logging"
)

var (
	cfg    *config.Config
	logger *logrus.Logger

	configFile string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "gateapi",
	Short: "Session and route-access gateway for the CMS admin",
	Long: `gateapi sits in front of the CMS admin SPA. It resolves the browser's
cookie session against the identity service, redirects or rejects page
navigations per the route tables and access lists, and proxies the rest.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(config.LoadOptions{ConfigFile: configFile, EnvFile: envFile})
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		logger, err = logging.New(cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to initialise logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (yaml, json or toml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file loaded when present")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
