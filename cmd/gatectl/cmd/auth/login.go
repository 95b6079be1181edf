package auth

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zgramming/cmsgate/cmd/gatectl/internal/config"
	"github.com/zgramming/cmsgate/pkg/sdk"
)

var (
	email         string
	passwordStdin bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the identity service",
	Long: `Signs in with email and password. Missing values are prompted for
unless --non-interactive is set; the password prompt does not echo.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.MustFromContext(cmd.Context())

		if email == "" {
			if cfg.NonInteractive {
				return errors.New("--email is required in non-interactive mode")
			}
			var err error
			email, err = pterm.DefaultInteractiveTextInput.Show("Email")
			if err != nil {
				return fmt.Errorf("failed to read email: %w", err)
			}
		}

		password, err := readPassword(cfg.NonInteractive)
		if err != nil {
			return err
		}

		c, err := cfg.ClientProvider.SDKClient()
		if err != nil {
			return err
		}

		user, err := c.Login(cmd.Context(), strings.TrimSpace(email), password)
		if err != nil {
			var apiErr *sdk.APIError
			if errors.As(err, &apiErr) && len(apiErr.Errors) > 0 {
				for field, msgs := range apiErr.Errors {
					pterm.Error.Printf("%s: %s\n", field, strings.Join(msgs, ", "))
				}
			}
			return fmt.Errorf("login failed: %w", err)
		}

		pterm.Success.Printf("Signed in as %s (%s)\n", user.Name, user.Email)
		return nil
	},
}

func readPassword(nonInteractive bool) (string, error) {
	if passwordStdin {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("failed to read password from stdin: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	if nonInteractive {
		return "", errors.New("--password-stdin is required in non-interactive mode")
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal; use --password-stdin")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(raw), nil
}

func init() {
	loginCmd.Flags().StringVar(&email, "email", "", "Account email")
	loginCmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
}
