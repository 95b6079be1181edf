package client

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pterm/pterm"
	"github.com/sirupsen/logrus"

	"github.com/zgramming/cmsgate/cmd/gatectl/internal/auth"
	"github.com/zgramming/cmsgate/pkg/sdk"
)

// Provider lazily builds one SDK client whose session is restored from, and
// persisted to, the config directory.
type Provider struct {
	serverURL string
	configDir string
	logOut    io.Writer

	once   sync.Once
	client *sdk.Client
	err    error
}

// NewProvider constructs a Provider bound to the identity server URL.
func NewProvider(serverURL, configDir string) *Provider {
	return &Provider{serverURL: serverURL, configDir: configDir, logOut: os.Stderr}
}

// SDKClient returns the shared client, restoring any saved session on
// first use.
func (p *Provider) SDKClient() (*sdk.Client, error) {
	p.once.Do(func() {
		p.client, p.err = p.build()
	})
	return p.client, p.err
}

func (p *Provider) build() (*sdk.Client, error) {
	log := logrus.New()
	log.SetOutput(p.logOut)
	log.SetLevel(logrus.WarnLevel)

	store, err := auth.NewFileStore(p.configDir)
	if err != nil {
		return nil, err
	}
	jar, err := auth.NewPersistentJar(p.configDir, p.serverURL)
	if err != nil {
		return nil, err
	}

	session, err := sdk.NewSession(p.serverURL,
		sdk.WithSnapshotStore(store),
		sdk.WithCookieJar(jar),
		sdk.WithSessionLogger(log),
	)
	if err != nil {
		return nil, err
	}
	if err := session.Init(); err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}

	return sdk.NewClient(p.serverURL, session,
		sdk.WithLogger(log),
		sdk.WithSessionExpiredHandler(func() {
			pterm.Warning.Println("Session expired; run `gatectl auth login` to sign in again.")
		}),
	), nil
}

// LiveUser verifies the session, refreshing once when the access token is
// rejected with 401. It returns nil when the session cannot be confirmed;
// an unreachable or failing identity service leaves the session intact.
func LiveUser(ctx context.Context, c *sdk.Client) *sdk.AuthenticatedUser {
	user, outcome := c.CheckSession(ctx)
	if user != nil {
		return user
	}
	if !outcome.Refreshable() || c.Session().RefreshToken() == "" {
		return nil
	}
	if err := c.Refresh(ctx); err != nil {
		return nil
	}
	return c.Verify(ctx)
}

// EnsureTimeout applies timeout unless ctx already has a deadline.
func EnsureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
