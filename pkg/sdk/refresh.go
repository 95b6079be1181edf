package sdk

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshTimeout bounds a refresh exchange.
const DefaultRefreshTimeout = 15 * time.Second

// RefreshOutcome classifies a refresh attempt for metrics.
type RefreshOutcome string

const (
	RefreshSucceeded RefreshOutcome = "success"
	RefreshFailed    RefreshOutcome = "failure"
	// RefreshSuperseded means another caller already refreshed the token.
	RefreshSuperseded RefreshOutcome = "superseded"
)

// RefreshCoordinator runs the refresh exchange for a Session. Concurrent
// callers share one in-flight exchange.
type RefreshCoordinator struct {
	session   *Session
	exchanger RefreshExchanger
	timeout   time.Duration
	log       logrus.FieldLogger
	onExpired func()
	observe   func(RefreshOutcome)

	group singleflight.Group
}

// RefreshOption configures a RefreshCoordinator.
type RefreshOption func(*RefreshCoordinator)

// OnSessionExpired registers fn to run after a failed refresh has cleared
// the session. Interactive callers use it to send the user to login.
func OnSessionExpired(fn func()) RefreshOption {
	return func(c *RefreshCoordinator) {
		c.onExpired = fn
	}
}

// WithRefreshObserver registers a callback for every refresh attempt.
func WithRefreshObserver(fn func(RefreshOutcome)) RefreshOption {
	return func(c *RefreshCoordinator) {
		c.observe = fn
	}
}

// WithRefreshLogger sets the logger.
func WithRefreshLogger(log logrus.FieldLogger) RefreshOption {
	return func(c *RefreshCoordinator) {
		c.log = log
	}
}

// WithRefreshTimeout overrides DefaultRefreshTimeout.
func WithRefreshTimeout(d time.Duration) RefreshOption {
	return func(c *RefreshCoordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewRefreshCoordinator creates a coordinator that refreshes session via exchanger.
func NewRefreshCoordinator(session *Session, exchanger RefreshExchanger, opts ...RefreshOption) *RefreshCoordinator {
	c := &RefreshCoordinator{
		session:   session,
		exchanger: exchanger,
		timeout:   DefaultRefreshTimeout,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Refresh returns an access token newer than stale. If the session already
// holds a different token it is returned without an exchange. On failure
// the session is cleared and ErrSessionExpired is returned.
func (c *RefreshCoordinator) Refresh(ctx context.Context, stale string) (string, error) {
	if current := c.session.AccessToken(); current != "" && current != stale {
		c.record(RefreshSuperseded)
		return current, nil
	}

	// The exchange outlives any single waiter's cancellation.
	ch := c.group.DoChan("refresh", func() (any, error) {
		exCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.exchange(exCtx, stale)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *RefreshCoordinator) exchange(ctx context.Context, stale string) (string, error) {
	// A flight that finished between the caller's check and this one
	// already replaced the token.
	if current := c.session.AccessToken(); current != "" && current != stale {
		c.record(RefreshSuperseded)
		return current, nil
	}

	refreshToken := c.session.RefreshToken()
	if refreshToken == "" {
		return "", c.fail(ErrNotAuthenticated)
	}

	res, err := c.exchanger.Refresh(ctx, refreshToken)
	if err != nil {
		return "", c.fail(err)
	}

	user := c.session.User()
	if user == nil {
		user = &User{}
	}
	c.session.SetSession(*user, res.Token, res.RefreshToken)
	c.record(RefreshSucceeded)
	c.log.Debug("access token refreshed")
	return res.Token, nil
}

func (c *RefreshCoordinator) fail(cause error) error {
	c.log.WithError(cause).Warn("token refresh failed, clearing session")
	c.session.ClearSession()
	c.record(RefreshFailed)
	if c.onExpired != nil {
		c.onExpired()
	}
	return fmt.Errorf("%w: %v", ErrSessionExpired, cause)
}

func (c *RefreshCoordinator) record(outcome RefreshOutcome) {
	if c.observe != nil {
		c.observe(outcome)
	}
}

type retriedKey struct{}

func isRetried(ctx context.Context) bool {
	v, _ := ctx.Value(retriedKey{}).(bool)
	return v
}

// Transport attaches the session's access token cookie to each request and
// on a 401 refreshes once and resends. The retry's response is final.
type Transport struct {
	Base        http.RoundTripper
	Session     *Session
	Coordinator *RefreshCoordinator
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	t.Session.AttachCredentials(out)
	sent := cookieValue(out, AccessTokenCookie)

	resp, err := t.base().RoundTrip(out)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if sent == "" || isRetried(req.Context()) {
		return resp, nil
	}
	// A body that cannot be replayed cannot be retried.
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return resp, nil
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()

	if _, err := t.Coordinator.Refresh(req.Context(), sent); err != nil {
		return nil, err
	}

	retry := req.Clone(context.WithValue(req.Context(), retriedKey{}, true))
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("replay request body: %w", err)
		}
		retry.Body = body
	}
	t.Session.AttachCredentials(retry)
	return t.base().RoundTrip(retry)
}

func cookieValue(req *http.Request, name string) string {
	c, err := req.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
