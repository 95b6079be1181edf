package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultRequestTimeout bounds a Client request that has no deadline.
const DefaultRequestTimeout = 30 * time.Second

// Client is an authenticated REST client for the admin API. Requests carry
// the session's access token cookie and go through the refresh flow on 401.
type Client struct {
	baseURL  string
	session  *Session
	timeout  time.Duration
	log      logrus.FieldLogger
	http     *http.Client
	identity *IdentityClient
	verifier *Verifier
	refresh  *RefreshCoordinator
}

// ClientOptions configures Client construction.
type ClientOptions struct {
	HTTPClient       *http.Client
	Logger           logrus.FieldLogger
	RequestTimeout   time.Duration
	VerifyTimeout    time.Duration
	OnSessionExpired func()
}

// ClientOption mutates ClientOptions.
type ClientOption func(*ClientOptions)

// WithHTTPClient sets the underlying HTTP client. Its transport is wrapped,
// not replaced.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(opts *ClientOptions) {
		opts.HTTPClient = c
	}
}

// WithLogger sets the logger shared by the client's components.
func WithLogger(log logrus.FieldLogger) ClientOption {
	return func(opts *ClientOptions) {
		opts.Logger = log
	}
}

// WithRequestTimeout overrides DefaultRequestTimeout.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(opts *ClientOptions) {
		opts.RequestTimeout = d
	}
}

// WithVerifyTimeoutOption overrides the verification timeout.
func WithVerifyTimeoutOption(d time.Duration) ClientOption {
	return func(opts *ClientOptions) {
		opts.VerifyTimeout = d
	}
}

// WithSessionExpiredHandler runs fn after a failed refresh clears the session.
func WithSessionExpiredHandler(fn func()) ClientOption {
	return func(opts *ClientOptions) {
		opts.OnSessionExpired = fn
	}
}

// NewClient creates a Client for the API at baseURL backed by session.
func NewClient(baseURL string, session *Session, optFns ...ClientOption) *Client {
	opts := ClientOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}

	baseURL = strings.TrimRight(baseURL, "/")
	plain := &http.Client{Transport: opts.HTTPClient.Transport, Timeout: opts.HTTPClient.Timeout}
	identity := NewIdentityClient(baseURL, plain)

	refreshOpts := []RefreshOption{WithRefreshLogger(opts.Logger)}
	if opts.OnSessionExpired != nil {
		refreshOpts = append(refreshOpts, OnSessionExpired(opts.OnSessionExpired))
	}
	coordinator := NewRefreshCoordinator(session, identity, refreshOpts...)

	return &Client{
		baseURL:  baseURL,
		session:  session,
		timeout:  opts.RequestTimeout,
		log:      opts.Logger,
		identity: identity,
		verifier: NewVerifier(baseURL,
			WithVerifyHTTPClient(plain),
			WithVerifyTimeout(opts.VerifyTimeout),
			WithVerifyLogger(opts.Logger),
		),
		refresh: coordinator,
		http: &http.Client{
			Transport: &Transport{
				Base:        opts.HTTPClient.Transport,
				Session:     session,
				Coordinator: coordinator,
			},
			Timeout: opts.HTTPClient.Timeout,
		},
	}
}

// Session returns the client's credential store.
func (c *Client) Session() *Session {
	return c.session
}

// Login authenticates and stores the resulting session.
func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	ctx, cancel := c.ensureTimeout(ctx)
	defer cancel()

	resp, err := c.identity.Login(ctx, LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	c.session.SetSession(resp.User, resp.Token, resp.RefreshToken)
	u := resp.User
	return &u, nil
}

// Logout invalidates the session at the authority when possible and always
// clears it locally.
func (c *Client) Logout(ctx context.Context) {
	ctx, cancel := c.ensureTimeout(ctx)
	defer cancel()

	if token := c.session.AccessToken(); token != "" {
		if err := c.identity.Logout(ctx, token); err != nil {
			c.log.WithError(err).Warn("server logout failed")
		}
	}
	c.session.ClearSession()
}

// Verify checks the current access token. It returns nil when there is no
// session or the token does not verify.
func (c *Client) Verify(ctx context.Context) *AuthenticatedUser {
	return c.verifier.Verify(ctx, c.session.AccessToken())
}

// CheckSession is Verify with the verification outcome.
func (c *Client) CheckSession(ctx context.Context) (*AuthenticatedUser, VerifyOutcome) {
	return c.verifier.Check(ctx, c.session.AccessToken())
}

// Refresh forces a refresh exchange for the current token.
func (c *Client) Refresh(ctx context.Context) error {
	_, err := c.refresh.Refresh(ctx, c.session.AccessToken())
	return err
}

// GetProfile fetches the profile and merges it into the session user.
func (c *Client) GetProfile(ctx context.Context) (*User, error) {
	var u User
	if err := c.Get(ctx, ProfileEndpoint, &u); err != nil {
		return nil, err
	}
	c.session.PatchUser(UserPatch{Name: &u.Name, Email: &u.Email, Role: &u.Role})
	return &u, nil
}

// UpdateProfile applies patch at the API and then to the session user.
func (c *Client) UpdateProfile(ctx context.Context, patch UserPatch) (*User, error) {
	var u User
	if err := c.Put(ctx, ProfileEndpoint, patch, &u); err != nil {
		return nil, err
	}
	c.session.PatchUser(patch)
	return &u, nil
}

// ChangePassword changes the current user's password.
func (c *Client) ChangePassword(ctx context.Context, in ChangePasswordRequest) error {
	if err := c.identity.validate.Struct(in); err != nil {
		return validationError(err)
	}
	return c.Post(ctx, ChangePasswordEndpoint, in, nil)
}

// Get issues a GET and decodes the response into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPost, path, in, out)
}

// Put issues a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPut, path, in, out)
}

// Patch issues a PATCH with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPatch, path, in, out)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out)
}

// Do sends a JSON request. Failures other than session expiry come back
// as *APIError; a failed refresh returns ErrSessionExpired.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := c.ensureTimeout(ctx)
	defer cancel()

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return &APIError{Message: fmt.Sprintf("encode request: %v", err), cause: err}
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+strings.TrimLeft(path, "/"), body)
	if err != nil {
		return &APIError{Message: err.Error(), cause: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			return ErrSessionExpired
		}
		return normalizeError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return NewAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{Message: fmt.Sprintf("decode response: %v", err), StatusCode: resp.StatusCode, cause: err}
	}
	return nil
}

func (c *Client) ensureTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}
