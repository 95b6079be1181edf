package sdk

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const (
	// VerifyPath is the identity authority's verification endpoint.
	VerifyPath = "/auth/verify"
	// DefaultVerifyTimeout bounds a verification call.
	DefaultVerifyTimeout = 5 * time.Second

	maxVerifyBody = 1 << 20
)

// VerifyOutcome classifies a verification attempt for metrics.
type VerifyOutcome string

const (
	VerifyOK VerifyOutcome = "ok"
	// VerifyRejected means the authority answered 401 or there was no token.
	VerifyRejected VerifyOutcome = "rejected"
	// VerifyUnavailable means any other non-2xx answer.
	VerifyUnavailable VerifyOutcome = "unavailable"
	VerifyInvalid     VerifyOutcome = "invalid"
	VerifyFault       VerifyOutcome = "fault"
)

// Refreshable reports whether the outcome allows a refresh exchange. Only
// a rejected token does; faults leave the session as it is.
func (o VerifyOutcome) Refreshable() bool {
	return o == VerifyRejected
}

// VerifyObserver receives the outcome and latency of each verification.
type VerifyObserver func(outcome VerifyOutcome, elapsed time.Duration)

// Verifier exchanges an access token for an AuthenticatedUser at the
// identity authority.
type Verifier struct {
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
	validate   *validator.Validate
	log        logrus.FieldLogger
	observe    VerifyObserver
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithVerifyHTTPClient overrides the HTTP client.
func WithVerifyHTTPClient(c *http.Client) VerifierOption {
	return func(v *Verifier) {
		v.httpClient = c
	}
}

// WithVerifyTimeout overrides DefaultVerifyTimeout.
func WithVerifyTimeout(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// WithVerifyLogger sets the logger used for verification faults.
func WithVerifyLogger(log logrus.FieldLogger) VerifierOption {
	return func(v *Verifier) {
		v.log = log
	}
}

// WithVerifyObserver registers a callback for every verification.
func WithVerifyObserver(fn VerifyObserver) VerifierOption {
	return func(v *Verifier) {
		v.observe = fn
	}
}

// NewVerifier creates a Verifier for the identity authority at baseURL.
func NewVerifier(baseURL string, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		endpoint: strings.TrimRight(baseURL, "/") + VerifyPath,
		timeout:  DefaultVerifyTimeout,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.httpClient == nil {
		v.httpClient = &http.Client{}
	}
	if v.log == nil {
		v.log = logrus.StandardLogger()
	}
	return v
}

// verifyResponse is the raw wire shape of a successful verification.
type verifyResponse struct {
	User             *User            `json:"user" validate:"required"`
	AccessCategories []AccessCategory `json:"access_categories" validate:"dive"`
	AccessModules    []AccessModule   `json:"access_modules" validate:"dive"`
	AccessMenus      []AccessMenu     `json:"access_menus" validate:"dive"`
}

// Verify returns the user for token, or nil when the token is invalid or
// verification could not complete. It never returns an error: every
// failure, including timeouts, means not authenticated.
func (v *Verifier) Verify(ctx context.Context, token string) *AuthenticatedUser {
	user, _ := v.Check(ctx, token)
	return user
}

// Check is Verify with the outcome, for callers that decide whether a
// failed verification may be followed by a refresh.
func (v *Verifier) Check(ctx context.Context, token string) (*AuthenticatedUser, VerifyOutcome) {
	start := time.Now()
	user, outcome := v.verify(ctx, token)
	if v.observe != nil {
		v.observe(outcome, time.Since(start))
	}
	return user, outcome
}

func (v *Verifier) verify(ctx context.Context, token string) (*AuthenticatedUser, VerifyOutcome) {
	if token == "" {
		return nil, VerifyRejected
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.endpoint, nil)
	if err != nil {
		v.log.WithError(err).Error("build verification request")
		return nil, VerifyFault
	}
	(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store, no-cache, max-age=0")
	req.Header.Set("Pragma", "no-cache")
	if rid := RequestIDFromContext(ctx); rid != "" {
		req.Header.Set(RequestIDHeader, rid)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		v.log.WithError(err).Warn("token verification failed")
		return nil, VerifyFault
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxVerifyBody))
		if resp.StatusCode == http.StatusUnauthorized {
			return nil, VerifyRejected
		}
		v.log.WithField("status", resp.StatusCode).Warn("token verification unavailable")
		return nil, VerifyUnavailable
	}

	var raw verifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxVerifyBody)).Decode(&raw); err != nil {
		v.log.WithError(err).Warn("decode verification response")
		return nil, VerifyInvalid
	}
	if err := v.validate.Struct(raw); err != nil {
		v.log.WithError(err).Warn("verification response failed validation")
		return nil, VerifyInvalid
	}

	user := &AuthenticatedUser{
		User:             *raw.User,
		AccessCategories: raw.AccessCategories,
		AccessModules:    raw.AccessModules,
		AccessMenus:      raw.AccessMenus,
	}
	if user.AccessCategories == nil {
		user.AccessCategories = []AccessCategory{}
	}
	if user.AccessModules == nil {
		user.AccessModules = []AccessModule{}
	}
	if user.AccessMenus == nil {
		user.AccessMenus = []AccessMenu{}
	}
	return user, VerifyOK
}
