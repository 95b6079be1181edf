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

	"github.com/go-playground/validator/v10"
	"golang.org/x/oauth2"
)

// Identity authority endpoints, relative to its base URL.
const (
	LoginEndpoint          = "/auth/login"
	LogoutEndpoint         = "/auth/logout"
	RefreshEndpoint        = "/auth/refresh"
	ProfileEndpoint        = "/auth/profile"
	ChangePasswordEndpoint = "/auth/change-password"
)

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is the success body of POST /auth/login.
type LoginResponse struct {
	User         User   `json:"user"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// RefreshResult is the success body of POST /auth/refresh. RefreshToken is
// set only when the authority rotates it.
type RefreshResult struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// ChangePasswordRequest is the body of POST /auth/change-password.
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8,nefield=OldPassword"`
}

// RefreshExchanger trades a refresh token for a new access token.
type RefreshExchanger interface {
	Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error)
}

// IdentityClient makes the stateless calls to the identity authority.
// Both the gateway and Client use it; it never touches a Session.
type IdentityClient struct {
	baseURL    string
	httpClient *http.Client
	validate   *validator.Validate
}

var _ RefreshExchanger = (*IdentityClient)(nil)

// NewIdentityClient creates an IdentityClient. A nil httpClient gets a
// client with a 30 second timeout.
func NewIdentityClient(baseURL string, httpClient *http.Client) *IdentityClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &IdentityClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

// BaseURL returns the identity authority base URL.
func (c *IdentityClient) BaseURL() string {
	return c.baseURL
}

// Login exchanges credentials for a user and token pair.
func (c *IdentityClient) Login(ctx context.Context, in LoginRequest) (*LoginResponse, error) {
	if err := c.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	var out LoginResponse
	if err := c.send(ctx, http.MethodPost, LoginEndpoint, in, &out, nil); err != nil {
		return nil, err
	}
	if out.Token == "" || out.User.ID == "" {
		return nil, &APIError{Message: "login response missing token or user"}
	}
	return &out, nil
}

// Logout asks the authority to invalidate accessToken.
func (c *IdentityClient) Logout(ctx context.Context, accessToken string) error {
	return c.send(ctx, http.MethodPost, LogoutEndpoint, struct{}{}, nil, func(req *http.Request) {
		if accessToken != "" {
			(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}).SetAuthHeader(req)
			req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: accessToken})
		}
	})
}

// Refresh performs the refresh exchange. The refresh token travels only
// in the auth-refresh-token cookie; the body is an empty object.
func (c *IdentityClient) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if refreshToken == "" {
		return nil, ErrNotAuthenticated
	}

	var out RefreshResult
	err := c.send(ctx, http.MethodPost, RefreshEndpoint, struct{}{}, &out, func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: RefreshTokenCookie, Value: refreshToken})
	})
	if err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, &APIError{Message: "refresh response missing token"}
	}
	return &out, nil
}

func (c *IdentityClient) send(ctx context.Context, method, path string, in, out any, decorate func(*http.Request)) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		req.Header.Set(RequestIDHeader, rid)
	}
	if decorate != nil {
		decorate(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
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
		return &APIError{Message: fmt.Sprintf("decode %s response: %v", path, err), StatusCode: resp.StatusCode, cause: err}
	}
	return nil
}

// validationError reports struct validation failures as field errors.
func validationError(err error) *APIError {
	apiErr := &APIError{Message: "validation failed", StatusCode: http.StatusBadRequest, cause: err}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		apiErr.Errors = make(map[string][]string, len(verrs))
		for _, fe := range verrs {
			field := strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]
			apiErr.Errors[field] = append(apiErr.Errors[field], fmt.Sprintf("failed %s", fe.Tag()))
		}
	}
	return apiErr
}
