package sdk_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zgramming/cmsgate/pkg/sdk"
)

// fakeAPI is an identity authority plus one protected resource.
type fakeAPI struct {
	mu           sync.Mutex
	validToken   string
	nextToken    string
	refreshToken string
	refreshFail  bool
	refreshDelay time.Duration
	alwaysDeny   bool

	refreshCalls  atomic.Int32
	resourceCalls atomic.Int32
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		f.refreshCalls.Add(1)
		if f.refreshDelay > 0 {
			time.Sleep(f.refreshDelay)
		}
		c, err := r.Cookie(sdk.RefreshTokenCookie)
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.refreshFail || err != nil || c.Value != f.refreshToken {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid refresh token"})
			return
		}
		f.validToken = f.nextToken
		writeJSON(w, http.StatusOK, map[string]string{"token": f.nextToken})
	})
	mux.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
		f.resourceCalls.Add(1)
		c, err := r.Cookie(sdk.AccessTokenCookie)
		f.mu.Lock()
		valid := err == nil && c.Value == f.validToken && !f.alwaysDeny
		f.mu.Unlock()
		if !valid {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
			return
		}
		writeJSON(w, http.StatusOK, []map[string]string{{"id": "u1"}})
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": "validation failed",
			"errors":  map[string][]string{"email": {"is required"}},
		})
	})
	return mux
}

func newAuthedClient(t *testing.T, api *fakeAPI, opts ...sdk.ClientOption) (*sdk.Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	session, err := sdk.NewSession(srv.URL)
	require.NoError(t, err)
	session.SetSession(sdk.User{ID: "u1", Name: "Admin"}, "access-1", "refresh-1")

	return sdk.NewClient(srv.URL, session, opts...), srv
}

func TestRefreshOn401ThenRetrySucceeds(t *testing.T) {
	api := &fakeAPI{validToken: "expired", nextToken: "access-2", refreshToken: "refresh-1"}
	client, _ := newAuthedClient(t, api)

	var out []map[string]string
	require.NoError(t, client.Get(context.Background(), "/users", &out))

	assert.Len(t, out, 1)
	assert.EqualValues(t, 1, api.refreshCalls.Load())
	assert.EqualValues(t, 2, api.resourceCalls.Load())
	assert.Equal(t, "access-2", client.Session().AccessToken())
	assert.Equal(t, "refresh-1", client.Session().RefreshToken())
	assert.Equal(t, "Admin", client.Session().User().Name)
}

func TestSecond401AfterRetryIsFinal(t *testing.T) {
	api := &fakeAPI{validToken: "expired", nextToken: "access-2", refreshToken: "refresh-1", alwaysDeny: true}
	client, _ := newAuthedClient(t, api)

	err := client.Get(context.Background(), "/users", nil)

	var apiErr *sdk.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.EqualValues(t, 1, api.refreshCalls.Load(), "no second refresh")
	assert.EqualValues(t, 2, api.resourceCalls.Load())
	assert.True(t, client.Session().IsAuthenticated(), "a refused retry does not clear the session")
}

func TestRefreshFailureClearsSessionAndSignalsLogin(t *testing.T) {
	api := &fakeAPI{validToken: "expired", refreshToken: "refresh-1", refreshFail: true}
	var expired atomic.Int32
	client, _ := newAuthedClient(t, api, sdk.WithSessionExpiredHandler(func() { expired.Add(1) }))

	err := client.Get(context.Background(), "/users", nil)

	assert.ErrorIs(t, err, sdk.ErrSessionExpired)
	assert.EqualValues(t, 1, expired.Load())
	assert.False(t, client.Session().IsAuthenticated())
	assert.Nil(t, client.Session().User())
	assert.Empty(t, client.Session().AccessToken())
	assert.Empty(t, client.Session().RefreshToken())
	assert.EqualValues(t, 1, api.resourceCalls.Load(), "no retry after failed refresh")
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	api := &fakeAPI{
		validToken:   "expired",
		nextToken:    "access-2",
		refreshToken: "refresh-1",
		refreshDelay: 50 * time.Millisecond,
	}
	client, _ := newAuthedClient(t, api)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = client.Get(context.Background(), "/users", nil)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, api.refreshCalls.Load())
	assert.Equal(t, "access-2", client.Session().AccessToken())
}

func TestNon401ErrorIsNormalized(t *testing.T) {
	api := &fakeAPI{validToken: "access-1", refreshToken: "refresh-1"}
	client, _ := newAuthedClient(t, api)

	err := client.Post(context.Background(), "/broken", map[string]string{"name": "x"}, nil)

	var apiErr *sdk.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "validation failed", apiErr.Message)
	assert.Equal(t, []string{"is required"}, apiErr.Errors["email"])
	assert.Zero(t, api.refreshCalls.Load())
}

func TestUnauthenticatedRequestDoesNotRefresh(t *testing.T) {
	api := &fakeAPI{validToken: "access-1", refreshToken: "refresh-1"}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	session, err := sdk.NewSession(srv.URL)
	require.NoError(t, err)
	client := sdk.NewClient(srv.URL, session)

	err = client.Get(context.Background(), "/users", nil)

	var apiErr *sdk.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Zero(t, api.refreshCalls.Load())
}

type stubExchanger struct {
	calls atomic.Int32
	res   *sdk.RefreshResult
	err   error
}

func (s *stubExchanger) Refresh(ctx context.Context, refreshToken string) (*sdk.RefreshResult, error) {
	s.calls.Add(1)
	return s.res, s.err
}

func TestCoordinatorSkipsExchangeForSupersededToken(t *testing.T) {
	session, err := sdk.NewSession("http://api.example.test")
	require.NoError(t, err)
	session.SetSession(sdk.User{ID: "u1"}, "access-2", "refresh-1")

	ex := &stubExchanger{res: &sdk.RefreshResult{Token: "access-3"}}
	var outcomes []sdk.RefreshOutcome
	c := sdk.NewRefreshCoordinator(session, ex, sdk.WithRefreshObserver(func(o sdk.RefreshOutcome) {
		outcomes = append(outcomes, o)
	}))

	token, err := c.Refresh(context.Background(), "access-1")
	require.NoError(t, err)
	assert.Equal(t, "access-2", token)
	assert.Zero(t, ex.calls.Load())

	token, err = c.Refresh(context.Background(), "access-2")
	require.NoError(t, err)
	assert.Equal(t, "access-3", token)
	assert.EqualValues(t, 1, ex.calls.Load())
	assert.Equal(t, []sdk.RefreshOutcome{sdk.RefreshSuperseded, sdk.RefreshSucceeded}, outcomes)
}

func TestCoordinatorRotatesRefreshToken(t *testing.T) {
	session, err := sdk.NewSession("http://api.example.test")
	require.NoError(t, err)
	session.SetSession(sdk.User{ID: "u1"}, "access-1", "refresh-1")

	ex := &stubExchanger{res: &sdk.RefreshResult{Token: "access-2", RefreshToken: "refresh-2"}}
	_, err = sdk.NewRefreshCoordinator(session, ex).Refresh(context.Background(), "access-1")
	require.NoError(t, err)

	assert.Equal(t, "refresh-2", session.RefreshToken())
}

func TestCoordinatorFailureWrapsCause(t *testing.T) {
	session, err := sdk.NewSession("http://api.example.test")
	require.NoError(t, err)
	session.SetSession(sdk.User{ID: "u1"}, "access-1", "refresh-1")

	cause := errors.New("connection refused")
	_, err = sdk.NewRefreshCoordinator(session, &stubExchanger{err: cause}).Refresh(context.Background(), "access-1")

	assert.ErrorIs(t, err, sdk.ErrSessionExpired)
	assert.Contains(t, err.Error(), "connection refused")
	assert.False(t, session.IsAuthenticated())
}
