package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zgramming/cmsgate/pkg/sdk"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func identityServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sdk.LoginResponse{
			User:         sdk.User{ID: "u1", Name: "Admin", Email: "admin@example.com"},
			Token:        "access-1",
			RefreshToken: "refresh-1",
		})
	})
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		if ck, err := r.Cookie(sdk.RefreshTokenCookie); err != nil || ck.Value != "refresh-1" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid refresh token"})
			return
		}
		writeJSON(w, http.StatusOK, sdk.RefreshResult{Token: "access-2"})
	})
	mux.HandleFunc("GET /auth/verify", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": map[string]any{"id": "u1"}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(serverURL, dir string) *Provider {
	p := NewProvider(serverURL, dir)
	p.logOut = io.Discard
	return p
}

func TestProvider_SessionPersistsAcrossRuns(t *testing.T) {
	srv := identityServer(t)
	dir := t.TempDir()

	first, err := newTestProvider(srv.URL, dir).SDKClient()
	require.NoError(t, err)
	_, err = first.Login(context.Background(), "admin@example.com", "secret")
	require.NoError(t, err)

	second, err := newTestProvider(srv.URL, dir).SDKClient()
	require.NoError(t, err)
	assert.True(t, second.Session().IsAuthenticated())
	assert.Equal(t, "access-1", second.Session().AccessToken())
	assert.Equal(t, "u1", second.Session().User().ID)
}

func TestProvider_ReturnsSameClient(t *testing.T) {
	p := newTestProvider("http://localhost:5000", t.TempDir())
	a, err := p.SDKClient()
	require.NoError(t, err)
	b, err := p.SDKClient()
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestLiveUser_RefreshesOnce(t *testing.T) {
	srv := identityServer(t)
	c, err := newTestProvider(srv.URL, t.TempDir()).SDKClient()
	require.NoError(t, err)
	_, err = c.Login(context.Background(), "admin@example.com", "secret")
	require.NoError(t, err)

	// access-1 no longer verifies; the refresh mints access-2
	user := LiveUser(context.Background(), c)
	require.NotNil(t, user)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "access-2", c.Session().AccessToken())
}

func TestLiveUser_NoSession(t *testing.T) {
	srv := identityServer(t)
	c, err := newTestProvider(srv.URL, t.TempDir()).SDKClient()
	require.NoError(t, err)

	assert.Nil(t, LiveUser(context.Background(), c))
}

func TestLiveUser_UnavailableVerifyKeepsSession(t *testing.T) {
	var refreshCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sdk.LoginResponse{
			User:         sdk.User{ID: "u1"},
			Token:        "access-1",
			RefreshToken: "refresh-1",
		})
	})
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("GET /auth/verify", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := newTestProvider(srv.URL, t.TempDir()).SDKClient()
	require.NoError(t, err)
	_, err = c.Login(context.Background(), "admin@example.com", "secret")
	require.NoError(t, err)

	assert.Nil(t, LiveUser(context.Background(), c))
	assert.Zero(t, refreshCalls.Load())
	assert.True(t, c.Session().IsAuthenticated())
	assert.Equal(t, "refresh-1", c.Session().RefreshToken())
}
