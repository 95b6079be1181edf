package sdk_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zgramming/cmsgate/pkg/sdk"
)

func TestVerifyMapsUserAndAccessLists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/auth/verify", r.URL.Path)
		assert.Equal(t, "Bearer good-token", r.Header.Get("Authorization"))
		assert.Contains(t, r.Header.Get("Cache-Control"), "no-store")
		writeJSON(w, http.StatusOK, map[string]any{
			"user": map[string]any{"id": "u1", "name": "Admin", "email": "admin@example.com", "role": "superadmin"},
			"access_categories": []map[string]any{
				{"category_id": "cat1", "status": true},
			},
			"access_modules": []map[string]any{
				{"module_id": "mod2", "status": true},
				{"module_id": "mod3", "status": false},
			},
		})
	}))
	defer srv.Close()

	v := sdk.NewVerifier(srv.URL + "/api")
	user := v.Verify(context.Background(), "good-token")

	require.NotNil(t, user)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "superadmin", user.Role)
	assert.True(t, user.CanAccessCategory("cat1"))
	assert.True(t, user.CanAccessModule("mod2"))
	assert.False(t, user.CanAccessModule("mod3"))
	assert.NotNil(t, user.AccessMenus, "absent list defaults to empty")
	assert.Empty(t, user.AccessMenus)
}

func TestVerifyFailsClosed(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		outcome sdk.VerifyOutcome
	}{
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "expired"})
			},
			outcome: sdk.VerifyRejected,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			outcome: sdk.VerifyUnavailable,
		},
		{
			name: "forbidden",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusForbidden, map[string]string{"message": "nope"})
			},
			outcome: sdk.VerifyUnavailable,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("{not json"))
			},
			outcome: sdk.VerifyInvalid,
		},
		{
			name: "missing user",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]any{"access_modules": []any{}})
			},
			outcome: sdk.VerifyInvalid,
		},
		{
			name: "user without id",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]any{"user": map[string]any{"name": "x"}})
			},
			outcome: sdk.VerifyInvalid,
		},
		{
			name: "access entry without id",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]any{
					"user":           map[string]any{"id": "u1"},
					"access_modules": []map[string]any{{"status": true}},
				})
			},
			outcome: sdk.VerifyInvalid,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			outcome: sdk.VerifyFault,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			var got sdk.VerifyOutcome
			v := sdk.NewVerifier(srv.URL,
				sdk.WithVerifyTimeout(50*time.Millisecond),
				sdk.WithVerifyObserver(func(o sdk.VerifyOutcome, _ time.Duration) { got = o }),
			)

			assert.Nil(t, v.Verify(context.Background(), "token"))
			assert.Equal(t, tt.outcome, got)
		})
	}
}

func TestVerifyUnreachableHostLogsAndReturnsNil(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	logger, hook := test.NewNullLogger()
	v := sdk.NewVerifier(url, sdk.WithVerifyLogger(logger))

	assert.Nil(t, v.Verify(context.Background(), "token"))
	require.NotEmpty(t, hook.Entries)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestVerifyEmptyTokenSkipsCall(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	assert.Nil(t, sdk.NewVerifier(srv.URL).Verify(context.Background(), ""))
	assert.False(t, called)
}

func TestVerifyPropagatesRequestID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "req-42", r.Header.Get(sdk.RequestIDHeader))
		writeJSON(w, http.StatusOK, map[string]any{"user": map[string]any{"id": "u1"}})
	}))
	defer srv.Close()

	ctx := sdk.WithRequestID(context.Background(), "req-42")
	assert.NotNil(t, sdk.NewVerifier(srv.URL).Verify(ctx, "token"))
}

func TestVerifyOutcomeRefreshable(t *testing.T) {
	assert.True(t, sdk.VerifyRejected.Refreshable())
	for _, o := range []sdk.VerifyOutcome{sdk.VerifyOK, sdk.VerifyUnavailable, sdk.VerifyInvalid, sdk.VerifyFault} {
		assert.False(t, o.Refreshable(), o)
	}
}

func TestCheckReportsOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	user, outcome := sdk.NewVerifier(srv.URL).Check(context.Background(), "token")
	assert.Nil(t, user)
	assert.Equal(t, sdk.VerifyUnavailable, outcome)
}
