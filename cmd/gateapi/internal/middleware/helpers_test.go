package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zgramming/cmsgate/pkg/sdk"
)

type fakeVerifier struct {
	mu    sync.Mutex
	users map[string]*sdk.AuthenticatedUser
	calls int
	// down makes every unknown token verify as unavailable instead of rejected.
	down bool
}

func newFakeVerifier() *fakeVerifier {
	return &fakeVerifier{users: map[string]*sdk.AuthenticatedUser{}}
}

func (f *fakeVerifier) add(token string, user *sdk.AuthenticatedUser) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[token] = user
}

func (f *fakeVerifier) Check(_ context.Context, token string) (*sdk.AuthenticatedUser, sdk.VerifyOutcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if user := f.users[token]; user != nil {
		return user, sdk.VerifyOK
	}
	if f.down {
		return nil, sdk.VerifyUnavailable
	}
	return nil, sdk.VerifyRejected
}

func (f *fakeVerifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeExchanger struct {
	calls  atomic.Int32
	delay  time.Duration
	result map[string]*sdk.RefreshResult
}

func (f *fakeExchanger) Refresh(_ context.Context, refreshToken string) (*sdk.RefreshResult, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if res, ok := f.result[refreshToken]; ok {
		return res, nil
	}
	return nil, &sdk.APIError{Message: "invalid refresh token", StatusCode: http.StatusUnauthorized}
}

type staticRevocations map[string]bool

func (s staticRevocations) IsRevoked(_ context.Context, token string) (bool, error) {
	return s[token], nil
}

type brokenRevocations struct{}

func (brokenRevocations) IsRevoked(context.Context, string) (bool, error) {
	return true, errors.New("database is locked")
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func adminUser() *sdk.AuthenticatedUser {
	return &sdk.AuthenticatedUser{
		User:             sdk.User{ID: "u1", Name: "Admin", Email: "admin@example.com", Role: "admin"},
		AccessCategories: []sdk.AccessCategory{{CategoryID: "cat1", Enabled: true}},
		AccessModules:    []sdk.AccessModule{{ModuleID: "mod1", Enabled: true}, {ModuleID: "mod2", Enabled: false}},
		AccessMenus:      []sdk.AccessMenu{},
	}
}

func requestWithCookies(method, target, access, refresh string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	if access != "" {
		req.AddCookie(&http.Cookie{Name: sdk.AccessTokenCookie, Value: access})
	}
	if refresh != "" {
		req.AddCookie(&http.Cookie{Name: sdk.RefreshTokenCookie, Value: refresh})
	}
	return req
}

func responseCookies(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}
