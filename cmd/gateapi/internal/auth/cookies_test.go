package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zgramming/cmsgate/pkg/sdk"
)

func cookiesByName(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func TestCookieWriter_SetTokens(t *testing.T) {
	rec := httptest.NewRecorder()
	CookieWriter{Secure: true}.SetTokens(rec, "acc", "ref")

	cookies := cookiesByName(rec)
	require.Contains(t, cookies, sdk.AccessTokenCookie)
	require.Contains(t, cookies, sdk.RefreshTokenCookie)

	access := cookies[sdk.AccessTokenCookie]
	assert.Equal(t, "acc", access.Value)
	assert.Equal(t, 604800, access.MaxAge)
	assert.True(t, access.HttpOnly)
	assert.True(t, access.Secure)
	assert.Equal(t, http.SameSiteStrictMode, access.SameSite)
	assert.Equal(t, "/", access.Path)
	assert.Equal(t, 2592000, cookies[sdk.RefreshTokenCookie].MaxAge)
}

func TestCookieWriter_EmptyRefreshKeepsCurrent(t *testing.T) {
	rec := httptest.NewRecorder()
	CookieWriter{}.SetTokens(rec, "acc", "")

	cookies := cookiesByName(rec)
	assert.Contains(t, cookies, sdk.AccessTokenCookie)
	assert.NotContains(t, cookies, sdk.RefreshTokenCookie)
}

func TestCookieWriter_Clear(t *testing.T) {
	rec := httptest.NewRecorder()
	CookieWriter{}.Clear(rec)

	cookies := cookiesByName(rec)
	require.Len(t, cookies, 2)
	for _, c := range cookies {
		assert.Empty(t, c.Value)
		assert.Equal(t, -1, c.MaxAge)
	}
}

func TestTokensFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sdk.AccessTokenCookie, Value: "a"})
	req.AddCookie(&http.Cookie{Name: sdk.RefreshTokenCookie, Value: "r"})

	access, refresh := TokensFromRequest(req)
	assert.Equal(t, "a", access)
	assert.Equal(t, "r", refresh)

	access, refresh = TokensFromRequest(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, access)
	assert.Empty(t, refresh)
}
