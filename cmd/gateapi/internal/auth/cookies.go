package auth

import (
	"net/http"
	"time"

	"github.com/zgramming/cmsgate/pkg/sdk"
)

// CookieWriter sets and clears the browser token cookies. The gateway is the
// only reader, so both cookies are HttpOnly.
type CookieWriter struct {
	Secure bool
}

// SetTokens writes the access token and, when non-empty, the refresh token.
// An empty refresh token keeps the browser's current one.
func (c CookieWriter) SetTokens(w http.ResponseWriter, accessToken, refreshToken string) {
	http.SetCookie(w, c.cookie(sdk.AccessTokenCookie, accessToken, sdk.AccessTokenMaxAge))
	if refreshToken != "" {
		http.SetCookie(w, c.cookie(sdk.RefreshTokenCookie, refreshToken, sdk.RefreshTokenMaxAge))
	}
}

// Clear expires both token cookies.
func (c CookieWriter) Clear(w http.ResponseWriter) {
	for _, name := range []string{sdk.AccessTokenCookie, sdk.RefreshTokenCookie} {
		ck := c.cookie(name, "", 0)
		ck.MaxAge = -1
		ck.Expires = time.Unix(0, 0)
		http.SetCookie(w, ck)
	}
}

func (c CookieWriter) cookie(name, value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// TokensFromRequest reads the access and refresh token cookies.
func TokensFromRequest(r *http.Request) (accessToken, refreshToken string) {
	if ck, err := r.Cookie(sdk.AccessTokenCookie); err == nil {
		accessToken = ck.Value
	}
	if ck, err := r.Cookie(sdk.RefreshTokenCookie); err == nil {
		refreshToken = ck.Value
	}
	return accessToken, refreshToken
}
