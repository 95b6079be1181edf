package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_PerClientBurst(t *testing.T) {
	limited := 0
	l := NewRateLimiter(1, 2).OnLimit(func() { limited++ })
	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, send("10.0.0.1:1111"))
	assert.Equal(t, http.StatusNoContent, send("10.0.0.1:2222"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:3333"))
	assert.Equal(t, http.StatusNoContent, send("10.0.0.2:1111"))
	assert.Equal(t, 1, limited)
}

func TestRateLimiter_BoundedClients(t *testing.T) {
	l := newRateLimiter(1, 1, 2)

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
	assert.True(t, l.Allow("c"))
	assert.Equal(t, 2, l.Tracked())

	// "a" was least recently used and has been evicted
	assert.True(t, l.Allow("a"))
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	assert.Equal(t, "192.0.2.7", clientKey(req))

	req.RemoteAddr = "192.0.2.8"
	assert.Equal(t, "192.0.2.8", clientKey(req))
}
