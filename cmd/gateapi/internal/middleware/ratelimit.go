package middleware

import (
	"net"
	"net/http"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// maxTrackedClients bounds the limiter cache. An evicted client starts
// again with a full burst.
const maxTrackedClients = 10000

// RateLimiter throttles requests per client address.
type RateLimiter struct {
	clients *lru.Cache[string, *rate.Limiter]
	limit   rate.Limit
	burst   int
	onLimit func()
}

// NewRateLimiter allows perMinute requests per client with the given burst.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	return newRateLimiter(perMinute, burst, maxTrackedClients)
}

func newRateLimiter(perMinute, burst, size int) *RateLimiter {
	clients, err := lru.New[string, *rate.Limiter](size)
	if err != nil {
		// lru.New only fails for a non-positive size
		panic(err)
	}
	return &RateLimiter{
		clients: clients,
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   burst,
	}
}

// OnLimit registers fn to run for every rejected request.
func (l *RateLimiter) OnLimit(fn func()) *RateLimiter {
	l.onLimit = fn
	return l
}

// Allow reports whether the client identified by key may proceed.
func (l *RateLimiter) Allow(key string) bool {
	lim, ok := l.clients.Get(key)
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		if prev, found, _ := l.clients.PeekOrAdd(key, lim); found {
			lim = prev
		}
	}
	return lim.Allow()
}

// Tracked returns the number of clients with a live limiter.
func (l *RateLimiter) Tracked() int {
	return l.clients.Len()
}

// Middleware responds 429 once a client exceeds its rate.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientKey(r)) {
			if l.onLimit != nil {
				l.onLimit()
			}
			w.Header().Set("Retry-After", "60")
			WriteError(w, http.StatusTooManyRequests, "too many requests, try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey is the client IP; RealIP may already have stripped the port.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
