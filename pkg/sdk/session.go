package sdk

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/oauth2"
)

const (
	// AccessTokenCookie carries the access token.
	AccessTokenCookie = "auth-token"
	// RefreshTokenCookie carries the refresh token.
	RefreshTokenCookie = "auth-refresh-token"

	AccessTokenMaxAge  = 7 * 24 * time.Hour
	RefreshTokenMaxAge = 30 * 24 * time.Hour
)

// Snapshot is the restart-surviving subset of a session. Tokens are never
// part of it.
type Snapshot struct {
	User            *User `json:"user"`
	IsAuthenticated bool  `json:"isAuthenticated"`
}

// SnapshotStore persists the session snapshot.
type SnapshotStore interface {
	SaveSnapshot(*Snapshot) error
	LoadSnapshot() (*Snapshot, error)
}

// Session is the credential store: the current tokens and user snapshot.
// Tokens live in a cookie jar scoped to the API origin; only Session reads
// or writes that jar. Mutate it only through SetSession, ClearSession and
// PatchUser.
type Session struct {
	origin    *url.URL
	jar       http.CookieJar
	snapshots SnapshotStore
	log       logrus.FieldLogger

	mu            sync.RWMutex
	user          *User
	accessToken   string
	refreshToken  string
	authenticated bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSnapshotStore persists snapshots to store.
func WithSnapshotStore(store SnapshotStore) SessionOption {
	return func(s *Session) {
		s.snapshots = store
	}
}

// WithCookieJar replaces the in-memory cookie jar, typically with one that
// survives restarts.
func WithCookieJar(jar http.CookieJar) SessionOption {
	return func(s *Session) {
		s.jar = jar
	}
}

// WithSessionLogger sets the logger used for persistence warnings.
func WithSessionLogger(log logrus.FieldLogger) SessionOption {
	return func(s *Session) {
		s.log = log
	}
}

// NewSession creates an unauthenticated session for the API at origin.
func NewSession(origin string, opts ...SessionOption) (*Session, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("parse session origin: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("session origin %q must be absolute", origin)
	}

	s := &Session{origin: &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}}
	for _, opt := range opts {
		opt(s)
	}
	if s.jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		s.jar = jar
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	return s, nil
}

// Init restores the session from the persisted snapshot and the cookie
// jar. A snapshot that claims authentication without both tokens present
// is cleared.
func (s *Session) Init() error {
	var snap *Snapshot
	if s.snapshots != nil {
		var err error
		if snap, err = s.snapshots.LoadSnapshot(); err != nil {
			return fmt.Errorf("load session snapshot: %w", err)
		}
	}

	access, refresh := s.jarTokens()

	s.mu.Lock()
	defer s.mu.Unlock()
	if snap != nil && snap.IsAuthenticated && snap.User != nil && access != "" && refresh != "" {
		u := *snap.User
		s.user = &u
		s.accessToken = access
		s.refreshToken = refresh
		s.authenticated = true
		return nil
	}
	if (snap != nil && snap.IsAuthenticated) || access != "" || refresh != "" {
		s.clearLocked()
	}
	return nil
}

// SetSession replaces the user and both tokens and marks the session
// authenticated. An empty refreshToken keeps the current one, which is how
// a refresh that does not rotate the refresh token is applied.
func (s *Session) SetSession(user User, accessToken, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if refreshToken == "" {
		refreshToken = s.refreshToken
	}
	if refreshToken == "" {
		s.log.Warn("session set without a refresh token")
	}

	s.user = &user
	s.accessToken = accessToken
	s.refreshToken = refreshToken
	s.authenticated = true

	s.jar.SetCookies(s.origin, []*http.Cookie{
		s.tokenCookie(AccessTokenCookie, accessToken, AccessTokenMaxAge),
		s.tokenCookie(RefreshTokenCookie, refreshToken, RefreshTokenMaxAge),
	})
	s.persistLocked()
}

// ClearSession expires both token cookies and resets to unauthenticated.
func (s *Session) ClearSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

// PatchUser merges patch into the current user. It does nothing when no
// user is set and never touches tokens.
func (s *Session) PatchUser(patch UserPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return
	}
	u := *s.user
	patch.apply(&u)
	s.user = &u
	s.persistLocked()
}

// User returns a copy of the current user, or nil.
func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// IsAuthenticated reports whether a session is held.
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// AccessToken returns the current access token, or "".
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the current refresh token, or "".
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// Token returns the access token as a bearer oauth2.Token, or nil.
func (s *Session) Token() *oauth2.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.accessToken == "" {
		return nil
	}
	return &oauth2.Token{AccessToken: s.accessToken, TokenType: "Bearer", RefreshToken: s.refreshToken}
}

// Snapshot returns the persistable view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// AttachCredentials replaces any token cookies on req with the ones the
// jar holds for req's URL. Other cookies are preserved.
func (s *Session) AttachCredentials(req *http.Request) {
	kept := req.Cookies()
	req.Header.Del("Cookie")
	for _, c := range kept {
		if c.Name != AccessTokenCookie && c.Name != RefreshTokenCookie {
			req.AddCookie(c)
		}
	}
	for _, c := range s.jar.Cookies(req.URL) {
		if c.Name == AccessTokenCookie {
			req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
		}
	}
}

func (s *Session) jarTokens() (access, refresh string) {
	for _, c := range s.jar.Cookies(s.origin) {
		switch c.Name {
		case AccessTokenCookie:
			access = c.Value
		case RefreshTokenCookie:
			refresh = c.Value
		}
	}
	return access, refresh
}

func (s *Session) tokenCookie(name, value string, maxAge time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Secure:   s.origin.Scheme == "https",
		SameSite: http.SameSiteStrictMode,
	}
	if maxAge > 0 {
		c.MaxAge = int(maxAge / time.Second)
	} else {
		c.MaxAge = -1
	}
	return c
}

func (s *Session) clearLocked() {
	s.jar.SetCookies(s.origin, []*http.Cookie{
		s.tokenCookie(AccessTokenCookie, "", 0),
		s.tokenCookie(RefreshTokenCookie, "", 0),
	})
	s.user = nil
	s.accessToken = ""
	s.refreshToken = ""
	s.authenticated = false
	s.persistLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{IsAuthenticated: s.authenticated}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

func (s *Session) persistLocked() {
	if s.snapshots == nil {
		return
	}
	snap := s.snapshotLocked()
	if err := s.snapshots.SaveSnapshot(&snap); err != nil {
		s.log.WithError(err).Warn("failed to persist session snapshot")
	}
}
