package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

const cookieFile = "cookies.json"

type storedCookie struct {
	Value   string    `json:"value"`
	Expires time.Time `json:"expires"`
}

// PersistentJar is an http.CookieJar for a single origin that mirrors
// cookie changes to a 0600 file so the session survives CLI restarts.
type PersistentJar struct {
	inner  *cookiejar.Jar
	origin *url.URL
	path   string
	now    func() time.Time

	mu      sync.Mutex
	cookies map[string]storedCookie
	saveErr error
}

var _ http.CookieJar = (*PersistentJar)(nil)

// NewPersistentJar loads unexpired cookies for origin from dir.
func NewPersistentJar(dir, origin string) (*PersistentJar, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}
	inner, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	j := &PersistentJar{
		inner:   inner,
		origin:  &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"},
		path:    filepath.Join(dir, cookieFile),
		now:     time.Now,
		cookies: map[string]storedCookie{},
	}
	if err := j.load(); err != nil {
		return nil, err
	}
	return j, nil
}

// Cookies implements http.CookieJar.
func (j *PersistentJar) Cookies(u *url.URL) []*http.Cookie {
	return j.inner.Cookies(u)
}

// SetCookies implements http.CookieJar. Only cookies for the jar's origin
// host are persisted.
func (j *PersistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.inner.SetCookies(u, cookies)
	if u.Host != j.origin.Host {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	now := j.now()
	for _, c := range cookies {
		switch {
		case c.MaxAge < 0 || c.Value == "":
			delete(j.cookies, c.Name)
		case c.MaxAge > 0:
			j.cookies[c.Name] = storedCookie{Value: c.Value, Expires: now.Add(time.Duration(c.MaxAge) * time.Second)}
		case !c.Expires.IsZero():
			j.cookies[c.Name] = storedCookie{Value: c.Value, Expires: c.Expires}
		default:
			// session cookie: kept for the process only
			delete(j.cookies, c.Name)
		}
	}
	j.saveErr = j.saveLocked()
}

// Err returns the last persistence error, if any.
func (j *PersistentJar) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.saveErr
}

func (j *PersistentJar) load() error {
	data, err := os.ReadFile(j.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read cookie file: %w", err)
	}
	stored := map[string]storedCookie{}
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("failed to unmarshal cookie file: %w", err)
	}

	now := j.now()
	restore := make([]*http.Cookie, 0, len(stored))
	for name, c := range stored {
		if !c.Expires.After(now) {
			continue
		}
		j.cookies[name] = c
		restore = append(restore, &http.Cookie{
			Name:     name,
			Value:    c.Value,
			Path:     "/",
			Expires:  c.Expires,
			Secure:   j.origin.Scheme == "https",
			SameSite: http.SameSiteStrictMode,
		})
	}
	j.inner.SetCookies(j.origin, restore)
	return nil
}

func (j *PersistentJar) saveLocked() error {
	data, err := json.MarshalIndent(j.cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cookies: %w", err)
	}
	return writePrivate(j.path, data)
}
