package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/zgramming/cmsgate/cmd/gateapi/internal/db/models"
	"github.com/zgramming/cmsgate/cmd/gateapi/internal/repository"
)

// fallbackTokenTTL bounds denylist entries for tokens without a readable exp.
const fallbackTokenTTL = 7 * 24 * time.Hour

// TokenFingerprint identifies an access token on the denylist. Tokens are
// parsed without signature checks; the identity authority owns validation.
type TokenFingerprint struct {
	Key       string
	Subject   string
	ExpiresAt time.Time
}

// FingerprintToken derives the denylist key: jti:<jti> for JWTs carrying a
// jti claim, otherwise sha256:<hex> of the raw token.
func FingerprintToken(token string, now time.Time) TokenFingerprint {
	fp := TokenFingerprint{
		Key:       "sha256:" + HashBearerToken(token),
		ExpiresAt: now.Add(fallbackTokenTTL),
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return fp
	}
	if jti, _ := claims["jti"].(string); jti != "" {
		fp.Key = "jti:" + jti
	}
	if sub, err := claims.GetSubject(); err == nil {
		fp.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		fp.ExpiresAt = exp.Time
	}
	return fp
}

// HashBearerToken returns the SHA256 hex digest of token.
func HashBearerToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// Revoker keeps logged-out access tokens from passing the gate until they
// expire.
type Revoker struct {
	repo        repository.RevokedTokenRepository
	gracePeriod time.Duration
	log         logrus.FieldLogger
	now         func() time.Time
	onRevoke    func()
}

// RevokerOption configures a Revoker.
type RevokerOption func(*Revoker)

// WithRevocationObserver runs fn for every token added to the denylist.
func WithRevocationObserver(fn func()) RevokerOption {
	return func(r *Revoker) { r.onRevoke = fn }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) RevokerOption {
	return func(r *Revoker) { r.now = now }
}

func NewRevoker(repo repository.RevokedTokenRepository, gracePeriod time.Duration, log logrus.FieldLogger, opts ...RevokerOption) *Revoker {
	r := &Revoker{
		repo:        repo,
		gracePeriod: gracePeriod,
		log:         log,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Revoke adds token to the denylist. Already-expired tokens are skipped.
func (r *Revoker) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	fp := FingerprintToken(token, r.now())
	if !fp.ExpiresAt.After(r.now()) {
		return nil
	}

	err := r.repo.Create(ctx, &models.RevokedToken{
		Fingerprint: fp.Key,
		Subject:     fp.Subject,
		ExpiresAt:   fp.ExpiresAt.UTC(),
	})
	if err != nil {
		return err
	}
	if r.onRevoke != nil {
		r.onRevoke()
	}
	return nil
}

// IsRevoked reports whether token is denylisted. On a lookup error it
// answers true along with the error; callers must not treat the token as
// usable.
func (r *Revoker) IsRevoked(ctx context.Context, token string) (bool, error) {
	revoked, err := r.repo.IsRevoked(ctx, FingerprintToken(token, r.now()).Key)
	if err != nil {
		r.log.WithError(err).Error("denylist lookup failed, rejecting token")
		return true, fmt.Errorf("denylist lookup: %w", err)
	}
	return revoked, nil
}

// Sweep deletes entries expired for longer than the grace period.
func (r *Revoker) Sweep(ctx context.Context) (int64, error) {
	return r.repo.DeleteExpired(ctx, r.gracePeriod)
}

// StartSweeper runs Sweep every interval until ctx is done.
func (r *Revoker) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := r.Sweep(ctx)
				if err != nil {
					r.log.WithError(err).Warn("denylist sweep failed")
					continue
				}
				if n > 0 {
					r.log.WithField("deleted", n).Debug("swept expired denylist entries")
				}
			}
		}
	}()
}
