package auth

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zgramming/cmsgate/cmd/gateapi/internal/db/bunx"
	"github.com/zgramming/cmsgate/cmd/gateapi/internal/db/models"
	"github.com/zgramming/cmsgate/cmd/gateapi/internal/migrations"
	"github.com/zgramming/cmsgate/cmd/gateapi/internal/repository"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func setupRepo(t *testing.T) repository.RevokedTokenRepository {
	t.Helper()
	ctx := context.Background()
	db, err := bunx.NewDB(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { bunx.Close(db) })
	_, err = migrations.Apply(ctx, db)
	require.NoError(t, err)
	return repository.NewBunRevokedTokenRepository(db)
}

func TestFingerprintToken(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	exp := now.Add(time.Hour)

	t.Run("jwt with jti", func(t *testing.T) {
		tok := signedToken(t, jwt.MapClaims{"jti": "j-1", "sub": "u1", "exp": exp.Unix()})
		fp := FingerprintToken(tok, now)
		assert.Equal(t, "jti:j-1", fp.Key)
		assert.Equal(t, "u1", fp.Subject)
		assert.True(t, fp.ExpiresAt.Equal(exp))
	})

	t.Run("jwt without jti", func(t *testing.T) {
		tok := signedToken(t, jwt.MapClaims{"sub": "u1", "exp": exp.Unix()})
		fp := FingerprintToken(tok, now)
		assert.Equal(t, "sha256:"+HashBearerToken(tok), fp.Key)
		assert.True(t, fp.ExpiresAt.Equal(exp))
	})

	t.Run("opaque token", func(t *testing.T) {
		fp := FingerprintToken("opaque-token", now)
		assert.Equal(t, "sha256:"+HashBearerToken("opaque-token"), fp.Key)
		assert.Empty(t, fp.Subject)
		assert.Equal(t, now.Add(fallbackTokenTTL), fp.ExpiresAt)
	})
}

func TestRevoker_RevokeAndCheck(t *testing.T) {
	repo := setupRepo(t)
	revocations := 0
	r := NewRevoker(repo, time.Hour, quietLogger(), WithRevocationObserver(func() { revocations++ }))
	ctx := context.Background()

	tok := signedToken(t, jwt.MapClaims{"jti": "j-2", "exp": time.Now().Add(time.Hour).Unix()})
	revoked, err := r.IsRevoked(ctx, tok)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, r.Revoke(ctx, tok))
	revoked, err = r.IsRevoked(ctx, tok)
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.Equal(t, 1, revocations)

	other := signedToken(t, jwt.MapClaims{"jti": "j-3", "exp": time.Now().Add(time.Hour).Unix()})
	revoked, err = r.IsRevoked(ctx, other)
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRevoker_SkipsExpiredAndEmpty(t *testing.T) {
	repo := setupRepo(t)
	r := NewRevoker(repo, time.Hour, quietLogger())
	ctx := context.Background()

	expired := signedToken(t, jwt.MapClaims{"jti": "old", "exp": time.Now().Add(-time.Minute).Unix()})
	require.NoError(t, r.Revoke(ctx, expired))
	require.NoError(t, r.Revoke(ctx, ""))

	revoked, err := repo.IsRevoked(ctx, "jti:old")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRevoker_Sweep(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &models.RevokedToken{Fingerprint: "jti:gone", ExpiresAt: time.Now().Add(-3 * time.Hour).UTC()}))

	r := NewRevoker(repo, time.Hour, quietLogger())
	n, err := r.Sweep(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

type failingRepo struct{ repository.RevokedTokenRepository }

func (failingRepo) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("database is locked")
}

func TestRevoker_LookupErrorFailsClosed(t *testing.T) {
	r := NewRevoker(failingRepo{}, time.Hour, quietLogger())
	revoked, err := r.IsRevoked(context.Background(), "any")
	require.Error(t, err)
	assert.True(t, revoked)
}
