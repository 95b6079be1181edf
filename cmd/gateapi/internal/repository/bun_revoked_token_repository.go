package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/zgramming/cmsgate/cmd/gateapi/internal/db/models"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// BunRevokedTokenRepository implements RevokedTokenRepository using Bun ORM
type BunRevokedTokenRepository struct {
	db *bun.DB
}

// NewBunRevokedTokenRepository creates a new Bun-based revoked token repository
func NewBunRevokedTokenRepository(db *bun.DB) RevokedTokenRepository {
	return &BunRevokedTokenRepository{db: db}
}

// Create adds a token to the denylist
func (r *BunRevokedTokenRepository) Create(ctx context.Context, token *models.RevokedToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.RevokedAt.IsZero() {
		token.RevokedAt = time.Now().UTC()
	}

	_, err := r.db.NewInsert().
		Model(token).
		On("CONFLICT (fingerprint) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create revoked token: %w", err)
	}
	return nil
}

// IsRevoked checks if a fingerprint is on the denylist
func (r *BunRevokedTokenRepository) IsRevoked(ctx context.Context, fingerprint string) (bool, error) {
	exists, err := r.db.NewSelect().
		Model((*models.RevokedToken)(nil)).
		Where("fingerprint = ?", fingerprint).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return exists, nil
}

// DeleteExpired removes entries where expires_at < now - gracePeriod
func (r *BunRevokedTokenRepository) DeleteExpired(ctx context.Context, gracePeriod time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-gracePeriod)

	res, err := r.db.NewDelete().
		Model((*models.RevokedToken)(nil)).
		Where("expires_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete expired revoked tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted revoked tokens: %w", err)
	}
	return n, nil
}

// GetByFingerprint retrieves a denylist entry
func (r *BunRevokedTokenRepository) GetByFingerprint(ctx context.Context, fingerprint string) (*models.RevokedToken, error) {
	token := new(models.RevokedToken)
	err := r.db.NewSelect().
		Model(token).
		Where("fingerprint = ?", fingerprint).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("revoked token %s: %w", fingerprint, ErrNotFound)
		}
		return nil, fmt.Errorf("get revoked token: %w", err)
	}
	return token, nil
}
