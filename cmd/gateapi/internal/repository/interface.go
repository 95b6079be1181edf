package repository

import (
	"context"
	"time"

	"github.com/zgramming/cmsgate/cmd/gateapi/internal/db/models"
)

// RevokedTokenRepository persists the access-token denylist.
type RevokedTokenRepository interface {
	// Create adds a token; an existing fingerprint is left unchanged.
	Create(ctx context.Context, token *models.RevokedToken) error
	IsRevoked(ctx context.Context, fingerprint string) (bool, error)
	// DeleteExpired removes entries that expired more than gracePeriod ago
	// and returns how many were removed.
	DeleteExpired(ctx context.Context, gracePeriod time.Duration) (int64, error)
	GetByFingerprint(ctx context.Context, fingerprint string) (*models.RevokedToken, error)
}
