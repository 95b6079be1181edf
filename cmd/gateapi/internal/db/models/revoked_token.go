package models

import (
	"time"

	"github.com/uptrace/bun"
)

// RevokedToken is a logged-out access token kept on the denylist until it
// would have expired anyway.
type RevokedToken struct {
	bun.BaseModel `bun:"table:revoked_tokens,alias:rt"`

	ID          string    `bun:"id,pk"`
	Fingerprint string    `bun:"fingerprint,notnull,unique"` // jti:<jti> or sha256:<hex>
	Subject     string    `bun:"subject,nullzero"`
	ExpiresAt   time.Time `bun:"expires_at,notnull"`
	RevokedAt   time.Time `bun:"revoked_at,notnull,default:current_timestamp"`
}
