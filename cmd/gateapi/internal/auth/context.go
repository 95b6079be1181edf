package auth

import (
	"context"

	"github.com/zgramming/cmsgate/pkg/sdk"
)

type userContextKey struct{}

// SetUserContext stores the verified user for downstream handlers.
func SetUserContext(ctx context.Context, user *sdk.AuthenticatedUser) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// GetUserFromContext returns the verified user, if the gate resolved one.
func GetUserFromContext(ctx context.Context) (*sdk.AuthenticatedUser, bool) {
	user, ok := ctx.Value(userContextKey{}).(*sdk.AuthenticatedUser)
	return user, ok && user != nil
}
