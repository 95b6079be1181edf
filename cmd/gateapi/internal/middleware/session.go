package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/zgramming/cmsgate/cmd/gateapi/internal/auth"
	"github.com/zgramming/cmsgate/cmd/gateapi/internal/telemetry"
	"github.com/zgramming/cmsgate/pkg/sdk"
)

// TokenVerifier resolves an access token to its user, or nil with the
// reason verification failed.
type TokenVerifier interface {
	Check(ctx context.Context, token string) (*sdk.AuthenticatedUser, sdk.VerifyOutcome)
}

// RevocationChecker reports denylisted access tokens.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// Resolution is the outcome of resolving a request's token cookies.
type Resolution struct {
	User *sdk.AuthenticatedUser
	// Refreshed is set when a refresh exchange minted new tokens.
	Refreshed *sdk.RefreshResult
	// Clear is set when the presented cookies are dead and should be expired.
	Clear bool
}

// SessionResolver verifies the access token cookie and falls back to one
// refresh exchange. Concurrent requests presenting the same refresh token
// share the exchange.
type SessionResolver struct {
	verifier       TokenVerifier
	exchanger      sdk.RefreshExchanger
	revocations    RevocationChecker
	metrics        *telemetry.Metrics
	log            logrus.FieldLogger
	refreshTimeout time.Duration

	group singleflight.Group
}

// SessionDependencies bundles the collaborators of a SessionResolver.
type SessionDependencies struct {
	Verifier    TokenVerifier
	Exchanger   sdk.RefreshExchanger
	Revocations RevocationChecker // optional
	Metrics     *telemetry.Metrics
	Log         logrus.FieldLogger
}

func NewSessionResolver(deps SessionDependencies) *SessionResolver {
	log := deps.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SessionResolver{
		verifier:       deps.Verifier,
		exchanger:      deps.Exchanger,
		revocations:    deps.Revocations,
		metrics:        deps.Metrics,
		log:            log,
		refreshTimeout: sdk.DefaultRefreshTimeout,
	}
}

// Resolve never errors: any failure yields a Resolution without a user.
// Only a rejected access token leads to a refresh exchange. A failing
// denylist or identity service yields no user and keeps the cookies.
func (s *SessionResolver) Resolve(ctx context.Context, accessToken, refreshToken string) Resolution {
	if accessToken != "" {
		revoked, err := s.revoked(ctx, accessToken)
		if err != nil {
			return Resolution{}
		}
		if !revoked {
			user, outcome := s.verifier.Check(ctx, accessToken)
			if user != nil {
				return Resolution{User: user}
			}
			if !outcome.Refreshable() {
				s.log.WithField("outcome", outcome).Warn("token verification failed, skipping refresh")
				return Resolution{}
			}
		}
	}
	if refreshToken == "" {
		return Resolution{Clear: accessToken != ""}
	}

	result, err := s.Refresh(ctx, refreshToken)
	if err != nil {
		return Resolution{Clear: true}
	}
	user, outcome := s.verifier.Check(ctx, result.Token)
	if user == nil {
		// the new tokens are still written unless the authority rejected them
		return Resolution{Refreshed: result, Clear: outcome.Refreshable()}
	}
	return Resolution{User: user, Refreshed: result}
}

// ResolveRequest resolves r's cookies and writes any cookie changes to w.
func (s *SessionResolver) ResolveRequest(w http.ResponseWriter, r *http.Request, cookies auth.CookieWriter) *sdk.AuthenticatedUser {
	access, refresh := auth.TokensFromRequest(r)
	if access == "" && refresh == "" {
		return nil
	}

	res := s.Resolve(r.Context(), access, refresh)
	switch {
	case res.Clear:
		cookies.Clear(w)
	case res.Refreshed != nil:
		cookies.SetTokens(w, res.Refreshed.Token, res.Refreshed.RefreshToken)
	}
	return res.User
}

func (s *SessionResolver) revoked(ctx context.Context, token string) (bool, error) {
	if s.revocations == nil {
		return false, nil
	}
	return s.revocations.IsRevoked(ctx, token)
}

// Refresh runs the refresh exchange for refreshToken. Concurrent callers
// with the same token share one exchange.
func (s *SessionResolver) Refresh(ctx context.Context, refreshToken string) (*sdk.RefreshResult, error) {
	v, err, shared := s.group.Do(refreshToken, func() (any, error) {
		// detached so one caller's cancellation does not fail the others
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.refreshTimeout)
		defer cancel()

		result, err := s.exchanger.Refresh(rctx, refreshToken)
		if err != nil {
			s.metrics.RecordRefresh(sdk.RefreshFailed)
			s.log.WithError(err).Info("refresh exchange failed")
			return nil, err
		}
		s.metrics.RecordRefresh(sdk.RefreshSucceeded)
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.log.Debug("joined in-flight refresh exchange")
	}
	return v.(*sdk.RefreshResult), nil
}
