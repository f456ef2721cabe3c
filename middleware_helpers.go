package taskman

import (
	"context"
	"crypto/sha256"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-taskman/middleware/csrf"
	"github.com/goliatone/go-taskman/middleware/jwtware"
)

// ErrCSRF is returned when a state changing request lacks a valid CSRF token
var ErrCSRF = goerrors.New("CSRF token missing or invalid", goerrors.CategoryAuthz).
	WithTextCode(TextCodeCSRFFailed).
	WithCode(goerrors.CodeForbidden)

// SessionContextKey is the locals key ProtectedRoute stores the Principal under
const SessionContextKey = "session"

// Principal is the authenticated user together with the access token
// claims that resolved it
type Principal struct {
	User   *User
	Claims *SessionClaims
}

// ValidationListener aliases the jwtware listener for the Principal
type ValidationListener = jwtware.ValidationListener[*Principal]

// ProtectedRoute returns the access token middleware. The Principal is
// stored in locals under SessionContextKey, the user and claims in the
// request context. Listeners run after the token resolves and can
// still reject the request.
func ProtectedRoute(auther Authenticator, listeners ...ValidationListener) router.MiddlewareFunc {
	cfg := jwtware.Config[*Principal]{
		Authenticator:   principalAuthenticator(auther),
		ContextKey:      SessionContextKey,
		ErrorHandler:    protectedRouteError,
		ContextEnricher: ContextEnricherAdapter,
	}
	RegisterValidationListeners(&cfg, listeners...)
	return jwtware.New(cfg)
}

func principalAuthenticator(auther Authenticator) jwtware.AuthenticatorFunc[*Principal] {
	return func(ctx context.Context, raw string) (*Principal, error) {
		user, claims, err := auther.AuthenticateClaims(ctx, raw)
		if err != nil {
			return nil, err
		}
		return &Principal{User: user, Claims: claims}, nil
	}
}

// ContextEnricherAdapter stores the authenticated user and its claims
// in the standard context so services can read them with FromContext
// and GetClaims.
func ContextEnricherAdapter(c context.Context, principal *Principal) context.Context {
	if principal == nil {
		return c
	}
	if principal.User != nil {
		c = WithContext(c, principal.User)
	}
	if principal.Claims != nil {
		c = WithClaimsContext(c, principal.Claims)
	}
	return c
}

// RegisterValidationListeners appends listeners to a jwtware.Config in a safe, reusable way.
func RegisterValidationListeners(cfg *jwtware.Config[*Principal], listeners ...ValidationListener) {
	if cfg == nil || len(listeners) == 0 {
		return
	}
	cfg.ValidationListeners = append(cfg.ValidationListeners, listeners...)
}

// storage failures keep their category, everything else is a 401
func protectedRouteError(_ router.Context, err error) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Category == goerrors.CategoryInternal {
		return err
	}
	return withSource(ErrUnauthenticated, err)
}

// CSRFGuard requires unsafe requests to echo the token served by
// GET /user/csrf. It must run after ProtectedRoute, tokens are bound
// to the authenticated user. The signing key is derived from the JWT key.
func CSRFGuard(cfg Config) router.MiddlewareFunc {
	key := sha256.Sum256([]byte("csrf:" + cfg.GetSigningKey()))

	return csrf.New(csrf.Config{
		SecureKey: key[:],
		SessionKey: func(ctx router.Context) string {
			if user, ok := FromContext(ctx.Context()); ok {
				return "user_" + user.GetID()
			}
			return "ip_" + ctx.IP()
		},
		ErrorHandler: func(_ router.Context, err error) error {
			return withSource(ErrCSRF, err)
		},
	})
}
