package taskman

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

// SessionCookies writes and reads the session token pair. The access
// cookie is SameSite=Lax, the refresh cookie SameSite=Strict, both are
// HttpOnly so page scripts never see them.
type SessionCookies struct {
	AccessName  string
	RefreshName string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	Secure      bool
	Path        string
}

// NewSessionCookies builds the cookie settings from cfg
func NewSessionCookies(cfg Config) *SessionCookies {
	return &SessionCookies{
		AccessName:  AccessTokenCookie,
		RefreshName: RefreshTokenCookie,
		AccessTTL:   cfg.GetAccessTokenTTL(),
		RefreshTTL:  cfg.GetRefreshTokenTTL(),
		Secure:      cfg.CookieSecure,
		Path:        "/",
	}
}

// Set writes both cookies
func (s *SessionCookies) Set(ctx router.Context, pair TokenPair) {
	ctx.Cookie(&router.Cookie{
		Name:     s.AccessName,
		Value:    pair.AccessToken,
		Path:     s.Path,
		Expires:  pair.AccessExpiresAt,
		Secure:   s.Secure,
		HTTPOnly: true,
		SameSite: "Lax",
	})

	ctx.Cookie(&router.Cookie{
		Name:     s.RefreshName,
		Value:    pair.RefreshToken,
		Path:     s.Path,
		Expires:  pair.RefreshExpiresAt,
		Secure:   s.Secure,
		HTTPOnly: true,
		SameSite: "Strict",
	})
}

// Clear expires both cookies on the client. Tokens already issued stay
// valid until they expire.
func (s *SessionCookies) Clear(ctx router.Context) {
	s.cookieDel(ctx, s.AccessName, "Lax")
	s.cookieDel(ctx, s.RefreshName, "Strict")
}

// AccessToken returns the access cookie value
func (s *SessionCookies) AccessToken(ctx router.Context) string {
	return ctx.Cookies(s.AccessName)
}

// RefreshToken returns the refresh cookie value
func (s *SessionCookies) RefreshToken(ctx router.Context) string {
	return ctx.Cookies(s.RefreshName)
}

func (s *SessionCookies) cookieDel(ctx router.Context, name, sameSite string) {
	ctx.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Path:     s.Path,
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		Secure:   s.Secure,
		HTTPOnly: true,
		SameSite: sameSite,
	})
}

// ErrorHandler renders every error returned by a handler as the
// go-errors response envelope {"error": {...}}. Internal errors are
// logged and shown as a generic message.
func ErrorHandler(logger Logger) fiber.ErrorHandler {
	logger = normalizeLogger(logger)

	return func(c *fiber.Ctx, err error) error {
		var richErr *goerrors.Error

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			richErr = goerrors.New(fiberErr.Message, goerrors.HTTPStatusToCategory(fiberErr.Code)).
				WithCode(fiberErr.Code).
				WithTextCode(goerrors.HTTPStatusToTextCode(fiberErr.Code))
		} else {
			richErr = AsError(err)
		}

		code := StatusCode(richErr)

		var out *goerrors.Error
		if richErr.Category == goerrors.CategoryInternal {
			logger.Error("%s %s failed: %v", c.Method(), c.Path(), err)
			out = ErrInternal.Clone()
		} else {
			logger.Debug("%s %s: %s %s", c.Method(), c.Path(), richErr.Message, print.MaybePrettyJSON(richErr.Metadata))
			out = richErr.Clone()
			out.Source = nil
		}

		return c.Status(code).JSON(out.ToErrorResponse(false, nil))
	}
}
