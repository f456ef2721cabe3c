package taskman_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-taskman"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// newRouter builds a go-router fiber server rendering errors with logger
func newRouter(t *testing.T, logger taskman.Logger) (router.Server[*fiber.App], *fiber.App) {
	t.Helper()

	var app *fiber.App
	srv := router.NewFiberAdapter(func(_ *fiber.App) *fiber.App {
		app = router.DefaultFiberOptions(fiber.New(fiber.Config{
			ErrorHandler: taskman.ErrorHandler(logger),
		}))
		return app
	})
	return srv, app
}

func TestSessionCookies_SetAndRead(t *testing.T) {
	cfg := testConfig()
	cfg.CookieSecure = true
	cookies := taskman.NewSessionCookies(cfg)

	srv, app := newRouter(t, taskman.NoopLogger{})
	srv.Router().Get("/set", func(ctx router.Context) error {
		cookies.Set(ctx, taskman.TokenPair{
			AccessToken:      "a",
			RefreshToken:     "r",
			AccessExpiresAt:  time.Now().Add(cfg.GetAccessTokenTTL()),
			RefreshExpiresAt: time.Now().Add(cfg.GetRefreshTokenTTL()),
		})
		return ctx.NoContent(http.StatusNoContent)
	})
	srv.Router().Get("/read", func(ctx router.Context) error {
		return ctx.SendString(cookies.AccessToken(ctx) + "|" + cookies.RefreshToken(ctx))
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/set", nil))
	require.NoError(t, err)

	access := findCookie(resp.Cookies(), taskman.AccessTokenCookie)
	require.NotNil(t, access)
	assert.Equal(t, "a", access.Value)
	assert.True(t, access.Secure)
	assert.True(t, access.HttpOnly)
	assert.Equal(t, "/", access.Path)
	assert.Equal(t, http.SameSiteLaxMode, access.SameSite)

	refresh := findCookie(resp.Cookies(), taskman.RefreshTokenCookie)
	require.NotNil(t, refresh)
	assert.Equal(t, http.SameSiteStrictMode, refresh.SameSite)

	req := httptest.NewRequest(http.MethodGet, "/read", nil)
	req.AddCookie(access)
	req.AddCookie(refresh)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "a|r", body(t, resp))
}

func TestErrorHandler(t *testing.T) {
	validationErr := taskman.ValidationError(errors.New("not a field error"))

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCat    goerrors.Category
		wantCode   string
		wantMsg    string
	}{
		{"not found", taskman.NotFoundError("Task", 1), http.StatusNotFound, goerrors.CategoryNotFound, taskman.TextCodeNotFound, "Task with id 1 not found"},
		{"auth", taskman.ErrInvalidCredentials, http.StatusUnauthorized, goerrors.CategoryAuth, taskman.TextCodeInvalidCreds, "Incorrect username or password"},
		{"conflict", taskman.ErrUsernameTaken, http.StatusBadRequest, goerrors.CategoryConflict, taskman.TextCodeUsernameTaken, "Username already exists"},
		{"csrf", taskman.ErrCSRF, http.StatusForbidden, goerrors.CategoryAuthz, taskman.TextCodeCSRFFailed, "CSRF token missing or invalid"},
		{"validation", validationErr, http.StatusBadRequest, goerrors.CategoryValidation, taskman.TextCodeValidationFailed, "validation failed"},
		{"plain error is hidden", errors.New("pq: relation missing"), http.StatusInternalServerError, goerrors.CategoryInternal, taskman.TextCodeInternal, "Internal server error"},
		{"fiber error", fiber.ErrMethodNotAllowed, http.StatusMethodNotAllowed, goerrors.CategoryMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method Not Allowed"},
		{"fiber not found", fiber.ErrNotFound, http.StatusNotFound, goerrors.CategoryNotFound, "NOT_FOUND", "Not Found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := new(MockLogger)
			logger.On("Debug", mock.Anything, mock.Anything).Maybe()
			logger.On("Error", mock.Anything, mock.Anything).Maybe()

			srv, app := newRouter(t, logger)
			srv.Router().Get("/", func(router.Context) error { return tt.err })

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var env errorEnvelope
			decode(t, resp, &env)
			assert.Equal(t, string(tt.wantCat), env.Error.Category)
			assert.Equal(t, tt.wantCode, env.Error.TextCode)
			assert.Equal(t, tt.wantMsg, env.Error.Message)
			assert.Empty(t, env.Error.Source)

			if tt.wantCat == goerrors.CategoryInternal {
				logger.AssertCalled(t, "Error", mock.Anything, mock.Anything)
			}
		})
	}
}

type staticAuthenticator struct {
	user   *taskman.User
	claims *taskman.SessionClaims
	err    error
}

func (s staticAuthenticator) Authenticate(context.Context, string) (*taskman.User, error) {
	return s.user, s.err
}

func (s staticAuthenticator) AuthenticateClaims(context.Context, string) (*taskman.User, *taskman.SessionClaims, error) {
	return s.user, s.claims, s.err
}

func TestProtectedRoute(t *testing.T) {
	user := &taskman.User{ID: uuid.New(), Username: "alice"}
	claims := &taskman.SessionClaims{Type: taskman.TokenTypeAccess}

	newApp := func(t *testing.T, auth taskman.Authenticator, listeners ...taskman.ValidationListener) *fiber.App {
		srv, app := newRouter(t, taskman.NoopLogger{})
		srv.Router().Get("/", func(ctx router.Context) error {
			u, ok := taskman.FromContext(ctx.Context())
			if !ok {
				return ctx.Status(http.StatusTeapot).SendString("no user")
			}
			c, ok := taskman.GetClaims(ctx.Context())
			if !ok {
				return ctx.Status(http.StatusTeapot).SendString("no claims")
			}
			p, ok := ctx.Locals(taskman.SessionContextKey).(*taskman.Principal)
			if !ok || p.User != u {
				return ctx.Status(http.StatusTeapot).SendString("no principal")
			}
			return ctx.SendString(u.Username + "|" + string(c.Type))
		}, taskman.ProtectedRoute(auth, listeners...))
		return app
	}

	request := func() *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: taskman.AccessTokenCookie, Value: "token"})
		return req
	}

	t.Run("stores the user and claims in the request context", func(t *testing.T) {
		resp, err := newApp(t, staticAuthenticator{user: user, claims: claims}).Test(request())
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "alice|"+string(taskman.TokenTypeAccess), body(t, resp))
	})

	t.Run("listener sees the principal and can reject", func(t *testing.T) {
		var seen *taskman.Principal
		app := newApp(t, staticAuthenticator{user: user, claims: claims}, func(_ router.Context, p *taskman.Principal) error {
			seen = p
			return errors.New("suspended")
		})
		resp, err := app.Test(request())
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.NotNil(t, seen)
		assert.Same(t, claims, seen.Claims)
	})

	t.Run("missing token", func(t *testing.T) {
		resp, err := newApp(t, staticAuthenticator{user: user}).Test(httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		var env errorEnvelope
		decode(t, resp, &env)
		assert.Equal(t, taskman.TextCodeUnauthenticated, env.Error.TextCode)
	})

	t.Run("storage errors surface as internal", func(t *testing.T) {
		resp, err := newApp(t, staticAuthenticator{err: taskman.ErrInternal}).Test(request())
		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})
}

func TestContextEnricherAdapter(t *testing.T) {
	user := &taskman.User{ID: uuid.New()}
	claims := &taskman.SessionClaims{Type: taskman.TokenTypeAccess}

	ctx := taskman.ContextEnricherAdapter(context.Background(), &taskman.Principal{User: user, Claims: claims})

	got, ok := taskman.FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, user, got)

	gotClaims, ok := taskman.GetClaims(ctx)
	require.True(t, ok)
	assert.Same(t, claims, gotClaims)

	base := context.Background()
	assert.Equal(t, base, taskman.ContextEnricherAdapter(base, nil))
}
