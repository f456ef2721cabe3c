package taskman_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-taskman"
	"github.com/goliatone/go-taskman/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	t   *testing.T
	app *fiber.App
}

func newTestServer(t *testing.T, mutate ...func(*taskman.Config)) *testServer {
	t.Helper()

	ctx := context.Background()
	cfg := testConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}

	db, err := persistence.Open(ctx, cfg, taskman.NoopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, persistence.Migrate(ctx, db))

	repo := taskman.NewRepositoryManager(db, cfg)
	require.NoError(t, repo.Validate())

	tokens, err := taskman.NewTokenService(cfg)
	require.NoError(t, err)

	auther := taskman.NewAuthenticator(repo.Users(), tokens, cfg).WithLogger(taskman.NoopLogger{})
	tasks := taskman.NewTaskService(repo.Tasks(), taskman.NoopLogger{})

	srv, app := newRouter(t, taskman.NoopLogger{})
	taskman.RegisterRoutes(srv.Router(), cfg, auther, tasks)

	return &testServer{t: t, app: app}
}

func (s *testServer) do(method, path string, payload any, cookies ...*http.Cookie) *http.Response {
	s.t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(s.t, err)
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, "/api/v1"+path, body)
	if payload != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(s.t, err)
	return resp
}

// session registers a user and returns its cookies
func (s *testServer) session(username string) (uuid.UUID, []*http.Cookie) {
	s.t.Helper()

	resp := s.do(http.MethodPost, "/auth/register", map[string]any{
		"first_name": "Test",
		"username":   username,
		"password":   "secret1",
	})
	require.Equal(s.t, http.StatusCreated, resp.StatusCode)

	var res taskman.AuthResult
	decode(s.t, resp, &res)
	return res.UserID, resp.Cookies()
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(raw)
}

type errorEnvelope struct {
	Error struct {
		Category string `json:"category"`
		TextCode string `json:"text_code"`
		Message  string `json:"message"`
		Source   string `json:"source"`
		Metadata map[string]any `json:"metadata"`
		Fields   []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"validation_errors"`
	} `json:"error"`
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]bool
	decode(t, resp, &body)
	assert.True(t, body["ok"])
}

func TestRegister_SetsSessionCookies(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.do(http.MethodPost, "/auth/register", map[string]any{
		"first_name": "A",
		"username":   "alice",
		"password":   "secret1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var res taskman.AuthResult
	decode(t, resp, &res)
	assert.Equal(t, taskman.MessageRegistered, res.Message)
	assert.NotEqual(t, uuid.Nil, res.UserID)

	access := findCookie(resp.Cookies(), taskman.AccessTokenCookie)
	require.NotNil(t, access)
	assert.True(t, access.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, access.SameSite)
	assert.WithinDuration(t, time.Now().Add(time.Hour), access.Expires, time.Minute)

	refresh := findCookie(resp.Cookies(), taskman.RefreshTokenCookie)
	require.NotNil(t, refresh)
	assert.True(t, refresh.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, refresh.SameSite)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), refresh.Expires, time.Minute)
}

func TestRegister_DuplicateUsername(t *testing.T) {
	srv := newTestServer(t)
	srv.session("alice")

	resp := srv.do(http.MethodPost, "/auth/register", map[string]any{
		"first_name": "B",
		"username":   "alice",
		"password":   "other12",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var env errorEnvelope
	decode(t, resp, &env)
	assert.Equal(t, "Username already exists", env.Error.Message)
}

func TestRegister_ValidationFailure(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.do(http.MethodPost, "/auth/register", map[string]any{
		"first_name": "A",
		"username":   "",
		"password":   "123",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var env errorEnvelope
	decode(t, resp, &env)
	assert.Equal(t, string(goerrors.CategoryValidation), env.Error.Category)
}

func TestAuth_BlankUsernameIsRejected(t *testing.T) {
	srv := newTestServer(t)
	srv.session("alice")

	for _, username := range []string{"   ", "\t \n"} {
		resp := srv.do(http.MethodPost, "/auth/register", map[string]any{
			"first_name": "A",
			"username":   username,
			"password":   "secret1",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var env errorEnvelope
		decode(t, resp, &env)
		assert.Equal(t, taskman.TextCodeValidationFailed, env.Error.TextCode)
		require.NotEmpty(t, env.Error.Fields)
		assert.Equal(t, "username", env.Error.Fields[0].Field)

		resp = srv.do(http.MethodPost, "/auth/login", map[string]any{
			"username": username,
			"password": "secret1",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	}
}

func TestRegister_TrimsUsername(t *testing.T) {
	srv := newTestServer(t)
	srv.session("alice")

	resp := srv.do(http.MethodPost, "/auth/register", map[string]any{
		"first_name": "B",
		"username":   "  alice  ",
		"password":   "other12",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var env errorEnvelope
	decode(t, resp, &env)
	assert.Equal(t, taskman.TextCodeUsernameTaken, env.Error.TextCode)

	resp = srv.do(http.MethodPost, "/auth/login", map[string]any{
		"username": " alice ",
		"password": "secret1",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegister_MalformedBody(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewBufferString("{not json"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := srv.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogin(t *testing.T) {
	srv := newTestServer(t)
	userID, _ := srv.session("alice")

	t.Run("valid credentials", func(t *testing.T) {
		resp := srv.do(http.MethodPost, "/auth/login", map[string]any{
			"username": "alice",
			"password": "secret1",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotNil(t, findCookie(resp.Cookies(), taskman.AccessTokenCookie))
		assert.NotNil(t, findCookie(resp.Cookies(), taskman.RefreshTokenCookie))

		var res taskman.AuthResult
		decode(t, resp, &res)
		assert.Equal(t, taskman.MessageLoggedIn, res.Message)
		assert.Equal(t, userID, res.UserID)
	})

	t.Run("wrong password", func(t *testing.T) {
		resp := srv.do(http.MethodPost, "/auth/login", map[string]any{
			"username": "alice",
			"password": "wrong-pass",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Nil(t, findCookie(resp.Cookies(), taskman.AccessTokenCookie))
	})

	t.Run("unknown user", func(t *testing.T) {
		resp := srv.do(http.MethodPost, "/auth/login", map[string]any{
			"username": "nobody",
			"password": "secret1",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		var env errorEnvelope
		decode(t, resp, &env)
		assert.Equal(t, "Incorrect username or password", env.Error.Message)
	})
}

func TestRefresh(t *testing.T) {
	srv := newTestServer(t)
	userID, cookies := srv.session("alice")

	t.Run("rotates the pair", func(t *testing.T) {
		refresh := findCookie(cookies, taskman.RefreshTokenCookie)
		resp := srv.do(http.MethodPost, "/auth/refresh", nil, refresh)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		next := findCookie(resp.Cookies(), taskman.RefreshTokenCookie)
		require.NotNil(t, next)
		assert.NotEqual(t, refresh.Value, next.Value)

		var res taskman.AuthResult
		decode(t, resp, &res)
		assert.Equal(t, taskman.MessageRefreshed, res.Message)
		assert.Equal(t, userID, res.UserID)
	})

	t.Run("missing cookie", func(t *testing.T) {
		resp := srv.do(http.MethodPost, "/auth/refresh", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		var env errorEnvelope
		decode(t, resp, &env)
		assert.Equal(t, "Refresh token missing", env.Error.Message)
	})

	t.Run("access token in refresh cookie", func(t *testing.T) {
		access := findCookie(cookies, taskman.AccessTokenCookie)
		resp := srv.do(http.MethodPost, "/auth/refresh", nil, &http.Cookie{
			Name:  taskman.RefreshTokenCookie,
			Value: access.Value,
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestLogout_ClearsCookies(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.do(http.MethodPost, "/auth/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	access := findCookie(resp.Cookies(), taskman.AccessTokenCookie)
	require.NotNil(t, access)
	assert.Empty(t, access.Value)
}

func TestProtectedRoutes_RequireAccessToken(t *testing.T) {
	srv := newTestServer(t)
	_, cookies := srv.session("alice")

	t.Run("no token", func(t *testing.T) {
		resp := srv.do(http.MethodGet, "/user/me", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		var env errorEnvelope
		decode(t, resp, &env)
		assert.Equal(t, string(goerrors.CategoryAuth), env.Error.Category)
	})

	t.Run("refresh token used as access token", func(t *testing.T) {
		refresh := findCookie(cookies, taskman.RefreshTokenCookie)
		resp := srv.do(http.MethodGet, "/user/me", nil, &http.Cookie{
			Name:  taskman.AccessTokenCookie,
			Value: refresh.Value,
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("bearer header", func(t *testing.T) {
		access := findCookie(cookies, taskman.AccessTokenCookie)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/user/me", nil)
		req.Header.Set("Authorization", "Bearer "+access.Value)

		resp, err := srv.app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("me", func(t *testing.T) {
		resp := srv.do(http.MethodGet, "/user/me", nil, cookies...)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]any
		decode(t, resp, &body)
		assert.Equal(t, "alice", body["username"])
		assert.NotContains(t, body, "password_hash")
	})
}

func TestUserTasks_CRUD(t *testing.T) {
	srv := newTestServer(t)
	userID, cookies := srv.session("alice")

	resp := srv.do(http.MethodPost, "/user/tasks", map[string]any{
		"title": "write tests",
	}, cookies...)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created taskman.Task
	decode(t, resp, &created)
	assert.Equal(t, userID, created.UserID)
	assert.Equal(t, taskman.TaskStatusNew, created.Status)
	path := "/user/tasks/" + created.ID.String()

	resp = srv.do(http.MethodGet, path, nil, cookies...)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = srv.do(http.MethodPatch, path, map[string]any{
		"description": "cover the controllers",
	}, cookies...)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated taskman.Task
	decode(t, resp, &updated)
	assert.Equal(t, "write tests", updated.Title)
	require.NotNil(t, updated.Description)
	assert.Equal(t, "cover the controllers", *updated.Description)

	resp = srv.do(http.MethodPatch, path+"?status=Completed", map[string]any{
		"status": "In progress",
	}, cookies...)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &updated)
	assert.Equal(t, taskman.TaskStatusCompleted, updated.Status)

	resp = srv.do(http.MethodDelete, path, nil, cookies...)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = srv.do(http.MethodGet, path, nil, cookies...)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUserTasks_OwnerIsolation(t *testing.T) {
	srv := newTestServer(t)
	_, alice := srv.session("alice")
	_, bob := srv.session("bob")

	resp := srv.do(http.MethodPost, "/user/tasks", map[string]any{"title": "private"}, alice...)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var task taskman.Task
	decode(t, resp, &task)
	path := "/user/tasks/" + task.ID.String()

	resp = srv.do(http.MethodGet, path, nil, bob...)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = srv.do(http.MethodPatch, path, map[string]any{"title": "stolen"}, bob...)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = srv.do(http.MethodDelete, path, nil, bob...)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = srv.do(http.MethodGet, "/user/tasks", nil, bob...)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page taskman.Page[taskman.Task]
	decode(t, resp, &page)
	assert.Equal(t, 0, page.Total)

	// the global listing still sees it
	resp = srv.do(http.MethodGet, "/tasks/"+task.ID.String(), nil, bob...)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTasks_ListPagination(t *testing.T) {
	srv := newTestServer(t)
	_, cookies := srv.session("alice")

	for i := 0; i < 11; i++ {
		status := "New"
		if i%2 == 0 {
			status = "Completed"
		}
		resp := srv.do(http.MethodPost, "/user/tasks", map[string]any{
			"title":  "task",
			"status": status,
		}, cookies...)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp := srv.do(http.MethodGet, "/user/tasks?page=2&page_size=10", nil, cookies...)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var page taskman.Page[taskman.Task]
	decode(t, resp, &page)
	assert.Equal(t, 11, page.Total)
	assert.Equal(t, 2, page.Pages)
	assert.Equal(t, 2, page.Page)
	assert.Len(t, page.Items, 1)

	// absent parameters take the defaults
	resp = srv.do(http.MethodGet, "/user/tasks", nil, cookies...)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &page)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 10, page.PageSize)
	assert.Len(t, page.Items, 10)

	resp = srv.do(http.MethodGet, "/tasks?status=Completed", nil, cookies...)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &page)
	assert.Equal(t, 6, page.Total)
	for _, item := range page.Items {
		assert.Equal(t, taskman.TaskStatusCompleted, item.Status)
	}
}

func TestTasks_BadInput(t *testing.T) {
	srv := newTestServer(t)
	_, cookies := srv.session("alice")

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"page size over limit", http.MethodGet, "/tasks?page_size=101", nil, http.StatusBadRequest},
		{"page below one", http.MethodGet, "/user/tasks?page=-1", nil, http.StatusBadRequest},
		{"explicit zero page", http.MethodGet, "/user/tasks?page=0", nil, http.StatusBadRequest},
		{"explicit zero page size", http.MethodGet, "/user/tasks?page_size=0", nil, http.StatusBadRequest},
		{"explicit zero page on global list", http.MethodGet, "/tasks?page=0&page_size=10", nil, http.StatusBadRequest},
		{"non numeric page", http.MethodGet, "/tasks?page=abc", nil, http.StatusBadRequest},
		{"unknown status filter", http.MethodGet, "/tasks?status=Done", nil, http.StatusBadRequest},
		{"bad task id", http.MethodGet, "/tasks/not-a-uuid", nil, http.StatusBadRequest},
		{"missing task", http.MethodGet, "/tasks/" + uuid.NewString(), nil, http.StatusNotFound},
		{"empty title", http.MethodPost, "/user/tasks", map[string]any{"title": ""}, http.StatusBadRequest},
		{"unknown status", http.MethodPost, "/user/tasks", map[string]any{"title": "x", "status": "Done"}, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := srv.do(tc.method, tc.path, tc.body, cookies...)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestTasks_ExplicitZeroPaginationIsRejected(t *testing.T) {
	srv := newTestServer(t)
	_, cookies := srv.session("alice")

	for query, field := range map[string]string{
		"page=0":      "page",
		"page_size=0": "page_size",
	} {
		resp := srv.do(http.MethodGet, "/user/tasks?"+query, nil, cookies...)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, query)

		var env errorEnvelope
		decode(t, resp, &env)
		assert.Equal(t, taskman.TextCodeValidationFailed, env.Error.TextCode)
		require.Len(t, env.Error.Fields, 1, query)
		assert.Equal(t, field, env.Error.Fields[0].Field)
	}

	resp := srv.do(http.MethodGet, "/user/tasks?page=abc", nil, cookies...)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var env errorEnvelope
	decode(t, resp, &env)
	assert.Equal(t, taskman.TextCodeBadQuery, env.Error.TextCode)
	assert.Equal(t, "page", env.Error.Metadata["param"])
}

func TestUserRoutes_CSRFProtection(t *testing.T) {
	srv := newTestServer(t, func(cfg *taskman.Config) { cfg.CSRFProtection = true })
	_, cookies := srv.session("alice")

	resp := srv.do(http.MethodPost, "/user/tasks", map[string]any{"title": "x"}, cookies...)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = srv.do(http.MethodGet, "/user/csrf", nil, cookies...)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var payload map[string]string
	decode(t, resp, &payload)
	require.NotEmpty(t, payload["token"])

	raw, err := json.Marshal(map[string]any{"title": "x"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/user/tasks", bytes.NewReader(raw))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(payload["header_name"], payload["token"])
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err = srv.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// safe methods pass without a token
	resp = srv.do(http.MethodGet, "/user/tasks", nil, cookies...)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
