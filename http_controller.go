package taskman

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-taskman/middleware/csrf"
	"github.com/goliatone/go-taskman/repository"
	"github.com/google/uuid"
)

// RegisterRoutes mounts the auth and task routes on app under the
// configured prefix. Everything except health and the auth endpoints
// requires a valid access token.
func RegisterRoutes[T any](app router.Router[T], cfg Config, auther *Auther, tasks *TaskService, opts ...ControllerOption) {
	o := buildControllerOptions(opts)

	prefix := cfg.APIPrefix
	if prefix == "" {
		prefix = DefaultAPIPrefix
	}

	ctrl := NewAuthController(auther, NewSessionCookies(cfg), opts...)
	taskCtrl := NewTaskController(tasks, opts...)

	api := app.Group(prefix)
	api.Get("/health", HealthHandler).SetName("health")

	authGroup := api.Group("/auth")
	authGroup.Post("/register", ctrl.Register).SetName("auth.register")
	authGroup.Post("/login", ctrl.Login).SetName("auth.login")
	authGroup.Post("/refresh", ctrl.Refresh).SetName("auth.refresh")
	authGroup.Post("/logout", ctrl.Logout).SetName("auth.logout")

	protected := ProtectedRoute(auther, o.listeners...)

	api.Get("/tasks", taskCtrl.List, protected).SetName("tasks.list")
	api.Get("/tasks/:id", taskCtrl.Get, protected).SetName("tasks.get")

	userMws := []router.MiddlewareFunc{protected}
	user := api.Group("/user")
	if cfg.CSRFProtection {
		userMws = append(userMws, CSRFGuard(cfg))
		csrf.RegisterRoutes(user, csrf.RouteConfig{Middleware: userMws})
	}

	user.Get("/me", ctrl.Me, userMws...).SetName("user.me")

	user.Get("/tasks", taskCtrl.ListMine, userMws...).SetName("user.tasks.list")
	user.Post("/tasks", taskCtrl.Create, userMws...).SetName("user.tasks.create")
	user.Get("/tasks/:id", taskCtrl.GetMine, userMws...).SetName("user.tasks.get")
	user.Patch("/tasks/:id", taskCtrl.Update, userMws...).SetName("user.tasks.update")
	user.Delete("/tasks/:id", taskCtrl.Delete, userMws...).SetName("user.tasks.delete")
}

// HealthHandler reports liveness
func HealthHandler(ctx router.Context) error {
	return ctx.JSON(router.StatusOK, map[string]any{"ok": true})
}

type ControllerOption func(*controllerOptions)

type controllerOptions struct {
	logger    Logger
	debug     bool
	listeners []ValidationListener
}

// WithControllerLogger sets the logger used by the controllers
func WithControllerLogger(logger Logger) ControllerOption {
	return func(o *controllerOptions) {
		o.logger = logger
	}
}

// WithControllerDebug dumps decoded payloads at debug level
func WithControllerDebug(debug bool) ControllerOption {
	return func(o *controllerOptions) {
		o.debug = debug
	}
}

// WithValidationListeners adds listeners to the access token middleware
func WithValidationListeners(listeners ...ValidationListener) ControllerOption {
	return func(o *controllerOptions) {
		o.listeners = append(o.listeners, listeners...)
	}
}

func buildControllerOptions(opts []ControllerOption) controllerOptions {
	o := controllerOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	o.logger = normalizeLogger(o.logger)
	return o
}

// AuthController serves the session endpoints
type AuthController struct {
	auther  *Auther
	cookies *SessionCookies
	logger  Logger
	debug   bool
}

func NewAuthController(auther *Auther, cookies *SessionCookies, opts ...ControllerOption) *AuthController {
	if auther == nil {
		panic("Missing Auther in auth controller...")
	}

	o := buildControllerOptions(opts)
	return &AuthController{
		auther:  auther,
		cookies: cookies,
		logger:  o.logger,
		debug:   o.debug,
	}
}

func (a *AuthController) Register(ctx router.Context) error {
	payload := new(RegisterRequest)
	if err := bindBody(ctx, payload); err != nil {
		return err
	}

	if a.debug {
		// the password is never dumped
		a.logger.Debug("register payload: %s", print.MaybePrettyJSON(map[string]any{
			"username":   payload.Username,
			"first_name": payload.FirstName,
			"last_name":  payload.LastName,
		}))
	}

	res, pair, err := a.auther.Register(ctx.Context(), *payload)
	if err != nil {
		return err
	}

	a.cookies.Set(ctx, pair)
	return ctx.JSON(http.StatusCreated, res)
}

func (a *AuthController) Login(ctx router.Context) error {
	payload := new(LoginRequest)
	if err := bindBody(ctx, payload); err != nil {
		return err
	}

	res, pair, err := a.auther.Login(ctx.Context(), *payload)
	if err != nil {
		return err
	}

	a.cookies.Set(ctx, pair)
	return ctx.JSON(router.StatusOK, res)
}

func (a *AuthController) Refresh(ctx router.Context) error {
	res, pair, err := a.auther.Refresh(ctx.Context(), a.cookies.RefreshToken(ctx))
	if err != nil {
		return err
	}

	a.cookies.Set(ctx, pair)
	return ctx.JSON(router.StatusOK, res)
}

func (a *AuthController) Logout(ctx router.Context) error {
	a.cookies.Clear(ctx)
	return ctx.JSON(router.StatusOK, map[string]string{"message": "Successfully logged out"})
}

func (a *AuthController) Me(ctx router.Context) error {
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(router.StatusOK, user)
}

// TaskController serves the task endpoints
type TaskController struct {
	tasks  *TaskService
	logger Logger
	debug  bool
}

func NewTaskController(tasks *TaskService, opts ...ControllerOption) *TaskController {
	if tasks == nil {
		panic("Missing TaskService in task controller...")
	}

	o := buildControllerOptions(opts)
	return &TaskController{
		tasks:  tasks,
		logger: o.logger,
		debug:  o.debug,
	}
}

// TaskListQuery holds the list query string. Nil page values were not
// sent and take the defaults, an explicit zero is rejected.
type TaskListQuery struct {
	Page     *int
	PageSize *int
	Status   string
}

func (q TaskListQuery) pagination() *repository.Pagination {
	page := repository.NewPagination()
	if q.Page != nil {
		page.Page = *q.Page
	}
	if q.PageSize != nil {
		page.PageSize = *q.PageSize
	}
	return page
}

func (q TaskListQuery) status() *TaskStatus {
	if q.Status == "" {
		return nil
	}
	s := TaskStatus(q.Status)
	return &s
}

func (t *TaskController) List(ctx router.Context) error {
	q, err := parseListQuery(ctx)
	if err != nil {
		return err
	}

	page, err := t.tasks.ListTasks(ctx.Context(), q.pagination(), q.status())
	if err != nil {
		return err
	}
	return ctx.JSON(router.StatusOK, page)
}

func (t *TaskController) Get(ctx router.Context) error {
	id, err := taskIDParam(ctx)
	if err != nil {
		return err
	}

	task, err := t.tasks.GetTask(ctx.Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(router.StatusOK, task)
}

func (t *TaskController) ListMine(ctx router.Context) error {
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}

	q, err := parseListQuery(ctx)
	if err != nil {
		return err
	}

	page, err := t.tasks.ListUserTasks(ctx.Context(), user.ID, q.pagination(), q.status())
	if err != nil {
		return err
	}
	return ctx.JSON(router.StatusOK, page)
}

func (t *TaskController) GetMine(ctx router.Context) error {
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}

	id, err := taskIDParam(ctx)
	if err != nil {
		return err
	}

	task, err := t.tasks.GetUserTask(ctx.Context(), user.ID, id)
	if err != nil {
		return err
	}
	return ctx.JSON(router.StatusOK, task)
}

func (t *TaskController) Create(ctx router.Context) error {
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}

	payload := new(TaskCreate)
	if err := bindBody(ctx, payload); err != nil {
		return err
	}

	if t.debug {
		t.logger.Debug("create task payload: %s", print.MaybePrettyJSON(payload))
	}

	task, err := t.tasks.CreateUserTask(ctx.Context(), user.ID, *payload)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, task)
}

// Update applies a partial update. A status query parameter takes
// precedence over the status in the body.
func (t *TaskController) Update(ctx router.Context) error {
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}

	id, err := taskIDParam(ctx)
	if err != nil {
		return err
	}

	payload := new(TaskUpdate)
	if len(ctx.Body()) > 0 {
		if err := bindBody(ctx, payload); err != nil {
			return err
		}
	}

	if status := strings.TrimSpace(ctx.Query("status", "")); status != "" {
		s := TaskStatus(status)
		payload.Status = &s
	}

	if t.debug {
		t.logger.Debug("update task %s payload: %s", id, print.MaybePrettyJSON(payload))
	}

	task, err := t.tasks.UpdateUserTask(ctx.Context(), user.ID, id, *payload)
	if err != nil {
		return err
	}
	return ctx.JSON(router.StatusOK, task)
}

func (t *TaskController) Delete(ctx router.Context) error {
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}

	id, err := taskIDParam(ctx)
	if err != nil {
		return err
	}

	if err := t.tasks.DeleteUserTask(ctx.Context(), user.ID, id); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func currentUser(ctx router.Context) (*User, error) {
	if principal, ok := ctx.Locals(SessionContextKey).(*Principal); ok && principal != nil && principal.User != nil {
		return principal.User, nil
	}
	if user, ok := FromContext(ctx.Context()); ok {
		return user, nil
	}
	return nil, ErrUnauthenticated
}

func bindBody(ctx router.Context, out any) error {
	if err := ctx.Bind(out); err != nil {
		return badInput(err, "Failed to parse request body", TextCodeBadRequestBody)
	}
	return nil
}

func parseListQuery(ctx router.Context) (TaskListQuery, error) {
	q := TaskListQuery{Status: strings.TrimSpace(ctx.Query("status", ""))}

	var err error
	if q.Page, err = queryInt(ctx, "page"); err != nil {
		return q, err
	}
	if q.PageSize, err = queryInt(ctx, "page_size"); err != nil {
		return q, err
	}
	return q, nil
}

// queryInt returns nil when name is absent or empty
func queryInt(ctx router.Context, name string) (*int, error) {
	raw := strings.TrimSpace(ctx.Query(name, ""))
	if raw == "" {
		return nil, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, badInput(err, "Invalid query parameters", TextCodeBadQuery).
			WithMetadata(map[string]any{"param": name, "value": raw})
	}
	return &n, nil
}

func taskIDParam(ctx router.Context) (uuid.UUID, error) {
	raw := ctx.Param("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, badInput(err, "Invalid task id", TextCodeBadTaskID).
			WithMetadata(map[string]any{"id": raw})
	}
	return id, nil
}
