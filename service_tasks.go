package taskman

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-taskman/repository"
	"github.com/google/uuid"
)

// TaskService exposes task operations. The user scoped methods go
// through the owner scoped repository methods and only ever see tasks
// owned by the given user.
type TaskService struct {
	*Service[*Task, TaskCreate, TaskUpdate]
	tasks Tasks
}

// NewTaskService creates a task service
func NewTaskService(tasks Tasks, logger Logger) *TaskService {
	return &TaskService{
		Service: NewService[*Task, TaskCreate, TaskUpdate](tasks, logger),
		tasks:   tasks,
	}
}

// ListTasks lists every task, optionally filtered by status
func (s *TaskService) ListTasks(ctx context.Context, page *repository.Pagination, status *TaskStatus) (*Page[*Task], error) {
	if err := validateStatusFilter(status); err != nil {
		return nil, err
	}
	return s.List(ctx, page, TaskCriteria(nil, status)...)
}

// GetTask returns any task by id
func (s *TaskService) GetTask(ctx context.Context, id uuid.UUID) (*Task, error) {
	return s.Get(ctx, id)
}

// ListUserTasks lists the tasks owned by owner
func (s *TaskService) ListUserTasks(ctx context.Context, owner uuid.UUID, page *repository.Pagination, status *TaskStatus) (*Page[*Task], error) {
	if err := validateStatusFilter(status); err != nil {
		return nil, err
	}
	return s.paginate(page,
		func(page *repository.Pagination) ([]*Task, error) {
			return s.tasks.ListUserTasks(ctx, owner, page, status)
		},
		func() (int, error) {
			return s.tasks.CountUserTasks(ctx, owner, status)
		},
	)
}

// GetUserTask returns the task if owner owns it, not found otherwise
func (s *TaskService) GetUserTask(ctx context.Context, owner, id uuid.UUID) (*Task, error) {
	task, err := s.tasks.GetUserTask(ctx, owner, id)
	if err != nil {
		return nil, s.translate(err, "get", id)
	}
	return task, nil
}

// CreateUserTask creates a task owned by owner
func (s *TaskService) CreateUserTask(ctx context.Context, owner uuid.UUID, data TaskCreate) (*Task, error) {
	data.UserID = owner
	return s.Create(ctx, data)
}

// UpdateUserTask applies a partial update to a task owned by owner
func (s *TaskService) UpdateUserTask(ctx context.Context, owner, id uuid.UUID, data TaskUpdate) (*Task, error) {
	if err := validate(data); err != nil {
		return nil, err
	}

	task, err := s.tasks.UpdateUserTask(ctx, owner, id, data)
	if err != nil {
		return nil, s.translate(err, "update", id)
	}
	return task, nil
}

// DeleteUserTask deletes a task owned by owner
func (s *TaskService) DeleteUserTask(ctx context.Context, owner, id uuid.UUID) error {
	if err := s.tasks.DeleteUserTask(ctx, owner, id); err != nil {
		return s.translate(err, "delete", id)
	}
	return nil
}

func validateStatusFilter(status *TaskStatus) error {
	if status == nil || *status == "" || status.IsValid() {
		return nil
	}
	return goerrors.NewValidation("invalid status filter", goerrors.FieldError{
		Field:   "status",
		Message: "must be one of: New, In progress, Completed",
		Value:   string(*status),
	}).
		WithTextCode(TextCodeValidationFailed).
		WithCode(goerrors.CodeBadRequest)
}
