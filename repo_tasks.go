package taskman

import (
	"context"
	"time"

	"github.com/goliatone/go-taskman/repository"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const taskOwnerColumn = "user_id"

// Tasks is the task repository. The *UserTask methods scope every
// lookup to the owner, a task owned by someone else reads as missing.
type Tasks interface {
	repository.Repository[*Task, TaskCreate, TaskUpdate]

	GetUserTask(ctx context.Context, owner, id uuid.UUID) (*Task, error)
	ListUserTasks(ctx context.Context, owner uuid.UUID, page *repository.Pagination, status *TaskStatus) ([]*Task, error)
	CountUserTasks(ctx context.Context, owner uuid.UUID, status *TaskStatus) (int, error)
	UpdateUserTask(ctx context.Context, owner, id uuid.UUID, data TaskUpdate) (*Task, error)
	DeleteUserTask(ctx context.Context, owner, id uuid.UUID) error
}

type tasks struct {
	repository.Repository[*Task, TaskCreate, TaskUpdate]
}

var _ Tasks = (*tasks)(nil)

// NewTasksRepository creates the task repository
func NewTasksRepository(db *bun.DB, opts ...repository.Option) Tasks {
	handlers := repository.ModelHandlers[*Task, TaskCreate, TaskUpdate]{
		Kind:      "Task",
		NewRecord: func() *Task { return &Task{} },
		GetID: func(t *Task) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *Task, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
		FromCreate:  newTaskRecord,
		ApplyUpdate: applyTaskUpdate,
		Touch: func(t *Task, now time.Time, isNew bool) {
			if isNew {
				t.CreatedAt = now
			}
			t.UpdatedAt = now
		},
	}

	return &tasks{
		Repository: repository.NewRepository(db, handlers, opts...),
	}
}

func (r *tasks) GetUserTask(ctx context.Context, owner, id uuid.UUID) (*Task, error) {
	return r.Get(ctx, id, repository.OwnedBy(taskOwnerColumn, owner))
}

func (r *tasks) ListUserTasks(ctx context.Context, owner uuid.UUID, page *repository.Pagination, status *TaskStatus) ([]*Task, error) {
	return r.List(ctx, page, TaskCriteria(&owner, status)...)
}

func (r *tasks) CountUserTasks(ctx context.Context, owner uuid.UUID, status *TaskStatus) (int, error) {
	return r.Count(ctx, TaskCriteria(&owner, status)...)
}

func (r *tasks) UpdateUserTask(ctx context.Context, owner, id uuid.UUID, data TaskUpdate) (*Task, error) {
	return r.Update(ctx, id, data, repository.OwnedBy(taskOwnerColumn, owner))
}

func (r *tasks) DeleteUserTask(ctx context.Context, owner, id uuid.UUID) error {
	return r.Delete(ctx, id, repository.OwnedBy(taskOwnerColumn, owner))
}

// TaskCriteria builds the optional owner and status filters
func TaskCriteria(owner *uuid.UUID, status *TaskStatus) []repository.SelectCriteria {
	var criteria []repository.SelectCriteria
	if owner != nil {
		criteria = append(criteria, repository.OwnedBy(taskOwnerColumn, *owner))
	}
	if status != nil && *status != "" {
		criteria = append(criteria, repository.WhereEq("status", string(*status)))
	}
	return criteria
}
