package taskman

import (
	"context"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-taskman/repository"
	"github.com/google/uuid"
)

// Page is the list envelope returned to clients
type Page[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Pages    int `json:"pages"`
}

// Service sits between controllers and a repository. It validates
// input and turns storage errors into go-errors values: missing rows
// become not found, unique violations become conflicts and everything
// else is reported as an internal error with the detail logged only.
type Service[T any, C any, U any] struct {
	repo   repository.Repository[T, C, U]
	logger Logger
}

// NewService creates a generic service over repo
func NewService[T any, C any, U any](repo repository.Repository[T, C, U], logger Logger) *Service[T, C, U] {
	return &Service[T, C, U]{
		repo:   repo,
		logger: normalizeLogger(logger),
	}
}

func (s *Service[T, C, U]) Get(ctx context.Context, id uuid.UUID, criteria ...repository.SelectCriteria) (T, error) {
	record, err := s.repo.Get(ctx, id, criteria...)
	if err != nil {
		var zero T
		return zero, s.translate(err, "get", id)
	}
	return record, nil
}

// List runs the page query and the count as two separate units of
// work, they are not required to observe the same snapshot
func (s *Service[T, C, U]) List(ctx context.Context, page *repository.Pagination, criteria ...repository.SelectCriteria) (*Page[T], error) {
	return s.paginate(page,
		func(page *repository.Pagination) ([]T, error) {
			return s.repo.List(ctx, page, criteria...)
		},
		func() (int, error) {
			return s.repo.Count(ctx, criteria...)
		},
	)
}

// paginate validates page, then runs list and count and builds the envelope
func (s *Service[T, C, U]) paginate(page *repository.Pagination, list func(*repository.Pagination) ([]T, error), count func() (int, error)) (*Page[T], error) {
	if page == nil {
		page = repository.NewPagination()
	}

	if err := page.Validate(); err != nil {
		return nil, ValidationError(err)
	}

	items, err := list(page)
	if err != nil {
		return nil, s.translate(err, "list", nil)
	}

	total, err := count()
	if err != nil {
		return nil, s.translate(err, "count", nil)
	}

	return &Page[T]{
		Items:    items,
		Total:    total,
		Page:     page.Page,
		PageSize: page.PageSize,
		Pages:    page.Pages(total),
	}, nil
}

func (s *Service[T, C, U]) Create(ctx context.Context, data C) (T, error) {
	var zero T

	if err := validate(data); err != nil {
		return zero, err
	}

	record, err := s.repo.Create(ctx, data)
	if err != nil {
		s.logger.Debug("create %s payload: %s", s.repo.Kind(), print.MaybePrettyJSON(data))
		return zero, s.translate(err, "create", nil)
	}
	return record, nil
}

func (s *Service[T, C, U]) Update(ctx context.Context, id uuid.UUID, data U, criteria ...repository.SelectCriteria) (T, error) {
	var zero T

	if err := validate(data); err != nil {
		return zero, err
	}

	record, err := s.repo.Update(ctx, id, data, criteria...)
	if err != nil {
		return zero, s.translate(err, "update", id)
	}
	return record, nil
}

func (s *Service[T, C, U]) Delete(ctx context.Context, id uuid.UUID, criteria ...repository.SelectCriteria) error {
	if err := s.repo.Delete(ctx, id, criteria...); err != nil {
		return s.translate(err, "delete", id)
	}
	return nil
}

func (s *Service[T, C, U]) translate(err error, op string, id any) error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}

	kind := s.repo.Kind()

	switch {
	case repository.IsRecordNotFound(err):
		return NotFoundError(kind, id)
	case repository.IsUniqueViolation(err):
		return goerrors.New(fmt.Sprintf("%s already exists", kind), goerrors.CategoryConflict).
			WithTextCode("CONFLICT").
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"kind": kind})
	}

	s.logger.Error("%s %s failed: %v", op, kind, err)

	return goerrors.Wrap(err, goerrors.CategoryInternal, ErrInternal.Message).
		WithTextCode(ErrInternal.TextCode).
		WithCode(ErrInternal.Code)
}

func validate(data any) error {
	v, ok := data.(validation.Validatable)
	if !ok {
		return nil
	}
	if err := v.Validate(); err != nil {
		return ValidationError(err)
	}
	return nil
}
