package repository

import (
	"context"
	"time"

	gorepo "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Repository is the persistence contract shared by every entity. T is
// the model pointer, C the create shape and U the partial update shape.
//
// Each method runs as its own unit of work. The Tx variants take an
// open transaction so callers can group several calls.
type Repository[T any, C any, U any] interface {
	Kind() string

	Get(ctx context.Context, id uuid.UUID, criteria ...SelectCriteria) (T, error)
	GetTx(ctx context.Context, tx bun.IDB, id uuid.UUID, criteria ...SelectCriteria) (T, error)

	List(ctx context.Context, page *Pagination, criteria ...SelectCriteria) ([]T, error)
	ListTx(ctx context.Context, tx bun.IDB, page *Pagination, criteria ...SelectCriteria) ([]T, error)

	Count(ctx context.Context, criteria ...SelectCriteria) (int, error)
	CountTx(ctx context.Context, tx bun.IDB, criteria ...SelectCriteria) (int, error)

	Create(ctx context.Context, data C) (T, error)
	CreateTx(ctx context.Context, tx bun.IDB, data C) (T, error)

	Update(ctx context.Context, id uuid.UUID, data U, criteria ...SelectCriteria) (T, error)
	UpdateTx(ctx context.Context, tx bun.IDB, id uuid.UUID, data U, criteria ...SelectCriteria) (T, error)

	Delete(ctx context.Context, id uuid.UUID, criteria ...SelectCriteria) error
	DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID, criteria ...SelectCriteria) error
}

// ModelHandlers adapts a bun model to the generic repository
type ModelHandlers[T any, C any, U any] struct {
	// Kind is the entity name used in not found errors
	Kind      string
	NewRecord func() T
	GetID     func(T) uuid.UUID
	SetID     func(T, uuid.UUID)
	// NewID is optional, defaults to a random v4 id
	NewID func(T) (uuid.UUID, error)
	// FromCreate builds an unsaved record out of the create shape
	FromCreate func(C) T
	// ApplyUpdate copies the set fields of U into T and returns the
	// names of the columns it touched
	ApplyUpdate func(T, U) []string
	// Touch stamps created_at (when isNew) and updated_at
	Touch func(record T, now time.Time, isNew bool)
}

type repo[T any, C any, U any] struct {
	db       *bun.DB
	base     gorepo.Repository[T]
	handlers ModelHandlers[T, C, U]
	now      func() time.Time
}

// Option customizes a repository
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source used for timestamps
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// NewRepository creates a repository for T on top of a go-repository-bun
// base. The create and update shapes are translated by handlers.
func NewRepository[T any, C any, U any](db *bun.DB, handlers ModelHandlers[T, C, U], opts ...Option) Repository[T, C, U] {
	o := &options{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	base := gorepo.NewRepository[T](db, gorepo.ModelHandlers[T]{
		NewRecord: handlers.NewRecord,
		GetID:     handlers.GetID,
		SetID:     handlers.SetID,
		GetIdentifier: func() string {
			return "id"
		},
	})

	return &repo[T, C, U]{
		db:       db,
		base:     base,
		handlers: handlers,
		now:      o.now,
	}
}

func (r *repo[T, C, U]) Kind() string {
	return r.handlers.Kind
}

func (r *repo[T, C, U]) Get(ctx context.Context, id uuid.UUID, criteria ...SelectCriteria) (T, error) {
	var record T
	err := RunInTx(ctx, r.db, func(ctx context.Context, tx bun.Tx) error {
		var err error
		record, err = r.GetTx(ctx, tx, id, criteria...)
		return err
	})
	return record, err
}

func (r *repo[T, C, U]) GetTx(ctx context.Context, tx bun.IDB, id uuid.UUID, criteria ...SelectCriteria) (T, error) {
	return r.selectOne(ctx, tx, id, false, criteria)
}

func (r *repo[T, C, U]) List(ctx context.Context, page *Pagination, criteria ...SelectCriteria) ([]T, error) {
	var records []T
	err := RunInTx(ctx, r.db, func(ctx context.Context, tx bun.Tx) error {
		var err error
		records, err = r.ListTx(ctx, tx, page, criteria...)
		return err
	})
	return records, err
}

// ListTx returns one page in insertion order. A nil page lifts the
// base repository's default limit and returns every match.
func (r *repo[T, C, U]) ListTx(ctx context.Context, tx bun.IDB, page *Pagination, criteria ...SelectCriteria) ([]T, error) {
	limit, offset := 0, 0
	if page != nil {
		limit, offset = page.Limit(), page.Offset()
	}

	all := make([]SelectCriteria, 0, len(criteria)+2)
	all = append(all, criteria...)
	all = append(all, OrderByInsertion(), gorepo.Paginate(limit, offset))

	records, _, err := r.base.ListTx(ctx, tx, all...)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo[T, C, U]) Count(ctx context.Context, criteria ...SelectCriteria) (int, error) {
	var total int
	err := RunInTx(ctx, r.db, func(ctx context.Context, tx bun.Tx) error {
		var err error
		total, err = r.CountTx(ctx, tx, criteria...)
		return err
	})
	return total, err
}

func (r *repo[T, C, U]) CountTx(ctx context.Context, tx bun.IDB, criteria ...SelectCriteria) (int, error) {
	q := tx.NewSelect().Model(r.handlers.NewRecord())
	q = applyCriteria(q, criteria)
	return q.Count(ctx)
}

func (r *repo[T, C, U]) Create(ctx context.Context, data C) (T, error) {
	var record T
	err := RunInTx(ctx, r.db, func(ctx context.Context, tx bun.Tx) error {
		var err error
		record, err = r.CreateTx(ctx, tx, data)
		return err
	})
	return record, err
}

// CreateTx inserts the record. The base repository returns every column
// so the value reflects what was stored.
func (r *repo[T, C, U]) CreateTx(ctx context.Context, tx bun.IDB, data C) (T, error) {
	var zero T

	record := r.handlers.FromCreate(data)

	if r.handlers.GetID(record) == uuid.Nil && r.handlers.NewID != nil {
		id, err := r.handlers.NewID(record)
		if err != nil {
			return zero, err
		}
		r.handlers.SetID(record, id)
	}

	if r.handlers.Touch != nil {
		r.handlers.Touch(record, r.now(), true)
	}

	record, err := r.base.CreateTx(ctx, tx, record)
	if err != nil {
		return zero, err
	}
	return record, nil
}

func (r *repo[T, C, U]) Update(ctx context.Context, id uuid.UUID, data U, criteria ...SelectCriteria) (T, error) {
	var record T
	err := RunInTx(ctx, r.db, func(ctx context.Context, tx bun.Tx) error {
		var err error
		record, err = r.UpdateTx(ctx, tx, id, data, criteria...)
		return err
	})
	return record, err
}

// UpdateTx locks the row, applies the set fields of data and writes
// only those columns. An update that sets nothing returns the row as is.
func (r *repo[T, C, U]) UpdateTx(ctx context.Context, tx bun.IDB, id uuid.UUID, data U, criteria ...SelectCriteria) (T, error) {
	var zero T

	record, err := r.selectOne(ctx, tx, id, true, criteria)
	if err != nil {
		return zero, err
	}

	columns := r.handlers.ApplyUpdate(record, data)
	if len(columns) == 0 {
		return record, nil
	}

	if r.handlers.Touch != nil {
		r.handlers.Touch(record, r.now(), false)
		columns = append(columns, "updated_at")
	}

	record, err = r.base.UpdateTx(ctx, tx, record, gorepo.UpdateColumns(columns...))
	if err != nil {
		return zero, r.notFound(id, err)
	}
	return record, nil
}

func (r *repo[T, C, U]) Delete(ctx context.Context, id uuid.UUID, criteria ...SelectCriteria) error {
	return RunInTx(ctx, r.db, func(ctx context.Context, tx bun.Tx) error {
		return r.DeleteTx(ctx, tx, id, criteria...)
	})
}

func (r *repo[T, C, U]) DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID, criteria ...SelectCriteria) error {
	record, err := r.selectOne(ctx, tx, id, true, criteria)
	if err != nil {
		return err
	}
	return r.base.DeleteTx(ctx, tx, record)
}

// selectOne loads a row by id. With lock set the row is selected FOR
// UPDATE so concurrent writers on the same id serialize.
func (r *repo[T, C, U]) selectOne(ctx context.Context, tx bun.IDB, id uuid.UUID, lock bool, criteria []SelectCriteria) (T, error) {
	var zero T

	if lock {
		criteria = append(criteria[:len(criteria):len(criteria)], ForUpdate())
	}

	record, err := r.base.GetByIDTx(ctx, tx, id.String(), criteria...)
	if err != nil {
		return zero, r.notFound(id, err)
	}
	return record, nil
}

func (r *repo[T, C, U]) notFound(id uuid.UUID, err error) error {
	if !IsRecordNotFound(err) {
		return err
	}
	nf := NewRecordNotFound(r.handlers.Kind, id)
	nf.Err = err
	return nf
}
