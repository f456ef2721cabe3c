package repository

import (
	"errors"
	"fmt"
	"strings"

	gorepo "github.com/goliatone/go-repository-bun"
	"github.com/lib/pq"
)

// ErrRecordNotFound is matched by every NotFoundError
var ErrRecordNotFound = gorepo.ErrRecordNotFound

// NotFoundError is returned when a lookup by id, or by id plus
// criteria, matches no row
type NotFoundError struct {
	Kind string
	ID   any
	Err  error
}

// NewRecordNotFound creates a not found error for kind and id
func NewRecordNotFound(kind string, id any) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with id %v not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrRecordNotFound
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// IsRecordNotFound reports whether err means the row does not exist
func IsRecordNotFound(err error) bool {
	if err == nil {
		return false
	}
	return gorepo.IsRecordNotFound(err)
}

// IsUniqueViolation reports whether err is a unique constraint failure
// from Postgres or SQLite
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
