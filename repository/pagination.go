package repository

import (
	validation "github.com/go-ozzo/ozzo-validation"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Pagination is the offset/limit window of a list query
type Pagination struct {
	Page     int `json:"page" query:"page"`
	PageSize int `json:"page_size" query:"page_size"`
}

// NewPagination returns a window with default values
func NewPagination() *Pagination {
	return &Pagination{Page: DefaultPage, PageSize: DefaultPageSize}
}

// Validate will run validation rules. Zero values are rejected so
// Pages never divides by zero.
func (p Pagination) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Page, validation.Required.Error("must be greater than or equal to 1"), validation.Min(1)),
		validation.Field(&p.PageSize,
			validation.Required.Error("must be between 1 and 100"),
			validation.Min(1),
			validation.Max(MaxPageSize),
		),
	)
}

// Offset is the number of rows skipped
func (p Pagination) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}

// Limit is the number of rows returned
func (p Pagination) Limit() int {
	return p.PageSize
}

// Pages returns ceil(total / page_size)
func (p Pagination) Pages(total int) int {
	if p.PageSize < 1 || total <= 0 {
		return 0
	}
	return (total + p.PageSize - 1) / p.PageSize
}
