// Package pagination implements the listing contract shared by every list endpoint.
package pagination

import (
	"strconv"

	dErrors "vtrack/pkg/domain-errors"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// Params is a validated page request.
type Params struct {
	Page  int
	Limit int
}

// New validates page and limit. Zero values select the defaults.
func New(page, limit int) (Params, error) {
	if page == 0 {
		page = DefaultPage
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	if page < 1 {
		return Params{}, dErrors.New(dErrors.CodeInvalidArgument, "page must be a positive integer")
	}
	if limit < 1 || limit > MaxLimit {
		return Params{}, dErrors.New(dErrors.CodeInvalidArgument, "limit must be between 1 and 100")
	}
	return Params{Page: page, Limit: limit}, nil
}

// Parse builds Params from raw query values. Empty strings select the defaults.
func Parse(rawPage, rawLimit string) (Params, error) {
	page, err := parseInt(rawPage, "page must be a positive integer")
	if err != nil {
		return Params{}, err
	}
	limit, err := parseInt(rawLimit, "limit must be between 1 and 100")
	if err != nil {
		return Params{}, err
	}
	if rawPage != "" && page == 0 {
		return Params{}, dErrors.New(dErrors.CodeInvalidArgument, "page must be a positive integer")
	}
	if rawLimit != "" && limit == 0 {
		return Params{}, dErrors.New(dErrors.CodeInvalidArgument, "limit must be between 1 and 100")
	}
	return New(page, limit)
}

func parseInt(raw, msg string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidArgument, msg)
	}
	return v, nil
}

// Offset is the number of rows skipped before this page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Meta describes where a page sits in the full result set.
type Meta struct {
	CurrentPage  int  `json:"currentPage"`
	TotalPages   int  `json:"totalPages"`
	TotalItems   int  `json:"totalItems"`
	ItemsPerPage int  `json:"itemsPerPage"`
	HasNextPage  bool `json:"hasNextPage"`
	HasPrevPage  bool `json:"hasPrevPage"`
}

// Page is one page of items plus its metadata.
type Page[T any] struct {
	Items []T  `json:"items"`
	Meta  Meta `json:"pagination"`
}

// NewPage assembles a page from the items and the total row count of the same filter.
func NewPage[T any](p Params, items []T, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	totalPages := 0
	if total > 0 {
		totalPages = (total + p.Limit - 1) / p.Limit
	}
	return Page[T]{
		Items: items,
		Meta: Meta{
			CurrentPage:  p.Page,
			TotalPages:   totalPages,
			TotalItems:   total,
			ItemsPerPage: p.Limit,
			HasNextPage:  p.Page < totalPages,
			HasPrevPage:  p.Page > 1,
		},
	}
}

// Window returns the slice bounds of page p over n in-memory items.
func (p Params) Window(n int) (start, end int) {
	start = min(p.Offset(), n)
	end = min(start+p.Limit, n)
	return start, end
}
