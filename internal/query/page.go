// Package query holds the read-side helpers shared by list endpoints:
// 1-based pagination and the paged result envelope.
package query

import (
	"net/http"
	"strconv"
)

const MaxLimit = 100

// Page is a 1-based page request.
type Page struct {
	Page  int
	Limit int
}

// NewPage normalizes page and limit: page < 1 becomes 1, limit < 1 becomes
// defaultLimit, limit is capped at MaxLimit.
func NewPage(page, limit, defaultLimit int) Page {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Page{Page: page, Limit: limit}
}

// FromRequest reads ?page= and ?limit= from r. Unparseable values fall back
// to the defaults.
func FromRequest(r *http.Request, defaultLimit int) Page {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return NewPage(page, limit, defaultLimit)
}

// Offset is the number of rows to skip: (page-1)*limit.
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// TotalPages is ceil(total/limit).
func TotalPages(total, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

type Result[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

func NewResult[T any](items []T, total int, p Page) Result[T] {
	if items == nil {
		items = []T{}
	}
	return Result[T]{
		Items:      items,
		Total:      total,
		Page:       p.Page,
		Limit:      p.Limit,
		TotalPages: TotalPages(total, p.Limit),
	}
}
