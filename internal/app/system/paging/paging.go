// internal/app/system/paging/paging.go
package paging

import (
	"net/http"
	"strconv"

	"github.com/dalemusser/waffle/pantry/query"
)

// PageSize is the default number of rows returned by paged lists.
const PageSize = 50

// MaxPageSize caps the per_page query parameter.
const MaxPageSize = 200

// Page is a 1-based page request.
type Page struct {
	Number int
	Size   int
}

// Parse reads "page" and "per_page" from the query string. Missing or
// invalid values fall back to page 1 and PageSize; per_page is capped at
// MaxPageSize.
func Parse(r *http.Request) Page {
	p := Page{Number: 1, Size: PageSize}
	if n, err := strconv.Atoi(query.Get(r, "page")); err == nil && n > 0 {
		p.Number = n
	}
	if n, err := strconv.Atoi(query.Get(r, "per_page")); err == nil && n > 0 {
		p.Size = min(n, MaxPageSize)
	}
	return p
}

// Offset is the number of rows to skip.
func (p Page) Offset() int64 { return int64(p.Number-1) * int64(p.Size) }

// Limit is the number of rows to fetch.
func (p Page) Limit() int64 { return int64(p.Size) }

// Meta is the pagination block of a list response.
type Meta struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasPrev    bool  `json:"has_prev"`
	HasNext    bool  `json:"has_next"`
}

// MetaFor computes the pagination block for total matching rows.
func (p Page) MetaFor(total int64) Meta {
	pages := int((total + int64(p.Size) - 1) / int64(p.Size))
	if pages < 1 {
		pages = 1
	}
	return Meta{
		Page:       p.Number,
		PerPage:    p.Size,
		Total:      total,
		TotalPages: pages,
		HasPrev:    p.Number > 1,
		HasNext:    p.Number < pages,
	}
}
