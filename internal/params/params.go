package params

import (
	"math"
	"net/url"
	"strconv"
	"strings"
)

// URL: /products?page=2
// → ParsePage(q, 12) → Pagination{PerPage:12, Page:2, Offset:12}
// → SQL: SELECT ... LIMIT 12 OFFSET 12
// → DB returns data + total count
// → ComputeMeta(total) → fills TotalPages, HasNext, etc.
// Pagination holds pagination info and computed metadata.
type Pagination struct {
	PerPage    int  `json:"per_page"`
	Page       int  `json:"page"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
	Offset     int  `json:"-"`
}

// ParsePage parses ?page=... with a caller-fixed page size. The products
// listing uses 12 per page, the categories listing 10; neither is
// client-configurable.
func ParsePage(q url.Values, perPage int) Pagination {
	p := Pagination{
		PerPage: perPage,
		Page:    1,
	}

	if pageStr := strings.TrimSpace(q.Get("page")); pageStr != "" {
		if page, err := strconv.Atoi(pageStr); err == nil && page > 0 {
			p.Page = page
		}
	}

	p.Offset = (p.Page - 1) * p.PerPage
	return p
}

// ComputeMeta updates pagination after fetching total count.
func (p *Pagination) ComputeMeta(total int) {
	p.Total = total
	if p.PerPage > 0 {
		p.TotalPages = int(math.Ceil(float64(total) / float64(p.PerPage)))
	}
	p.HasPrev = p.Page > 1
	p.HasNext = (p.Page * p.PerPage) < total
}
