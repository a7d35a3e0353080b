package pagination

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ehr/records/internal/platform/apperr"
)

const (
	DefaultPage    = 1
	DefaultPerPage = 10
	MaxPerPage     = 100

	// MaxPage keeps page*per_page within an int.
	MaxPage = math.MaxInt / MaxPerPage
)

// Request holds the page number and size requested by the caller.
type Request struct {
	Page    int
	PerPage int
}

// NewRequest validates raw page and per_page values. Empty values take the
// defaults, per_page above MaxPerPage is clamped, and anything non-numeric,
// below one, or a page beyond MaxPage is a validation error.
func NewRequest(page, perPage string) (Request, error) {
	var errs apperr.Collector
	p, okPage := parsePositive(page, DefaultPage)
	switch {
	case !okPage:
		errs.Add("page", "must be a positive integer")
	case p > MaxPage:
		errs.Add("page", "is out of range")
	}
	size, okSize := parsePositive(perPage, DefaultPerPage)
	if !okSize {
		errs.Add("per_page", "must be a positive integer")
	}
	if err := errs.Err(); err != nil {
		return Request{}, err
	}
	if size > MaxPerPage {
		size = MaxPerPage
	}
	return Request{Page: p, PerPage: size}, nil
}

func parsePositive(raw string, def int) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// FromContext extracts pagination parameters from the echo context.
func FromContext(c echo.Context) (Request, error) {
	return NewRequest(c.QueryParam("page"), c.QueryParam("per_page"))
}

// Limit and Offset return the SQL window for the request.
func (r Request) Limit() int { return r.PerPage }

func (r Request) Offset() int { return (r.Page - 1) * r.PerPage }

// Meta is the pagination block of a list response.
type Meta struct {
	Total       int  `json:"total"`
	PerPage     int  `json:"per_page"`
	CurrentPage int  `json:"current_page"`
	TotalPages  int  `json:"total_pages"`
	HasNext     bool `json:"has_next"`
	HasPrev     bool `json:"has_prev"`
}

func NewMeta(r Request, total int) Meta {
	pages := (total + r.PerPage - 1) / r.PerPage
	if pages < 1 {
		pages = 1
	}
	return Meta{
		Total:       total,
		PerPage:     r.PerPage,
		CurrentPage: r.Page,
		TotalPages:  pages,
		HasNext:     r.Page*r.PerPage < total,
		HasPrev:     r.Page > 1,
	}
}

// Page is one window of an ordered result set.
type Page[T any] struct {
	Items []T
	Meta  Meta
}

func NewPage[T any](items []T, r Request, total int) *Page[T] {
	if items == nil {
		items = []T{}
	}
	return &Page[T]{Items: items, Meta: NewMeta(r, total)}
}

func (p *Page[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Data       []T  `json:"data"`
		Pagination Meta `json:"pagination"`
	}{p.Items, p.Meta})
}

// Map converts the items of a page while keeping its metadata.
func Map[T, U any](p *Page[T], fn func(T) U) *Page[U] {
	out := make([]U, len(p.Items))
	for i, it := range p.Items {
		out[i] = fn(it)
	}
	return &Page[U]{Items: out, Meta: p.Meta}
}
