// Package paging normalizes page/limit/query/sort parameters for the
// paginated listings and renders them into SQL fragments.
package paging

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/Muhammad-Alii2/vibeverse/internal/apperr"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100

	// MaxPage keeps (page-1)*limit inside int for every allowed limit.
	MaxPage = math.MaxInt / MaxLimit
)

// Policy declares what a listing accepts. Fields maps API sort names to SQL
// columns; Tiebreak lists the creation-time and id columns appended to every
// ORDER BY.
type Policy struct {
	Fields       map[string]string
	DefaultField string
	DefaultDesc  bool
	Tiebreak     []string
}

type Params struct {
	Page   int
	Limit  int
	Query  string
	Column string
	Desc   bool

	tiebreak []string
}

// Parse never fails: anything malformed falls back to the policy default.
func Parse(values url.Values, policy Policy) Params {
	p := Params{
		Page:     positiveOr(values.Get("page"), DefaultPage),
		Limit:    positiveOr(values.Get("limit"), DefaultLimit),
		Query:    strings.TrimSpace(values.Get("query")),
		Desc:     policy.DefaultDesc,
		tiebreak: policy.Tiebreak,
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Page > MaxPage {
		p.Page = MaxPage
	}

	column, ok := policy.Fields[values.Get("sortBy")]
	if !ok {
		column = policy.Fields[policy.DefaultField]
	}
	p.Column = column

	switch strings.ToLower(values.Get("sortType")) {
	case "asc":
		p.Desc = false
	case "desc":
		p.Desc = true
	}
	return p
}

func (p Params) Offset() int {
	return (p.Page - 1) * p.Limit
}

// OrderBy renders the ORDER BY clause. Tiebreak columns always run
// ascending so equal sort keys resolve by creation order then id.
func (p Params) OrderBy() string {
	dir := "ASC"
	if p.Desc {
		dir = "DESC"
	}
	parts := []string{p.Column + " " + dir}
	for _, col := range p.tiebreak {
		if col == p.Column {
			continue
		}
		parts = append(parts, col+" ASC")
	}
	return "ORDER BY " + strings.Join(parts, ", ")
}

// Pattern returns the ILIKE argument for Query, or "" when there is none.
func (p Params) Pattern() string {
	if p.Query == "" {
		return ""
	}
	return "%" + EscapeLike(p.Query) + "%"
}

func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return r.Replace(s)
}

// Page is the envelope returned by every paginated listing.
type Page[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// NewPage wraps items. An empty page is reported as NotFound; callers rely
// on that to detect the end of a listing.
func NewPage[T any](items []T, p Params, resource string) (Page[T], error) {
	if len(items) == 0 {
		return Page[T]{}, apperr.Missing("no " + resource + " found")
	}
	return Page[T]{Items: items, Page: p.Page, Limit: p.Limit}, nil
}

func positiveOr(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
