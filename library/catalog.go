package library

import (
	"fmt"
	"strings"
)

// DefaultBooksPerPage matches the catalog page size of the web variants.
const DefaultBooksPerPage = 5

// Availability filter values.
const (
	AnyAvailability = ""
	OnlyAvailable   = "available"
	OnlyBorrowed    = "borrowed"
)

// BookQuery describes one catalog page request. Page is 1-based and is
// clamped into range by the store.
type BookQuery struct {
	Search       string
	Category     string
	Availability string
	Page         int
	PerPage      int
}

// BookPage is one page of a filtered catalog.
type BookPage struct {
	Books      []Book
	Page       int
	TotalPages int
	Matched    int
}

// Offset is the index of the first book of the page within the filtered list.
func (p BookPage) Offset(perPage int) int { return (p.Page - 1) * perPage }

// Normalize validates the filter and fills in defaults.
func (q BookQuery) Normalize() (BookQuery, error) {
	q.Search = strings.TrimSpace(q.Search)
	switch q.Availability {
	case AnyAvailability, OnlyAvailable, OnlyBorrowed:
	default:
		return q, fmt.Errorf("availability %q: %w", q.Availability, ErrValidation)
	}
	if q.PerPage <= 0 {
		q.PerPage = DefaultBooksPerPage
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	return q, nil
}

// TotalPages is ceil(matched/perPage) but never less than 1, so an empty
// result still renders as "Page 1 of 1".
func TotalPages(matched, perPage int) int {
	if perPage <= 0 {
		perPage = DefaultBooksPerPage
	}
	n := (matched + perPage - 1) / perPage
	if n < 1 {
		return 1
	}
	return n
}

// ClampPage keeps a requested page inside [1, totalPages].
func ClampPage(page, totalPages int) int {
	if page > totalPages {
		page = totalPages
	}
	if page < 1 {
		page = 1
	}
	return page
}

// MatchesQuery applies the catalog filter to one book. The store uses SQL for
// the same rules; this is for callers that already hold a snapshot.
func MatchesQuery(b Book, q BookQuery) bool {
	term := strings.ToLower(strings.TrimSpace(q.Search))
	if term != "" &&
		!strings.Contains(strings.ToLower(b.Title), term) &&
		!strings.Contains(strings.ToLower(b.Author), term) {
		return false
	}
	if q.Category != "" && b.Category != q.Category {
		return false
	}
	switch q.Availability {
	case OnlyAvailable:
		return b.Available
	case OnlyBorrowed:
		return !b.Available
	}
	return true
}
