// Package catalog filters and groups the book catalog for display. Every function here is
// pure: it reads the books it is given and returns new slices.
package catalog

import (
	"math"
	"strconv"
	"strings"

	"github.com/stonewallbooks/storefront/internal/domain"
	domainerrors "github.com/stonewallbooks/storefront/internal/errors"
)

// AllGenres disables the genre filter and turns on grouping.
const AllGenres = "All"

// Query selects books from a catalog. A nil bound is not applied.
type Query struct {
	Min    *float64
	Max    *float64
	Search string
	Genre  string
}

// HasBounds reports whether either price bound is set.
func (q Query) HasBounds() bool {
	return q.Min != nil || q.Max != nil
}

// Group is the books of one genre, in catalog order.
type Group struct {
	Genre string        `json:"genre"`
	Books []domain.Book `json:"books"`
}

// Result is a filtered catalog. Groups is only filled when the query spans all genres.
type Result struct {
	Books  []domain.Book `json:"books"`
	Groups []Group       `json:"groups,omitempty"`
}

// Run filters books and, for an all-genre query, groups the matches.
func Run(books []domain.Book, q Query) Result {
	res := Result{Books: Filter(books, q)}
	if allGenres(q.Genre) {
		res.Groups = GroupByGenre(res.Books)
	}
	return res
}

// Filter returns the books matching q, in their original order.
func Filter(books []domain.Book, q Query) []domain.Book {
	needle := strings.ToLower(q.Search)
	out := make([]domain.Book, 0, len(books))
	for _, b := range books {
		if !matchesText(b, needle) {
			continue
		}
		if !allGenres(q.Genre) && b.GenreOrDefault() != q.Genre {
			continue
		}
		if !inRange(b, q) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// GroupByGenre partitions books by genre. Groups appear in the order their first book does.
func GroupByGenre(books []domain.Book) []Group {
	var groups []Group
	index := make(map[string]int)
	for _, b := range books {
		genre := b.GenreOrDefault()
		i, ok := index[genre]
		if !ok {
			i = len(groups)
			index[genre] = i
			groups = append(groups, Group{Genre: genre})
		}
		groups[i].Books = append(groups[i].Books, b)
	}
	return groups
}

// ParseBound reads an optional price bound. Blank input means no bound.
func ParseBound(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, domainerrors.Validationf("price bound %q is not a number", s)
	}
	return &v, nil
}

func allGenres(genre string) bool {
	return genre == "" || genre == AllGenres
}

func matchesText(b domain.Book, needle string) bool {
	if needle == "" {
		return true
	}
	for _, field := range []string{b.Title, b.Author, b.ShortDescription} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// inRange applies the inclusive price bounds. A book without a readable price
// cannot be shown to be in range, so any bound excludes it.
func inRange(b domain.Book, q Query) bool {
	if !q.HasBounds() {
		return true
	}
	price, ok := b.PriceValue()
	if !ok {
		return false
	}
	if q.Min != nil && price < *q.Min {
		return false
	}
	if q.Max != nil && price > *q.Max {
		return false
	}
	return true
}
