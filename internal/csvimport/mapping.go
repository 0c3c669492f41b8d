package csvimport

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/stonewallbooks/storefront/internal/domain"
	"github.com/stonewallbooks/storefront/internal/id"
)

const (
	defaultAuthor   = "Unknown"
	defaultTitle    = "Untitled"
	defaultCategory = "General"
	listingURLBase  = "https://www.ebay.com/itm/"
)

// titleByAuthor splits listing titles such as "Walden by Henry David Thoreau".
var titleByAuthor = regexp.MustCompile(`(?i)\s+by\s+`)

// MapRow maps a row in either dialect. index is the row's position, used for ids when
// the row has no item number.
func MapRow(row Row, index int, now time.Time) domain.Book {
	return ApplySelfExport(row, MapMarketplace(row, index, now))
}

// MapMarketplace maps the columns of a marketplace listing export.
func MapMarketplace(row Row, index int, now time.Time) domain.Book {
	item := row.Get("Item number", "Auction ID")

	title := row.Get("Title", "Name")
	if title == "" {
		title = defaultTitle
	}
	author := defaultAuthor
	if parts := titleByAuthor.Split(title, -1); len(parts) > 1 {
		title = strings.TrimSpace(parts[0])
		author = strings.TrimSpace(parts[1])
	}

	category := row.Get("eBay category 2 name", "eBay category 1 name", "Genre")
	if category == "" {
		category = defaultCategory
	}

	condition := domain.Condition(row.Get("Condition"))
	if condition == "" {
		condition = domain.ConditionGood
	}

	price := row.Get("Start price", "Current bid", "Price")
	if price != "" && !strings.HasPrefix(price, "$") {
		price = "$" + price
	}

	book := domain.Book{
		ID:        id.RowBookID(now, index),
		Title:     title,
		Author:    author,
		Category:  category,
		Condition: condition,
		Images:    []string{},
		Tags:      domain.WithPrice(nil, price),
		Price:     price,
	}
	if item != "" {
		book.ID = id.ItemBookID(item)
		book.EbayURL = listingURLBase + item
	}
	return book
}

// IsSelfExport reports whether row carries the storefront's own column names.
func IsSelfExport(row Row) bool {
	return row["title"] != "" || row["author"] != ""
}

// ApplySelfExport overlays the storefront's own columns on book. It does nothing
// unless the row is a self export, and only non-empty columns override.
func ApplySelfExport(row Row, book domain.Book) domain.Book {
	if !IsSelfExport(row) {
		return book
	}

	overrides := []struct {
		column string
		field  *string
	}{
		{"id", &book.ID},
		{"title", &book.Title},
		{"author", &book.Author},
		{"category", &book.Category},
		{"genre", &book.Genre},
		{"ebayUrl", &book.EbayURL},
		{"shortDescription", &book.ShortDescription},
	}
	for _, o := range overrides {
		if v := row[o.column]; v != "" {
			*o.field = v
		}
	}
	if v := row["condition"]; v != "" {
		book.Condition = domain.Condition(v)
	}
	return book
}

// DeriveCategories returns the distinct "/"-separated category segments of books, sorted.
func DeriveCategories(books []domain.Book) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, b := range books {
		for _, part := range strings.Split(b.Category, "/") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, ok := seen[part]; ok {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	sort.Strings(out)
	return out
}
