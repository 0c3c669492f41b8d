package domain

import (
	"strconv"
	"strings"
)

// PriceTagPrefix marks the legacy price encoding inside a book's tags.
const PriceTagPrefix = "Price: "

// UncategorizedGenre stands in for a book without a genre.
const UncategorizedGenre = "Uncategorized"

// Condition grades a used book.
type Condition string

// Book conditions, best first.
const (
	ConditionNew        Condition = "New"
	ConditionLikeNew    Condition = "Like New"
	ConditionVeryGood   Condition = "Very Good"
	ConditionGood       Condition = "Good"
	ConditionAcceptable Condition = "Acceptable"
)

// Conditions lists every grade in display order.
var Conditions = []Condition{ConditionNew, ConditionLikeNew, ConditionVeryGood, ConditionGood, ConditionAcceptable}

// Valid reports whether c is a known grade.
func (c Condition) Valid() bool {
	for _, known := range Conditions {
		if c == known {
			return true
		}
	}
	return false
}

// Book is a catalog entry. Books are unique by ID within a catalog.
type Book struct {
	ID               string    `json:"id" validate:"required,max=200"`
	Title            string    `json:"title" validate:"required,max=500"`
	Author           string    `json:"author" validate:"max=500"`
	Category         string    `json:"category" validate:"max=200"`
	Genre            string    `json:"genre,omitempty" validate:"max=200"`
	Condition        Condition `json:"condition" validate:"omitempty,oneof='New' 'Like New' 'Very Good' 'Good' 'Acceptable'"`
	ShortDescription string    `json:"shortDescription" validate:"max=5000"`
	EbayURL          string    `json:"ebayUrl" validate:"omitempty,url"`
	Images           []string  `json:"images"`
	Tags             []string  `json:"tags"`
	// Price is the structured price. Legacy documents only carry the "Price: " tag.
	Price string `json:"price,omitempty" validate:"max=50"`
}

// GenreOrDefault returns the book's genre, or UncategorizedGenre when it has none.
func (b Book) GenreOrDefault() string {
	if b.Genre == "" {
		return UncategorizedGenre
	}
	return b.Genre
}

// PriceText returns the display price. The structured field wins, then the first "Price: " tag.
func (b Book) PriceText() (string, bool) {
	if b.Price != "" {
		return b.Price, true
	}
	for _, tag := range b.Tags {
		if text, ok := strings.CutPrefix(tag, PriceTagPrefix); ok {
			return text, true
		}
	}
	return "", false
}

// PriceTagMismatch reports whether the book has both a structured price and a "Price: "
// tag and the first tag says something else. PriceText would silently ignore such a tag.
func (b Book) PriceTagMismatch() bool {
	if b.Price == "" {
		return false
	}
	for _, tag := range b.Tags {
		if text, ok := strings.CutPrefix(tag, PriceTagPrefix); ok {
			return text != b.Price
		}
	}
	return false
}

// PriceValue returns the numeric price, or false if the book has none or it does not parse.
func (b Book) PriceValue() (float64, bool) {
	text, ok := b.PriceText()
	if !ok {
		return 0, false
	}
	return ParsePrice(text)
}

// ParsePrice keeps only digits and dots, then reads the longest leading decimal number.
// "$1,250.00" parses as 1250 and "1.2.3" as 1.2.
func ParsePrice(text string) (float64, bool) {
	var b strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()

	end := 0
	digits := 0
	seenDot := false
	for end < len(cleaned) {
		c := cleaned[end]
		if c == '.' {
			if seenDot {
				break
			}
			seenDot = true
		} else {
			digits++
		}
		end++
	}
	if digits == 0 {
		return 0, false
	}

	v, err := strconv.ParseFloat(strings.TrimSuffix(cleaned[:end], "."), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// WithPrice returns tags with every price tag removed and, when price is non-empty, a new one appended.
func WithPrice(tags []string, price string) []string {
	out := make([]string, 0, len(tags)+1)
	for _, tag := range tags {
		if !strings.HasPrefix(tag, PriceTagPrefix) {
			out = append(out, tag)
		}
	}
	if price != "" {
		out = append(out, PriceTagPrefix+price)
	}
	return out
}

// Clone returns a deep copy of the book.
func (b Book) Clone() Book {
	out := b
	out.Images = cloneStrings(b.Images)
	out.Tags = cloneStrings(b.Tags)
	return out
}
