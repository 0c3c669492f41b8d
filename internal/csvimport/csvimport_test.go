package csvimport

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stonewallbooks/storefront/internal/domain"
	domainerrors "github.com/stonewallbooks/storefront/internal/errors"
)

var importTime = time.UnixMilli(1700000000000)

func TestParse_MarketplaceCSV(t *testing.T) {
	text := strings.Join([]string{
		`Item number,Title,eBay category 1 name,eBay category 2 name,Start price,Condition`,
		`1234,"Walden by Henry David Thoreau",Books,Nature & Travel,12.50,Very Good`,
		`5678,"Cooking, Simply",Books,,$8,`,
	}, "\n")

	books, err := Parse(text, importTime)
	require.NoError(t, err)
	require.Len(t, books, 2)

	walden := books[0]
	assert.Equal(t, "swb-1234", walden.ID)
	assert.Equal(t, "Walden", walden.Title)
	assert.Equal(t, "Henry David Thoreau", walden.Author)
	assert.Equal(t, "Nature & Travel", walden.Category)
	assert.Equal(t, domain.ConditionVeryGood, walden.Condition)
	assert.Equal(t, "https://www.ebay.com/itm/1234", walden.EbayURL)
	assert.Equal(t, []string{"Price: $12.50"}, walden.Tags)
	assert.Equal(t, "$12.50", walden.Price)
	assert.Empty(t, walden.ShortDescription)
	assert.Empty(t, walden.Images)

	cooking := books[1]
	assert.Equal(t, "Cooking, Simply", cooking.Title)
	assert.Equal(t, "Unknown", cooking.Author)
	assert.Equal(t, "Books", cooking.Category, "falls back to the primary category")
	assert.Equal(t, domain.ConditionGood, cooking.Condition)
	assert.Equal(t, []string{"Price: $8"}, cooking.Tags)
}

func TestParse_TSV(t *testing.T) {
	text := "Auction ID\tName\tCurrent bid\tGenre\n" +
		"99\tThe Hobbit BY J.R.R. Tolkien\t4.00\tFantasy\r\n" +
		"\"1\"\t\"quoted\"\t\tPoetry\n"

	books, err := Parse(text, importTime)
	require.NoError(t, err)
	require.Len(t, books, 2)

	assert.Equal(t, "swb-99", books[0].ID)
	assert.Equal(t, "The Hobbit", books[0].Title)
	assert.Equal(t, "J.R.R. Tolkien", books[0].Author)
	assert.Equal(t, "Fantasy", books[0].Category)
	assert.Equal(t, "$4.00", books[0].Price)

	assert.Equal(t, `"quoted"`, books[1].Title, "tsv has no quoting")
	assert.Empty(t, books[1].Tags)
}

func TestParse_FallbackIDsAndDefaults(t *testing.T) {
	text := "Title,Price\nUntagged,\n,3\n"

	books, err := Parse(text, importTime)
	require.NoError(t, err)
	require.Len(t, books, 2)

	assert.Equal(t, "swb-1700000000000-1", books[0].ID)
	assert.Empty(t, books[0].EbayURL)
	assert.Equal(t, "General", books[0].Category)
	assert.Empty(t, books[0].Tags)

	assert.Equal(t, "swb-1700000000000-2", books[1].ID)
	assert.Equal(t, "Untitled", books[1].Title)
	assert.Equal(t, "$3", books[1].Price)
}

func TestParse_SkipsShortRows(t *testing.T) {
	text := "Title,Author,Price\nGood Row,Someone,5\nshort,row\n\nAnother,Person,6\n"

	rows, err := ParseRows(text)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0].Index)
	assert.Equal(t, 4, rows[1].Index)
}

func TestParse_HeadersTrimmedValuesKept(t *testing.T) {
	rows, err := ParseRows(" Title , Price \n  Spaced Out ,5\n")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "  Spaced Out ", rows[0].Row["Title"])
	assert.Equal(t, "5", rows[0].Row["Price"])
}

func TestParse_QuotedFields(t *testing.T) {
	text := "title,author,shortDescription\n" +
		`"He said ""hello""","Doe, Jane","line one` + "\n" + `line two"` + "\n"

	books, err := Parse(text, importTime)
	require.NoError(t, err)
	require.Len(t, books, 1)

	assert.Equal(t, `He said "hello"`, books[0].Title)
	assert.Equal(t, "Doe, Jane", books[0].Author)
	assert.Equal(t, "line one\nline two", books[0].ShortDescription)
}

func TestParse_BareQuoteInsideValue(t *testing.T) {
	text := "Item number,Title,Start price\n" +
		`1,Vinyl 12" record guide by Smith,5` + "\n" +
		"2,Walden by Thoreau,6\n" +
		"3,Emma by Austen,7\n"

	rows, err := ParseRows(text)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, `Vinyl 12" record guide by Smith`, rows[0].Row["Title"])
	assert.Equal(t, "5", rows[0].Row["Start price"])
	assert.Equal(t, "Walden by Thoreau", rows[1].Row["Title"])
	assert.Equal(t, 3, rows[2].Index)

	books, err := Parse(text, importTime)
	require.NoError(t, err)
	assert.Len(t, books, 3)
}

func TestParse_UnterminatedQuoteLosesOnlyItsRow(t *testing.T) {
	text := "Title,Author,Price\n" +
		`"Broken title,Someone,5` + "\n" +
		"Walden,Thoreau,6\n" +
		"Emma,Austen,7\n"

	rows, err := ParseRows(text)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Walden", rows[0].Row["Title"])
	assert.Equal(t, "Emma", rows[1].Row["Title"])
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse("   \n ", importTime)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, err = Parse("Title,Price\n", importTime)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, err = Parse("Title,Price\nonly-one-field\n", importTime)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestMapMarketplace_TitleWithoutAuthor(t *testing.T) {
	book := MapMarketplace(Row{"Title": "Standby Generator Manual"}, 1, importTime)
	assert.Equal(t, "Standby Generator Manual", book.Title)
	assert.Equal(t, "Unknown", book.Author)
}

func TestApplySelfExport(t *testing.T) {
	base := MapMarketplace(Row{"Item number": "42", "Title": "Listing Title"}, 1, importTime)

	unchanged := ApplySelfExport(Row{"id": "swb-override"}, base)
	assert.Equal(t, base, unchanged, "no lowercase title or author means no override")

	row := Row{"id": "swb-0001", "title": "Real Title", "author": "", "condition": "Like New", "shortDescription": "Signed."}
	got := ApplySelfExport(row, base)

	assert.Equal(t, "swb-0001", got.ID)
	assert.Equal(t, "Real Title", got.Title)
	assert.Equal(t, "Unknown", got.Author, "empty columns do not override")
	assert.Equal(t, domain.ConditionLikeNew, got.Condition)
	assert.Equal(t, "Signed.", got.ShortDescription)
	assert.Equal(t, base.EbayURL, got.EbayURL)
}

func TestDeriveCategories(t *testing.T) {
	books := []domain.Book{
		{Category: "Fiction / Classics"},
		{Category: "Poetry"},
		{Category: "Classics/ "},
		{Category: ""},
	}
	assert.Equal(t, []string{"Classics", "Fiction", "Poetry"}, DeriveCategories(books))
	assert.Empty(t, DeriveCategories(nil))
}

func TestExport_RoundTrip(t *testing.T) {
	books := []domain.Book{
		{
			ID:               "swb-0001",
			Title:            "The Old Man and the Sea",
			Author:           "Ernest Hemingway",
			Genre:            "Classics",
			Category:         "Fiction",
			Condition:        domain.ConditionVeryGood,
			EbayURL:          "https://www.ebay.com/itm/1",
			ShortDescription: `A "classic", with commas` + "\nand a second line.",
			Images:           []string{},
			Tags:             []string{"Price: $12.00"},
			Price:            "$12.00",
		},
		{
			ID:        "swb-1700000000000",
			Title:     "Unpriced Pamphlet",
			Author:    "Town Historical Society",
			Category:  "Local & New England",
			Condition: domain.ConditionAcceptable,
			Images:    []string{},
			Tags:      []string{},
		},
	}

	text, err := Export(books)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, strings.Join(ExportHeaders, ",")+"\n"))

	reimported, err := Parse(text, importTime)
	require.NoError(t, err)
	assert.Equal(t, books, reimported)
}

func TestExport_LegacyPriceTag(t *testing.T) {
	text, err := Export([]domain.Book{{ID: "swb-1", Title: "Old", Author: "A", Tags: []string{"Price: $5"}}})
	require.NoError(t, err)
	assert.Contains(t, text, ",$5\n")
}
