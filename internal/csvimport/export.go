package csvimport

import (
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/stonewallbooks/storefront/internal/domain"
)

// ExportHeaders are the columns written by Export, in order.
var ExportHeaders = []string{"id", "title", "author", "genre", "category", "condition", "ebayUrl", "shortDescription", "Price"}

// Export writes books in the storefront's own dialect.
func Export(books []domain.Book) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	if err := w.Write(ExportHeaders); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}
	for _, b := range books {
		price, _ := b.PriceText()
		record := []string{b.ID, b.Title, b.Author, b.Genre, b.Category, string(b.Condition), b.EbayURL, b.ShortDescription, price}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("write book %s: %w", b.ID, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}
	return sb.String(), nil
}
