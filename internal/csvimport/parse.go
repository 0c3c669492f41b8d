// Package csvimport turns marketplace listing exports and the storefront's own CSV export
// into catalog books, and writes that export.
//
// Two dialects are understood. A marketplace export (eBay "Seller Hub" columns such as
// "Item number" and "Start price") is mapped by MapMarketplace; a file carrying the
// storefront's lowercase field names is then overlaid by ApplySelfExport, so an export
// re-imports losslessly.
package csvimport

import (
	"strings"
	"time"

	"github.com/stonewallbooks/storefront/internal/domain"
	domainerrors "github.com/stonewallbooks/storefront/internal/errors"
)

// Row maps header names to the raw values of one record.
type Row map[string]string

// Get returns the first non-empty value among keys.
func (r Row) Get(keys ...string) string {
	for _, k := range keys {
		if v := r[k]; v != "" {
			return v
		}
	}
	return ""
}

// Numbered is a row together with its line position, starting at 1 for the first data row.
type Numbered struct {
	Row   Row
	Index int
}

// Parse reads delimited text into books. An empty file, or one without a single usable
// row, is a validation error.
func Parse(text string, now time.Time) ([]domain.Book, error) {
	rows, err := ParseRows(text)
	if err != nil {
		return nil, err
	}

	books := make([]domain.Book, 0, len(rows))
	for _, r := range rows {
		books = append(books, MapRow(r.Row, r.Index, now))
	}
	if len(books) == 0 {
		return nil, domainerrors.Validation("no valid books found in file")
	}
	return books, nil
}

// ParseRows splits text into header-keyed rows. A tab anywhere in the first line selects
// TSV without quoting; anything else is CSV with double-quote escaping. Rows with fewer
// values than headers are dropped.
func ParseRows(text string) ([]Numbered, error) {
	text = strings.TrimSpace(strings.TrimPrefix(text, "\ufeff"))
	if text == "" {
		return nil, domainerrors.Validation("import file is empty")
	}

	firstLine, _, _ := strings.Cut(text, "\n")
	tsv := strings.Contains(firstLine, "\t")

	var records []string
	if tsv {
		records = splitLines(text)
	} else {
		records = splitQuotedRecords(text)
	}

	split := splitCSVFields
	if tsv {
		split = func(line string) []string { return strings.Split(line, "\t") }
	}

	headers := split(records[0])
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}

	rows := make([]Numbered, 0, len(records)-1)
	for i := 1; i < len(records); i++ {
		values := split(records[i])
		if len(values) < len(headers) {
			continue
		}
		row := make(Row, len(headers))
		for j, h := range headers {
			row[h] = values[j]
		}
		rows = append(rows, Numbered{Row: row, Index: i})
	}
	return rows, nil
}

func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

// splitQuotedRecords breaks CSV text into records at line breaks outside quoted fields,
// so quoted values may span lines. A quoted field that never closes does not swallow the
// rest of the file: its line is kept as a record of its own.
func splitQuotedRecords(text string) []string {
	lines := splitLines(text)
	records := make([]string, 0, len(lines))
	for i := 0; i < len(lines); {
		var q quoteScanner
		q.scan(lines[i], nil)

		end := i
		for q.inQuote && end+1 < len(lines) {
			end++
			q.scan("\n"+lines[end], nil)
		}
		if q.inQuote && end > i {
			records = append(records, lines[i])
			i++
			continue
		}
		records = append(records, strings.Join(lines[i:end+1], "\n"))
		i = end + 1
	}
	return records
}

// splitCSVFields splits one record at commas outside quoted fields. A field wrapped in
// quotes loses them and has each doubled quote collapsed.
func splitCSVFields(line string) []string {
	var (
		fields []string
		start  int
		q      quoteScanner
	)
	q.scan(line, func(i int) {
		fields = append(fields, unquote(line[start:i]))
		start = i + 1
	})
	return append(fields, unquote(line[start:]))
}

// quoteScanner tracks CSV quoting across calls to scan. Only a quote that opens a field
// starts a quoted value; a quote inside an unquoted value, as in `12" record`, is literal.
type quoteScanner struct {
	inQuote bool
	// inField is set once the current field has content.
	inField bool
}

// scan feeds s to the scanner and calls onComma, if set, with the index of every field separator.
func (q *quoteScanner) scan(s string, onComma func(i int)) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if q.inQuote {
			if c == '"' {
				if i+1 < len(s) && s[i+1] == '"' {
					i++
				} else {
					q.inQuote = false
				}
			}
			continue
		}
		switch c {
		case ',':
			if onComma != nil {
				onComma(i)
			}
			q.inField = false
			continue
		case '\n':
			q.inField = false
			continue
		case '"':
			if !q.inField {
				q.inQuote = true
			}
		}
		q.inField = true
	}
}

func unquote(cell string) string {
	if len(cell) >= 2 && cell[0] == '"' && cell[len(cell)-1] == '"' {
		return strings.ReplaceAll(cell[1:len(cell)-1], `""`, `"`)
	}
	return cell
}
