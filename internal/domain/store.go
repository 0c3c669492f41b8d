// Package domain holds the store document aggregate and the rules that are shared by every layer.
package domain

// FeaturedSlots is the number of featured positions on the storefront.
const FeaturedSlots = 2

// StoreDocument is the single shared aggregate holding shop metadata, the catalog and its configuration.
type StoreDocument struct {
	Shop               Shop               `json:"shop"`
	ProcurementProgram ProcurementProgram `json:"procurementProgram"`
	Categories         []string           `json:"categories"`
	Genres             []string           `json:"genres"`
	// Featured holds weak references into Catalog. A slot may be nil or name a book that no longer exists.
	Featured []*string `json:"featured"`
	Catalog  []Book    `json:"catalog"`
}

// Shop is the storefront's public metadata.
type Shop struct {
	Name         string `json:"name"`
	Tagline      string `json:"tagline"`
	EbayStoreURL string `json:"ebayStoreUrl"`
	ContactEmail string `json:"contactEmail"`
	LocationLine string `json:"locationLine"`
	// LibrarianEmail locks the librarian desk to one account. Empty means public access mode.
	LibrarianEmail string `json:"librarianEmail"`
}

// ProcurementProgram is the display-only donation and consignment content.
type ProcurementProgram struct {
	Title      string         `json:"title"`
	Summary    string         `json:"summary"`
	Split      Split          `json:"split"`
	Steps      []ProgramEntry `json:"steps"`
	Policies   []ProgramEntry `json:"policies"`
	Disclaimer string         `json:"disclaimer"`
}

// Split is the proceeds split between the donor and the shop, in percent.
type Split struct {
	CollaboratorPercent int `json:"collaboratorPercent"`
	ShopPercent         int `json:"shopPercent"`
}

// Valid reports whether the split accounts for exactly 100 percent.
func (s Split) Valid() bool {
	return s.CollaboratorPercent+s.ShopPercent == 100
}

// ProgramEntry is a titled paragraph in the procurement program.
type ProgramEntry struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// BookIndex returns the position of the book with id in the catalog, or -1.
func (d *StoreDocument) BookIndex(id string) int {
	for i := range d.Catalog {
		if d.Catalog[i].ID == id {
			return i
		}
	}
	return -1
}

// FindBook returns the book with id, if present.
func (d *StoreDocument) FindBook(id string) (Book, bool) {
	if i := d.BookIndex(id); i >= 0 {
		return d.Catalog[i], true
	}
	return Book{}, false
}

// ResolveFeatured dereferences the featured slots. Empty and dangling slots resolve to nil.
func (d *StoreDocument) ResolveFeatured() []*Book {
	out := make([]*Book, len(d.Featured))
	for i, ref := range d.Featured {
		if ref == nil {
			continue
		}
		if book, ok := d.FindBook(*ref); ok {
			out[i] = &book
		}
	}
	return out
}

// NormalizedFeatured returns the featured slots padded to at least FeaturedSlots entries.
func (d *StoreDocument) NormalizedFeatured() []*string {
	n := max(len(d.Featured), FeaturedSlots)
	out := make([]*string, n)
	for i, ref := range d.Featured {
		if ref != nil {
			v := *ref
			out[i] = &v
		}
	}
	return out
}

// Clone returns a deep copy so callers can modify it without touching a shared snapshot.
func (d *StoreDocument) Clone() StoreDocument {
	out := StoreDocument{
		Shop:               d.Shop,
		ProcurementProgram: d.ProcurementProgram,
		Categories:         cloneStrings(d.Categories),
		Genres:             cloneStrings(d.Genres),
	}
	out.ProcurementProgram.Steps = cloneEntries(d.ProcurementProgram.Steps)
	out.ProcurementProgram.Policies = cloneEntries(d.ProcurementProgram.Policies)

	if d.Featured != nil {
		out.Featured = make([]*string, len(d.Featured))
		for i, ref := range d.Featured {
			if ref != nil {
				v := *ref
				out.Featured[i] = &v
			}
		}
	}

	if d.Catalog != nil {
		out.Catalog = make([]Book, len(d.Catalog))
		for i := range d.Catalog {
			out.Catalog[i] = d.Catalog[i].Clone()
		}
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneEntries(in []ProgramEntry) []ProgramEntry {
	if in == nil {
		return nil
	}
	out := make([]ProgramEntry, len(in))
	copy(out, in)
	return out
}
