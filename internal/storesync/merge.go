package storesync

import (
	"encoding/json"
	"fmt"

	"github.com/stonewallbooks/storefront/internal/domain"
)

// Merge overlays a stored document on the defaults. Each top-level key present in raw
// replaces the default value outright; categories and genres are instead the union of the
// defaults and the stored lists, defaults first. Unknown keys are ignored.
func Merge(defaults domain.StoreDocument, raw []byte) (domain.StoreDocument, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return domain.StoreDocument{}, fmt.Errorf("decode store document: %w", err)
	}

	merged := defaults.Clone()
	for key, value := range fields {
		var err error
		switch key {
		case "shop":
			var shop domain.Shop
			err = json.Unmarshal(value, &shop)
			merged.Shop = shop
		case "procurementProgram":
			var program domain.ProcurementProgram
			err = json.Unmarshal(value, &program)
			merged.ProcurementProgram = program
		case "categories":
			var categories []string
			err = json.Unmarshal(value, &categories)
			merged.Categories = Union(defaults.Categories, categories)
		case "genres":
			var genres []string
			err = json.Unmarshal(value, &genres)
			merged.Genres = Union(defaults.Genres, genres)
		case "featured":
			var featured []*string
			err = json.Unmarshal(value, &featured)
			merged.Featured = featured
		case "catalog":
			var catalog []domain.Book
			err = json.Unmarshal(value, &catalog)
			merged.Catalog = catalog
		}
		if err != nil {
			return domain.StoreDocument{}, fmt.Errorf("decode %s: %w", key, err)
		}
	}
	return merged, nil
}

// Union returns base followed by the members of extra not already present, without duplicates.
func Union(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

// librarianEmailOf reads shop.librarianEmail from a stored document, falling back to
// fallback when the shop key is absent. It tolerates documents Merge would reject.
func librarianEmailOf(raw []byte, fallback string) string {
	var doc struct {
		Shop *struct {
			LibrarianEmail any `json:"librarianEmail"`
		} `json:"shop"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil || doc.Shop == nil {
		return fallback
	}
	email, _ := doc.Shop.LibrarianEmail.(string)
	return email
}
