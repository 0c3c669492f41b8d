// Package search keeps a relevance-ranked full-text index of the catalog. The index lives
// in memory and is rebuilt from every store snapshot.
package search

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/stonewallbooks/storefront/internal/domain"
)

const batchSize = 500

// CatalogIndex is safe for concurrent use. Searches keep running against the previous
// index while a rebuild is in progress.
type CatalogIndex struct {
	logger *slog.Logger

	mu      sync.RWMutex
	index   bleve.Index
	version uint64
}

// NewCatalogIndex creates an empty index.
func NewCatalogIndex(logger *slog.Logger) (*CatalogIndex, error) {
	if logger == nil {
		logger = slog.Default()
	}
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &CatalogIndex{logger: logger, index: index}, nil
}

// Rebuild replaces the indexed catalog with books, as of store version. Rebuilds for a
// version older than the one already indexed are ignored.
func (c *CatalogIndex) Rebuild(version uint64, books []domain.Book) error {
	c.mu.RLock()
	stale := c.version > version
	c.mu.RUnlock()
	if stale {
		return nil
	}

	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	for start := 0; start < len(books); start += batchSize {
		end := min(start+batchSize, len(books))
		batch := index.NewBatch()
		for _, b := range books[start:end] {
			if b.ID == "" {
				continue
			}
			if err := batch.Index(b.ID, toDocument(b)); err != nil {
				index.Close()
				return fmt.Errorf("batch index %s: %w", b.ID, err)
			}
		}
		if err := index.Batch(batch); err != nil {
			index.Close()
			return fmt.Errorf("commit batch %d-%d: %w", start, end, err)
		}
	}

	c.mu.Lock()
	if c.version > version {
		c.mu.Unlock()
		index.Close()
		return nil
	}
	old := c.index
	c.index = index
	c.version = version
	c.mu.Unlock()

	if err := old.Close(); err != nil {
		c.logger.Warn("Failed to close previous search index", "error", err)
	}
	c.logger.Debug("Search index rebuilt", "version", version, "books", len(books))
	return nil
}

// DocumentCount returns the number of indexed books.
func (c *CatalogIndex) DocumentCount() (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index.DocCount()
}

// Version returns the store version last indexed.
func (c *CatalogIndex) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Close releases the index.
func (c *CatalogIndex) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.Close()
}

func toDocument(b domain.Book) map[string]any {
	doc := map[string]any{
		"id":          b.ID,
		"title":       b.Title,
		"author":      b.Author,
		"description": b.ShortDescription,
		"genre":       b.GenreOrDefault(),
		"category":    b.Category,
		"condition":   string(b.Condition),
	}
	if price, ok := b.PriceValue(); ok {
		doc["price"] = price
	}
	return doc
}
