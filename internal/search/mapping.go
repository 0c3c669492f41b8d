package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping maps catalog books: English full text on title, author and
// description, exact keywords on genre, category and condition, and a numeric price.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = en.AnalyzerName

	docMapping := bleve.NewDocumentMapping()

	textField := func(store, vectors bool) *mapping.FieldMapping {
		f := bleve.NewTextFieldMapping()
		f.Analyzer = en.AnalyzerName
		f.Store = store
		f.IncludeTermVectors = vectors
		return f
	}
	keywordField := func() *mapping.FieldMapping {
		f := bleve.NewTextFieldMapping()
		f.Analyzer = keyword.Name
		f.Store = true
		return f
	}

	docMapping.AddFieldMappingsAt("title", textField(true, true))
	docMapping.AddFieldMappingsAt("author", textField(true, true))
	// Descriptions can be long; searchable but not stored.
	docMapping.AddFieldMappingsAt("description", textField(false, false))

	docMapping.AddFieldMappingsAt("id", keywordField())
	docMapping.AddFieldMappingsAt("genre", keywordField())
	docMapping.AddFieldMappingsAt("category", keywordField())
	docMapping.AddFieldMappingsAt("condition", keywordField())

	price := bleve.NewNumericFieldMapping()
	price.Store = true
	docMapping.AddFieldMappingsAt("price", price)

	indexMapping.AddDocumentMapping("_default", docMapping)
	return indexMapping
}
