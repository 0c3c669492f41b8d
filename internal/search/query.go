package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

const (
	// DefaultLimit is used when Params.Limit is not positive.
	DefaultLimit = 20
	// MaxLimit caps Params.Limit.
	MaxLimit = 100
)

// Params configures a catalog search.
type Params struct {
	Query  string
	Genre  string
	Limit  int
	Offset int
}

// Result is one page of ranked hits.
type Result struct {
	Query  string       `json:"query"`
	Hits   []Hit        `json:"hits"`
	Genres []FacetCount `json:"genres,omitempty"`
	Total  uint64       `json:"total"`
	TookMs int64        `json:"tookMs"`
}

// Hit is a single ranked book.
type Hit struct {
	Highlights map[string]string `json:"highlights,omitempty"`
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Author     string            `json:"author,omitempty"`
	Genre      string            `json:"genre"`
	Score      float64           `json:"score"`
}

// FacetCount is the number of hits in one genre.
type FacetCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Search ranks books against params. An empty query matches every book.
func (c *CatalogIndex) Search(ctx context.Context, params Params) (*Result, error) {
	if params.Limit <= 0 {
		params.Limit = DefaultLimit
	}
	params.Limit = min(params.Limit, MaxLimit)
	params.Offset = max(params.Offset, 0)

	req := bleve.NewSearchRequestOptions(buildQuery(params), params.Limit, params.Offset, false)
	req.SortBy([]string{"-_score", "_id"})
	req.Fields = []string{"id", "title", "author", "genre"}
	req.Highlight = bleve.NewHighlight()
	req.Highlight.AddField("title")
	req.Highlight.AddField("author")
	req.AddFacet("genre", bleve.NewFacetRequest("genre", 20))

	c.mu.RLock()
	res, err := c.index.SearchInContext(ctx, req)
	c.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	out := &Result{
		Query:  params.Query,
		Total:  res.Total,
		TookMs: res.Took.Milliseconds(),
		Hits:   make([]Hit, 0, len(res.Hits)),
	}
	for _, h := range res.Hits {
		hit := Hit{ID: h.ID, Score: h.Score}
		hit.Title, _ = h.Fields["title"].(string)
		hit.Author, _ = h.Fields["author"].(string)
		hit.Genre, _ = h.Fields["genre"].(string)
		if len(h.Fragments) > 0 {
			hit.Highlights = make(map[string]string, len(h.Fragments))
			for field, fragments := range h.Fragments {
				if len(fragments) > 0 {
					hit.Highlights[field] = fragments[0]
				}
			}
		}
		out.Hits = append(out.Hits, hit)
	}

	if facet, ok := res.Facets["genre"]; ok && facet.Terms != nil {
		for _, term := range facet.Terms.Terms() {
			out.Genres = append(out.Genres, FacetCount{Value: term.Term, Count: term.Count})
		}
	}
	return out, nil
}

// buildQuery weighs title matches over author matches over description matches, with
// fuzzy and prefix matching on titles for typos and partial words.
func buildQuery(params Params) query.Query {
	var clauses []query.Query

	if text := strings.TrimSpace(params.Query); text != "" {
		title := bleve.NewMatchQuery(text)
		title.SetField("title")
		title.SetBoost(3.0)

		author := bleve.NewMatchQuery(text)
		author.SetField("author")
		author.SetBoost(2.0)

		description := bleve.NewMatchQuery(text)
		description.SetField("description")

		fuzzy := bleve.NewFuzzyQuery(strings.ToLower(text))
		fuzzy.SetFuzziness(1)
		fuzzy.SetField("title")
		fuzzy.SetBoost(0.8)

		matches := []query.Query{title, author, description, fuzzy}
		if len(text) >= 2 {
			prefix := bleve.NewPrefixQuery(strings.ToLower(text))
			prefix.SetField("title")
			prefix.SetBoost(0.5)
			matches = append(matches, prefix)
		}
		clauses = append(clauses, bleve.NewDisjunctionQuery(matches...))
	}

	if params.Genre != "" && params.Genre != "All" {
		genre := bleve.NewTermQuery(params.Genre)
		genre.SetField("genre")
		clauses = append(clauses, genre)
	}

	switch len(clauses) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return clauses[0]
	default:
		return bleve.NewConjunctionQuery(clauses...)
	}
}
