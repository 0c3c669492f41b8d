package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stonewallbooks/storefront/internal/domain"
)

func testBooks() []domain.Book {
	return []domain.Book{
		{ID: "swb-1", Title: "The Old Man and the Sea", Author: "Ernest Hemingway", Genre: "Classics", Price: "$12"},
		{ID: "swb-2", Title: "Walden", Author: "Henry David Thoreau", Genre: "Local & New England", ShortDescription: "Life in the woods near Concord."},
		{ID: "swb-3", Title: "Field Guide to Birds", Author: "Roger Tory Peterson", ShortDescription: "Eastern birds, illustrated."},
		{ID: "swb-4", Title: "A Farewell to Arms", Author: "Ernest Hemingway", Genre: "Classics"},
	}
}

func setupTestIndex(t *testing.T) *CatalogIndex {
	t.Helper()
	index, err := NewCatalogIndex(nil)
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })
	require.NoError(t, index.Rebuild(1, testBooks()))
	return index
}

func hitIDs(res *Result) []string {
	out := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		out[i] = h.ID
	}
	return out
}

func TestCatalogIndex_Rebuild(t *testing.T) {
	index := setupTestIndex(t)

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.EqualValues(t, 4, count)
	assert.EqualValues(t, 1, index.Version())

	require.NoError(t, index.Rebuild(2, testBooks()[:1]))
	count, err = index.DocumentCount()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	require.NoError(t, index.Rebuild(1, testBooks()))
	count, err = index.DocumentCount()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count, "older versions are ignored")
}

func TestCatalogIndex_SearchByTitle(t *testing.T) {
	index := setupTestIndex(t)

	res, err := index.Search(context.Background(), Params{Query: "walden"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Hits)
	assert.Equal(t, "swb-2", res.Hits[0].ID)
	assert.Equal(t, "Walden", res.Hits[0].Title)
	assert.Equal(t, "Local & New England", res.Hits[0].Genre)
}

func TestCatalogIndex_SearchByAuthor(t *testing.T) {
	index := setupTestIndex(t)

	res, err := index.Search(context.Background(), Params{Query: "hemingway"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"swb-1", "swb-4"}, hitIDs(res))
}

func TestCatalogIndex_SearchDescription(t *testing.T) {
	index := setupTestIndex(t)

	res, err := index.Search(context.Background(), Params{Query: "woods"})
	require.NoError(t, err)
	assert.Equal(t, []string{"swb-2"}, hitIDs(res))
}

func TestCatalogIndex_GenreFilter(t *testing.T) {
	index := setupTestIndex(t)

	res, err := index.Search(context.Background(), Params{Genre: domain.UncategorizedGenre})
	require.NoError(t, err)
	assert.Equal(t, []string{"swb-3"}, hitIDs(res))

	res, err = index.Search(context.Background(), Params{Query: "hemingway", Genre: "Local & New England"})
	require.NoError(t, err)
	assert.Empty(t, res.Hits)
}

func TestCatalogIndex_EmptyQueryMatchesAll(t *testing.T) {
	index := setupTestIndex(t)

	res, err := index.Search(context.Background(), Params{Genre: "All"})
	require.NoError(t, err)
	assert.EqualValues(t, 4, res.Total)
	assert.NotEmpty(t, res.Genres)
}

func TestCatalogIndex_Paging(t *testing.T) {
	index := setupTestIndex(t)

	res, err := index.Search(context.Background(), Params{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, res.Hits, 2)
	assert.EqualValues(t, 4, res.Total)

	res, err = index.Search(context.Background(), Params{Limit: 2, Offset: 3})
	require.NoError(t, err)
	assert.Len(t, res.Hits, 1)
}
