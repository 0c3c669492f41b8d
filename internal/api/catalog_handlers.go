package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/stonewallbooks/storefront/internal/blob"
	"github.com/stonewallbooks/storefront/internal/catalog"
	"github.com/stonewallbooks/storefront/internal/domain"
	"github.com/stonewallbooks/storefront/internal/search"
	"github.com/stonewallbooks/storefront/internal/service"
)

// maxBookBodyBytes leaves room for a handful of base64 images in one save.
const maxBookBodyBytes = 6 * blob.MaxUploadSize

func (s *Server) registerCatalogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "browseCatalog",
		Method:      http.MethodGet,
		Path:        "/api/v1/catalog",
		Summary:     "Browse catalog",
		Description: "Filters the catalog by text, genre and inclusive price bounds. Without a genre, or with genre All, results are also grouped by genre in first-seen order.",
		Tags:        []string{"Catalog"},
	}, s.handleBrowseCatalog)

	huma.Register(s.api, huma.Operation{
		OperationID: "searchCatalog",
		Method:      http.MethodGet,
		Path:        "/api/v1/catalog/search",
		Summary:     "Search catalog",
		Description: "Relevance-ranked full-text search with a genre facet",
		Tags:        []string{"Catalog"},
	}, s.handleSearchCatalog)

	huma.Register(s.api, huma.Operation{
		OperationID: "getBook",
		Method:      http.MethodGet,
		Path:        "/api/v1/catalog/books/{id}",
		Summary:     "Get book",
		Tags:        []string{"Catalog"},
	}, s.handleGetBook)

	huma.Register(s.api, huma.Operation{
		OperationID:  "createBook",
		Method:       http.MethodPost,
		Path:         "/api/v1/catalog/books",
		Summary:      "Add book",
		Description:  "Appends a book with a generated id",
		Tags:         []string{"Catalog"},
		Security:     []map[string][]string{{"bearer": {}}},
		MaxBodyBytes: maxBookBodyBytes,
	}, s.handleCreateBook)

	huma.Register(s.api, huma.Operation{
		OperationID:  "saveBook",
		Method:       http.MethodPut,
		Path:         "/api/v1/catalog/books/{id}",
		Summary:      "Save book",
		Description:  "Replaces the book with this id in place, or appends it when the id is new. New images are uploaded first; failed uploads are skipped.",
		Tags:         []string{"Catalog"},
		Security:     []map[string][]string{{"bearer": {}}},
		MaxBodyBytes: maxBookBodyBytes,
	}, s.handleSaveBook)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteBook",
		Method:      http.MethodDelete,
		Path:        "/api/v1/catalog/books/{id}",
		Summary:     "Delete book",
		Description: "Removes the book and clears any featured slot that pointed at it",
		Tags:        []string{"Catalog"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleDeleteBook)

	huma.Register(s.api, huma.Operation{
		OperationID: "assignFeatured",
		Method:      http.MethodPut,
		Path:        "/api/v1/featured/{slot}",
		Summary:     "Assign featured slot",
		Description: "Points a featured slot at a book id, or clears it with null. The id is not checked.",
		Tags:        []string{"Store"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleAssignFeatured)
}

// === DTOs ===

// BrowseInput holds the catalog filters.
type BrowseInput struct {
	Search   string `query:"q" maxLength:"200" doc:"Case-insensitive text matched against title, author and description"`
	Genre    string `query:"genre" maxLength:"200" doc:"Genre to show, or All"`
	MinPrice string `query:"minPrice" doc:"Inclusive lower price bound"`
	MaxPrice string `query:"maxPrice" doc:"Inclusive upper price bound"`
}

// CatalogResponse is a filtered catalog.
type CatalogResponse struct {
	Books  []domain.Book   `json:"books" doc:"Matching books in catalog order"`
	Groups []catalog.Group `json:"groups,omitempty" doc:"Matching books grouped by genre"`
	Total  int             `json:"total" doc:"Number of matching books"`
}

// CatalogOutput wraps the catalog response for Huma.
type CatalogOutput struct {
	Body CatalogResponse
}

// SearchInput holds the search parameters.
type SearchInput struct {
	Query  string `query:"q" maxLength:"200" doc:"Search text"`
	Genre  string `query:"genre" maxLength:"200" doc:"Restrict to one genre"`
	Limit  int    `query:"limit" minimum:"0" maximum:"100" doc:"Maximum hits"`
	Offset int    `query:"offset" minimum:"0" doc:"Hits to skip"`
}

// SearchOutput wraps the search result for Huma.
type SearchOutput struct {
	Body *search.Result
}

// BookPathInput names a book.
type BookPathInput struct {
	ID string `path:"id" maxLength:"200" doc:"Book id"`
}

// BookOutput wraps a book for Huma.
type BookOutput struct {
	Body domain.Book
}

// ImageUploadRequest is an image attached to a book save.
type ImageUploadRequest struct {
	Filename string `json:"filename" minLength:"1" maxLength:"255" doc:"Original file name"`
	Data     []byte `json:"data" doc:"Base64 image bytes (JPEG, PNG, GIF or WebP)"`
}

// BookRequest is the librarian's book form.
type BookRequest struct {
	Title            string               `json:"title" doc:"Title"`
	Author           string               `json:"author,omitempty" doc:"Author"`
	Category         string               `json:"category,omitempty" doc:"Category, '/' separated"`
	Genre            string               `json:"genre,omitempty" doc:"Genre"`
	Condition        string               `json:"condition,omitempty" doc:"New, Like New, Very Good, Good or Acceptable"`
	ShortDescription string               `json:"shortDescription,omitempty" doc:"Description"`
	EbayURL          string               `json:"ebayUrl,omitempty" doc:"Marketplace listing"`
	Price            string               `json:"price,omitempty" maxLength:"50" doc:"Display price; empty removes it"`
	Images           []string             `json:"images,omitempty" doc:"Existing image URLs to keep"`
	Tags             []string             `json:"tags,omitempty" doc:"Free-form tags"`
	NewImages        []ImageUploadRequest `json:"newImages,omitempty" maxItems:"5" doc:"Images to upload"`
}

// CreateBookInput wraps a new book for Huma.
type CreateBookInput struct {
	Body BookRequest
}

// SaveBookInput wraps a book save for Huma.
type SaveBookInput struct {
	ID   string `path:"id" maxLength:"200" doc:"Book id"`
	Body BookRequest
}

// SaveBookResponse is the stored book.
type SaveBookResponse struct {
	Book          domain.Book `json:"book" doc:"Book as stored"`
	FailedUploads []string    `json:"failedUploads,omitempty" doc:"Images that could not be stored"`
	MutationResponse
}

// SaveBookOutput wraps the save response for Huma.
type SaveBookOutput struct {
	Body SaveBookResponse
}

// FeaturedSlotInput assigns a featured slot.
type FeaturedSlotInput struct {
	Slot int `path:"slot" minimum:"0" maximum:"1" doc:"Slot index"`
	Body struct {
		BookID *string `json:"bookId" required:"false" doc:"Book id, or null to clear"`
	}
}

// === Handlers ===

func (s *Server) handleBrowseCatalog(_ context.Context, input *BrowseInput) (*CatalogOutput, error) {
	minPrice, err := catalog.ParseBound(input.MinPrice)
	if err != nil {
		return nil, apiError(err)
	}
	maxPrice, err := catalog.ParseBound(input.MaxPrice)
	if err != nil {
		return nil, apiError(err)
	}

	res := s.services.Catalog.Browse(catalog.Query{
		Search: input.Search,
		Genre:  input.Genre,
		Min:    minPrice,
		Max:    maxPrice,
	})
	if res.Books == nil {
		res.Books = []domain.Book{}
	}
	return &CatalogOutput{Body: CatalogResponse{Books: res.Books, Groups: res.Groups, Total: len(res.Books)}}, nil
}

func (s *Server) handleSearchCatalog(ctx context.Context, input *SearchInput) (*SearchOutput, error) {
	res, err := s.services.Catalog.Search(ctx, search.Params{
		Query:  input.Query,
		Genre:  input.Genre,
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return nil, apiError(err)
	}
	return &SearchOutput{Body: res}, nil
}

func (s *Server) handleGetBook(_ context.Context, input *BookPathInput) (*BookOutput, error) {
	book, err := s.services.Catalog.Book(input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &BookOutput{Body: book}, nil
}

func (s *Server) handleCreateBook(ctx context.Context, input *CreateBookInput) (*SaveBookOutput, error) {
	return s.saveBook(ctx, "", input.Body)
}

func (s *Server) handleSaveBook(ctx context.Context, input *SaveBookInput) (*SaveBookOutput, error) {
	return s.saveBook(ctx, input.ID, input.Body)
}

func (s *Server) saveBook(ctx context.Context, bookID string, req BookRequest) (*SaveBookOutput, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}

	draft := service.BookDraft{
		Book: domain.Book{
			ID:               bookID,
			Title:            req.Title,
			Author:           req.Author,
			Category:         req.Category,
			Genre:            req.Genre,
			Condition:        domain.Condition(req.Condition),
			ShortDescription: req.ShortDescription,
			EbayURL:          req.EbayURL,
			Images:           req.Images,
			Tags:             req.Tags,
		},
		Price: req.Price,
	}
	for _, img := range req.NewImages {
		draft.NewImages = append(draft.NewImages, service.ImageUpload{Filename: img.Filename, Data: img.Data})
	}

	saved, err := s.services.Catalog.SaveBook(ctx, actor, draft)
	if err != nil {
		return nil, apiError(err)
	}
	return &SaveBookOutput{Body: SaveBookResponse{
		Book:             saved.Book,
		FailedUploads:    saved.FailedUploads,
		MutationResponse: s.awaitEcho(ctx, saved.Version),
	}}, nil
}

func (s *Server) handleDeleteBook(ctx context.Context, input *BookPathInput) (*MutationOutput, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	version, err := s.services.Catalog.DeleteBook(ctx, actor, input.ID)
	return s.mutation(ctx, version, err)
}

func (s *Server) handleAssignFeatured(ctx context.Context, input *FeaturedSlotInput) (*MutationOutput, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	version, err := s.services.Catalog.AssignFeatured(ctx, actor, input.Slot, input.Body.BookID)
	return s.mutation(ctx, version, err)
}
