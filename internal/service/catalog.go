package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/stonewallbooks/storefront/internal/blob"
	"github.com/stonewallbooks/storefront/internal/catalog"
	"github.com/stonewallbooks/storefront/internal/domain"
	domainerrors "github.com/stonewallbooks/storefront/internal/errors"
	"github.com/stonewallbooks/storefront/internal/id"
	"github.com/stonewallbooks/storefront/internal/search"
	"github.com/stonewallbooks/storefront/internal/validation"
)

// SearchIndex answers ranked full-text queries. search.CatalogIndex implements it.
type SearchIndex interface {
	Search(ctx context.Context, params search.Params) (*search.Result, error)
}

// UploadRecorder is told the outcome of every image upload.
type UploadRecorder interface {
	ImageUploaded(ok bool)
}

// ImageUpload is a new image attached to a book save.
type ImageUpload struct {
	Filename string
	Data     []byte
}

// BookDraft is the librarian's edit form. Price is edited on its own and reconciled
// into the book's tags on save.
type BookDraft struct {
	Book      domain.Book
	Price     string
	NewImages []ImageUpload
}

// SavedBook is the result of SaveBook.
type SavedBook struct {
	Book    domain.Book
	Version uint64
	// FailedUploads names the images that could not be stored. The save still happened.
	FailedUploads []string
}

// CatalogService reads and edits the catalog and the featured slots.
type CatalogService struct {
	mutator
	blobs     blob.Store
	index     SearchIndex
	uploads   UploadRecorder
	validator *validation.Validator
	now       func() time.Time
}

// NewCatalogService creates a CatalogService. index and uploads may be nil.
func NewCatalogService(store Store, authz Authorizer, blobs blob.Store, index SearchIndex, uploads UploadRecorder, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		mutator:   newMutator(store, authz, logger),
		blobs:     blobs,
		index:     index,
		uploads:   uploads,
		validator: validation.New(),
		now:       time.Now,
	}
}

// Browse filters the current catalog and groups it by genre when no single genre is selected.
func (s *CatalogService) Browse(q catalog.Query) catalog.Result {
	return catalog.Run(s.store.Snapshot().Doc.Catalog, q)
}

// Book returns one catalog entry.
func (s *CatalogService) Book(bookID string) (domain.Book, error) {
	state := s.store.Snapshot()
	book, ok := state.Doc.FindBook(bookID)
	if !ok {
		return domain.Book{}, domainerrors.NotFoundf("book %q not found", bookID)
	}
	return book, nil
}

// Featured resolves the featured slots. Empty and dangling slots come back nil.
func (s *CatalogService) Featured() []*domain.Book {
	doc := s.store.Snapshot().Doc
	doc.Featured = doc.NormalizedFeatured()
	return doc.ResolveFeatured()
}

// Search runs a ranked full-text query over the catalog.
func (s *CatalogService) Search(ctx context.Context, params search.Params) (*search.Result, error) {
	if s.index == nil {
		return nil, domainerrors.Unavailable("search is not enabled")
	}
	res, err := s.index.Search(ctx, params)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "search catalog")
	}
	return res, nil
}

// SaveBook upserts a book: an existing id is replaced in place, a new one is appended.
// New images are uploaded one at a time first; a failed upload is logged and skipped.
func (s *CatalogService) SaveBook(ctx context.Context, actor *domain.Identity, draft BookDraft) (*SavedBook, error) {
	if _, err := s.synced(); err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(actor); err != nil {
		return nil, err
	}

	book := draft.Book.Clone()
	if book.ID == "" {
		book.ID = id.BookID(s.now())
	}
	book.Price = draft.Price
	book.Tags = domain.WithPrice(book.Tags, draft.Price)
	if book.Images == nil {
		book.Images = []string{}
	}
	if err := s.validator.Validate(book); err != nil {
		return nil, err
	}

	var failed []string
	for _, img := range draft.NewImages {
		url, err := s.upload(ctx, book.ID, img)
		if err != nil {
			s.logger.Warn("Image upload failed, skipping",
				"book_id", book.ID, "filename", img.Filename, "error", err)
			failed = append(failed, img.Filename)
			continue
		}
		book.Images = append(book.Images, url)
	}

	version, err := s.mutate(ctx, actor, func(doc *domain.StoreDocument) error {
		if i := doc.BookIndex(book.ID); i >= 0 {
			doc.Catalog[i] = book
		} else {
			doc.Catalog = append(doc.Catalog, book)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Book saved", "book_id", book.ID, "version", version, "images", len(book.Images))
	return &SavedBook{Book: book, Version: version, FailedUploads: failed}, nil
}

func (s *CatalogService) upload(ctx context.Context, bookID string, img ImageUpload) (string, error) {
	if s.blobs == nil {
		return "", domainerrors.Unavailable("image storage is not configured")
	}
	obj, err := s.blobs.Upload(ctx, blob.ImagePath(bookID, s.now(), img.Filename), img.Data)
	if s.uploads != nil {
		s.uploads.ImageUploaded(err == nil)
	}
	if err != nil {
		return "", err
	}
	return obj.URL, nil
}

// DeleteBook removes a book and clears every featured slot that pointed at it.
func (s *CatalogService) DeleteBook(ctx context.Context, actor *domain.Identity, bookID string) (uint64, error) {
	version, err := s.mutate(ctx, actor, func(doc *domain.StoreDocument) error {
		i := doc.BookIndex(bookID)
		if i < 0 {
			return domainerrors.NotFoundf("book %q not found", bookID)
		}
		doc.Catalog = append(doc.Catalog[:i], doc.Catalog[i+1:]...)
		for slot, ref := range doc.Featured {
			if ref != nil && *ref == bookID {
				doc.Featured[slot] = nil
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("Book deleted", "book_id", bookID, "version", version)
	return version, nil
}

// AssignFeatured points a featured slot at bookID, or clears it when bookID is nil.
// The id is not checked against the catalog.
func (s *CatalogService) AssignFeatured(ctx context.Context, actor *domain.Identity, slot int, bookID *string) (uint64, error) {
	if slot < 0 || slot >= domain.FeaturedSlots {
		return 0, domainerrors.Validationf("featured slot must be between 0 and %d", domain.FeaturedSlots-1)
	}
	return s.mutate(ctx, actor, func(doc *domain.StoreDocument) error {
		doc.Featured = doc.NormalizedFeatured()
		if bookID == nil || *bookID == "" {
			doc.Featured[slot] = nil
			return nil
		}
		ref := *bookID
		doc.Featured[slot] = &ref
		return nil
	})
}
