package service

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/stonewallbooks/storefront/internal/csvimport"
	"github.com/stonewallbooks/storefront/internal/domain"
	domainerrors "github.com/stonewallbooks/storefront/internal/errors"
	"github.com/stonewallbooks/storefront/internal/identity"
)

// BackupFilename is the download name of the JSON backup.
const BackupFilename = "catalog-backup.json"

// ImportResult summarizes a catalog import.
type ImportResult struct {
	Categories []string `json:"categories"`
	Books      int      `json:"books"`
	Version    uint64   `json:"version"`
}

// DeskService holds the librarian desk operations that act on the document as a whole.
type DeskService struct {
	mutator
	now func() time.Time
}

// NewDeskService creates a DeskService.
func NewDeskService(store Store, authz Authorizer, logger *slog.Logger) *DeskService {
	return &DeskService{mutator: newMutator(store, authz, logger), now: time.Now}
}

// Document returns the current merged store document with its version.
func (s *DeskService) Document() (domain.StoreDocument, uint64) {
	state := s.store.Snapshot()
	return state.Doc, state.Version
}

// ClaimDesk locks the desk to the actor's email. It only works while the shop has no
// librarian email, when every signed-in account counts as librarian.
func (s *DeskService) ClaimDesk(ctx context.Context, actor *domain.Identity) (uint64, error) {
	if actor == nil {
		return 0, domainerrors.Unauthorized("sign in required")
	}
	if actor.IsAnonymous || actor.Email == "" {
		return 0, domainerrors.Forbidden("claiming the desk requires a signed-in account with an email")
	}
	state, err := s.synced()
	if err != nil {
		return 0, err
	}
	if state.Doc.Shop.LibrarianEmail != "" {
		return 0, domainerrors.AlreadyConfigured("the librarian desk has already been claimed")
	}

	version, err := s.mutate(ctx, actor, func(doc *domain.StoreDocument) error {
		if doc.Shop.LibrarianEmail != "" {
			return domainerrors.AlreadyConfigured("the librarian desk has already been claimed")
		}
		doc.Shop.LibrarianEmail = actor.Email
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("Librarian desk claimed", "email", actor.Email, "version", version)
	return version, nil
}

// ResetStore replaces the whole document with the compiled-in defaults.
func (s *DeskService) ResetStore(ctx context.Context, actor *domain.Identity, confirm bool) (uint64, error) {
	if !confirm {
		return 0, domainerrors.Validation("resetting the store must be confirmed")
	}
	defaults := s.store.Defaults()
	version, err := s.mutate(ctx, actor, func(doc *domain.StoreDocument) error {
		*doc = defaults
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Warn("Store reset to defaults", "version", version)
	return version, nil
}

// OverwriteRaw replaces the document with text, which must decode as a store document.
// The text is stored as given, only compacted. Malformed input writes nothing, and neither
// does a book whose structured price disagrees with its "Price: " tag, since the structured
// price would hide the edit.
func (s *DeskService) OverwriteRaw(ctx context.Context, actor *domain.Identity, text string) (uint64, error) {
	state, err := s.synced()
	if err != nil {
		return 0, err
	}
	if err := s.authz.Authorize(actor); err != nil {
		return 0, err
	}

	var doc domain.StoreDocument
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return 0, domainerrors.Validationf("invalid store document: %v", err)
	}
	var mismatched []string
	for _, b := range doc.Catalog {
		if b.PriceTagMismatch() {
			mismatched = append(mismatched, b.ID)
		}
	}
	if len(mismatched) > 0 {
		return 0, domainerrors.ValidationWithDetails(
			`price and "Price: " tag disagree; change both or remove the price field`,
			map[string][]string{"books": mismatched})
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, []byte(text)); err != nil {
		return 0, domainerrors.Validationf("invalid store document: %v", err)
	}
	if !doc.ProcurementProgram.Split.Valid() {
		s.logger.Warn("Raw document has a proceeds split that does not total 100",
			"collaborator", doc.ProcurementProgram.Split.CollaboratorPercent,
			"shop", doc.ProcurementProgram.Split.ShopPercent)
	}

	version, err := s.store.WriteRaw(identity.WithActor(ctx, actor), compact.Bytes(), state.Version)
	if err != nil {
		return 0, err
	}
	s.logger.Info("Store document overwritten", "version", version, "bytes", compact.Len())
	return version, nil
}

// ImportCatalog replaces the whole catalog with the books parsed from text. Categories are
// rebuilt from the imported books, keeping the old list if none were found.
func (s *DeskService) ImportCatalog(ctx context.Context, actor *domain.Identity, text string, confirm bool) (*ImportResult, error) {
	if !confirm {
		return nil, domainerrors.Validation("importing replaces the whole catalog and must be confirmed")
	}
	books, err := csvimport.Parse(text, s.now())
	if err != nil {
		return nil, err
	}
	categories := csvimport.DeriveCategories(books)

	var kept []string
	version, err := s.mutate(ctx, actor, func(doc *domain.StoreDocument) error {
		doc.Catalog = books
		if len(categories) > 0 {
			doc.Categories = categories
		}
		kept = doc.Categories
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Catalog imported", "books", len(books), "categories", len(categories), "version", version)
	return &ImportResult{Books: len(books), Categories: kept, Version: version}, nil
}

// ExportBackup returns the full merged document as indented JSON.
func (s *DeskService) ExportBackup(actor *domain.Identity) ([]byte, error) {
	if err := s.authz.Authorize(actor); err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(s.store.Snapshot().Doc, "", "  ")
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "encode backup")
	}
	return data, nil
}

// ExportCatalogCSV writes the catalog in the column layout ImportCatalog reads back losslessly.
func (s *DeskService) ExportCatalogCSV(actor *domain.Identity) (string, error) {
	if err := s.authz.Authorize(actor); err != nil {
		return "", err
	}
	out, err := csvimport.Export(s.store.Snapshot().Doc.Catalog)
	if err != nil {
		return "", domainerrors.Wrap(err, domainerrors.CodeInternal, "export catalog")
	}
	return out, nil
}
