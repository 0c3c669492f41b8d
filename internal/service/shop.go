package service

import (
	"context"
	"log/slog"

	"github.com/stonewallbooks/storefront/internal/domain"
	"github.com/stonewallbooks/storefront/internal/validation"
)

// ShopSettings are the shop fields the librarian can edit from the desk.
type ShopSettings struct {
	ContactEmail string `json:"contactEmail" validate:"omitempty,email"`
	EbayStoreURL string `json:"ebayStoreUrl" validate:"omitempty,url"`
}

// ShopService edits the shop metadata.
type ShopService struct {
	mutator
	validator *validation.Validator
}

// NewShopService creates a ShopService.
func NewShopService(store Store, authz Authorizer, logger *slog.Logger) *ShopService {
	return &ShopService{mutator: newMutator(store, authz, logger), validator: validation.New()}
}

// Shop returns the current shop metadata.
func (s *ShopService) Shop() domain.Shop {
	return s.store.Snapshot().Doc.Shop
}

// Program returns the procurement program content.
func (s *ShopService) Program() domain.ProcurementProgram {
	return s.store.Snapshot().Doc.ProcurementProgram
}

// UpdateShopSettings overwrites the contact email and store URL.
func (s *ShopService) UpdateShopSettings(ctx context.Context, actor *domain.Identity, settings ShopSettings) (uint64, error) {
	if err := s.validator.Validate(settings); err != nil {
		return 0, err
	}
	return s.mutate(ctx, actor, func(doc *domain.StoreDocument) error {
		doc.Shop.ContactEmail = settings.ContactEmail
		doc.Shop.EbayStoreURL = settings.EbayStoreURL
		return nil
	})
}

// RestoreShopDefaults puts the contact email and store URL back to the compiled-in values.
func (s *ShopService) RestoreShopDefaults(ctx context.Context, actor *domain.Identity) (uint64, error) {
	defaults := s.store.Defaults().Shop
	return s.mutate(ctx, actor, func(doc *domain.StoreDocument) error {
		doc.Shop.ContactEmail = defaults.ContactEmail
		doc.Shop.EbayStoreURL = defaults.EbayStoreURL
		return nil
	})
}
