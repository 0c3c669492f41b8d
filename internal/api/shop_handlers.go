package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/stonewallbooks/storefront/internal/domain"
	"github.com/stonewallbooks/storefront/internal/service"
)

func (s *Server) registerShopRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getShop",
		Method:      http.MethodGet,
		Path:        "/api/v1/shop",
		Summary:     "Get shop metadata",
		Tags:        []string{"Shop"},
	}, s.handleGetShop)

	huma.Register(s.api, huma.Operation{
		OperationID: "getProgram",
		Method:      http.MethodGet,
		Path:        "/api/v1/shop/program",
		Summary:     "Get procurement program",
		Description: "Returns the donation and consignment program content",
		Tags:        []string{"Shop"},
	}, s.handleGetProgram)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateShopSettings",
		Method:      http.MethodPatch,
		Path:        "/api/v1/shop",
		Summary:     "Update shop settings",
		Description: "Overwrites the contact email and the marketplace store URL",
		Tags:        []string{"Shop"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleUpdateShopSettings)

	huma.Register(s.api, huma.Operation{
		OperationID: "restoreShopDefaults",
		Method:      http.MethodPost,
		Path:        "/api/v1/shop/restore-defaults",
		Summary:     "Restore shop defaults",
		Description: "Puts the contact email and store URL back to the built-in values",
		Tags:        []string{"Shop"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleRestoreShopDefaults)
}

// ShopOutput wraps the shop metadata for Huma.
type ShopOutput struct {
	Body domain.Shop
}

// ProgramOutput wraps the procurement program for Huma.
type ProgramOutput struct {
	Body ProgramResponse
}

// ProgramResponse is the procurement program plus whether its split adds up.
type ProgramResponse struct {
	domain.ProcurementProgram
	SplitValid bool `json:"splitValid" doc:"Whether the proceeds split totals 100"`
}

// ShopSettingsRequest is the editable part of the shop metadata.
type ShopSettingsRequest struct {
	ContactEmail string `json:"contactEmail" maxLength:"320" doc:"Contact email, empty to clear"`
	EbayStoreURL string `json:"ebayStoreUrl" maxLength:"2048" doc:"Marketplace store URL, empty to clear"`
}

// UpdateShopSettingsInput wraps the settings for Huma.
type UpdateShopSettingsInput struct {
	Body ShopSettingsRequest
}

func (s *Server) handleGetShop(_ context.Context, _ *struct{}) (*ShopOutput, error) {
	return &ShopOutput{Body: s.services.Shop.Shop()}, nil
}

func (s *Server) handleGetProgram(_ context.Context, _ *struct{}) (*ProgramOutput, error) {
	program := s.services.Shop.Program()
	return &ProgramOutput{Body: ProgramResponse{ProcurementProgram: program, SplitValid: program.Split.Valid()}}, nil
}

func (s *Server) handleUpdateShopSettings(ctx context.Context, input *UpdateShopSettingsInput) (*MutationOutput, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	version, err := s.services.Shop.UpdateShopSettings(ctx, actor, service.ShopSettings{
		ContactEmail: input.Body.ContactEmail,
		EbayStoreURL: input.Body.EbayStoreURL,
	})
	return s.mutation(ctx, version, err)
}

func (s *Server) handleRestoreShopDefaults(ctx context.Context, _ *struct{}) (*MutationOutput, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	version, err := s.services.Shop.RestoreShopDefaults(ctx, actor)
	return s.mutation(ctx, version, err)
}
