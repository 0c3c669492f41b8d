package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/stonewallbooks/storefront/internal/domain"
	"github.com/stonewallbooks/storefront/internal/identity"
)

func (s *Server) registerStoreRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getStore",
		Method:      http.MethodGet,
		Path:        "/api/v1/store",
		Summary:     "Get store document",
		Description: "Returns the merged store document, its version, and whether the caller is the librarian",
		Tags:        []string{"Store"},
	}, s.handleGetStore)

	huma.Register(s.api, huma.Operation{
		OperationID: "getFeatured",
		Method:      http.MethodGet,
		Path:        "/api/v1/featured",
		Summary:     "Get featured books",
		Description: "Resolves the featured slots. Empty slots and slots naming a deleted book are null.",
		Tags:        []string{"Store"},
	}, s.handleGetFeatured)
}

// StoreResponse is the current store document.
type StoreResponse struct {
	UpdatedAt   time.Time            `json:"updatedAt" doc:"When the document was last written"`
	Doc         domain.StoreDocument `json:"doc" doc:"Merged store document"`
	Version     uint64               `json:"version" doc:"Document version"`
	Synced      bool                 `json:"synced" doc:"False until the first snapshot arrives; doc then holds the defaults"`
	IsLibrarian bool                 `json:"isLibrarian" doc:"Whether the caller may edit the store"`
}

// StoreOutput wraps the store response for Huma.
type StoreOutput struct {
	Body StoreResponse
}

// FeaturedResponse lists the featured slots in order.
type FeaturedResponse struct {
	Slots []*domain.Book `json:"slots" doc:"One entry per slot, null when empty or dangling"`
}

// FeaturedOutput wraps the featured response for Huma.
type FeaturedOutput struct {
	Body FeaturedResponse
}

// MutationResponse reports where a change landed.
type MutationResponse struct {
	Version uint64 `json:"version" doc:"Version the store accepted"`
	Synced  bool   `json:"synced" doc:"Whether the change had come back on the store subscription before responding"`
}

// MutationOutput wraps a mutation response for Huma.
type MutationOutput struct {
	Body MutationResponse
}

func (s *Server) handleGetStore(ctx context.Context, _ *struct{}) (*StoreOutput, error) {
	state := s.store.Snapshot()
	return &StoreOutput{Body: StoreResponse{
		Doc:         state.Doc,
		Version:     state.Version,
		UpdatedAt:   state.UpdatedAt,
		Synced:      state.Synced,
		IsLibrarian: s.store.LibrarianFor(identity.ActorFrom(ctx)),
	}}, nil
}

func (s *Server) handleGetFeatured(_ context.Context, _ *struct{}) (*FeaturedOutput, error) {
	return &FeaturedOutput{Body: FeaturedResponse{Slots: s.services.Catalog.Featured()}}, nil
}

// awaitEcho waits until the store subscription has delivered version, so the caller's next
// read reflects its own write. A slow echo is reported, not treated as a failure.
func (s *Server) awaitEcho(ctx context.Context, version uint64) MutationResponse {
	ctx, cancel := context.WithTimeout(ctx, s.echoTimeout)
	defer cancel()

	if err := s.store.AwaitVersion(ctx, version); err != nil {
		s.logger.Warn("Write not yet echoed", "version", version, "error", err)
		return MutationResponse{Version: version}
	}
	return MutationResponse{Version: version, Synced: true}
}

func (s *Server) mutation(ctx context.Context, version uint64, err error) (*MutationOutput, error) {
	if err != nil {
		return nil, apiError(err)
	}
	return &MutationOutput{Body: s.awaitEcho(ctx, version)}, nil
}
