// Package service implements the storefront's read models and mutators over the shared store
// document. Every mutator reads the current snapshot, computes the full new document and
// writes it back through the synchronizer; callers wait for the echo before reporting success.
package service

import (
	"context"
	"log/slog"

	"github.com/stonewallbooks/storefront/internal/domain"
	domainerrors "github.com/stonewallbooks/storefront/internal/errors"
	"github.com/stonewallbooks/storefront/internal/identity"
	"github.com/stonewallbooks/storefront/internal/storesync"
)

// Store is the synchronizer surface the services depend on. storesync.Synchronizer implements it.
type Store interface {
	Snapshot() storesync.State
	Defaults() domain.StoreDocument
	LibrarianFor(id *domain.Identity) bool
	Write(ctx context.Context, doc domain.StoreDocument, expected uint64) (uint64, error)
	WriteRaw(ctx context.Context, data []byte, expected uint64) (uint64, error)
}

// Authorizer decides whether an actor may change the store document.
type Authorizer interface {
	Authorize(actor *domain.Identity) error
}

// LibrarianAuthorizer admits the librarian of the current snapshot.
type LibrarianAuthorizer struct {
	store Store
}

// NewLibrarianAuthorizer creates an Authorizer backed by the store's librarian email.
func NewLibrarianAuthorizer(store Store) *LibrarianAuthorizer {
	return &LibrarianAuthorizer{store: store}
}

// Authorize returns Unauthorized for a missing actor and Forbidden for anyone but the librarian.
// Before the first snapshot the librarian is unknown, so it returns Unavailable.
func (a *LibrarianAuthorizer) Authorize(actor *domain.Identity) error {
	if actor == nil {
		return domainerrors.Unauthorized("sign in required")
	}
	if !a.store.Snapshot().Synced {
		return storesync.ErrNotSynced
	}
	if !a.store.LibrarianFor(actor) {
		return domainerrors.Forbidden("librarian access required")
	}
	return nil
}

// mutator is embedded by every service that writes the store document.
type mutator struct {
	store  Store
	authz  Authorizer
	logger *slog.Logger
}

func newMutator(store Store, authz Authorizer, logger *slog.Logger) mutator {
	if authz == nil {
		authz = NewLibrarianAuthorizer(store)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return mutator{store: store, authz: authz, logger: logger}
}

// mutate authorizes actor, applies fn to a private copy of the current document and writes
// the result. It returns the version the store accepted.
func (m mutator) mutate(ctx context.Context, actor *domain.Identity, fn func(doc *domain.StoreDocument) error) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	state, err := m.synced()
	if err != nil {
		return 0, err
	}
	if err := m.authz.Authorize(actor); err != nil {
		return 0, err
	}

	doc := state.Doc
	if err := fn(&doc); err != nil {
		return 0, err
	}

	return m.store.Write(identity.WithActor(ctx, actor), doc, state.Version)
}

// synced returns the current state, or Unavailable while it still holds the defaults.
func (m mutator) synced() (storesync.State, error) {
	state := m.store.Snapshot()
	if !state.Synced {
		return state, storesync.ErrNotSynced
	}
	return state, nil
}
