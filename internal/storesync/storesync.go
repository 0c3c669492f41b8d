// Package storesync keeps the process's copy of the shared store document in step with the
// document database. It opens one realtime subscription once an identity exists, merges each
// push over the compiled-in defaults, seeds the document when it is missing, and writes whole
// documents back on behalf of the mutators.
package storesync

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/stonewallbooks/storefront/internal/docstore"
	"github.com/stonewallbooks/storefront/internal/domain"
	domainerrors "github.com/stonewallbooks/storefront/internal/errors"
	"github.com/stonewallbooks/storefront/internal/identity"
)

// seedTimeout bounds the create-only write made when the document is missing.
const seedTimeout = 10 * time.Second

// IdentitySource pushes the session identity. identity.Manager implements it.
type IdentitySource interface {
	OnIdentityChange(fn func(*domain.Identity)) (unsubscribe func())
}

// Recorder receives applied snapshots, typically for metrics.
type Recorder interface {
	SnapshotApplied(version uint64, catalogSize int)
}

// Options configures a Synchronizer.
type Options struct {
	Logger   *slog.Logger
	Recorder Recorder
	AppID    string
	Defaults domain.StoreDocument
	// Strict makes writes conditional on the version the caller read.
	Strict bool
}

// ErrNotSynced is returned by writes made before the first snapshot arrived.
var ErrNotSynced = domainerrors.Unavailable("store not synced yet")

// State is the merged document as of one push.
type State struct {
	UpdatedAt time.Time            `json:"updatedAt"`
	Doc       domain.StoreDocument `json:"doc"`
	Version   uint64               `json:"version"`
	// Synced is false until the first push has been applied; Doc holds the defaults until then.
	Synced bool `json:"synced"`
}

// Synchronizer owns the merged snapshot of the store document.
type Synchronizer struct {
	db       *docstore.DB
	path     docstore.Path
	defaults domain.StoreDocument
	strict   bool
	logger   *slog.Logger
	recorder Recorder

	mu        sync.RWMutex
	state     State
	session   *domain.Identity
	changed   chan struct{}
	listeners map[int]func(State)
	nextID    int
}

// New creates a Synchronizer for the store document of opts.AppID and installs the
// librarian write policy on that path.
func New(db *docstore.DB, opts Options) (*Synchronizer, error) {
	if err := docstore.ValidateAppID(opts.AppID); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Synchronizer{
		db:        db,
		path:      docstore.StoreConfigPath(opts.AppID),
		defaults:  opts.Defaults.Clone(),
		strict:    opts.Strict,
		logger:    opts.Logger,
		recorder:  opts.Recorder,
		changed:   make(chan struct{}),
		listeners: make(map[int]func(State)),
	}
	s.state = State{Doc: s.defaults.Clone()}

	db.SetPolicy(s.path, s.librarianPolicy)
	return s, nil
}

// Path returns the document path being synchronized.
func (s *Synchronizer) Path() docstore.Path {
	return s.path
}

// Run waits for a non-nil identity, then holds a single subscription to the store
// document until ctx is done. Identity changes after that only affect IsLibrarian.
func (s *Synchronizer) Run(ctx context.Context, identities IdentitySource) error {
	ready := make(chan struct{}, 1)
	stopIdentity := identities.OnIdentityChange(func(id *domain.Identity) {
		s.mu.Lock()
		s.session = id
		s.mu.Unlock()
		if id != nil {
			select {
			case ready <- struct{}{}:
			default:
			}
		}
	})
	defer stopIdentity()

	select {
	case <-ctx.Done():
		return nil
	case <-ready:
	}

	s.logger.Info("Subscribing to store document", "path", s.path)
	unsubscribe := s.db.Subscribe(s.path, s.apply, func(err error) {
		s.logger.Warn("Store subscription error", "path", s.path, "error", err)
	})
	defer unsubscribe()

	<-ctx.Done()
	s.logger.Info("Store subscription closed", "path", s.path)
	return nil
}

func (s *Synchronizer) apply(snap docstore.Snapshot) {
	if !snap.Exists {
		s.seed()
		return
	}

	doc, err := Merge(s.defaults, snap.Data)
	if err != nil {
		s.logger.Error("Ignoring undecodable store document", "version", snap.Version, "error", err)
		return
	}

	s.mu.Lock()
	s.state = State{Doc: doc, Version: snap.Version, UpdatedAt: snap.UpdatedAt, Synced: true}
	close(s.changed)
	s.changed = make(chan struct{})
	listeners := make([]func(State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	s.logger.Debug("Store snapshot applied", "version", snap.Version, "books", len(doc.Catalog))
	if s.recorder != nil {
		s.recorder.SnapshotApplied(snap.Version, len(doc.Catalog))
	}
	for _, fn := range listeners {
		fn(s.Snapshot())
	}
}

// seed writes the defaults when the document is missing. Only the first writer succeeds;
// everyone else waits for the echo of that write.
func (s *Synchronizer) seed() {
	data, err := json.Marshal(s.defaults)
	if err != nil {
		s.logger.Error("Failed to encode defaults", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), seedTimeout)
	defer cancel()

	_, err = s.db.SetDocumentIfVersion(ctx, s.path, data, 0)
	switch {
	case err == nil:
		s.logger.Info("Seeded store document with defaults", "path", s.path)
	case errors.Is(err, docstore.ErrVersionMismatch):
		s.logger.Debug("Store document seeded concurrently", "path", s.path)
	default:
		s.logger.Error("Failed to seed store document", "path", s.path, "error", err)
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Synchronizer) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state
	st.Doc = s.state.Doc.Clone()
	return st
}

// Defaults returns a copy of the compiled-in document.
func (s *Synchronizer) Defaults() domain.StoreDocument {
	return s.defaults.Clone()
}

// IsLibrarian reports whether the session identity is the librarian of the current snapshot.
func (s *Synchronizer) IsLibrarian() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.IsLibrarian(s.session, s.state.Doc.Shop.LibrarianEmail)
}

// LibrarianFor reports whether id is the librarian of the current snapshot.
func (s *Synchronizer) LibrarianFor(id *domain.Identity) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.IsLibrarian(id, s.state.Doc.Shop.LibrarianEmail)
}

// OnChange calls fn after every applied push, and immediately if a snapshot is already held.
// Calls are sequential and must not block.
func (s *Synchronizer) OnChange(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	key := s.nextID
	s.listeners[key] = fn
	synced := s.state.Synced
	s.mu.Unlock()

	if synced {
		fn(s.Snapshot())
	}

	return func() {
		s.mu.Lock()
		delete(s.listeners, key)
		s.mu.Unlock()
	}
}

// AwaitVersion blocks until a snapshot at or beyond version has been applied.
func (s *Synchronizer) AwaitVersion(ctx context.Context, version uint64) error {
	for {
		s.mu.RLock()
		reached := s.state.Synced && s.state.Version >= version
		changed := s.changed
		s.mu.RUnlock()

		if reached {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// AwaitSynced blocks until the first snapshot has been applied.
func (s *Synchronizer) AwaitSynced(ctx context.Context) error {
	return s.AwaitVersion(ctx, 0)
}

// Write replaces the whole store document with doc. expected is the version the caller
// based doc on; it is only enforced in strict mode. The actor on ctx must pass the librarian policy.
func (s *Synchronizer) Write(ctx context.Context, doc domain.StoreDocument, expected uint64) (uint64, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return 0, domainerrors.Wrap(err, domainerrors.CodeInternal, "encode store document")
	}
	return s.WriteRaw(ctx, data, expected)
}

// WriteRaw is Write for an already encoded document, stored as given. It fails with
// Unavailable until the first push has been applied, so a write can never be based on
// the compiled-in defaults instead of the stored document.
func (s *Synchronizer) WriteRaw(ctx context.Context, data []byte, expected uint64) (uint64, error) {
	s.mu.RLock()
	synced := s.state.Synced
	s.mu.RUnlock()
	if !synced {
		return 0, ErrNotSynced
	}

	var (
		snap docstore.Snapshot
		err  error
	)
	if s.strict {
		snap, err = s.db.SetDocumentIfVersion(ctx, s.path, data, expected)
	} else {
		snap, err = s.db.SetDocument(ctx, s.path, data)
	}

	var domainErr *domainerrors.Error
	switch {
	case err == nil:
		return snap.Version, nil
	case errors.As(err, &domainErr):
		return 0, domainErr
	case errors.Is(err, docstore.ErrVersionMismatch):
		return 0, domainerrors.Conflict("store document changed since it was read").WithCause(err)
	case errors.Is(err, docstore.ErrInvalidDocument):
		return 0, domainerrors.Validation("store document must be a JSON object")
	case errors.Is(err, docstore.ErrClosed):
		return 0, domainerrors.Unavailable("store is shutting down")
	default:
		s.logger.Error("Store write failed", "path", s.path, "error", err)
		return 0, domainerrors.Wrap(err, domainerrors.CodeInternal, "write store document")
	}
}

// librarianPolicy is the storage-side check: once the document exists, only its
// librarian may replace it. The actor comes from identity.WithActor.
func (s *Synchronizer) librarianPolicy(ctx context.Context, _ docstore.Path, current docstore.Snapshot, _ []byte) error {
	if !current.Exists {
		return nil
	}
	actor := identity.ActorFrom(ctx)
	email := librarianEmailOf(current.Data, s.defaults.Shop.LibrarianEmail)
	if !domain.IsLibrarian(actor, email) {
		return domainerrors.Forbidden("librarian access required")
	}
	return nil
}

