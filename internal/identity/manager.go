// Package identity manages the current session: restoring it at startup, falling back to an
// anonymous session, and pushing every identity change to subscribers.
package identity

import (
	"context"
	"log/slog"
	"sync"

	"github.com/stonewallbooks/storefront/internal/domain"
)

// Credentials are what an interactive sign-in collects from the user.
type Credentials struct {
	Email    string
	Password string
}

// Provider is the identity provider behind the Manager.
type Provider interface {
	// Restore returns the previously persisted identity, or nil if there is none.
	Restore(ctx context.Context) (*domain.Identity, error)
	SignInInteractive(ctx context.Context, creds Credentials) (*domain.Identity, error)
	SignInAnonymous(ctx context.Context) (*domain.Identity, error)
	SignOut(ctx context.Context) error
}

// Manager owns the single current identity. Once resolved it is only nil if signing out
// succeeded but the anonymous session that should replace it could not be started.
type Manager struct {
	provider Provider
	logger   *slog.Logger

	// deliver orders callbacks, so subscribers see identities in the order they were set.
	deliver sync.Mutex

	mu       sync.RWMutex
	current  *domain.Identity
	loading  bool
	watchers map[int]func(*domain.Identity)
	nextID   int
}

// NewManager creates a manager. It reports loading until Start completes.
func NewManager(provider Provider, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		provider: provider,
		logger:   logger,
		loading:  true,
		watchers: make(map[int]func(*domain.Identity)),
	}
}

// Start resolves the session: a restored identity if one exists, otherwise a new anonymous one.
func (m *Manager) Start(ctx context.Context) error {
	restored, err := m.provider.Restore(ctx)
	if err != nil {
		m.logger.Warn("Failed to restore session, starting anonymously", "error", err)
		restored = nil
	}

	if restored == nil {
		restored, err = m.provider.SignInAnonymous(ctx)
		if err != nil {
			m.mu.Lock()
			m.loading = false
			m.mu.Unlock()
			m.logger.Error("Anonymous sign-in failed", "error", err)
			return err
		}
	}

	m.publish(restored, false)
	m.logger.Info("Session resolved", "uid", restored.UID, "anonymous", restored.IsAnonymous)
	return nil
}

// Current returns the current identity and whether resolution is still in progress.
func (m *Manager) Current() (*domain.Identity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyIdentity(m.current), m.loading
}

// CurrentIdentity returns the current identity, nil until resolved.
func (m *Manager) CurrentIdentity() *domain.Identity {
	id, _ := m.Current()
	return id
}

// OnIdentityChange calls fn with the current identity now and again after every change.
// Callbacks run synchronously on the goroutine making the change. They must not block or
// change the identity themselves.
func (m *Manager) OnIdentityChange(fn func(*domain.Identity)) (unsubscribe func()) {
	m.deliver.Lock()
	defer m.deliver.Unlock()

	m.mu.Lock()
	m.nextID++
	key := m.nextID
	m.watchers[key] = fn
	current := copyIdentity(m.current)
	m.mu.Unlock()

	fn(current)

	return func() {
		m.mu.Lock()
		delete(m.watchers, key)
		m.mu.Unlock()
	}
}

// SignInInteractive signs in with credentials. On failure the error is logged and
// returned, and the current identity is left as it was.
func (m *Manager) SignInInteractive(ctx context.Context, creds Credentials) error {
	signedIn, err := m.provider.SignInInteractive(ctx, creds)
	if err != nil {
		m.logger.Warn("Interactive sign-in failed", "email", creds.Email, "error", err)
		return err
	}
	m.publish(signedIn, false)
	m.logger.Info("Signed in", "uid", signedIn.UID, "email", signedIn.Email)
	return nil
}

// SignOut ends the session and immediately starts an anonymous one. If the anonymous
// sign-in fails the identity becomes nil, since the old session no longer exists.
func (m *Manager) SignOut(ctx context.Context) error {
	if err := m.provider.SignOut(ctx); err != nil {
		m.logger.Warn("Sign-out failed", "error", err)
		return err
	}

	anon, err := m.provider.SignInAnonymous(ctx)
	if err != nil {
		m.publish(nil, false)
		m.logger.Error("Anonymous sign-in after sign-out failed", "error", err)
		return err
	}
	m.publish(anon, false)
	m.logger.Info("Signed out", "uid", anon.UID)
	return nil
}

func (m *Manager) publish(id *domain.Identity, loading bool) {
	m.deliver.Lock()
	defer m.deliver.Unlock()

	m.mu.Lock()
	m.current = copyIdentity(id)
	m.loading = loading
	watchers := make([]func(*domain.Identity), 0, len(m.watchers))
	for _, fn := range m.watchers {
		watchers = append(watchers, fn)
	}
	m.mu.Unlock()

	for _, fn := range watchers {
		fn(copyIdentity(id))
	}
}

func copyIdentity(id *domain.Identity) *domain.Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
