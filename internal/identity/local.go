package identity

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/stonewallbooks/storefront/internal/auth"
	"github.com/stonewallbooks/storefront/internal/domain"
)

// Authority is the subset of auth.Authority the local provider needs.
type Authority interface {
	SignInAnonymous(ctx context.Context) (*auth.Session, error)
	SignIn(ctx context.Context, email, password string) (*auth.Session, error)
	Verify(token string) (*domain.Identity, error)
}

// LocalProvider implements Provider against an in-process Authority and keeps the
// active session token in a file so it survives restarts.
type LocalProvider struct {
	authority   Authority
	sessionPath string
	logger      *slog.Logger

	mu    sync.Mutex
	token string
}

// NewLocalProvider creates a provider persisting its session at sessionPath.
// An empty sessionPath keeps the session in memory only.
func NewLocalProvider(authority Authority, sessionPath string, logger *slog.Logger) *LocalProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalProvider{authority: authority, sessionPath: sessionPath, logger: logger}
}

// Restore implements Provider. An unreadable or expired session counts as no session.
func (p *LocalProvider) Restore(_ context.Context) (*domain.Identity, error) {
	if p.sessionPath == "" {
		return nil, nil
	}

	raw, err := os.ReadFile(p.sessionPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	token := strings.TrimSpace(string(raw))
	id, err := p.authority.Verify(token)
	if err != nil {
		p.logger.Info("Stored session is no longer valid", "error", err)
		return nil, nil
	}

	p.mu.Lock()
	p.token = token
	p.mu.Unlock()
	return id, nil
}

// SignInInteractive implements Provider.
func (p *LocalProvider) SignInInteractive(ctx context.Context, creds Credentials) (*domain.Identity, error) {
	session, err := p.authority.SignIn(ctx, creds.Email, creds.Password)
	if err != nil {
		return nil, err
	}
	if err := p.store(session.Token); err != nil {
		return nil, err
	}
	id := session.Identity
	return &id, nil
}

// SignInAnonymous implements Provider.
func (p *LocalProvider) SignInAnonymous(ctx context.Context) (*domain.Identity, error) {
	session, err := p.authority.SignInAnonymous(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.store(session.Token); err != nil {
		return nil, err
	}
	id := session.Identity
	return &id, nil
}

// SignOut implements Provider.
func (p *LocalProvider) SignOut(_ context.Context) error {
	p.mu.Lock()
	p.token = ""
	p.mu.Unlock()

	if p.sessionPath == "" {
		return nil
	}
	if err := os.Remove(p.sessionPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

// Token returns the active session token.
func (p *LocalProvider) Token() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token
}

func (p *LocalProvider) store(token string) error {
	p.mu.Lock()
	p.token = token
	p.mu.Unlock()

	if p.sessionPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(p.sessionPath), 0o700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	if err := os.WriteFile(p.sessionPath, []byte(token), 0o600); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}
