package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/stonewallbooks/storefront/internal/domain"
	domainerrors "github.com/stonewallbooks/storefront/internal/errors"
	"github.com/stonewallbooks/storefront/internal/id"
)

// Session is an issued token together with the identity it proves.
type Session struct {
	ExpiresAt time.Time       `json:"expiresAt"`
	Token     string          `json:"token"`
	Identity  domain.Identity `json:"identity"`
}

// Authority is the storefront's identity provider: it creates anonymous sessions,
// signs librarians in with a password, and verifies session tokens.
type Authority struct {
	accounts *AccountStore
	tokens   *TokenService
	hasher   PasswordHasher
	logger   *slog.Logger
}

// NewAuthority creates an authority.
func NewAuthority(accounts *AccountStore, tokens *TokenService, hasher PasswordHasher, logger *slog.Logger) *Authority {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authority{accounts: accounts, tokens: tokens, hasher: hasher, logger: logger}
}

// CreateAccount registers a password login.
func (a *Authority) CreateAccount(ctx context.Context, email, password string) (*Account, error) {
	if NormalizeEmail(email) == "" {
		return nil, domainerrors.Validation("email is required")
	}
	hash, err := a.hasher.Hash(password)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeValidation, "invalid password")
	}
	acct, err := a.accounts.Create(ctx, email, hash)
	if err != nil {
		return nil, err
	}
	a.logger.Info("Account created", "account_id", acct.ID, "email", acct.Email)
	return acct, nil
}

// SignInAnonymous starts a fresh anonymous session.
func (a *Authority) SignInAnonymous(_ context.Context) (*Session, error) {
	return a.issue(domain.Identity{UID: id.AnonymousUID(), IsAnonymous: true})
}

// SignIn checks a password and starts an account session.
func (a *Authority) SignIn(ctx context.Context, email, password string) (*Session, error) {
	acct, err := a.accounts.Get(ctx, email)
	if err != nil {
		if domainerrors.Is(err, domainerrors.ErrNotFound) {
			return nil, domainerrors.InvalidCredentials("invalid email or password")
		}
		return nil, err
	}
	if !a.hasher.Verify(acct.PasswordHash, password) {
		return nil, domainerrors.InvalidCredentials("invalid email or password")
	}
	return a.issue(domain.Identity{UID: acct.ID, Email: acct.Email})
}

// Verify returns the identity proven by token.
func (a *Authority) Verify(token string) (*domain.Identity, error) {
	claims, err := a.tokens.Verify(token)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeUnauthorized, "invalid or expired session")
	}
	return claims.Identity(), nil
}

func (a *Authority) issue(identity domain.Identity) (*Session, error) {
	token, expires, err := a.tokens.Issue(identity)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "issue session")
	}
	return &Session{Token: token, Identity: identity, ExpiresAt: expires}, nil
}
