package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stonewallbooks/storefront/internal/docstore"
	domainerrors "github.com/stonewallbooks/storefront/internal/errors"
	"github.com/stonewallbooks/storefront/internal/id"
)

const accountKeyPrefix = "accounts/"

// Account is a password login for a librarian.
type Account struct {
	CreatedAt    time.Time `json:"created_at"`
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
}

// AccountStore keeps accounts in a docstore.Backend, keyed by normalized email.
type AccountStore struct {
	backend docstore.Backend
}

// NewAccountStore creates an account store over backend.
func NewAccountStore(backend docstore.Backend) *AccountStore {
	return &AccountStore{backend: backend}
}

// NormalizeEmail lowercases and trims an email for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func accountKey(email string) string {
	return accountKeyPrefix + NormalizeEmail(email)
}

// Create stores a new account. An existing account with the same email is a conflict.
func (s *AccountStore) Create(ctx context.Context, email, passwordHash string) (*Account, error) {
	accountID, err := id.Generate("acct")
	if err != nil {
		return nil, err
	}
	acct := &Account{
		ID:           accountID,
		Email:        strings.TrimSpace(email),
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}

	data, err := json.Marshal(acct)
	if err != nil {
		return nil, fmt.Errorf("marshal account: %w", err)
	}

	if _, err := s.backend.Put(ctx, accountKey(email), data, 0); err != nil {
		if errors.Is(err, docstore.ErrVersionMismatch) {
			return nil, domainerrors.Conflictf("account %s already exists", acct.Email)
		}
		return nil, fmt.Errorf("store account: %w", err)
	}
	return acct, nil
}

// Get returns the account for email.
func (s *AccountStore) Get(ctx context.Context, email string) (*Account, error) {
	rec, err := s.backend.Get(ctx, accountKey(email))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, domainerrors.NotFoundf("account %s not found", email)
	}
	if err != nil {
		return nil, fmt.Errorf("read account: %w", err)
	}

	var acct Account
	if err := json.Unmarshal(rec.Data, &acct); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	return &acct, nil
}
