package auth

import (
	"encoding/json"
	"fmt"
	"time"

	"aidanwoods.dev/go-paseto"

	"github.com/stonewallbooks/storefront/internal/domain"
	"github.com/stonewallbooks/storefront/internal/id"
)

const (
	tokenIssuer   = "stonewallbooks-storefront"
	tokenAudience = "stonewallbooks-client"
)

// TokenService seals identities into PASETO v4.local tokens.
type TokenService struct {
	symmetricKey      paseto.V4SymmetricKey
	accountDuration   time.Duration
	anonymousDuration time.Duration
	now               func() time.Time
}

// NewTokenService creates a token service from a raw 32-byte key.
func NewTokenService(key []byte, accountDuration, anonymousDuration time.Duration) (*TokenService, error) {
	if len(key) != keyLength {
		return nil, fmt.Errorf("PASETO v4 key must be exactly %d bytes, got %d", keyLength, len(key))
	}
	symmetricKey, err := paseto.V4SymmetricKeyFromBytes(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create PASETO symmetric key: %w", err)
	}
	return &TokenService{
		symmetricKey:      symmetricKey,
		accountDuration:   accountDuration,
		anonymousDuration: anonymousDuration,
		now:               time.Now,
	}, nil
}

// Issue creates a session token for identity and returns it with its expiry.
func (s *TokenService) Issue(identity domain.Identity) (string, time.Time, error) {
	now := s.now()
	ttl := s.accountDuration
	if identity.IsAnonymous {
		ttl = s.anonymousDuration
	}
	expires := now.Add(ttl)

	token := paseto.NewToken()
	token.SetIssuer(tokenIssuer)
	token.SetSubject(identity.UID)
	token.SetAudience(tokenAudience)
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	token.SetExpiration(expires)

	tokenID, err := id.Generate("sess")
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate token ID: %w", err)
	}
	token.SetJti(tokenID)

	//nolint:errcheck // Set only fails for values that cannot be encoded
	_ = token.Set("uid", identity.UID)
	//nolint:errcheck // Set only fails for values that cannot be encoded
	_ = token.Set("is_anonymous", identity.IsAnonymous)
	if identity.Email != "" {
		//nolint:errcheck // Set only fails for values that cannot be encoded
		_ = token.Set("email", identity.Email)
	}

	return token.V4Encrypt(s.symmetricKey, nil), expires, nil
}

// Verify decrypts a session token and checks issuer, audience and validity window.
func (s *TokenService) Verify(tokenString string) (*SessionClaims, error) {
	parser := paseto.NewParser()
	parser.AddRule(paseto.ForAudience(tokenAudience))
	parser.AddRule(paseto.IssuedBy(tokenIssuer))
	parser.AddRule(paseto.NotExpired())
	parser.AddRule(paseto.ValidAt(s.now()))

	token, err := parser.ParseV4Local(s.symmetricKey, tokenString, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	var claims SessionClaims
	if err := json.Unmarshal(token.ClaimsJSON(), &claims); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}
	return &claims, nil
}
