package auth

import (
	"time"

	"github.com/stonewallbooks/storefront/internal/domain"
)

// SessionClaims are the claims sealed inside a v4.local session token.
type SessionClaims struct {
	UID         string `json:"uid"`
	Email       string `json:"email,omitempty"`
	IsAnonymous bool   `json:"is_anonymous"`

	Issuer     string    `json:"iss"`
	Subject    string    `json:"sub"`
	Audience   string    `json:"aud"`
	Expiration time.Time `json:"exp"`
	NotBefore  time.Time `json:"nbf"`
	IssuedAt   time.Time `json:"iat"`
	TokenID    string    `json:"jti"`
}

// Identity returns the storefront identity carried by the claims.
func (c SessionClaims) Identity() *domain.Identity {
	return &domain.Identity{UID: c.UID, Email: c.Email, IsAnonymous: c.IsAnonymous}
}
