package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/stonewallbooks/storefront/internal/domain"
	"github.com/stonewallbooks/storefront/internal/identity"
)

// TokenVerifier resolves a bearer token to the identity it proves.
type TokenVerifier interface {
	Verify(token string) (*domain.Identity, error)
}

// authMiddleware attaches the identity proven by a Bearer token to the request context.
// Requests without a valid token continue anonymously; handlers decide what needs an actor.
func authMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			actor, err := verifier.Verify(token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(identity.WithActor(r.Context(), actor)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}

// requireActor returns the request's identity or a 401.
func requireActor(ctx context.Context) (*domain.Identity, error) {
	actor := identity.ActorFrom(ctx)
	if actor == nil {
		return nil, huma.Error401Unauthorized("Authentication required")
	}
	return actor, nil
}
