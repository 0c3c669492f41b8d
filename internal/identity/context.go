package identity

import (
	"context"

	"github.com/stonewallbooks/storefront/internal/domain"
)

type actorKey struct{}

// WithActor returns a context carrying the identity performing an operation.
func WithActor(ctx context.Context, actor *domain.Identity) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the identity stored by WithActor, or nil.
func ActorFrom(ctx context.Context) *domain.Identity {
	actor, _ := ctx.Value(actorKey{}).(*domain.Identity)
	return actor
}
