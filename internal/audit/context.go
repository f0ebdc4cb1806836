package audit

import "context"

// Actor is the authenticated user an audit entry is attributed to.
type Actor struct {
	UserID   uint
	UserName string
}

type actorKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext returns the zero Actor for unauthenticated contexts.
func ActorFromContext(ctx context.Context) Actor {
	if ctx == nil {
		return Actor{}
	}
	a, _ := ctx.Value(actorKey{}).(Actor)
	return a
}
