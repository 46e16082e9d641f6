package shared

import "context"

type actorContextKey struct{}

// SystemActorID identifies work performed by jobs and the CLI.
const SystemActorID int64 = 0

// ContextWithActor stores the acting user id in context.
func ContextWithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext extracts the acting user id, defaulting to SystemActorID.
func ActorFromContext(ctx context.Context) int64 {
	id, ok := ctx.Value(actorContextKey{}).(int64)
	if !ok {
		return SystemActorID
	}
	return id
}
