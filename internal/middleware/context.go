package middleware

import (
	"context"
	"time"
)

// Actor is the signed-in user of a request, set by RequireAuth.
type Actor struct {
	SessionID string
	UserID    string
	Email     string
	FullName  string
	Role      string
	CSRFToken string
	ExpiresAt time.Time
}

type contextKey string

const (
	actorKey     contextKey = "actor"
	logFieldsKey contextKey = "log_fields"
)

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	v, ok := ctx.Value(actorKey).(Actor)
	return v, ok
}
