package api

import (
	"context"
)

type contextKey string

const sessionIDContextKey contextKey = "session_id"

// SessionIDFromContext extracts the validated session id from context
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDContextKey).(string)
	return id
}

// ContextWithSessionID adds the session id to context
func ContextWithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDContextKey, id)
}
