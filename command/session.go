package command

import (
	"context"

	"github.com/google/uuid"
)

type sessionKey struct{}

// WithSession returns a context carrying a new session ID.
func WithSession(ctx context.Context) (context.Context, uuid.UUID) {
	id := uuid.New()
	return context.WithValue(ctx, sessionKey{}, id), id
}

// SessionID returns the session ID in ctx, or an empty string.
func SessionID(ctx context.Context) string {
	if id, ok := ctx.Value(sessionKey{}).(uuid.UUID); ok {
		return id.String()
	}
	return ""
}
