package auth

import (
	"context"

	"github.com/pulseboard/pulseboard/internal/model"
)

// contextKey is a private type to avoid context key collisions.
type contextKey string

const userContextKey contextKey = "auth_user"

// ContextWithUser returns a context carrying the authenticated user.
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext retrieves the authenticated user, or nil if the
// request was not authenticated.
func UserFromContext(ctx context.Context) *model.User {
	user, _ := ctx.Value(userContextKey).(*model.User)
	return user
}
