package auth

import (
	"context"

	"github.com/feast-field/api/internal/domain"
)

// Identity captures the authenticated principal extracted from a session token.
// Role is a typed enum carried on every request; services never derive the
// caller's role from anything else.
type Identity struct {
	UserID   int64
	Username string
	Role     domain.Role
}

// HasRole reports whether the identity carries the requested role.
func (i *Identity) HasRole(role domain.Role) bool {
	if i == nil {
		return false
	}
	return i.Role == role
}

// HasAnyRole reports whether the identity carries any of the provided roles.
func (i *Identity) HasAnyRole(roles ...domain.Role) bool {
	for _, role := range roles {
		if i.HasRole(role) {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the identity is an administrator.
func (i *Identity) IsAdmin() bool {
	return i.HasRole(domain.RoleAdmin)
}

type contextKey string

const identityContextKey contextKey = "github.com/feast-field/api/internal/platform/auth/identity"

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
