// Package shared holds cross-package errors and request context helpers.
package shared

import (
	"context"

	"github.com/onsync/onsync/internal/rbac"
)

type identityContextKey struct{}

// ContextWithIdentity stores the identity snapshot in context.
func ContextWithIdentity(ctx context.Context, identity *rbac.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext extracts the identity snapshot from context.
func IdentityFromContext(ctx context.Context) *rbac.Identity {
	identity, _ := ctx.Value(identityContextKey{}).(*rbac.Identity)
	return identity
}
