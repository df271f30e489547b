// Package auth verifies the opaque bearer credentials carried by routed
// messages.
package auth

import (
	"context"

	"github.com/cassiomorais/relay/internal/routing"
)

// Authorizer validates bearer credentials and role membership. Validation
// may cross the network, so every call takes a context.
type Authorizer interface {
	// Validate reports whether the credential is well-formed and unexpired.
	Validate(ctx context.Context, token string) bool

	// HasRole reports whether the credential carries the given role.
	HasRole(ctx context.Context, token, role string) bool

	// IsAuthorized reports whether the credential is valid and carries the
	// configured default role.
	IsAuthorized(ctx context.Context, token string) bool

	// IsAuthorizedForOperation resolves the role the operation requires and
	// checks the credential against it.
	IsAuthorizedForOperation(ctx context.Context, token, operation string) bool
}

// requiredRole is the shared operation→role resolution used by every
// implementation.
func requiredRole(operation, defaultRole string) string {
	return routing.RoleForOperation(operation, defaultRole)
}
