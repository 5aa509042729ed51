package permission

import (
	"context"
	"errors"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("permission: not found")

// RoleRepository provides read access to roles, their capability grants and
// resource-level overrides.
type RoleRepository interface {
	// RolesForActor returns the actor's directly assigned roles.
	RolesForActor(ctx context.Context, actorID string) ([]SecurityRole, error)
	// RoleByID fetches a single role, used for inheritance expansion.
	RoleByID(ctx context.Context, roleID string) (SecurityRole, error)
	// RolePermissions returns the capability fragment of a role, scoped by
	// tenant and, for store-scoped roles, by store.
	RolePermissions(ctx context.Context, roleID, tenantID, storeID string) (Tree, error)
	// ResourceOverride returns the override for the exact resource matching
	// the actor or one of their roles, or nil when none exists.
	ResourceOverride(ctx context.Context, resourceType, resourceID, actorID string, roleIDs []string) (*ResourceOverride, error)
}
