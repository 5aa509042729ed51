package roles

import (
	"context"

	"github.com/storewatch/storewatch/internal/permission"
)

// Repository persists role administration state.
type Repository interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id string) (Role, error)
	CreateRole(ctx context.Context, params CreateParams) (Role, error)
	UpdateRole(ctx context.Context, id string, params UpdateParams) (Role, error)
	DeleteRole(ctx context.Context, id string) error

	// WouldCycle reports whether linking child under parent closes an
	// inheritance loop. Cycles are rejected here, at administration time;
	// the engine only fails closed if one slips through.
	WouldCycle(ctx context.Context, childID, parentID string) (bool, error)

	SetRolePermissions(ctx context.Context, roleID, tenantID, storeID string, capabilities permission.Tree) error
	AssignRole(ctx context.Context, userID, roleID string) error
	RemoveRole(ctx context.Context, userID, roleID string) error
	UsersWithRole(ctx context.Context, roleID string) ([]string, error)

	SetResourceOverride(ctx context.Context, params OverrideParams) error
	DeleteResourceOverride(ctx context.Context, resourceType, resourceID, grantedTo, action string) error
}
