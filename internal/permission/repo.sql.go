package permission

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed access to roles and overrides.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const rolesForActorQuery = `
SELECT r.id, r.name, r.display_name, r.category, r.level, r.clearance, r.scope, r.active, COALESCE(r.parent_id, '')
FROM security_roles r
JOIN user_roles ur ON ur.role_id = r.id
WHERE ur.user_id = $1
ORDER BY r.level ASC`

// RolesForActor returns the actor's directly assigned roles ordered most
// privileged first.
func (r *Repository) RolesForActor(ctx context.Context, actorID string) ([]SecurityRole, error) {
	rows, err := r.pool.Query(ctx, rolesForActorQuery, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []SecurityRole
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

const roleByIDQuery = `
SELECT id, name, display_name, category, level, clearance, scope, active, COALESCE(parent_id, '')
FROM security_roles
WHERE id = $1`

// RoleByID fetches a single role.
func (r *Repository) RoleByID(ctx context.Context, roleID string) (SecurityRole, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, roleByIDQuery, roleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SecurityRole{}, ErrNotFound
		}
		return SecurityRole{}, err
	}
	return role, nil
}

const rolePermissionsQuery = `
SELECT capabilities
FROM role_permissions
WHERE role_id = $1
  AND (tenant_id IS NULL OR tenant_id = $2)
  AND (store_id IS NULL OR store_id = NULLIF($3, ''))`

// RolePermissions merges every matching capability fragment for the role.
// A role with no stored fragments contributes the all-false default.
func (r *Repository) RolePermissions(ctx context.Context, roleID, tenantID, storeID string) (Tree, error) {
	rows, err := r.pool.Query(ctx, rolePermissionsQuery, roleID, tenantID, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	merged := NewDefaultTree()
	for rows.Next() {
		var frag Tree
		if err := rows.Scan(&frag); err != nil {
			return nil, err
		}
		merged = Merge(merged, frag)
	}
	return merged, rows.Err()
}

const resourceOverrideQuery = `
SELECT resource_type, resource_id, action, allow, granted_to
FROM resource_permissions
WHERE resource_type = $1
  AND resource_id = $2
  AND granted_to = ANY($3)
ORDER BY allow ASC
LIMIT 1`

// ResourceOverride returns the override matching the actor or one of their
// roles. Deny rows sort first so an explicit deny wins over a grant stored
// for another of the actor's roles.
func (r *Repository) ResourceOverride(ctx context.Context, resourceType, resourceID, actorID string, roleIDs []string) (*ResourceOverride, error) {
	principals := append([]string{actorID}, roleIDs...)
	var o ResourceOverride
	err := r.pool.QueryRow(ctx, resourceOverrideQuery, resourceType, resourceID, principals).Scan(
		&o.ResourceType, &o.ResourceID, &o.Action, &o.Allow, &o.GrantedTo,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

func scanRole(row pgx.Row) (SecurityRole, error) {
	var (
		role  SecurityRole
		scope string
	)
	err := row.Scan(&role.ID, &role.Name, &role.DisplayName, &role.Category,
		&role.Level, &role.Clearance, &scope, &role.Active, &role.ParentID)
	if err != nil {
		return SecurityRole{}, err
	}
	role.Scope = RoleScope(scope)
	return role, nil
}
