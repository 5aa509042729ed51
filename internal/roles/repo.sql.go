package roles

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storewatch/storewatch/internal/permission"
)

const uniqueViolation = "23505"

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const roleColumns = `id, name, display_name, category, level, clearance, scope, active, COALESCE(parent_id, ''), created_at, updated_at`

// ListRoles returns all roles ordered by privilege level.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM security_roles ORDER BY level ASC, name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches a role by id.
func (r *PGRepository) GetRole(ctx context.Context, id string) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM security_roles WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// CreateRole inserts a new role.
func (r *PGRepository) CreateRole(ctx context.Context, params CreateParams) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `
INSERT INTO security_roles (id, name, display_name, category, level, clearance, scope, parent_id, active)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), TRUE)
RETURNING `+roleColumns,
		uuid.NewString(), params.Name, params.DisplayName, params.Category,
		params.Level, params.Clearance, string(params.Scope), params.ParentID,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return Role{}, ErrNameTaken
		}
		return Role{}, err
	}
	return role, nil
}

// UpdateRole applies the non-nil fields.
func (r *PGRepository) UpdateRole(ctx context.Context, id string, params UpdateParams) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `
UPDATE security_roles SET
  display_name = COALESCE($2, display_name),
  category     = COALESCE($3, category),
  level        = COALESCE($4, level),
  clearance    = COALESCE($5, clearance),
  active       = COALESCE($6, active),
  parent_id    = CASE WHEN $7::text IS NULL THEN parent_id ELSE NULLIF($7, '') END,
  updated_at   = NOW()
WHERE id = $1
RETURNING `+roleColumns,
		id, params.DisplayName, params.Category, params.Level, params.Clearance,
		params.Active, params.ParentID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// DeleteRole removes a role. Returns ErrNotFound if nothing was deleted.
func (r *PGRepository) DeleteRole(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM security_roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const cycleQuery = `
WITH RECURSIVE ancestors AS (
  SELECT id, parent_id, ARRAY[id] AS path, FALSE AS looped
  FROM security_roles WHERE id = $1
  UNION ALL
  SELECT r.id, r.parent_id, a.path || r.id, r.id = ANY(a.path)
  FROM security_roles r
  JOIN ancestors a ON r.id = a.parent_id
  WHERE NOT a.looped
)
SELECT COALESCE(bool_or(looped OR id = NULLIF($2, '')), FALSE) FROM ancestors`

// WouldCycle reports whether linking childID under parentID would close a
// loop. It walks the prospective parent's ancestor chain looking for the
// child, and also flags a chain that already loops on itself; an empty
// childID checks only the latter.
func (r *PGRepository) WouldCycle(ctx context.Context, childID, parentID string) (bool, error) {
	if childID != "" && childID == parentID {
		return true, nil
	}
	var cyclic bool
	if err := r.pool.QueryRow(ctx, cycleQuery, parentID, childID).Scan(&cyclic); err != nil {
		return false, err
	}
	return cyclic, nil
}

// SetRolePermissions upserts the capability fragment for the role/scope.
func (r *PGRepository) SetRolePermissions(ctx context.Context, roleID, tenantID, storeID string, capabilities permission.Tree) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO role_permissions (role_id, tenant_id, store_id, capabilities)
VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4)
ON CONFLICT (role_id, COALESCE(tenant_id, ''), COALESCE(store_id, ''))
DO UPDATE SET capabilities = EXCLUDED.capabilities, updated_at = NOW()`,
		roleID, tenantID, storeID, capabilities)
	return err
}

// AssignRole grants the role to the user. Duplicate assignments are ignored.
func (r *PGRepository) AssignRole(ctx context.Context, userID, roleID string) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)
ON CONFLICT DO NOTHING`, userID, roleID)
	return err
}

// RemoveRole revokes the role from the user.
func (r *PGRepository) RemoveRole(ctx context.Context, userID, roleID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	return err
}

// UsersWithRole lists the ids of users holding the role.
func (r *PGRepository) UsersWithRole(ctx context.Context, roleID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM user_roles WHERE role_id = $1`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		userIDs = append(userIDs, id)
	}
	return userIDs, rows.Err()
}

// SetResourceOverride upserts a per-resource decision.
func (r *PGRepository) SetResourceOverride(ctx context.Context, params OverrideParams) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO resource_permissions (resource_type, resource_id, action, allow, granted_to)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (resource_type, resource_id, action, granted_to)
DO UPDATE SET allow = EXCLUDED.allow, updated_at = NOW()`,
		params.ResourceType, params.ResourceID, params.Action, params.Allow, params.GrantedTo)
	return err
}

// DeleteResourceOverride removes a pinned decision.
func (r *PGRepository) DeleteResourceOverride(ctx context.Context, resourceType, resourceID, grantedTo, action string) error {
	_, err := r.pool.Exec(ctx, `
DELETE FROM resource_permissions
WHERE resource_type = $1 AND resource_id = $2 AND granted_to = $3 AND action = $4`,
		resourceType, resourceID, grantedTo, action)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func scanRole(row pgx.Row) (Role, error) {
	var (
		role  Role
		scope string
	)
	err := row.Scan(&role.ID, &role.Name, &role.DisplayName, &role.Category,
		&role.Level, &role.Clearance, &scope, &role.Active, &role.ParentID,
		&role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return Role{}, err
	}
	role.Scope = permission.RoleScope(scope)
	return role, nil
}
