package roles

import (
	"time"

	"github.com/storewatch/storewatch/internal/permission"
)

// Role is the administrative view of a security role.
type Role struct {
	ID          string
	Name        string
	DisplayName string
	Category    string
	Level       int
	Clearance   int
	Scope       permission.RoleScope
	Active      bool
	ParentID    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateParams carries the fields for a new role.
type CreateParams struct {
	Name        string
	DisplayName string
	Category    string
	Level       int
	Clearance   int
	Scope       permission.RoleScope
	ParentID    string
}

// UpdateParams carries the mutable fields of a role. Nil means unchanged.
type UpdateParams struct {
	DisplayName *string
	Category    *string
	Level       *int
	Clearance   *int
	Active      *bool
	ParentID    *string
}

// OverrideParams pins a decision for one action on one concrete resource.
type OverrideParams struct {
	ResourceType string
	ResourceID   string
	Action       string
	Allow        bool
	GrantedTo    string
}
