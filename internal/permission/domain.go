package permission

import "time"

// RoleScope bounds where a role's grants apply.
type RoleScope string

const (
	// ScopeGlobal applies across the whole tenant.
	ScopeGlobal RoleScope = "global"
	// ScopeStore applies only within an assigned store.
	ScopeStore RoleScope = "store"
	// ScopeLimited applies to an explicitly enumerated resource set.
	ScopeLimited RoleScope = "limited"
)

// SecurityRole is a named grouping of capabilities. Lower Level means more
// privileged; ParentID links to an optional ancestor whose capabilities are
// inherited.
type SecurityRole struct {
	ID          string
	Name        string
	DisplayName string
	Category    string
	Level       int
	Clearance   int
	Scope       RoleScope
	Active      bool
	ParentID    string
}

// ResourceOverride pins a decision for one action on one concrete resource,
// independent of role-derived capabilities.
type ResourceOverride struct {
	ResourceType string
	ResourceID   string
	Action       string
	Allow        bool
	GrantedTo    string
}

// CheckRequest carries everything the engine needs to decide one operation.
type CheckRequest struct {
	ActorID      string
	TenantID     string
	StoreID      string
	ResourceType string
	ResourceID   string
	Action       string
	At           time.Time
	ClientIP     string
	SessionID    string
}

// Decision is the engine's answer. RequiresApproval and RequiresWitness are
// advisory flags; the caller's workflow enforces the second actor.
type Decision struct {
	Granted          bool
	Reason           string
	RequiresApproval bool
	RequiresWitness  bool
	RestrictedBy     []string
	MatchedRoles     []string
}
