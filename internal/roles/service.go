package roles

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/storewatch/storewatch/internal/broadcast"
	"github.com/storewatch/storewatch/internal/permission"
)

var (
	// ErrNotFound indicates the role does not exist.
	ErrNotFound = errors.New("roles: not found")
	// ErrNameTaken indicates a duplicate role name.
	ErrNameTaken = errors.New("roles: name already in use")
	// ErrInheritanceCycle indicates the parent link would close a loop.
	ErrInheritanceCycle = errors.New("roles: inheritance cycle")
)

// Notifier fans permission-change events out to live sessions.
type Notifier interface {
	UserPermissionsUpdated(userIDs []string, payload any)
	UserRoleChanged(userIDs []string, payload any)
	RolePermissionsUpdated(userIDs []string, payload any)
	SecurityRoleUpdated(userIDs []string, payload any)
}

// Service orchestrates role administration. Every mutation notifies the
// broadcaster so connected sessions refresh their cached permissions without
// re-authenticating.
type Service struct {
	repo     Repository
	notifier Notifier
	logger   *slog.Logger
	titler   cases.Caser
}

var _ Notifier = (*broadcast.Broadcaster)(nil)

// NewService constructs a Service.
func NewService(repo Repository, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		titler:   cases.Title(language.English),
	}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by id.
func (s *Service) GetRole(ctx context.Context, id string) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole inserts a new role. The display name defaults to a title-cased
// form of the role name.
func (s *Service) CreateRole(ctx context.Context, params CreateParams) (Role, error) {
	params.Name = strings.ToLower(strings.TrimSpace(params.Name))
	if params.Name == "" {
		return Role{}, errors.New("roles: role name required")
	}
	if params.DisplayName == "" {
		params.DisplayName = s.titler.String(strings.ReplaceAll(params.Name, "_", " "))
	}
	if params.Scope == "" {
		params.Scope = permission.ScopeStore
	}
	if params.ParentID != "" {
		// A brand-new role cannot be its own ancestor, but its parent chain
		// must still be loop-free.
		cyclic, err := s.repo.WouldCycle(ctx, "", params.ParentID)
		if err != nil {
			return Role{}, err
		}
		if cyclic {
			return Role{}, ErrInheritanceCycle
		}
	}
	return s.repo.CreateRole(ctx, params)
}

// UpdateRole mutates a role and notifies sessions holding it.
func (s *Service) UpdateRole(ctx context.Context, id string, params UpdateParams) (Role, error) {
	if params.ParentID != nil && *params.ParentID != "" {
		cyclic, err := s.repo.WouldCycle(ctx, id, *params.ParentID)
		if err != nil {
			return Role{}, err
		}
		if cyclic {
			return Role{}, ErrInheritanceCycle
		}
	}
	role, err := s.repo.UpdateRole(ctx, id, params)
	if err != nil {
		return Role{}, err
	}
	s.notifyRoleHolders(ctx, id, func(userIDs []string) {
		s.notifier.SecurityRoleUpdated(userIDs, map[string]any{
			"role_id":   role.ID,
			"role_name": role.Name,
			"active":    role.Active,
		})
	})
	return role, nil
}

// DeleteRole removes a role and notifies affected users.
func (s *Service) DeleteRole(ctx context.Context, id string) error {
	userIDs, err := s.repo.UsersWithRole(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	if len(userIDs) > 0 {
		s.notifier.UserPermissionsUpdated(userIDs, map[string]any{
			"role_id": id,
			"change":  "role_deleted",
		})
	}
	return nil
}

// SetRolePermissions replaces a role's capability fragment and notifies
// every session holding the role.
func (s *Service) SetRolePermissions(ctx context.Context, roleID, tenantID, storeID string, capabilities permission.Tree) error {
	if err := s.repo.SetRolePermissions(ctx, roleID, tenantID, storeID, capabilities); err != nil {
		return err
	}
	s.notifyRoleHolders(ctx, roleID, func(userIDs []string) {
		s.notifier.RolePermissionsUpdated(userIDs, map[string]any{
			"role_id": roleID,
		})
	})
	return nil
}

// AssignRole grants a role to a user and notifies the user's sessions.
func (s *Service) AssignRole(ctx context.Context, userID, roleID string) error {
	if err := s.repo.AssignRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.notifier.UserRoleChanged([]string{userID}, map[string]any{
		"role_id": roleID,
		"change":  "assigned",
	})
	return nil
}

// RemoveRole revokes a role from a user and notifies the user's sessions.
func (s *Service) RemoveRole(ctx context.Context, userID, roleID string) error {
	if err := s.repo.RemoveRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.notifier.UserRoleChanged([]string{userID}, map[string]any{
		"role_id": roleID,
		"change":  "removed",
	})
	return nil
}

// SetResourceOverride pins a per-resource decision and notifies the affected
// principal when the override targets a user directly.
func (s *Service) SetResourceOverride(ctx context.Context, params OverrideParams) error {
	params.Action = permission.NormalizeAction(params.Action)
	if params.Action == "" {
		return errors.New("roles: override action required")
	}
	if err := s.repo.SetResourceOverride(ctx, params); err != nil {
		return err
	}
	s.notifier.UserPermissionsUpdated([]string{params.GrantedTo}, map[string]any{
		"resource_type": params.ResourceType,
		"resource_id":   params.ResourceID,
		"action":        params.Action,
		"allow":         params.Allow,
	})
	return nil
}

// DeleteResourceOverride removes a pinned decision.
func (s *Service) DeleteResourceOverride(ctx context.Context, resourceType, resourceID, grantedTo, action string) error {
	if err := s.repo.DeleteResourceOverride(ctx, resourceType, resourceID, grantedTo, permission.NormalizeAction(action)); err != nil {
		return err
	}
	s.notifier.UserPermissionsUpdated([]string{grantedTo}, map[string]any{
		"resource_type": resourceType,
		"resource_id":   resourceID,
		"change":        "override_removed",
	})
	return nil
}

func (s *Service) notifyRoleHolders(ctx context.Context, roleID string, notify func(userIDs []string)) {
	userIDs, err := s.repo.UsersWithRole(ctx, roleID)
	if err != nil {
		s.logger.Error("list role holders for broadcast",
			slog.String("role_id", roleID),
			slog.Any("error", err),
		)
		return
	}
	if len(userIDs) > 0 {
		notify(userIDs)
	}
}
