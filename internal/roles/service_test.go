package roles

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/storewatch/storewatch/internal/permission"
)

type memoryRepo struct {
	roles      map[string]Role
	holders    map[string][]string
	cycles     map[string]bool
	perms      map[string]permission.Tree
	holdersErr error
	nextID     int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		roles:   make(map[string]Role),
		holders: make(map[string][]string),
		cycles:  make(map[string]bool),
		perms:   make(map[string]permission.Tree),
	}
}

func (r *memoryRepo) ListRoles(ctx context.Context) ([]Role, error) {
	out := make([]Role, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, role)
	}
	return out, nil
}

func (r *memoryRepo) GetRole(ctx context.Context, id string) (Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return role, nil
}

func (r *memoryRepo) CreateRole(ctx context.Context, params CreateParams) (Role, error) {
	r.nextID++
	role := Role{
		ID:          string(rune('a' + r.nextID)),
		Name:        params.Name,
		DisplayName: params.DisplayName,
		Category:    params.Category,
		Level:       params.Level,
		Clearance:   params.Clearance,
		Scope:       params.Scope,
		Active:      true,
		ParentID:    params.ParentID,
	}
	r.roles[role.ID] = role
	return role, nil
}

func (r *memoryRepo) UpdateRole(ctx context.Context, id string, params UpdateParams) (Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	if params.DisplayName != nil {
		role.DisplayName = *params.DisplayName
	}
	if params.Active != nil {
		role.Active = *params.Active
	}
	if params.ParentID != nil {
		role.ParentID = *params.ParentID
	}
	r.roles[id] = role
	return role, nil
}

func (r *memoryRepo) DeleteRole(ctx context.Context, id string) error {
	if _, ok := r.roles[id]; !ok {
		return ErrNotFound
	}
	delete(r.roles, id)
	return nil
}

func (r *memoryRepo) WouldCycle(ctx context.Context, childID, parentID string) (bool, error) {
	return r.cycles[childID+"->"+parentID], nil
}

func (r *memoryRepo) SetRolePermissions(ctx context.Context, roleID, tenantID, storeID string, capabilities permission.Tree) error {
	r.perms[roleID] = capabilities
	return nil
}

func (r *memoryRepo) AssignRole(ctx context.Context, userID, roleID string) error {
	r.holders[roleID] = append(r.holders[roleID], userID)
	return nil
}

func (r *memoryRepo) RemoveRole(ctx context.Context, userID, roleID string) error {
	kept := r.holders[roleID][:0]
	for _, id := range r.holders[roleID] {
		if id != userID {
			kept = append(kept, id)
		}
	}
	r.holders[roleID] = kept
	return nil
}

func (r *memoryRepo) UsersWithRole(ctx context.Context, roleID string) ([]string, error) {
	if r.holdersErr != nil {
		return nil, r.holdersErr
	}
	return r.holders[roleID], nil
}

func (r *memoryRepo) SetResourceOverride(ctx context.Context, params OverrideParams) error {
	return nil
}

func (r *memoryRepo) DeleteResourceOverride(ctx context.Context, resourceType, resourceID, grantedTo, action string) error {
	return nil
}

type notification struct {
	kind    string
	userIDs []string
}

type notifierStub struct {
	sent []notification
}

func (n *notifierStub) UserPermissionsUpdated(userIDs []string, payload any) {
	n.sent = append(n.sent, notification{kind: "user_permissions_updated", userIDs: userIDs})
}

func (n *notifierStub) UserRoleChanged(userIDs []string, payload any) {
	n.sent = append(n.sent, notification{kind: "user_role_changed", userIDs: userIDs})
}

func (n *notifierStub) RolePermissionsUpdated(userIDs []string, payload any) {
	n.sent = append(n.sent, notification{kind: "role_permissions_updated", userIDs: userIDs})
}

func (n *notifierStub) SecurityRoleUpdated(userIDs []string, payload any) {
	n.sent = append(n.sent, notification{kind: "security_role_updated", userIDs: userIDs})
}

func newTestService() (*Service, *memoryRepo, *notifierStub) {
	repo := newMemoryRepo()
	notifier := &notifierStub{}
	svc := NewService(repo, notifier, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc, repo, notifier
}

func TestCreateRoleDefaults(t *testing.T) {
	svc, _, _ := newTestService()

	role, err := svc.CreateRole(context.Background(), CreateParams{Name: "  Shift_Supervisor  "})
	require.NoError(t, err)
	require.Equal(t, "shift_supervisor", role.Name)
	require.Equal(t, "Shift Supervisor", role.DisplayName)
	require.Equal(t, permission.ScopeStore, role.Scope)
}

func TestCreateRoleRequiresName(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.CreateRole(context.Background(), CreateParams{Name: "   "})
	require.Error(t, err)
}

func TestCreateRoleRejectsCyclicParent(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.cycles["->p1"] = true

	_, err := svc.CreateRole(context.Background(), CreateParams{Name: "lead", ParentID: "p1"})
	require.ErrorIs(t, err, ErrInheritanceCycle)
}

func TestUpdateRoleRejectsCycle(t *testing.T) {
	svc, repo, notifier := newTestService()
	repo.roles["r1"] = Role{ID: "r1", Name: "guard", Active: true}
	repo.cycles["r1->r2"] = true

	parent := "r2"
	_, err := svc.UpdateRole(context.Background(), "r1", UpdateParams{ParentID: &parent})
	require.ErrorIs(t, err, ErrInheritanceCycle)
	require.Empty(t, notifier.sent)
}

func TestUpdateRoleNotifiesHolders(t *testing.T) {
	svc, repo, notifier := newTestService()
	repo.roles["r1"] = Role{ID: "r1", Name: "guard", Active: true}
	repo.holders["r1"] = []string{"u1", "u2"}

	active := false
	_, err := svc.UpdateRole(context.Background(), "r1", UpdateParams{Active: &active})
	require.NoError(t, err)
	require.Len(t, notifier.sent, 1)
	require.Equal(t, "security_role_updated", notifier.sent[0].kind)
	require.ElementsMatch(t, []string{"u1", "u2"}, notifier.sent[0].userIDs)
}

func TestUpdateRoleWithoutHoldersStaysQuiet(t *testing.T) {
	svc, repo, notifier := newTestService()
	repo.roles["r1"] = Role{ID: "r1", Name: "guard", Active: true}

	name := "Guard"
	_, err := svc.UpdateRole(context.Background(), "r1", UpdateParams{DisplayName: &name})
	require.NoError(t, err)
	require.Empty(t, notifier.sent)
}

func TestDeleteRoleNotifiesFormerHolders(t *testing.T) {
	svc, repo, notifier := newTestService()
	repo.roles["r1"] = Role{ID: "r1", Name: "guard"}
	repo.holders["r1"] = []string{"u1"}

	require.NoError(t, svc.DeleteRole(context.Background(), "r1"))
	require.Len(t, notifier.sent, 1)
	require.Equal(t, "user_permissions_updated", notifier.sent[0].kind)
}

func TestSetRolePermissionsNotifiesHolders(t *testing.T) {
	svc, repo, notifier := newTestService()
	repo.holders["r1"] = []string{"u1"}

	tree := permission.Tree{"cameras": permission.Branch(permission.Tree{"view": permission.Allow()})}
	require.NoError(t, svc.SetRolePermissions(context.Background(), "r1", "t1", "", tree))
	require.Len(t, notifier.sent, 1)
	require.Equal(t, "role_permissions_updated", notifier.sent[0].kind)
	require.Equal(t, tree, repo.perms["r1"])
}

func TestSetRolePermissionsSurvivesHolderLookupFailure(t *testing.T) {
	svc, repo, notifier := newTestService()
	repo.holdersErr = errors.New("db down")

	require.NoError(t, svc.SetRolePermissions(context.Background(), "r1", "t1", "", permission.Tree{}))
	require.Empty(t, notifier.sent)
}

func TestAssignAndRemoveRoleNotify(t *testing.T) {
	svc, _, notifier := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.AssignRole(ctx, "u1", "r1"))
	require.NoError(t, svc.RemoveRole(ctx, "u1", "r1"))
	require.Len(t, notifier.sent, 2)
	require.Equal(t, "user_role_changed", notifier.sent[0].kind)
	require.Equal(t, []string{"u1"}, notifier.sent[0].userIDs)
	require.Equal(t, "user_role_changed", notifier.sent[1].kind)
}

func TestSetResourceOverrideNormalizesAndNotifies(t *testing.T) {
	svc, _, notifier := newTestService()

	err := svc.SetResourceOverride(context.Background(), OverrideParams{
		ResourceType: "camera",
		ResourceID:   "c1",
		Action:       "cameras.view",
		Allow:        true,
		GrantedTo:    "u1",
	})
	require.NoError(t, err)
	require.Len(t, notifier.sent, 1)
	require.Equal(t, "user_permissions_updated", notifier.sent[0].kind)
	require.Equal(t, []string{"u1"}, notifier.sent[0].userIDs)
}

func TestSetResourceOverrideRequiresAction(t *testing.T) {
	svc, _, _ := newTestService()
	err := svc.SetResourceOverride(context.Background(), OverrideParams{GrantedTo: "u1"})
	require.Error(t, err)
}
