package authz_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hangar-aero/hangar/internal/audit"
	"github.com/hangar-aero/hangar/internal/authz"
	"github.com/hangar-aero/hangar/internal/observability/metrics"
	"github.com/hangar-aero/hangar/internal/rbac"
)

var errDown = errors.New("connection refused")

// MockStore implements both authz repositories in memory.
type MockStore struct {
	roles map[string][]rbac.Role
	rows  []authz.RoleCapability
	fail  bool
}

func NewMockStore() *MockStore {
	return &MockStore{roles: map[string][]rbac.Role{}}
}

func (m *MockStore) allow(role rbac.Role, caps ...string) {
	for _, c := range caps {
		m.rows = append(m.rows, authz.RoleCapability{Role: role, Capability: authz.MustCapability(c), IsGranted: true})
	}
}

func (m *MockStore) deny(role rbac.Role, caps ...string) {
	for _, c := range caps {
		m.rows = append(m.rows, authz.RoleCapability{Role: role, Capability: authz.MustCapability(c), IsGranted: false})
	}
}

func (m *MockStore) RolesForSubject(_ context.Context, id string) ([]rbac.Role, error) {
	if m.fail {
		return nil, errDown
	}
	return slices.Clone(m.roles[id]), nil
}

func (m *MockStore) Grant(_ context.Context, a authz.Assignment) error {
	if m.fail {
		return errDown
	}
	if !slices.Contains(m.roles[a.SubjectID], a.Role) {
		m.roles[a.SubjectID] = append(m.roles[a.SubjectID], a.Role)
	}
	return nil
}

func (m *MockStore) Revoke(_ context.Context, id string, role rbac.Role) error {
	if m.fail {
		return errDown
	}
	m.roles[id] = slices.DeleteFunc(m.roles[id], func(r rbac.Role) bool { return r == role })
	return nil
}

func (m *MockStore) ListAssignments(_ context.Context, id string) ([]authz.Assignment, error) {
	if m.fail {
		return nil, errDown
	}
	var out []authz.Assignment
	for _, r := range m.roles[id] {
		out = append(out, authz.Assignment{SubjectID: id, Role: r})
	}
	return out, nil
}

func (m *MockStore) CapabilitiesForRole(ctx context.Context, role rbac.Role) ([]authz.RoleCapability, error) {
	return m.CapabilitiesForRoles(ctx, []rbac.Role{role})
}

func (m *MockStore) CapabilitiesForRoles(_ context.Context, roles []rbac.Role) ([]authz.RoleCapability, error) {
	if m.fail {
		return nil, errDown
	}
	var out []authz.RoleCapability
	for _, rc := range m.rows {
		if slices.Contains(roles, rc.Role) {
			out = append(out, rc)
		}
	}
	return out, nil
}

func (m *MockStore) SetRoleCapability(_ context.Context, rc authz.RoleCapability) error {
	if m.fail {
		return errDown
	}
	for i := range m.rows {
		if m.rows[i].Role == rc.Role && m.rows[i].Capability == rc.Capability {
			m.rows[i].IsGranted = rc.IsGranted
			return nil
		}
	}
	m.rows = append(m.rows, rc)
	return nil
}

func (m *MockStore) ListRoles(context.Context) ([]authz.RoleInfo, error) {
	if m.fail {
		return nil, errDown
	}
	var out []authz.RoleInfo
	for _, r := range rbac.All() {
		out = append(out, authz.RoleInfo{Name: r})
	}
	return out, nil
}

func newService(store *MockStore) (*authz.Service, *audit.Recorder) {
	rec := &audit.Recorder{}
	return authz.NewService(store, store, rec, metrics.NoopAccess()), rec
}

// TestPurpose: Validates that hasCapability is true iff at least one of the subject's roles grants the capability.
// Scope: Unit Test
// Security: Fine-grained authorization
// Expected: Granted through any role returns true; missing rows return false.
// Test Case ID: AUT-01
func TestAuthz_HasCapability_UnionAcrossRoles(t *testing.T) {
	store := NewMockStore()
	store.roles["user-1"] = []rbac.Role{rbac.RoleStudent, rbac.RoleInstructor}
	store.allow(rbac.RoleStudent, "flight_logs.entry.view")
	store.allow(rbac.RoleInstructor, "flight_logs.entry.sign")

	svc, _ := newService(store)
	ctx := context.Background()

	assert.True(t, svc.HasCapability(ctx, "user-1", "flight_logs.entry.view"))
	assert.True(t, svc.HasCapability(ctx, "user-1", "flight_logs.entry.sign"))
	assert.False(t, svc.HasCapability(ctx, "user-1", "fleet.aircraft.edit"))
	assert.False(t, svc.HasCapability(ctx, "nobody", "flight_logs.entry.view"))
	assert.False(t, svc.HasCapability(ctx, "user-1", "not-a-capability"))
}

// TestPurpose: Validates that an explicit deny on one role overrides a grant through another role.
// Scope: Unit Test
// Security: Deny-wins precedence
// Expected: Capability denied when any held role carries an isGranted=false row.
// Test Case ID: AUT-02
func TestAuthz_HasCapability_DenyWins(t *testing.T) {
	store := NewMockStore()
	store.roles["user-1"] = []rbac.Role{rbac.RoleBaseManager, rbac.RolePilot}
	store.allow(rbac.RoleBaseManager, "invoices.invoice.view", "fleet.aircraft.edit")
	store.deny(rbac.RolePilot, "invoices.invoice.view")

	svc, _ := newService(store)
	ctx := context.Background()

	assert.False(t, svc.HasCapability(ctx, "user-1", "invoices.invoice.view"))
	assert.True(t, svc.HasCapability(ctx, "user-1", "fleet.aircraft.edit"))

	err := svc.CheckCapability(ctx, "user-1", "invoices.invoice.view")
	assert.ErrorIs(t, err, authz.ErrForbidden)
}

// TestPurpose: Validates fail-closed behaviour when the store is unreachable.
// Scope: Unit Test
// Security: Fail-closed authorization
// Expected: HasCapability returns false without panicking; CheckCapability reports ErrStoreUnavailable.
// Test Case ID: AUT-03
func TestAuthz_StoreUnavailable_FailsClosed(t *testing.T) {
	store := NewMockStore()
	store.roles["user-1"] = []rbac.Role{rbac.RoleSuperAdmin}
	store.allow(rbac.RoleSuperAdmin, "admin.roles.edit")
	store.fail = true

	svc, _ := newService(store)
	ctx := context.Background()

	assert.False(t, svc.HasCapability(ctx, "user-1", "admin.roles.edit"))
	assert.ErrorIs(t, svc.CheckCapability(ctx, "user-1", "admin.roles.edit"), authz.ErrStoreUnavailable)

	_, err := svc.RolesForSubject(ctx, "user-1")
	assert.ErrorIs(t, err, authz.ErrStoreUnavailable)

	_, err = svc.VisibleMenus(ctx, "user-1")
	assert.ErrorIs(t, err, authz.ErrStoreUnavailable)
}

// TestPurpose: Validates grant and revoke against the store, including the last-role guard and audit trail.
// Scope: Unit Test
// Security: Role lifecycle integrity
// Expected: Grants are idempotent, revoking the last role fails, each effective change is audited.
// Test Case ID: AUT-04
func TestAuthz_GrantRevoke(t *testing.T) {
	store := NewMockStore()
	store.roles["user-1"] = []rbac.Role{rbac.RoleProspect}
	svc, rec := newService(store)
	ctx := context.Background()

	require.NoError(t, svc.Grant(ctx, "admin-1", "user-1", rbac.RolePilot))
	require.NoError(t, svc.Grant(ctx, "admin-1", "user-1", rbac.RolePilot))

	roles, err := svc.RolesForSubject(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, []rbac.Role{rbac.RolePilot, rbac.RoleProspect}, roles)

	require.NoError(t, svc.Revoke(ctx, "admin-1", "user-1", rbac.RoleProspect))
	require.NoError(t, svc.Revoke(ctx, "admin-1", "user-1", rbac.RoleStudent))
	assert.ErrorIs(t, svc.Revoke(ctx, "admin-1", "user-1", rbac.RolePilot), authz.ErrLastRole)

	assert.ErrorIs(t, svc.Grant(ctx, "admin-1", "user-1", rbac.Role("CAPTAIN")), authz.ErrInvalidRole)

	assert.Equal(t, []string{audit.TypeRoleGranted, audit.TypeRoleGranted, audit.TypeRoleRevoked}, rec.Types())
	assert.Equal(t, "admin-1", rec.Events()[0].ActorID)
}

func TestAuthz_VisibleMenus(t *testing.T) {
	store := NewMockStore()
	store.roles["user-1"] = []rbac.Role{rbac.RolePilot, rbac.RoleStudent}
	store.allow(rbac.RolePilot, "menu.fleet.view", "menu.community.view", "fleet.aircraft.view")
	store.allow(rbac.RoleStudent, "menu.dashboard.view")
	store.deny(rbac.RoleStudent, "menu.community.view")

	svc, _ := newService(store)
	menus, err := svc.VisibleMenus(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"dashboard", "fleet"}, menus)
}

func TestAuthz_ListRolesAndSetCapability(t *testing.T) {
	store := NewMockStore()
	store.allow(rbac.RoleAdmin, "admin.users.view")
	svc, rec := newService(store)
	ctx := context.Background()

	require.NoError(t, svc.SetRoleCapability(ctx, "root", rbac.RoleAdmin, "admin.users.edit", true))
	require.NoError(t, svc.SetRoleCapability(ctx, "root", rbac.RoleAdmin, "admin.users.view", false))
	assert.Error(t, svc.SetRoleCapability(ctx, "root", rbac.RoleAdmin, "admin..edit", true))

	roles, err := svc.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, len(rbac.All()))

	var admin authz.RoleInfo
	for _, r := range roles {
		if r.Name == rbac.RoleAdmin {
			admin = r
		}
	}
	assert.Len(t, admin.Capabilities, 2)
	assert.Equal(t, []string{audit.TypeRoleCapabilityChanged, audit.TypeRoleCapabilityChanged}, rec.Types())

	rows, err := svc.CapabilitiesForRole(ctx, rbac.RoleAdmin)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestDecideAndEffective(t *testing.T) {
	view := authz.MustCapability("fleet.aircraft.view")
	edit := authz.MustCapability("fleet.aircraft.edit")
	rows := []authz.RoleCapability{
		{Role: rbac.RolePilot, Capability: view, IsGranted: true},
		{Role: rbac.RoleInstructor, Capability: edit, IsGranted: true},
		{Role: rbac.RolePilot, Capability: edit, IsGranted: false},
	}

	assert.True(t, authz.Decide(rows, view))
	assert.False(t, authz.Decide(rows, edit))
	assert.False(t, authz.Decide(nil, view))
	assert.Equal(t, []authz.Capability{view}, authz.Effective(rows))
}

func TestParseCapability(t *testing.T) {
	c, err := authz.ParseCapability("fleet.aircraft.edit")
	require.NoError(t, err)
	assert.Equal(t, authz.Capability{ResourceType: "fleet", ResourceName: "aircraft", Action: "edit"}, c)
	assert.Equal(t, "fleet.aircraft.edit", c.String())

	for _, bad := range []string{"", "fleet", "fleet.aircraft", "a.b.c.d", "Fleet.aircraft.edit", "fleet..edit", "fleet.air craft.edit"} {
		_, err := authz.ParseCapability(bad)
		assert.ErrorIs(t, err, authz.ErrInvalidCapability, bad)
	}
}
