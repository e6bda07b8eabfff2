package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	catalog, err := NewCatalog([]PageDescriptor{
		{ID: "dashboard", Label: "Dashboard", Path: "/dashboard"},
		{ID: "clients-page", Label: "Clients", Path: "/clients", RequiredPermission: CapViewAllClients},
		{ID: "integrations", Label: "Integrations", Path: "/integrations", RequiredPermission: CapViewIntegrations},
		{ID: "staff", Label: "Staff", Path: "/staff", RequiredRoles: []Role{RoleAdmin, RoleSuperAdmin}},
		{ID: "closed", Label: "Closed", Path: "/closed", Check: func(*Identity, *PermissionSet) bool { return false }},
	})
	require.NoError(t, err)
	return catalog
}

func identity(role Role, perms *PermissionSet) *Identity {
	return &Identity{ID: 7, Email: "coach@example.com", Name: "Casey", Role: role, AccountID: 1, AccountName: "Acme", Permissions: perms}
}

func perms(caps ...Capability) *PermissionSet {
	p := Grant(caps...)
	return &p
}

func TestSuperAdminAllowedForEveryRequest(t *testing.T) {
	catalog := testCatalog(t)
	never := func(*Identity, *PermissionSet) bool { return false }
	requests := []Request{
		PageRequest{PageID: "dashboard"},
		PageRequest{PageID: "clients-page"},
		PageRequest{PageID: "closed"},
		PageRequest{PageID: "does-not-exist"},
		LegacyRequest{Roles: []Role{RoleCoach}},
		LegacyRequest{Permission: CapManageIntegrations},
		LegacyRequest{AnyPermissions: []Capability{}},
		LegacyRequest{Check: never},
	}
	for _, ps := range []*PermissionSet{nil, {}, perms(CapViewAllClients)} {
		admin := identity(RoleSuperAdmin, ps)
		for _, req := range requests {
			for _, cat := range []*Catalog{catalog, nil} {
				d := Evaluate(admin, req, cat)
				assert.True(t, d.Allow, "request %#v", req)
				assert.Equal(t, ReasonSuperAdmin, d.Reason)
			}
		}
	}
}

func TestUnconstrainedPageAllowedForEveryRole(t *testing.T) {
	catalog := testCatalog(t)
	for _, role := range Roles() {
		d := Evaluate(identity(role, nil), PageRequest{PageID: "dashboard"}, catalog)
		assert.True(t, d.Allow, "role %s", role)
	}
}

func TestPageRequiredPermission(t *testing.T) {
	catalog := testCatalog(t)
	req := PageRequest{PageID: "integrations"}

	assert.False(t, Evaluate(identity(RoleAdmin, &PermissionSet{}), req, catalog).Allow)
	assert.False(t, Evaluate(identity(RoleAdmin, nil), req, catalog).Allow)

	d := Evaluate(identity(RoleAdmin, perms(CapViewIntegrations)), req, catalog)
	assert.True(t, d.Allow)
	assert.Equal(t, ReasonGranted, d.Reason)
}

func TestCoachClientsPageScenario(t *testing.T) {
	catalog := testCatalog(t)
	req := PageRequest{PageID: "clients-page"}
	coach := identity(RoleCoach, &PermissionSet{})

	d := Evaluate(coach, req, catalog)
	assert.False(t, d.Allow)
	assert.Equal(t, ReasonPermission, d.Reason)

	coach = identity(RoleCoach, perms(CapViewAllClients))
	assert.True(t, Evaluate(coach, req, catalog).Allow)
}

func TestUnknownPageDenied(t *testing.T) {
	d := Evaluate(identity(RoleAdmin, perms(Capabilities()...)), PageRequest{PageID: "does-not-exist"}, testCatalog(t))
	assert.False(t, d.Allow)
	assert.Equal(t, ReasonUnknownPage, d.Reason)

	d = Evaluate(identity(RoleAdmin, nil), PageRequest{PageID: "dashboard"}, nil)
	assert.False(t, d.Allow)
}

func TestUnauthenticatedDenied(t *testing.T) {
	catalog := testCatalog(t)
	for _, req := range []Request{
		PageRequest{PageID: "dashboard"},
		LegacyRequest{},
		LegacyRequest{Permission: CapViewAllClients},
	} {
		d := Evaluate(nil, req, catalog)
		assert.False(t, d.Allow)
		assert.Equal(t, ReasonUnauthenticated, d.Reason)
	}
}

func TestLegacyRoleGateRunsFirst(t *testing.T) {
	req := LegacyRequest{
		Roles:      []Role{RoleAdmin, RoleSuperAdmin},
		Permission: CapManageAllPayments,
	}
	assert.True(t, Evaluate(identity(RoleAdmin, perms(CapManageAllPayments)), req, nil).Allow)

	d := Evaluate(identity(RoleCoach, perms(CapManageAllPayments)), req, nil)
	assert.False(t, d.Allow)
	assert.Equal(t, ReasonRole, d.Reason)
}

func TestLegacyCapabilitySkippedWithoutPermissionSet(t *testing.T) {
	loading := identity(RoleCoach, nil)
	assert.True(t, Evaluate(loading, LegacyRequest{Permission: CapViewAllPayments}, nil).Allow)
	assert.True(t, Evaluate(loading, LegacyRequest{AnyPermissions: []Capability{CapViewAllPayments}}, nil).Allow)

	loaded := identity(RoleCoach, &PermissionSet{})
	assert.False(t, Evaluate(loaded, LegacyRequest{Permission: CapViewAllPayments}, nil).Allow)
	assert.False(t, Evaluate(loaded, LegacyRequest{AnyPermissions: []Capability{CapViewAllPayments}}, nil).Allow)
}

func TestLegacyAnyPermissions(t *testing.T) {
	id := identity(RoleCloser, perms(CapViewAllInstallments))
	req := LegacyRequest{AnyPermissions: []Capability{CapViewAllPayments, CapViewAllInstallments}}
	assert.True(t, Evaluate(id, req, nil).Allow)

	assert.False(t, Evaluate(id, LegacyRequest{AnyPermissions: []Capability{}}, nil).Allow)
}

func TestLegacyCustomCheckOnlyWhenStillAllowed(t *testing.T) {
	called := false
	check := func(id *Identity, p *PermissionSet) bool {
		called = true
		return id.Role == RoleSetter
	}

	d := Evaluate(identity(RoleCoach, nil), LegacyRequest{Roles: []Role{RoleAdmin}, Check: check}, nil)
	assert.False(t, d.Allow)
	assert.False(t, called)

	d = Evaluate(identity(RoleCoach, nil), LegacyRequest{Check: check}, nil)
	assert.True(t, called)
	assert.False(t, d.Allow)
	assert.Equal(t, ReasonCustom, d.Reason)

	assert.True(t, Evaluate(identity(RoleSetter, nil), LegacyRequest{Check: check}, nil).Allow)
}

func TestLegacyWithoutConstraintsAllows(t *testing.T) {
	assert.True(t, Evaluate(identity(RoleEmployee, nil), LegacyRequest{}, nil).Allow)
	assert.True(t, Evaluate(identity(RoleEmployee, nil), nil, nil).Allow)
	assert.True(t, Evaluate(identity(RoleEmployee, nil), &LegacyRequest{}, nil).Allow)
}

func TestNilPageRequestIsDenied(t *testing.T) {
	d := Evaluate(identity(RoleAdmin, perms(CapViewIntegrations)), (*PageRequest)(nil), testCatalog(t))
	assert.False(t, d.Allow)
	assert.Equal(t, ReasonUnknownPage, d.Reason)

	assert.True(t, Evaluate(identity(RoleEmployee, nil), (*LegacyRequest)(nil), nil).Allow)
}

func TestEvaluateIsIdempotent(t *testing.T) {
	catalog := testCatalog(t)
	id := identity(RoleCoach, perms(CapViewAllClients))
	before := *id.Permissions
	for _, req := range []Request{
		PageRequest{PageID: "clients-page"},
		PageRequest{PageID: "staff"},
		LegacyRequest{Permission: CapManageAllClients},
	} {
		first := Evaluate(id, req, catalog)
		second := Evaluate(id, req, catalog)
		assert.Equal(t, first, second)
	}
	assert.Equal(t, before, *id.Permissions)
}

func TestPageRoleAndCheckConstraints(t *testing.T) {
	catalog := testCatalog(t)

	d := Evaluate(identity(RoleCoach, nil), PageRequest{PageID: "staff"}, catalog)
	assert.False(t, d.Allow)
	assert.Equal(t, ReasonRole, d.Reason)
	assert.True(t, Evaluate(identity(RoleAdmin, nil), PageRequest{PageID: "staff"}, catalog).Allow)

	d = Evaluate(identity(RoleAdmin, perms(Capabilities()...)), PageRequest{PageID: "closed"}, catalog)
	assert.False(t, d.Allow)
	assert.Equal(t, ReasonCustom, d.Reason)
}

func TestParseLegacyRequest(t *testing.T) {
	req, err := ParseLegacyRequest([]string{"coach", "closer"}, "can_view_all_clients", nil)
	require.NoError(t, err)
	assert.Equal(t, []Role{RoleCoach, RoleCloser}, req.Roles)
	assert.Equal(t, CapViewAllClients, req.Permission)
	assert.Nil(t, req.AnyPermissions)

	req, err = ParseLegacyRequest(nil, "", []string{})
	require.NoError(t, err)
	assert.Nil(t, req.Roles)
	require.NotNil(t, req.AnyPermissions, "an empty list stays an unsatisfiable constraint")
	assert.Empty(t, req.AnyPermissions)

	_, err = ParseLegacyRequest([]string{"owner"}, "", nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = ParseLegacyRequest(nil, "fly", nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = ParseLegacyRequest(nil, "", []string{"view_integrations", "nope"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestIdentityEqualComparesValues(t *testing.T) {
	a := identity(RoleCoach, perms(CapViewAllClients))
	b := identity(RoleCoach, perms(CapViewAllClients))
	assert.True(t, a.Equal(b))
	assert.True(t, (*Identity)(nil).Equal(nil))
	assert.False(t, a.Equal(nil))
	assert.False(t, a.Equal(identity(RoleCoach, nil)))
	assert.False(t, a.Equal(identity(RoleCoach, perms(CapViewAllPayments))))
	assert.False(t, a.Equal(identity(RoleCloser, perms(CapViewAllClients))))
}
