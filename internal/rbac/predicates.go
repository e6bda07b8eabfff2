package rbac

// HasCapability reports whether the identity holds capability c. It fails
// closed when the identity or its permission set is missing.
func HasCapability(identity *Identity, c Capability) bool {
	if identity == nil || identity.Permissions == nil {
		return false
	}
	return identity.Permissions.Has(c)
}

// HasAnyCapability reports whether at least one of caps is held. An empty
// list is never satisfied.
func HasAnyCapability(identity *Identity, caps []Capability) bool {
	for _, c := range caps {
		if HasCapability(identity, c) {
			return true
		}
	}
	return false
}

// RoleIn reports whether the identity's role is one of roles.
func RoleIn(identity *Identity, roles []Role) bool {
	if identity == nil {
		return false
	}
	for _, r := range roles {
		if identity.Role == r {
			return true
		}
	}
	return false
}

// IsSuperAdmin reports whether the identity carries the unconditional override.
func IsSuperAdmin(identity *Identity) bool {
	return identity != nil && identity.Role == RoleSuperAdmin
}

// IsAdmin reports whether the identity is exactly an admin.
func IsAdmin(identity *Identity) bool {
	return identity != nil && identity.Role == RoleAdmin
}

// IsAdminOrAbove reports whether the identity is an admin or super admin.
func IsAdminOrAbove(identity *Identity) bool {
	return RoleIn(identity, []Role{RoleSuperAdmin, RoleAdmin})
}

// Can is the capability check used by views: super admins hold every
// capability, everyone else needs the flag.
func Can(identity *Identity, c Capability) bool {
	return IsSuperAdmin(identity) || HasCapability(identity, c)
}

// CanViewAllClients reports whether the identity sees every client.
func CanViewAllClients(identity *Identity) bool { return Can(identity, CapViewAllClients) }

// CanManageAllClients reports whether the identity may edit any client.
func CanManageAllClients(identity *Identity) bool { return Can(identity, CapManageAllClients) }

// CanViewAllPayments reports whether the identity sees every payment.
func CanViewAllPayments(identity *Identity) bool { return Can(identity, CapViewAllPayments) }

// CanManageAllPayments reports whether the identity may edit any payment.
func CanManageAllPayments(identity *Identity) bool { return Can(identity, CapManageAllPayments) }

// CanViewAllInstallments reports whether the identity sees every instalment.
func CanViewAllInstallments(identity *Identity) bool { return Can(identity, CapViewAllInstallments) }

// CanManageAllInstallments reports whether the identity may edit any instalment.
func CanManageAllInstallments(identity *Identity) bool {
	return Can(identity, CapManageAllInstallments)
}

// CanViewIntegrations reports whether the identity sees the integrations page.
func CanViewIntegrations(identity *Identity) bool { return Can(identity, CapViewIntegrations) }

// CanManageIntegrations reports whether the identity may change integrations.
func CanManageIntegrations(identity *Identity) bool { return Can(identity, CapManageIntegrations) }

// CanAccessStaffPage mirrors the staff page's role gate: admins and above.
func CanAccessStaffPage(identity *Identity) bool { return IsAdminOrAbove(identity) }

// CanAccessCheckInPage mirrors the check-in forms gate: super admins only.
func CanAccessCheckInPage(identity *Identity) bool { return IsSuperAdmin(identity) }
