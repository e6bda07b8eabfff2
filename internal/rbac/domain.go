package rbac

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Role is the coarse-grained access tier assigned to an identity.
type Role string

// Recognized roles.
const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleEmployee   Role = "employee"
	RoleCoach      Role = "coach"
	RoleCloser     Role = "closer"
	RoleSetter     Role = "setter"
)

// Roles lists every recognized role from most to least privileged.
func Roles() []Role {
	return []Role{RoleSuperAdmin, RoleAdmin, RoleEmployee, RoleCoach, RoleCloser, RoleSetter}
}

// Valid reports whether r is a recognized role.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleEmployee, RoleCoach, RoleCloser, RoleSetter:
		return true
	}
	return false
}

var titleCaser = cases.Title(language.English)

// DisplayName renders the role for humans, e.g. "Super Admin".
func (r Role) DisplayName() string {
	return titleCaser.String(strings.ReplaceAll(string(r), "_", " "))
}

// Capability names a fine-grained action right independent of role.
type Capability string

// Recognized capabilities.
const (
	CapViewAllClients        Capability = "view_all_clients"
	CapManageAllClients      Capability = "manage_all_clients"
	CapViewAllPayments       Capability = "view_all_payments"
	CapManageAllPayments     Capability = "manage_all_payments"
	CapViewAllInstallments   Capability = "view_all_installments"
	CapManageAllInstallments Capability = "manage_all_installments"
	CapViewIntegrations      Capability = "view_integrations"
	CapManageIntegrations    Capability = "manage_integrations"
)

// Capabilities lists the eight recognized capabilities in wire order.
func Capabilities() []Capability {
	return []Capability{
		CapViewAllClients,
		CapManageAllClients,
		CapViewAllPayments,
		CapManageAllPayments,
		CapViewAllInstallments,
		CapManageAllInstallments,
		CapViewIntegrations,
		CapManageIntegrations,
	}
}

// Valid reports whether c is one of the recognized capabilities.
func (c Capability) Valid() bool {
	switch c {
	case CapViewAllClients, CapManageAllClients,
		CapViewAllPayments, CapManageAllPayments,
		CapViewAllInstallments, CapManageAllInstallments,
		CapViewIntegrations, CapManageIntegrations:
		return true
	}
	return false
}

// ParseCapability accepts both "view_all_clients" and the backend's
// "can_view_all_clients" spelling.
func ParseCapability(raw string) (Capability, bool) {
	c := Capability(strings.TrimPrefix(strings.TrimSpace(strings.ToLower(raw)), "can_"))
	return c, c.Valid()
}

// PermissionSet holds the eight capability flags. The JSON form matches the
// backend's can_* keys; unknown keys are ignored and missing keys are false.
type PermissionSet struct {
	ViewAllClients        bool `json:"can_view_all_clients"`
	ManageAllClients      bool `json:"can_manage_all_clients"`
	ViewAllPayments       bool `json:"can_view_all_payments"`
	ManageAllPayments     bool `json:"can_manage_all_payments"`
	ViewAllInstallments   bool `json:"can_view_all_installments"`
	ManageAllInstallments bool `json:"can_manage_all_installments"`
	ViewIntegrations      bool `json:"can_view_integrations"`
	ManageIntegrations    bool `json:"can_manage_integrations"`
}

// Has returns the flag for c. Unrecognized capabilities are false.
func (p PermissionSet) Has(c Capability) bool {
	switch c {
	case CapViewAllClients:
		return p.ViewAllClients
	case CapManageAllClients:
		return p.ManageAllClients
	case CapViewAllPayments:
		return p.ViewAllPayments
	case CapManageAllPayments:
		return p.ManageAllPayments
	case CapViewAllInstallments:
		return p.ViewAllInstallments
	case CapManageAllInstallments:
		return p.ManageAllInstallments
	case CapViewIntegrations:
		return p.ViewIntegrations
	case CapManageIntegrations:
		return p.ManageIntegrations
	}
	return false
}

// With returns a copy of p with capability c set to v. Unrecognized
// capabilities leave the copy unchanged.
func (p PermissionSet) With(c Capability, v bool) PermissionSet {
	switch c {
	case CapViewAllClients:
		p.ViewAllClients = v
	case CapManageAllClients:
		p.ManageAllClients = v
	case CapViewAllPayments:
		p.ViewAllPayments = v
	case CapManageAllPayments:
		p.ManageAllPayments = v
	case CapViewAllInstallments:
		p.ViewAllInstallments = v
	case CapManageAllInstallments:
		p.ManageAllInstallments = v
	case CapViewIntegrations:
		p.ViewIntegrations = v
	case CapManageIntegrations:
		p.ManageIntegrations = v
	}
	return p
}

// Granted lists the capabilities set to true, in wire order.
func (p PermissionSet) Granted() []Capability {
	var out []Capability
	for _, c := range Capabilities() {
		if p.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Grant builds a PermissionSet with the given capabilities enabled.
func Grant(caps ...Capability) PermissionSet {
	var p PermissionSet
	for _, c := range caps {
		p = p.With(c, true)
	}
	return p
}

// Identity is the authenticated actor held by the session store.
type Identity struct {
	ID          int64          `json:"id"`
	Email       string         `json:"email" validate:"required,email"`
	Name        string         `json:"name"`
	Role        Role           `json:"role" validate:"required,oneof=super_admin admin employee coach closer setter"`
	AccountID   int64          `json:"account_id"`
	AccountName string         `json:"account_name"`
	Permissions *PermissionSet `json:"permissions,omitempty"`
}

// Clone returns a deep copy so the store never shares a PermissionSet with
// its callers.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	out := *i
	if i.Permissions != nil {
		perms := *i.Permissions
		out.Permissions = &perms
	}
	return &out
}

// Equal reports whether two identities carry the same values, comparing
// permission sets by content. Two nil identities are equal.
func (i *Identity) Equal(other *Identity) bool {
	if i == nil || other == nil {
		return i == other
	}
	if i.ID != other.ID || i.Email != other.Email || i.Name != other.Name ||
		i.Role != other.Role || i.AccountID != other.AccountID || i.AccountName != other.AccountName {
		return false
	}
	if i.Permissions == nil || other.Permissions == nil {
		return i.Permissions == other.Permissions
	}
	return *i.Permissions == *other.Permissions
}

// CheckFunc is a custom predicate over the identity and its permission set.
// perms is nil while permissions have not been loaded.
type CheckFunc func(identity *Identity, perms *PermissionSet) bool
