package rbac

import (
	"errors"
	"fmt"
)

// Reason explains which rule decided an evaluation. It is diagnostic only.
type Reason string

// Decision reasons.
const (
	ReasonSuperAdmin      Reason = "super_admin"
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonUnknownPage     Reason = "unknown_page"
	ReasonRole            Reason = "role"
	ReasonPermission      Reason = "permission"
	ReasonCustom          Reason = "custom"
	ReasonGranted         Reason = "granted"
)

// Decision is the outcome of one access question.
type Decision struct {
	Allow  bool   `json:"allow"`
	Reason Reason `json:"reason"`
}

func allow(reason Reason) Decision { return Decision{Allow: true, Reason: reason} }
func deny(reason Reason) Decision  { return Decision{Allow: false, Reason: reason} }

// Request is one access question: either a PageRequest or a LegacyRequest.
type Request interface {
	// Kind names the request form for logs and metrics.
	Kind() string
	isRequest()
}

// PageRequest asks whether a catalog page may be viewed.
type PageRequest struct {
	PageID string
}

// Kind implements Request.
func (PageRequest) Kind() string { return "page" }
func (PageRequest) isRequest()   {}

// LegacyRequest carries the explicit role/permission constraints used before
// pages were catalogued. A nil slice, an empty Permission or a nil Check means
// that constraint is absent; a non-nil empty AnyPermissions is present and
// can never be satisfied.
type LegacyRequest struct {
	Roles          []Role
	Permission     Capability
	AnyPermissions []Capability
	Check          CheckFunc
}

// Kind implements Request.
func (LegacyRequest) Kind() string { return "legacy" }
func (LegacyRequest) isRequest()   {}

// ErrInvalidRequest reports an access question naming an unknown role or
// capability.
var ErrInvalidRequest = errors.New("rbac: invalid access request")

// ParseLegacyRequest builds a LegacyRequest from wire names. Nil-ness of
// roles and anyPermissions is preserved.
func ParseLegacyRequest(roles []string, permission string, anyPermissions []string) (LegacyRequest, error) {
	var req LegacyRequest
	if roles != nil {
		req.Roles = make([]Role, 0, len(roles))
		for _, raw := range roles {
			role := Role(raw)
			if !role.Valid() {
				return LegacyRequest{}, fmt.Errorf("%w: unknown role %q", ErrInvalidRequest, raw)
			}
			req.Roles = append(req.Roles, role)
		}
	}
	if permission != "" {
		capability, ok := ParseCapability(permission)
		if !ok {
			return LegacyRequest{}, fmt.Errorf("%w: unknown capability %q", ErrInvalidRequest, permission)
		}
		req.Permission = capability
	}
	if anyPermissions != nil {
		req.AnyPermissions = make([]Capability, 0, len(anyPermissions))
		for _, raw := range anyPermissions {
			capability, ok := ParseCapability(raw)
			if !ok {
				return LegacyRequest{}, fmt.Errorf("%w: unknown capability %q", ErrInvalidRequest, raw)
			}
			req.AnyPermissions = append(req.AnyPermissions, capability)
		}
	}
	return req, nil
}

// Evaluate decides a request against the identity and catalog. Rules apply in
// a fixed order and the first deciding rule wins:
//
//  1. super admins are always allowed;
//  2. a missing identity is denied;
//  3. page requests defer to the catalog entry (unknown pages, and a nil
//     *PageRequest, are denied);
//  4. legacy requests fold their present constraints left to right.
//
// Evaluate never mutates its inputs and never panics on nil values.
func Evaluate(identity *Identity, req Request, catalog *Catalog) Decision {
	if IsSuperAdmin(identity) {
		return allow(ReasonSuperAdmin)
	}
	if identity == nil {
		return deny(ReasonUnauthenticated)
	}
	switch r := req.(type) {
	case PageRequest:
		page, ok := catalog.Lookup(r.PageID)
		if !ok {
			return deny(ReasonUnknownPage)
		}
		return evaluatePage(identity, page)
	case *PageRequest:
		if r == nil {
			return deny(ReasonUnknownPage)
		}
		return Evaluate(identity, *r, catalog)
	case LegacyRequest:
		return evaluateLegacy(identity, r)
	case *LegacyRequest:
		if r == nil {
			return allow(ReasonGranted)
		}
		return evaluateLegacy(identity, *r)
	}
	// No constraints at all.
	return allow(ReasonGranted)
}

// evaluatePage requires every declared constraint of the page to pass.
func evaluatePage(identity *Identity, page PageDescriptor) Decision {
	if len(page.RequiredRoles) > 0 && !RoleIn(identity, page.RequiredRoles) {
		return deny(ReasonRole)
	}
	if page.RequiredPermission != "" && !HasCapability(identity, page.RequiredPermission) {
		return deny(ReasonPermission)
	}
	if page.Check != nil && !page.Check(identity, identity.Permissions) {
		return deny(ReasonCustom)
	}
	return allow(ReasonGranted)
}

// evaluateLegacy folds the present constraints. Capability constraints are
// skipped while the identity has no permission set so that identities whose
// permissions are still loading are not denied prematurely.
func evaluateLegacy(identity *Identity, r LegacyRequest) Decision {
	if r.Roles != nil && !RoleIn(identity, r.Roles) {
		return deny(ReasonRole)
	}
	perms := identity.Permissions
	if r.Permission != "" && perms != nil && !HasCapability(identity, r.Permission) {
		return deny(ReasonPermission)
	}
	if r.AnyPermissions != nil && perms != nil && !HasAnyCapability(identity, r.AnyPermissions) {
		return deny(ReasonPermission)
	}
	if r.Check != nil && !r.Check(identity, perms) {
		return deny(ReasonCustom)
	}
	return allow(ReasonGranted)
}
