package rbac

import "sort"

// defaultNavOrder places pages without an explicit order at the end of menus.
const defaultNavOrder = 999

// NavigationPages returns, in catalog order, every page the identity may view.
// The result is derived on each call.
func NavigationPages(identity *Identity, catalog *Catalog) []PageDescriptor {
	var out []PageDescriptor
	for _, page := range catalog.Pages() {
		if Evaluate(identity, PageRequest{PageID: page.ID}, catalog).Allow {
			out = append(out, page)
		}
	}
	return out
}

// MenuPages returns the viewable pages flagged for the sidebar, ordered by
// NavOrder. Ties keep catalog order.
func MenuPages(identity *Identity, catalog *Catalog) []PageDescriptor {
	var out []PageDescriptor
	for _, page := range NavigationPages(identity, catalog) {
		if page.ShowInNav {
			out = append(out, page)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return navOrder(out[i]) < navOrder(out[j])
	})
	return out
}

func navOrder(p PageDescriptor) float64 {
	if p.NavOrder == 0 {
		return defaultNavOrder
	}
	return p.NavOrder
}

// CanEditPage reports whether the identity may edit on the page. Editing
// requires view access first; then the page's edit roles, edit permissions
// (any of) and edit check must all pass.
func CanEditPage(identity *Identity, pageID string, catalog *Catalog) bool {
	decision := Evaluate(identity, PageRequest{PageID: pageID}, catalog)
	if !decision.Allow {
		return false
	}
	if decision.Reason == ReasonSuperAdmin {
		return true
	}
	page, _ := catalog.Lookup(pageID)
	if len(page.EditRoles) > 0 && !RoleIn(identity, page.EditRoles) {
		return false
	}
	if len(page.EditPermissions) > 0 && !HasAnyCapability(identity, page.EditPermissions) {
		return false
	}
	if page.EditCheck != nil && !page.EditCheck(identity, identity.Permissions) {
		return false
	}
	return true
}

// EditablePages returns, in catalog order, the pages the identity may edit on.
func EditablePages(identity *Identity, catalog *Catalog) []PageDescriptor {
	var out []PageDescriptor
	for _, page := range catalog.Pages() {
		if CanEditPage(identity, page.ID, catalog) {
			out = append(out, page)
		}
	}
	return out
}
