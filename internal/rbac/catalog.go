package rbac

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// PageDescriptor describes one navigable area and its access constraints.
// Empty RequiredRoles, an empty RequiredPermission and a nil Check mean the
// constraint is absent.
type PageDescriptor struct {
	ID                 string
	Label              string
	Path               string
	Icon               string
	Description        string
	ShowInNav          bool
	NavOrder           float64
	ParentID           string
	RequiredRoles      []Role
	RequiredPermission Capability
	Check              CheckFunc
	EditRoles          []Role
	EditPermissions    []Capability
	EditCheck          CheckFunc
}

// Unconstrained reports whether the page is open to every authenticated identity.
func (p PageDescriptor) Unconstrained() bool {
	return len(p.RequiredRoles) == 0 && p.RequiredPermission == "" && p.Check == nil
}

// Catalog is the immutable, ordered set of known pages.
type Catalog struct {
	pages  []PageDescriptor
	byID   map[string]int
	byPath map[string]int
}

// ErrDuplicatePage indicates two catalog entries share an id or a path.
var ErrDuplicatePage = errors.New("rbac: duplicate page id")

// NewCatalog validates pages and freezes them in the given order.
func NewCatalog(pages []PageDescriptor) (*Catalog, error) {
	c := &Catalog{
		pages:  make([]PageDescriptor, 0, len(pages)),
		byID:   make(map[string]int, len(pages)),
		byPath: make(map[string]int, len(pages)),
	}
	for _, p := range pages {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return nil, errors.New("rbac: page id required")
		}
		if _, ok := c.byID[p.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePage, p.ID)
		}
		if idx, ok := c.byPath[p.Path]; ok && p.Path != "" {
			return nil, fmt.Errorf("%w: %s and %s both mount %s", ErrDuplicatePage, c.pages[idx].ID, p.ID, p.Path)
		}
		for _, r := range append(append([]Role(nil), p.RequiredRoles...), p.EditRoles...) {
			if !r.Valid() {
				return nil, fmt.Errorf("rbac: page %s: unknown role %q", p.ID, r)
			}
		}
		if p.RequiredPermission != "" && !p.RequiredPermission.Valid() {
			return nil, fmt.Errorf("rbac: page %s: unknown capability %q", p.ID, p.RequiredPermission)
		}
		for _, cp := range p.EditPermissions {
			if !cp.Valid() {
				return nil, fmt.Errorf("rbac: page %s: unknown capability %q", p.ID, cp)
			}
		}
		p.RequiredRoles = append([]Role(nil), p.RequiredRoles...)
		p.EditRoles = append([]Role(nil), p.EditRoles...)
		p.EditPermissions = append([]Capability(nil), p.EditPermissions...)

		c.byID[p.ID] = len(c.pages)
		if p.Path != "" {
			c.byPath[p.Path] = len(c.pages)
		}
		c.pages = append(c.pages, p)
	}
	return c, nil
}

// MustCatalog is NewCatalog for static tables; it panics on invalid input.
func MustCatalog(pages ...PageDescriptor) *Catalog {
	c, err := NewCatalog(pages)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the page registered under id.
func (c *Catalog) Lookup(id string) (PageDescriptor, bool) {
	if c == nil {
		return PageDescriptor{}, false
	}
	idx, ok := c.byID[id]
	if !ok {
		return PageDescriptor{}, false
	}
	return c.pages[idx], true
}

// LookupPath returns the page mounted at path.
func (c *Catalog) LookupPath(path string) (PageDescriptor, bool) {
	if c == nil {
		return PageDescriptor{}, false
	}
	idx, ok := c.byPath[path]
	if !ok {
		return PageDescriptor{}, false
	}
	return c.pages[idx], true
}

// Pages returns the pages in catalog order. The slice is a copy.
func (c *Catalog) Pages() []PageDescriptor {
	if c == nil {
		return nil
	}
	out := make([]PageDescriptor, len(c.pages))
	copy(out, c.pages)
	return out
}

// Len returns the number of pages.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.pages)
}

// DefaultChecks holds the named predicates referenced by the bundled catalog.
func DefaultChecks() map[string]CheckFunc {
	return map[string]CheckFunc{
		// Finance is open to every authenticated identity until a dedicated
		// capability exists on the backend.
		"finance.view": func(*Identity, *PermissionSet) bool { return true },
		"integrations.view": func(identity *Identity, perms *PermissionSet) bool {
			if IsSuperAdmin(identity) {
				return true
			}
			if !IsAdmin(identity) || perms == nil {
				return false
			}
			return perms.ViewIntegrations || perms.ManageIntegrations
		},
		"integrations.manage": func(identity *Identity, perms *PermissionSet) bool {
			if IsSuperAdmin(identity) {
				return true
			}
			return IsAdmin(identity) && perms != nil && perms.ManageIntegrations
		},
	}
}

//go:embed pages.yaml
var defaultPagesYAML []byte

// DefaultCatalog returns the catalog bundled with the binary.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultPagesYAML, DefaultChecks())
	if err != nil {
		panic(fmt.Sprintf("rbac: bundled catalog: %v", err))
	}
	return c
}

type catalogDocument struct {
	Pages []pageDocument `yaml:"pages"`
}

type pageDocument struct {
	ID                 string   `yaml:"id"`
	Label              string   `yaml:"label"`
	Path               string   `yaml:"path"`
	Icon               string   `yaml:"icon"`
	Description        string   `yaml:"description"`
	ShowInNav          bool     `yaml:"show_in_nav"`
	NavOrder           float64  `yaml:"nav_order"`
	ParentID           string   `yaml:"parent_id"`
	RequiredRoles      []string `yaml:"required_roles"`
	RequiredPermission string   `yaml:"required_permission"`
	Check              string   `yaml:"check"`
	EditRoles          []string `yaml:"edit_roles"`
	EditPermissions    []string `yaml:"edit_permissions"`
	EditCheck          string   `yaml:"edit_check"`
}

// ParseCatalog decodes a YAML catalog document. Named checks are resolved
// against checks; an unknown name is an error.
func ParseCatalog(data []byte, checks map[string]CheckFunc) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var doc catalogDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("rbac: decode catalog: %w", err)
	}
	pages := make([]PageDescriptor, 0, len(doc.Pages))
	for _, pd := range doc.Pages {
		page := PageDescriptor{
			ID:          pd.ID,
			Label:       pd.Label,
			Path:        pd.Path,
			Icon:        pd.Icon,
			Description: pd.Description,
			ShowInNav:   pd.ShowInNav,
			NavOrder:    pd.NavOrder,
			ParentID:    pd.ParentID,
		}
		for _, r := range pd.RequiredRoles {
			page.RequiredRoles = append(page.RequiredRoles, Role(r))
		}
		for _, r := range pd.EditRoles {
			page.EditRoles = append(page.EditRoles, Role(r))
		}
		if pd.RequiredPermission != "" {
			c, ok := ParseCapability(pd.RequiredPermission)
			if !ok {
				return nil, fmt.Errorf("rbac: page %s: unknown capability %q", pd.ID, pd.RequiredPermission)
			}
			page.RequiredPermission = c
		}
		for _, raw := range pd.EditPermissions {
			c, ok := ParseCapability(raw)
			if !ok {
				return nil, fmt.Errorf("rbac: page %s: unknown capability %q", pd.ID, raw)
			}
			page.EditPermissions = append(page.EditPermissions, c)
		}
		var err error
		if page.Check, err = resolveCheck(checks, pd.ID, pd.Check); err != nil {
			return nil, err
		}
		if page.EditCheck, err = resolveCheck(checks, pd.ID, pd.EditCheck); err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return NewCatalog(pages)
}

// LoadCatalog reads and parses a catalog document from fs.
func LoadCatalog(fs afero.Fs, path string, checks map[string]CheckFunc) (*Catalog, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("rbac: read catalog %s: %w", path, err)
	}
	return ParseCatalog(data, checks)
}

func resolveCheck(checks map[string]CheckFunc, pageID, name string) (CheckFunc, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	fn, ok := checks[name]
	if !ok || fn == nil {
		return nil, fmt.Errorf("rbac: page %s: unknown check %q", pageID, name)
	}
	return fn, nil
}
