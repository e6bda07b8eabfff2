// Package guard applies access decisions to protected regions.
package guard

import (
	"sync"

	"github.com/onsync/onsync/internal/rbac"
)

// DefaultFallback is where denied visitors are sent when no fallback is set.
const DefaultFallback = "/dashboard"

// State is the guard's current rendering state.
type State int

// Guard states.
const (
	Loading State = iota
	Allowed
	Denied
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	default:
		return "loading"
	}
}

// Source exposes the session state a guard reads.
type Source interface {
	Get() *rbac.Identity
	Ready() bool
}

// Navigator performs the fallback action.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

// Navigate implements Navigator.
func (f NavigatorFunc) Navigate(path string) { f(path) }

// Spec describes what a protected region requires and how it reacts to
// denial. When PageID is set the legacy fields are ignored.
type Spec struct {
	PageID string

	Roles          []rbac.Role
	Permission     rbac.Capability
	AnyPermissions []rbac.Capability
	Check          rbac.CheckFunc

	Fallback     string
	HideOnDenied bool
}

// Request converts the spec into the evaluator's request form.
func (s Spec) Request() rbac.Request {
	if s.PageID != "" {
		return rbac.PageRequest{PageID: s.PageID}
	}
	return rbac.LegacyRequest{
		Roles:          s.Roles,
		Permission:     s.Permission,
		AnyPermissions: s.AnyPermissions,
		Check:          s.Check,
	}
}

func (s Spec) fallback() string {
	if s.Fallback == "" {
		return DefaultFallback
	}
	return s.Fallback
}

// Guard is the state machine behind one protected region. Render may be
// called on every redraw; the fallback navigation fires once per transition
// into Denied, again only when the denied identity's values change, and
// never while Loading.
type Guard struct {
	source    Source
	catalog   *rbac.Catalog
	spec      Spec
	navigator Navigator

	mu       sync.Mutex
	state    State
	decision rbac.Decision
	deniedAs *rbac.Identity
}

// New constructs a Guard in the Loading state.
func New(source Source, catalog *rbac.Catalog, spec Spec, navigator Navigator) *Guard {
	return &Guard{source: source, catalog: catalog, spec: spec, navigator: navigator}
}

// Render re-evaluates the guard against the current session and returns the
// resulting state. Only Allowed regions should draw their content.
func (g *Guard) Render() State {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.source.Ready() {
		g.state = Loading
		g.deniedAs = nil
		return g.state
	}
	identity := g.source.Get()
	g.decision = rbac.Evaluate(identity, g.spec.Request(), g.catalog)
	if g.decision.Allow {
		g.state = Allowed
		g.deniedAs = nil
		return g.state
	}

	enteredDenied := g.state != Denied || !g.deniedAs.Equal(identity)
	g.state = Denied
	g.deniedAs = identity.Clone()
	if enteredDenied && !g.spec.HideOnDenied && g.navigator != nil {
		g.navigator.Navigate(g.spec.fallback())
	}
	return g.state
}

// State returns the state computed by the last Render.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Decision returns the evaluator decision from the last non-loading Render.
func (g *Guard) Decision() rbac.Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.decision
}

// Visible reports whether protected content should be drawn.
func (g *Guard) Visible() bool {
	return g.State() == Allowed
}

// Subscriber is the part of the session store a guard can watch.
type Subscriber interface {
	Subscribe(fn func(*rbac.Identity)) (cancel func())
}

// Watch renders once and then again after every session change until the
// returned cancel function is called.
func (g *Guard) Watch(sub Subscriber) (cancel func()) {
	cancel = sub.Subscribe(func(*rbac.Identity) { g.Render() })
	g.Render()
	return cancel
}
