package guard

import (
	"log/slog"
	"net/http"

	"github.com/onsync/onsync/internal/observability"
	"github.com/onsync/onsync/internal/rbac"
	"github.com/onsync/onsync/internal/shared"
)

// Middleware wires guard decisions into HTTP handlers. Each request is
// evaluated against the session snapshot current at arrival.
type Middleware struct {
	Source  Source
	Catalog *rbac.Catalog
	Logger  *slog.Logger
	Metrics *observability.Metrics
	// Fallback overrides DefaultFallback for specs without their own.
	Fallback string
}

// RequirePage protects a handler with a catalog page.
func (m Middleware) RequirePage(pageID string) func(http.Handler) http.Handler {
	return m.Require(Spec{PageID: pageID})
}

// RequireRole ensures the current identity holds one of roles.
func (m Middleware) RequireRole(roles ...rbac.Role) func(http.Handler) http.Handler {
	if roles == nil {
		roles = []rbac.Role{}
	}
	return m.Require(Spec{Roles: roles})
}

// RequireAny ensures the current identity has at least one capability. Like
// RequireRole, an empty list admits only super admins.
func (m Middleware) RequireAny(caps ...rbac.Capability) func(http.Handler) http.Handler {
	if caps == nil {
		caps = []rbac.Capability{}
	}
	return m.Require(Spec{AnyPermissions: caps})
}

// Require evaluates spec for every request. A session that is not ready
// yields 204 with no body; a hidden denial yields an empty 403; any other
// denial redirects to the fallback.
func (m Middleware) Require(spec Spec) func(http.Handler) http.Handler {
	req := spec.Request()
	if spec.Fallback == "" {
		spec.Fallback = m.Fallback
	}
	fallback := spec.fallback()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.Source == nil || !m.Source.Ready() {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			identity := m.Source.Get()
			decision := rbac.Evaluate(identity, req, m.Catalog)
			m.Metrics.ObserveDecision(req.Kind(), decision.Allow)
			if decision.Allow {
				next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(r.Context(), identity)))
				return
			}
			if m.Logger != nil {
				m.Logger.Debug("access denied",
					slog.String("path", r.URL.Path),
					slog.String("kind", req.Kind()),
					slog.String("reason", string(decision.Reason)))
			}
			// Redirecting to the current path would loop.
			if spec.HideOnDenied || r.URL.Path == fallback {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			http.Redirect(w, r, fallback, http.StatusSeeOther)
		})
	}
}
