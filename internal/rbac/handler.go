package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/onsync/onsync/internal/observability"
	"github.com/onsync/onsync/internal/platform/httpx"
)

// IdentitySource supplies the current identity snapshot.
type IdentitySource interface {
	Get() *Identity
	Ready() bool
}

// Handler exposes navigation and access queries over HTTP.
type Handler struct {
	logger  *slog.Logger
	source  IdentitySource
	catalog *Catalog
	metrics *observability.Metrics
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, source IdentitySource, catalog *Catalog, metrics *observability.Metrics) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{logger: logger, source: source, catalog: catalog, metrics: metrics}
}

// MountNavRoutes registers the navigation routes.
func (h *Handler) MountNavRoutes(r chi.Router) {
	r.Get("/", h.listNavigation)
	r.Get("/menu", h.listMenu)
}

// MountAccessRoutes registers the access query routes.
func (h *Handler) MountAccessRoutes(r chi.Router) {
	r.Get("/me", h.describeIdentity)
	r.Get("/pages/{pageID}", h.checkPage)
	r.Post("/check", h.checkLegacy)
}

type pageView struct {
	ID          string  `json:"id"`
	Label       string  `json:"label"`
	Path        string  `json:"path"`
	Icon        string  `json:"icon,omitempty"`
	Description string  `json:"description,omitempty"`
	ParentID    string  `json:"parent_id,omitempty"`
	NavOrder    float64 `json:"nav_order,omitempty"`
	CanEdit     bool    `json:"can_edit"`
}

func (h *Handler) views(identity *Identity, pages []PageDescriptor) []pageView {
	out := make([]pageView, 0, len(pages))
	for _, p := range pages {
		out = append(out, pageView{
			ID:          p.ID,
			Label:       p.Label,
			Path:        p.Path,
			Icon:        p.Icon,
			Description: p.Description,
			ParentID:    p.ParentID,
			NavOrder:    p.NavOrder,
			CanEdit:     CanEditPage(identity, p.ID, h.catalog),
		})
	}
	return out
}

// snapshot returns the current identity, or false after answering 204 when
// the session has not finished loading.
func (h *Handler) snapshot(w http.ResponseWriter) (*Identity, bool) {
	if h.source == nil || !h.source.Ready() {
		w.WriteHeader(http.StatusNoContent)
		return nil, false
	}
	return h.source.Get(), true
}

func (h *Handler) listNavigation(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.snapshot(w)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"pages": h.views(identity, NavigationPages(identity, h.catalog))})
}

func (h *Handler) listMenu(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.snapshot(w)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"pages": h.views(identity, MenuPages(identity, h.catalog))})
}

type identityResponse struct {
	Authenticated bool         `json:"authenticated"`
	User          *Identity    `json:"user,omitempty"`
	RoleLabel     string       `json:"role_label,omitempty"`
	Capabilities  []Capability `json:"capabilities"`
	EditablePages []string     `json:"editable_pages"`
}

func (h *Handler) describeIdentity(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.snapshot(w)
	if !ok {
		return
	}
	resp := identityResponse{Capabilities: []Capability{}, EditablePages: []string{}}
	if identity != nil {
		resp.Authenticated = true
		resp.User = identity
		resp.RoleLabel = identity.Role.DisplayName()
		if identity.Permissions != nil {
			resp.Capabilities = append(resp.Capabilities, identity.Permissions.Granted()...)
		}
		for _, p := range EditablePages(identity, h.catalog) {
			resp.EditablePages = append(resp.EditablePages, p.ID)
		}
	}
	httpx.JSON(w, http.StatusOK, resp)
}

type pageDecision struct {
	Decision
	PageID  string `json:"page_id"`
	CanEdit bool   `json:"can_edit"`
}

func (h *Handler) checkPage(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.snapshot(w)
	if !ok {
		return
	}
	req := PageRequest{PageID: chi.URLParam(r, "pageID")}
	decision := Evaluate(identity, req, h.catalog)
	h.metrics.ObserveDecision(req.Kind(), decision.Allow)
	httpx.JSON(w, http.StatusOK, pageDecision{
		Decision: decision,
		PageID:   req.PageID,
		CanEdit:  decision.Allow && CanEditPage(identity, req.PageID, h.catalog),
	})
}

// checkRequest is the JSON form of a LegacyRequest. An absent
// any_permissions is no constraint; an empty array is unsatisfiable.
type checkRequest struct {
	Roles          []string `json:"roles"`
	Permission     string   `json:"permission"`
	AnyPermissions []string `json:"any_permissions"`
}

func (c checkRequest) toLegacy() (LegacyRequest, error) {
	return ParseLegacyRequest(c.Roles, c.Permission, c.AnyPermissions)
}

func (h *Handler) checkLegacy(w http.ResponseWriter, r *http.Request) {
	var body checkRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	req, err := body.toLegacy()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	identity, ok := h.snapshot(w)
	if !ok {
		return
	}
	decision := Evaluate(identity, req, h.catalog)
	h.metrics.ObserveDecision(req.Kind(), decision.Allow)
	h.logger.Debug("legacy access check", slog.Bool("allow", decision.Allow), slog.String("reason", string(decision.Reason)))
	httpx.JSON(w, http.StatusOK, decision)
}
