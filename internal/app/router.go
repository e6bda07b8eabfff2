package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/onsync/onsync/internal/auth"
	"github.com/onsync/onsync/internal/guard"
	"github.com/onsync/onsync/internal/observability"
	"github.com/onsync/onsync/internal/platform/httpx"
	"github.com/onsync/onsync/internal/rbac"
	"github.com/onsync/onsync/internal/shared"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger        *slog.Logger
	Config        *Config
	Catalog       *rbac.Catalog
	AuthHandler   *auth.Handler
	AccessHandler *rbac.Handler
	Guard         guard.Middleware
	Metrics       *observability.Metrics
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(requestLogger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	home := params.Guard.Fallback
	if home == "" {
		home = guard.DefaultFallback
	}
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, home, http.StatusSeeOther)
	})

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}
	if params.AccessHandler != nil {
		r.Route("/nav", params.AccessHandler.MountNavRoutes)
		r.Route("/access", params.AccessHandler.MountAccessRoutes)
	}

	for _, page := range params.Catalog.Pages() {
		r.With(params.Guard.RequirePage(page.ID)).Get(page.Path, pageHandler(page, params.Catalog))
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

type pageResponse struct {
	ID          string         `json:"id"`
	Label       string         `json:"label"`
	Description string         `json:"description,omitempty"`
	CanEdit     bool           `json:"can_edit"`
	User        *rbac.Identity `json:"user"`
}

// pageHandler answers for a protected page once the guard has let the
// request through.
func pageHandler(page rbac.PageDescriptor, catalog *rbac.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := shared.IdentityFromContext(r.Context())
		httpx.JSON(w, http.StatusOK, pageResponse{
			ID:          page.ID,
			Label:       page.Label,
			Description: page.Description,
			CanEdit:     rbac.CanEditPage(identity, page.ID, catalog),
			User:        identity,
		})
	}
}
