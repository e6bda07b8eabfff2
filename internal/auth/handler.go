package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/onsync/onsync/internal/platform/httpx"
	"github.com/onsync/onsync/internal/rbac"
	"github.com/onsync/onsync/internal/session"
	"github.com/onsync/onsync/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	store     *session.Store
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, store *session.Store) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		logger:    logger,
		service:   service,
		store:     store,
		validator: service.Validator(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/signup", h.handleSignup)
	r.Post("/logout", h.handleLogout)
	r.Post("/refresh", h.handleRefresh)
	r.Get("/me", h.showMe)
}

type formErrors map[string]string

func (h *Handler) fieldErrors(payload any) formErrors {
	errs := make(formErrors)
	if err := h.validator.Struct(payload); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fieldErr := range fieldErrs {
				errs[fieldErr.Namespace()] = fieldErr.Tag()
			}
		} else {
			errs["general"] = err.Error()
		}
	}
	return errs
}

type sessionResponse struct {
	Authenticated bool           `json:"authenticated"`
	User          *rbac.Identity `json:"user,omitempty"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var form Credentials
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if errs := h.fieldErrors(form); len(errs) > 0 {
		httpx.JSON(w, http.StatusBadRequest, map[string]any{"errors": errs})
		return
	}
	identity, err := h.service.Login(r.Context(), form)
	if err != nil {
		h.respondError(w, "login", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sessionResponse{Authenticated: true, User: identity})
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var form SignupRequest
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if errs := h.fieldErrors(form); len(errs) > 0 {
		httpx.JSON(w, http.StatusBadRequest, map[string]any{"errors": errs})
		return
	}
	identity, err := h.service.Signup(r.Context(), form)
	if err != nil {
		h.respondError(w, "signup", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sessionResponse{Authenticated: true, User: identity})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context()); err != nil {
		h.respondError(w, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	identity, err := h.service.Refresh(r.Context())
	if err != nil {
		h.respondError(w, "refresh", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sessionResponse{Authenticated: true, User: identity})
}

func (h *Handler) showMe(w http.ResponseWriter, r *http.Request) {
	if !h.store.Ready() {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	identity := h.store.Get()
	httpx.JSON(w, http.StatusOK, sessionResponse{Authenticated: identity != nil, User: identity})
}

// respondError maps auth failures onto problem responses. Upstream messages
// are passed through so callers see why the backend refused.
func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	var apiErr *APIError
	detail := err.Error()
	if errors.As(err, &apiErr) {
		detail = apiErr.Message
	}
	switch {
	case errors.Is(err, shared.ErrInvalidCredentials):
		httpx.Problem(w, http.StatusUnauthorized, "Invalid Credentials", detail)
	case errors.Is(err, shared.ErrUnauthenticated):
		httpx.Problem(w, http.StatusUnauthorized, "Unauthenticated", detail)
	case errors.Is(err, session.ErrInvalidIdentity):
		h.logger.Error(op+" returned an unusable identity", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Bad Gateway", "unrecognised user profile")
	case errors.Is(err, shared.ErrUpstream):
		h.logger.Error(op+" upstream failure", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Bad Gateway", "authentication service unavailable")
	case apiErr != nil && apiErr.Unwrap() == nil:
		httpx.Problem(w, apiErr.Status, http.StatusText(apiErr.Status), detail)
	default:
		httpx.RespondError(w, err)
	}
}
