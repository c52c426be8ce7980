package policy

import (
	"net/http"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stowagehq/stowage/internal/platform/httpx"
	"github.com/stowagehq/stowage/internal/shared"
)

// Authorizer gates the policy management surface. Declared here to avoid
// a cycle with the authz package, which builds on this one.
type Authorizer interface {
	Require(category, action string) func(http.Handler) http.Handler
}

// Handler exposes the rule management surface over the Store.
type Handler struct {
	logger    *slog.Logger
	store     Store
	authz     Authorizer
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, store Store, az Authorizer) *Handler {
	return &Handler{logger: logger, store: store, authz: az, validator: validator.New()}
}

// MountRoutes registers rule management routes.
func (h *Handler) MountRoutes(r chi.Router) {
	read := h.authz.Require(ObjectRoles, ActionRead)
	write := h.authz.Require(ObjectRoles, ActionWrite)

	r.With(read).Get("/rules", h.listRules)
	r.With(write).Post("/rules", h.addRule)
	r.With(write).Delete("/rules", h.removeRule)
	r.With(read).Get("/roles/{role}/users", h.listRoleUsers)
}

type ruleRequest struct {
	Subject string `json:"subject" validate:"required"`
	Object  string `json:"object" validate:"required"`
	Action  string `json:"action" validate:"required"`
}

type rulePayload struct {
	Subject string `json:"subject"`
	Object  string `json:"object"`
	Action  string `json:"action"`
}

func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	subject := r.URL.Query().Get("subject")
	rules, err := h.store.ListRules(r.Context(), subject)
	if err != nil {
		h.logger.Error("list rules", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]rulePayload, 0, len(rules))
	for _, rule := range rules {
		out = append(out, rulePayload(rule))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) addRule(w http.ResponseWriter, r *http.Request) {
	rule, ok := h.decodeRule(w, r)
	if !ok {
		return
	}
	if err := h.store.AddRule(r.Context(), rule); err != nil {
		h.logger.Error("add rule", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rulePayload(rule))
}

func (h *Handler) removeRule(w http.ResponseWriter, r *http.Request) {
	rule, ok := h.decodeRule(w, r)
	if !ok {
		return
	}
	if err := h.store.RemoveRule(r.Context(), rule); err != nil {
		h.logger.Error("remove rule", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listRoleUsers(w http.ResponseWriter, r *http.Request) {
	role := chi.URLParam(r, "role")
	usernames, err := h.store.UsersOf(r.Context(), role)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if usernames == nil {
		usernames = []string{}
	}
	httpx.JSON(w, http.StatusOK, usernames)
}

func (h *Handler) decodeRule(w http.ResponseWriter, r *http.Request) (Rule, bool) {
	var req ruleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return Rule{}, false
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return Rule{}, false
	}
	return Rule(req), true
}
