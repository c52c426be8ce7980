package grants

import (
	"net/http"
	"strconv"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stowagehq/stowage/internal/platform/httpx"
	"github.com/stowagehq/stowage/internal/policy"
	"github.com/stowagehq/stowage/internal/shared"
)

// Authorizer gates the grant endpoints. Declared locally to avoid a
// cycle with the authz package.
type Authorizer interface {
	Require(category, action string) func(http.Handler) http.Handler
}

// Handler manages the grant lifecycle endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	authz     Authorizer
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, az Authorizer) *Handler {
	return &Handler{logger: logger, service: service, authz: az, validator: validator.New()}
}

// MountRoutes registers grant routes. The my-permissions route needs no
// category rule: any authenticated user may list their own grants.
func (h *Handler) MountRoutes(r chi.Router) {
	write := h.authz.Require(policy.ObjectStorage, policy.ActionWrite)
	read := h.authz.Require(policy.ObjectStorage, policy.ActionRead)

	r.Route("/permissions", func(r chi.Router) {
		r.With(write).Post("/", h.grant)
		r.With(write).Delete("/{userId}/{pathId}", h.revoke)
		r.With(write).Post("/batch/revoke", h.revokeBatch)
		r.With(read).Get("/", h.listAll)
	})
	r.Get("/my-permissions", h.listMine)
}

type grantRequest struct {
	PathID  int64   `json:"pathId" validate:"required,gt=0"`
	UserIDs []int64 `json:"userIds" validate:"required,min=1,dive,gt=0"`
	Level   string  `json:"level" validate:"required"`
	// Upsert selects the single-target regrant path: an existing grant's
	// level is overwritten instead of conflicting. The bulk endpoint
	// default is strict.
	Upsert bool `json:"upsert"`
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	level, err := ParseLevel(req.Level)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views, err := h.service.Grant(r.Context(), req.PathID, req.UserIDs, level, req.Upsert)
	if err != nil {
		h.logger.Error("grant", slog.Int64("path", req.PathID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, views)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	userID, err := urlID(r, "userId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	pathID, err := urlID(r, "pathId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Revoke(r.Context(), userID, pathID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type revokeBatchRequest struct {
	PathID  int64   `json:"pathId" validate:"required,gt=0"`
	UserIDs []int64 `json:"userIds" validate:"required,min=1,dive,gt=0"`
}

func (h *Handler) revokeBatch(w http.ResponseWriter, r *http.Request) {
	var req revokeBatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.service.RevokeBatch(r.Context(), req.UserIDs, req.PathID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listAll(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.ListAll(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if views == nil {
		views = []GrantView{}
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) listMine(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	if identity == nil {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	views, err := h.service.ListForUser(r.Context(), identity.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if views == nil {
		views = []GrantView{}
	}
	httpx.JSON(w, http.StatusOK, views)
}

func urlID(r *http.Request, param string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil {
		return 0, shared.ErrValidation
	}
	return id, nil
}
