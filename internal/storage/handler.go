package storage

import (
	"net/http"
	"strconv"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stowagehq/stowage/internal/authz"
	"github.com/stowagehq/stowage/internal/platform/httpx"
	"github.com/stowagehq/stowage/internal/policy"
	"github.com/stowagehq/stowage/internal/shared"
)

// Handler manages storage instance and path endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	authz     authz.Middleware
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, az authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, authz: az, validator: validator.New()}
}

// MountRoutes registers storage routes.
func (h *Handler) MountRoutes(r chi.Router) {
	write := h.authz.Require(policy.ObjectStorage, policy.ActionWrite)
	read := h.authz.Require(policy.ObjectStorage, policy.ActionRead)

	r.Route("/instances", func(r chi.Router) {
		r.With(write).Post("/", h.createInstance)
		r.With(read).Get("/", h.listInstances)
		r.With(read).Get("/{id}", h.getInstance)
		r.With(read).Get("/{id}/paths", h.listInstancePaths)
		r.With(write).Put("/{id}", h.updateInstance)
		r.With(write).Delete("/{id}", h.deleteInstance)
	})
	r.Route("/paths", func(r chi.Router) {
		r.With(write).Post("/", h.createPath)
		r.With(read).Get("/", h.listPaths)
		r.With(h.authz.RequireResource(policy.ObjectStorage, policy.ActionRead, "id")).Get("/{id}", h.getPath)
		r.With(h.authz.RequireResource(policy.ObjectStorage, policy.ActionWrite, "id")).Delete("/{id}", h.deletePath)
	})
}

type instanceResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Config      string    `json:"config,omitempty"`
	IsActive    bool      `json:"isActive"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type pathResponse struct {
	ID           int64     `json:"id"`
	Path         string    `json:"path"`
	Description  string    `json:"description"`
	IsActive     bool      `json:"isActive"`
	InstanceID   int64     `json:"instanceId"`
	InstanceName string    `json:"instanceName"`
	InstanceType string    `json:"instanceType"`
	CreatedBy    string    `json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func toInstanceResponse(v InstanceView) instanceResponse {
	return instanceResponse{
		ID:          v.ID,
		Name:        v.Name,
		Type:        v.Type,
		Description: v.Description,
		Config:      v.Config,
		IsActive:    v.IsActive,
		CreatedBy:   v.CreatorUsername,
		CreatedAt:   v.CreatedAt,
		UpdatedAt:   v.UpdatedAt,
	}
}

func toPathResponse(v PathView) pathResponse {
	return pathResponse{
		ID:           v.ID,
		Path:         v.Path.Path,
		Description:  v.Description,
		IsActive:     v.IsActive,
		InstanceID:   v.InstanceID,
		InstanceName: v.InstanceName,
		InstanceType: v.InstanceType,
		CreatedBy:    v.CreatorUsername,
		CreatedAt:    v.CreatedAt,
		UpdatedAt:    v.UpdatedAt,
	}
}

type createInstanceRequest struct {
	Name        string `json:"name" validate:"required"`
	Type        string `json:"type" validate:"required"`
	Description string `json:"description"`
	Config      string `json:"config"`
}

func (h *Handler) createInstance(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	var req createInstanceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	view, err := h.service.CreateInstance(r.Context(), req.Name, req.Type, req.Description, req.Config, identity.UserID)
	if err != nil {
		h.logger.Error("create instance", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toInstanceResponse(*view))
}

func (h *Handler) listInstances(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.ListInstances(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]instanceResponse, 0, len(views))
	for _, v := range views {
		out = append(out, toInstanceResponse(v))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getInstance(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.GetInstance(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInstanceResponse(*view))
}

type updateInstanceRequest struct {
	Name        *string `json:"name"`
	Type        *string `json:"type"`
	Description *string `json:"description"`
	Config      *string `json:"config"`
	IsActive    *bool   `json:"isActive"`
}

func (h *Handler) updateInstance(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateInstanceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	view, err := h.service.UpdateInstance(r.Context(), id, InstanceUpdate{
		Name:        req.Name,
		Type:        req.Type,
		Description: req.Description,
		Config:      req.Config,
		IsActive:    req.IsActive,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInstanceResponse(*view))
}

func (h *Handler) deleteInstance(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteInstance(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listInstancePaths(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views, err := h.service.ListPathsForInstance(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]pathResponse, 0, len(views))
	for _, v := range views {
		out = append(out, toPathResponse(v))
	}
	httpx.JSON(w, http.StatusOK, out)
}

type createPathRequest struct {
	Path        string `json:"path" validate:"required"`
	Description string `json:"description"`
	InstanceID  int64  `json:"instanceId" validate:"required,gt=0"`
}

func (h *Handler) createPath(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	var req createPathRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	view, err := h.service.CreatePath(r.Context(), req.Path, req.Description, req.InstanceID, identity.UserID)
	if err != nil {
		h.logger.Error("create path", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPathResponse(*view))
}

func (h *Handler) listPaths(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.ListPaths(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]pathResponse, 0, len(views))
	for _, v := range views {
		out = append(out, toPathResponse(v))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getPath(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.GetPath(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPathResponse(*view))
}

func (h *Handler) deletePath(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeletePath(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func urlID(r *http.Request, param string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil {
		return 0, shared.ErrValidation
	}
	return id, nil
}
