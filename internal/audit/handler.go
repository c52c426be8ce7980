package audit

import (
	"context"
	"net/http"
	"strconv"

	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/stowagehq/stowage/internal/platform/httpx"
	"github.com/stowagehq/stowage/internal/policy"
)

// Authorizer gates the decision log surface. Declared locally to avoid
// a cycle with the authz package.
type Authorizer interface {
	Require(category, action string) func(http.Handler) http.Handler
}

// DecisionReader is the persistence slice the handler needs.
type DecisionReader interface {
	Recent(ctx context.Context, limit int) ([]Decision, error)
}

// Handler exposes the decision log over HTTP.
type Handler struct {
	logger *slog.Logger
	reader DecisionReader
	authz  Authorizer
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, reader DecisionReader, az Authorizer) *Handler {
	return &Handler{logger: logger, reader: reader, authz: az}
}

// MountRoutes registers decision log routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.authz.Require(policy.ObjectRoles, policy.ActionRead)).Get("/decisions", h.listDecisions)
}

func (h *Handler) listDecisions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	decisions, err := h.reader.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("list decisions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, decisions)
}
