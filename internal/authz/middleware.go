package authz

import (
	"net/http"
	"strconv"

	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/stowagehq/stowage/internal/platform/httpx"
	"github.com/stowagehq/stowage/internal/shared"
)

// Middleware wires the Authorizer into HTTP handlers.
type Middleware struct {
	Authorizer *Authorizer
	Logger     *slog.Logger
}

// Require gates a route on a category-level check with no resource
// scoping.
func (m Middleware) Require(category, action string) func(http.Handler) http.Handler {
	return m.guard(category, action, "")
}

// RequireResource gates a route on a resource-scoped check, reading the
// resource id from the named URL parameter.
func (m Middleware) RequireResource(category, action, param string) func(http.Handler) http.Handler {
	return m.guard(category, action, param)
}

func (m Middleware) guard(category, action, param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := shared.IdentityFromContext(r.Context())
			if identity == nil {
				httpx.RespondError(w, shared.ErrUnauthorized)
				return
			}
			var resourceID int64
			if param != "" {
				raw := chi.URLParam(r, param)
				id, err := strconv.ParseInt(raw, 10, 64)
				if err != nil {
					httpx.RespondError(w, shared.ErrValidation)
					return
				}
				resourceID = id
			}
			decision, err := m.Authorizer.Authorize(r.Context(), Request{
				Subject:    *identity,
				Category:   category,
				Action:     action,
				ResourceID: resourceID,
			})
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("authorize", slog.String("category", category), slog.String("action", action), slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			if decision != DecisionAllow {
				httpx.RespondError(w, shared.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
