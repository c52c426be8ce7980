package app

import (
	"net/http"

	"log/slog"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/stowagehq/stowage/internal/audit"
	"github.com/stowagehq/stowage/internal/auth"
	"github.com/stowagehq/stowage/internal/grants"
	"github.com/stowagehq/stowage/internal/observability"
	"github.com/stowagehq/stowage/internal/policy"
	"github.com/stowagehq/stowage/internal/storage"
	"github.com/stowagehq/stowage/internal/users"
	"github.com/stowagehq/stowage/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Identity       func(http.Handler) http.Handler
	AuthHandler    *auth.Handler
	UsersHandler   *users.Handler
	StorageHandler *storage.Handler
	GrantsHandler  *grants.Handler
	PolicyHandler  *policy.Handler
	AuditHandler   *audit.Handler
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with stowage defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:   params.Logger,
		Config:   params.Config,
		Identity: params.Identity,
		Metrics:  params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	if params.UsersHandler != nil {
		r.Route("/users", params.UsersHandler.MountRoutes)
	}
	if params.StorageHandler != nil || params.GrantsHandler != nil {
		r.Route("/storage", func(r chi.Router) {
			if params.StorageHandler != nil {
				params.StorageHandler.MountRoutes(r)
			}
			if params.GrantsHandler != nil {
				params.GrantsHandler.MountRoutes(r)
			}
		})
	}
	if params.PolicyHandler != nil {
		r.Route("/policy", params.PolicyHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		r.Route("/audit", params.AuditHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
