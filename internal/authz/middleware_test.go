package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/stowagehq/stowage/internal/grants"
	"github.com/stowagehq/stowage/internal/policy"
	"github.com/stowagehq/stowage/internal/shared"
)

func newTestRouter(az *Authorizer) chi.Router {
	guard := Middleware{Authorizer: az}
	r := chi.NewRouter()
	r.With(guard.Require(policy.ObjectStorage, policy.ActionRead)).Get("/storage", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.With(guard.RequireResource(policy.ObjectStorage, policy.ActionRead, "id")).Get("/storage/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func asIdentity(req *http.Request, id shared.Identity) *http.Request {
	return req.WithContext(shared.ContextWithIdentity(req.Context(), &id))
}

func TestMiddlewareRejectsAnonymous(t *testing.T) {
	router := newTestRouter(NewAuthorizer(&stubEnforcer{}, stubRoles{}, &stubLevels{}, nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/storage", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMiddlewareForbidsOnDeny(t *testing.T) {
	router := newTestRouter(NewAuthorizer(&stubEnforcer{allowed: map[string]bool{}}, stubRoles{}, &stubLevels{}, nil))

	rr := httptest.NewRecorder()
	req := asIdentity(httptest.NewRequest(http.MethodGet, "/storage", nil), alice())
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestMiddlewareAllows(t *testing.T) {
	enforcer := &stubEnforcer{allowed: map[string]bool{"alice/storage/read": true}}
	router := newTestRouter(NewAuthorizer(enforcer, stubRoles{}, &stubLevels{}, nil))

	rr := httptest.NewRecorder()
	req := asIdentity(httptest.NewRequest(http.MethodGet, "/storage", nil), alice())
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestMiddlewareResourceParam(t *testing.T) {
	enforcer := &stubEnforcer{allowed: map[string]bool{"alice/storage/read": true}}
	levels := &stubLevels{levels: map[int64]grants.Level{42: grants.LevelRead}}
	router := newTestRouter(NewAuthorizer(enforcer, stubRoles{}, levels, nil))

	rr := httptest.NewRecorder()
	req := asIdentity(httptest.NewRequest(http.MethodGet, "/storage/42", nil), alice())
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	// No grant on path 43.
	rr = httptest.NewRecorder()
	req = asIdentity(httptest.NewRequest(http.MethodGet, "/storage/43", nil), alice())
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)

	// Non-numeric id is a validation error.
	rr = httptest.NewRecorder()
	req = asIdentity(httptest.NewRequest(http.MethodGet, "/storage/abc", nil), alice())
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
