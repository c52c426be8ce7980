package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"log/slog"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/stowagehq/stowage/internal/shared"
	"github.com/stowagehq/stowage/internal/users"
)

// testDirectory layers role assignments over the memory directory, the
// way the SQL repository joins them in.
type testDirectory struct {
	*memoryDirectory
	roles map[string][]string
}

func (d *testDirectory) GetByUsername(ctx context.Context, username string) (*users.User, error) {
	user, err := d.memoryDirectory.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	user.Roles = append([]string(nil), d.roles[username]...)
	return user, nil
}

func (d *testDirectory) AddRoleAssignment(_ context.Context, username, role string) error {
	d.roles[username] = append(d.roles[username], role)
	return nil
}

func newTestServer(t *testing.T) (chi.Router, *Service) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := shared.NewTokenManager(client, "stowage_token", time.Hour)
	directory := &testDirectory{memoryDirectory: newMemoryDirectory(), roles: make(map[string][]string)}
	service := NewService(directory, directory)
	handler := NewHandler(logger, service, tokens)

	r := chi.NewRouter()
	r.Use(Middleware(tokens, logger))
	r.Route("/auth", handler.MountRoutes)
	return r, service
}

func postJSON(t *testing.T, router http.Handler, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestRegisterLoginMeFlow(t *testing.T) {
	router, _ := newTestServer(t)

	rr := postJSON(t, router, "/auth/register", map[string]any{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "s3cret-pass",
	}, nil)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = postJSON(t, router, "/auth/login", map[string]any{
		"username": "alice",
		"password": "s3cret-pass",
	}, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var login struct {
		Token string `json:"token"`
		User  struct {
			Username string   `json:"username"`
			Roles    []string `json:"roles"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &login))
	require.NotEmpty(t, login.Token)
	require.Equal(t, "alice", login.User.Username)
	require.Equal(t, []string{"user"}, login.User.Roles)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	meRR := httptest.NewRecorder()
	router.ServeHTTP(meRR, req)
	require.Equal(t, http.StatusOK, meRR.Code)

	var me struct {
		Username string `json:"username"`
	}
	require.NoError(t, json.Unmarshal(meRR.Body.Bytes(), &me))
	require.Equal(t, "alice", me.Username)
}

func TestLoginBadCredentials(t *testing.T) {
	router, _ := newTestServer(t)

	rr := postJSON(t, router, "/auth/register", map[string]any{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "s3cret-pass",
	}, nil)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = postJSON(t, router, "/auth/login", map[string]any{
		"username": "alice",
		"password": "wrong-pass",
	}, nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMeWithoutTokenUnauthorized(t *testing.T) {
	router, _ := newTestServer(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	router, _ := newTestServer(t)

	rr := postJSON(t, router, "/auth/register", map[string]any{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "s3cret-pass",
	}, nil)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = postJSON(t, router, "/auth/login", map[string]any{
		"username": "alice",
		"password": "s3cret-pass",
	}, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &login))

	rr = postJSON(t, router, "/auth/logout", nil, map[string]string{"Authorization": "Bearer " + login.Token})
	require.Equal(t, http.StatusNoContent, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	meRR := httptest.NewRecorder()
	router.ServeHTTP(meRR, req)
	require.Equal(t, http.StatusUnauthorized, meRR.Code)
}
