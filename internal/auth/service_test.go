package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/stowagehq/stowage/internal/policy"
	"github.com/stowagehq/stowage/internal/shared"
	"github.com/stowagehq/stowage/internal/users"
)

type memoryDirectory struct {
	byUsername map[string]*users.User
	nextID     int64
}

func newMemoryDirectory() *memoryDirectory {
	return &memoryDirectory{byUsername: make(map[string]*users.User)}
}

func (d *memoryDirectory) GetByUsername(_ context.Context, username string) (*users.User, error) {
	if user, ok := d.byUsername[username]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, shared.ErrNotFound
}

func (d *memoryDirectory) Create(_ context.Context, username, email, passwordHash string) (*users.User, error) {
	if _, ok := d.byUsername[username]; ok {
		return nil, shared.ErrConflict
	}
	d.nextID++
	user := &users.User{ID: d.nextID, Username: username, Email: email, PasswordHash: passwordHash, IsActive: true}
	d.byUsername[username] = user
	copied := *user
	return &copied, nil
}

type assignmentRecorder struct {
	assigned map[string][]string
}

func (r *assignmentRecorder) AddRoleAssignment(_ context.Context, username, role string) error {
	if r.assigned == nil {
		r.assigned = make(map[string][]string)
	}
	r.assigned[username] = append(r.assigned[username], role)
	return nil
}

func TestRegisterDefaultsToUserRole(t *testing.T) {
	directory := newMemoryDirectory()
	assignments := &assignmentRecorder{}
	svc := NewService(directory, assignments)

	user, err := svc.Register(context.Background(), "alice", "alice@example.com", "s3cret-pass", nil)
	require.NoError(t, err)
	require.Equal(t, []string{policy.RoleUser}, user.Roles)
	require.Equal(t, []string{policy.RoleUser}, assignments.assigned["alice"])
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(directory.byUsername["alice"].PasswordHash), []byte("s3cret-pass")))
}

func TestRegisterExplicitRoles(t *testing.T) {
	directory := newMemoryDirectory()
	assignments := &assignmentRecorder{}
	svc := NewService(directory, assignments)

	user, err := svc.Register(context.Background(), "root", "root@example.com", "s3cret-pass", []string{policy.RoleAdmin})
	require.NoError(t, err)
	require.Equal(t, []string{policy.RoleAdmin}, user.Roles)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	directory := newMemoryDirectory()
	svc := NewService(directory, &assignmentRecorder{})

	_, err := svc.Register(context.Background(), "alice", "alice@example.com", "s3cret-pass", nil)
	require.NoError(t, err)
	_, err = svc.Register(context.Background(), "alice", "other@example.com", "s3cret-pass", nil)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestAuthenticate(t *testing.T) {
	directory := newMemoryDirectory()
	svc := NewService(directory, &assignmentRecorder{})

	_, err := svc.Register(context.Background(), "alice", "alice@example.com", "s3cret-pass", nil)
	require.NoError(t, err)

	user, err := svc.Authenticate(context.Background(), "alice", "s3cret-pass")
	require.NoError(t, err)
	require.Equal(t, "alice", user.Username)

	_, err = svc.Authenticate(context.Background(), "alice", "wrong")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	// Unknown user reads the same as a bad password.
	_, err = svc.Authenticate(context.Background(), "nobody", "s3cret-pass")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestAuthenticateInactiveAccount(t *testing.T) {
	directory := newMemoryDirectory()
	svc := NewService(directory, &assignmentRecorder{})

	_, err := svc.Register(context.Background(), "alice", "alice@example.com", "s3cret-pass", nil)
	require.NoError(t, err)
	directory.byUsername["alice"].IsActive = false

	_, err = svc.Authenticate(context.Background(), "alice", "s3cret-pass")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}
