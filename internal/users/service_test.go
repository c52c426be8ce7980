package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/stowagehq/stowage/internal/shared"
)

type memoryStore struct {
	users map[int64]User
	roles map[string][]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{users: make(map[int64]User), roles: make(map[string][]string)}
}

func (s *memoryStore) add(user User) {
	s.users[user.ID] = user
}

func (s *memoryStore) List(_ context.Context) ([]User, error) {
	out := make([]User, 0, len(s.users))
	for _, user := range s.users {
		user.Roles = append([]string(nil), s.roles[user.Username]...)
		out = append(out, user)
	}
	return out, nil
}

func (s *memoryStore) Get(_ context.Context, id int64) (*User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	user.Roles = append([]string(nil), s.roles[user.Username]...)
	return &user, nil
}

func (s *memoryStore) UpdateProfile(_ context.Context, id int64, email, passwordHash *string, isActive *bool) error {
	user, ok := s.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	if email != nil {
		user.Email = *email
	}
	if passwordHash != nil {
		user.PasswordHash = *passwordHash
	}
	if isActive != nil {
		user.IsActive = *isActive
	}
	s.users[id] = user
	return nil
}

func (s *memoryStore) Delete(_ context.Context, id int64) error {
	if _, ok := s.users[id]; !ok {
		return shared.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

// policyStub tracks role assignments the way the policy store does, so
// the full-replace semantics of SetRoles are observable.
type policyStub struct {
	store *memoryStore
}

func (p policyStub) AddRoleAssignment(_ context.Context, username, role string) error {
	p.store.roles[username] = append(p.store.roles[username], role)
	return nil
}

func (p policyStub) RemoveAllRoleAssignments(_ context.Context, username string) error {
	delete(p.store.roles, username)
	return nil
}

type grantsStub struct {
	removed []int64
}

func (g *grantsStub) RemoveAllForUser(_ context.Context, userID int64) error {
	g.removed = append(g.removed, userID)
	return nil
}

func fixture() (*memoryStore, *grantsStub, *Service) {
	store := newMemoryStore()
	store.add(User{ID: 1, Username: "alice", Email: "alice@example.com", IsActive: true, CreatedAt: time.Now()})
	store.roles["alice"] = []string{"user"}
	grants := &grantsStub{}
	return store, grants, NewService(store, policyStub{store}, grants)
}

func TestSetRolesReplacesEntireSet(t *testing.T) {
	store, _, svc := fixture()

	user, err := svc.SetRoles(context.Background(), 1, []string{"admin", " admin ", "auditor"})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"admin", "auditor"}, user.Roles)
	require.ElementsMatch(t, []string{"admin", "auditor"}, store.roles["alice"], "old role must be gone")
}

func TestSetRolesEmptyListRejected(t *testing.T) {
	store, _, svc := fixture()

	_, err := svc.SetRoles(context.Background(), 1, []string{" ", ""})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Equal(t, []string{"user"}, store.roles["alice"], "failed call must not touch assignments")
}

func TestSetRolesUnknownUser(t *testing.T) {
	_, _, svc := fixture()
	_, err := svc.SetRoles(context.Background(), 99, []string{"admin"})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUpdateRehashesPassword(t *testing.T) {
	store, _, svc := fixture()

	password := "correct horse battery staple"
	user, err := svc.Update(context.Background(), 1, UpdateParams{Password: &password})
	require.NoError(t, err)
	require.NotEqual(t, password, store.users[1].PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(store.users[1].PasswordHash), []byte(password)))
	require.Equal(t, "alice", user.Username)
}

func TestDeleteCleansUpRolesAndGrants(t *testing.T) {
	store, grants, svc := fixture()

	require.NoError(t, svc.Delete(context.Background(), 1))
	require.Empty(t, store.users)
	require.Empty(t, store.roles["alice"])
	require.Equal(t, []int64{1}, grants.removed)
}
