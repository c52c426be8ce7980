package policy

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	rules       map[Rule]struct{}
	assignments map[string][]string
	failHasRule error
	failRolesOf error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		rules:       make(map[Rule]struct{}),
		assignments: make(map[string][]string),
	}
}

func (s *memoryStore) AddRule(_ context.Context, rule Rule) error {
	s.rules[rule] = struct{}{}
	return nil
}

func (s *memoryStore) RemoveRule(_ context.Context, rule Rule) error {
	delete(s.rules, rule)
	return nil
}

func (s *memoryStore) HasRule(_ context.Context, rule Rule) (bool, error) {
	if s.failHasRule != nil {
		return false, s.failHasRule
	}
	_, ok := s.rules[rule]
	return ok, nil
}

func (s *memoryStore) ListRules(_ context.Context, subject string) ([]Rule, error) {
	var out []Rule
	for rule := range s.rules {
		if subject == "" || rule.Subject == subject {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subject < out[j].Subject })
	return out, nil
}

func (s *memoryStore) AddRoleAssignment(_ context.Context, username, role string) error {
	for _, existing := range s.assignments[username] {
		if existing == role {
			return nil
		}
	}
	s.assignments[username] = append(s.assignments[username], role)
	return nil
}

func (s *memoryStore) RemoveRoleAssignment(_ context.Context, username, role string) error {
	roles := s.assignments[username]
	for i, existing := range roles {
		if existing == role {
			s.assignments[username] = append(roles[:i], roles[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *memoryStore) RemoveAllRoleAssignments(_ context.Context, username string) error {
	delete(s.assignments, username)
	return nil
}

func (s *memoryStore) RolesOf(_ context.Context, username string) ([]string, error) {
	if s.failRolesOf != nil {
		return nil, s.failRolesOf
	}
	return append([]string(nil), s.assignments[username]...), nil
}

func (s *memoryStore) UsersOf(_ context.Context, role string) ([]string, error) {
	var out []string
	for username, roles := range s.assignments {
		for _, existing := range roles {
			if existing == role {
				out = append(out, username)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *memoryStore) HasRole(_ context.Context, username, role string) (bool, error) {
	for _, existing := range s.assignments[username] {
		if existing == role {
			return true, nil
		}
	}
	return false, nil
}

func TestEnforceDirectRule(t *testing.T) {
	store := newMemoryStore()
	require.NoError(t, store.AddRule(context.Background(), Rule{Subject: "alice", Object: ObjectStorage, Action: ActionRead}))

	enforcer := NewEnforcer(store)
	ok, err := enforcer.Enforce(context.Background(), "alice", ObjectStorage, ActionRead)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = enforcer.Enforce(context.Background(), "alice", ObjectStorage, ActionWrite)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEnforceViaRole(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	require.NoError(t, store.AddRule(ctx, Rule{Subject: RoleAdmin, Object: ObjectUsers, Action: ActionWrite}))
	require.NoError(t, store.AddRoleAssignment(ctx, "alice", RoleAdmin))

	enforcer := NewEnforcer(store)
	ok, err := enforcer.Enforce(ctx, "alice", ObjectUsers, ActionWrite)
	require.NoError(t, err)
	require.True(t, ok)

	// bob holds no role, the admin rule must not leak to him
	ok, err = enforcer.Enforce(ctx, "bob", ObjectUsers, ActionWrite)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEnforceEmptyArgumentsDeny(t *testing.T) {
	enforcer := NewEnforcer(newMemoryStore())
	for _, args := range [][3]string{
		{"", ObjectStorage, ActionRead},
		{"alice", "", ActionRead},
		{"alice", ObjectStorage, ""},
	} {
		ok, err := enforcer.Enforce(context.Background(), args[0], args[1], args[2])
		require.NoError(t, err)
		require.False(t, ok)
	}
}

func TestEnforceStoreErrorPropagates(t *testing.T) {
	storeErr := errors.New("connection refused")

	store := newMemoryStore()
	store.failHasRule = storeErr
	enforcer := NewEnforcer(store)
	_, err := enforcer.Enforce(context.Background(), "alice", ObjectStorage, ActionRead)
	require.ErrorIs(t, err, storeErr)

	store = newMemoryStore()
	store.failRolesOf = storeErr
	enforcer = NewEnforcer(store)
	_, err = enforcer.Enforce(context.Background(), "alice", ObjectStorage, ActionRead)
	require.ErrorIs(t, err, storeErr)
}

func TestRemoveAllRoleAssignments(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	require.NoError(t, store.AddRoleAssignment(ctx, "alice", RoleAdmin))
	require.NoError(t, store.AddRoleAssignment(ctx, "alice", RoleUser))
	require.NoError(t, store.RemoveAllRoleAssignments(ctx, "alice"))

	roles, err := store.RolesOf(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, roles)
}
