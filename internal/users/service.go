package users

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/stowagehq/stowage/internal/shared"
)

// GrantRemover detaches a user's grants on account deletion.
type GrantRemover interface {
	RemoveAllForUser(ctx context.Context, userID int64) error
}

// RoleAssigner is the slice of the policy store the service needs to
// maintain role assignments.
type RoleAssigner interface {
	AddRoleAssignment(ctx context.Context, username, role string) error
	RemoveAllRoleAssignments(ctx context.Context, username string) error
}

// Store is the persistence slice the service needs.
type Store interface {
	List(ctx context.Context) ([]User, error)
	Get(ctx context.Context, id int64) (*User, error)
	UpdateProfile(ctx context.Context, id int64, email, passwordHash *string, isActive *bool) error
	Delete(ctx context.Context, id int64) error
}

// Service wraps user management business rules.
type Service struct {
	repo     Store
	policies RoleAssigner
	grants   GrantRemover
}

// NewService constructs a Service.
func NewService(repo Store, policies RoleAssigner, grants GrantRemover) *Service {
	return &Service{repo: repo, policies: policies, grants: grants}
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// Get fetches a user by ID.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.repo.Get(ctx, id)
}

// UpdateParams carries optional profile changes.
type UpdateParams struct {
	Email    *string
	Password *string
	IsActive *bool
}

// Update applies profile changes, re-hashing the password when one is
// supplied.
func (s *Service) Update(ctx context.Context, id int64, params UpdateParams) (*User, error) {
	var passwordHash *string
	if params.Password != nil {
		hashed, err := bcrypt.GenerateFromPassword([]byte(*params.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		h := string(hashed)
		passwordHash = &h
	}
	if err := s.repo.UpdateProfile(ctx, id, params.Email, passwordHash, params.IsActive); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// SetRoles replaces the user's entire role set: every existing
// assignment is removed, then the new set is added. Never additive.
func (s *Service) SetRoles(ctx context.Context, id int64, roles []string) (*User, error) {
	cleaned := make([]string, 0, len(roles))
	seen := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		cleaned = append(cleaned, role)
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("%w: at least one role required", shared.ErrValidation)
	}

	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policies.RemoveAllRoleAssignments(ctx, user.Username); err != nil {
		return nil, err
	}
	for _, role := range cleaned {
		if err := s.policies.AddRoleAssignment(ctx, user.Username, role); err != nil {
			return nil, err
		}
	}
	return s.repo.Get(ctx, id)
}

// Delete removes the account together with its role assignments and
// grants, so nothing dangles.
func (s *Service) Delete(ctx context.Context, id int64) error {
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.policies.RemoveAllRoleAssignments(ctx, user.Username); err != nil {
		return err
	}
	if err := s.grants.RemoveAllForUser(ctx, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}
