package auth

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/stowagehq/stowage/internal/policy"
	"github.com/stowagehq/stowage/internal/shared"
	"github.com/stowagehq/stowage/internal/users"
)

// RoleAssigner is the slice of the policy store registration needs.
type RoleAssigner interface {
	AddRoleAssignment(ctx context.Context, username, role string) error
}

// Service wraps authentication business rules.
type Service struct {
	directory UserDirectory
	policies  RoleAssigner
}

// NewService constructs a new Service.
func NewService(directory UserDirectory, policies RoleAssigner) *Service {
	return &Service{directory: directory, policies: policies}
}

// Register creates an account. When the request names no roles the
// default role set ["user"] applies; the default is explicit here, never
// inferred downstream.
func (s *Service) Register(ctx context.Context, username, email, password string, roles []string) (*users.User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user, err := s.directory.Create(ctx, username, email, string(hashed))
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		roles = []string{policy.RoleUser}
	}
	for _, role := range roles {
		if err := s.policies.AddRoleAssignment(ctx, user.Username, role); err != nil {
			return nil, err
		}
	}
	user.Roles = roles
	return user, nil
}

// Authenticate validates username/password credentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*users.User, error) {
	user, err := s.directory.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}
