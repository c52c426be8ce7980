package auth

import (
	"context"

	"github.com/stowagehq/stowage/internal/users"
)

// UserDirectory is the slice of user persistence the auth flows need.
type UserDirectory interface {
	GetByUsername(ctx context.Context, username string) (*users.User, error)
	Create(ctx context.Context, username, email, passwordHash string) (*users.User, error)
}
