package users

import "time"

// User represents a user account. Roles are derived from the policy
// store's role assignments, never stored on the row itself.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	IsActive     bool
	Roles        []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
