package grants

import (
	"fmt"
	"time"

	"github.com/stowagehq/stowage/internal/shared"
)

// Level is the permission level of a grant. The enumeration is ordered:
// write subsumes read.
type Level string

const (
	LevelRead  Level = "read"
	LevelWrite Level = "write"
)

// ParseLevel validates a raw level value.
func ParseLevel(raw string) (Level, error) {
	switch Level(raw) {
	case LevelRead, LevelWrite:
		return Level(raw), nil
	default:
		return "", fmt.Errorf("%w: unknown permission level %q", shared.ErrValidation, raw)
	}
}

// Satisfies reports whether a stored level meets the required one.
// A stored write satisfies both read and write; a stored read satisfies
// read only. This is the single ordering rule in the whole evaluation.
func (l Level) Satisfies(required Level) bool {
	if required == LevelWrite {
		return l == LevelWrite
	}
	return l == LevelRead || l == LevelWrite
}

// Grant is a discretionary per-path permission record. At most one grant
// exists per (user, path) pair.
type Grant struct {
	UserID    int64
	PathID    int64
	Level     Level
	GrantedAt time.Time
}

// GrantView is the denormalized read model for grant listings: the grant
// joined with user display fields, the path, and the owning storage
// instance metadata.
type GrantView struct {
	UserID       int64     `json:"userId"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PathID       int64     `json:"pathId"`
	Path         string    `json:"path"`
	PathActive   bool      `json:"pathActive"`
	InstanceID   int64     `json:"instanceId"`
	InstanceName string    `json:"instanceName"`
	InstanceType string    `json:"instanceType"`
	Level        Level     `json:"level"`
	GrantedAt    time.Time `json:"grantedAt"`
}
