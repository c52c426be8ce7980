package policy

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Enforcer evaluates subject/object/action questions against the Store.
// It knows nothing about the own_user rewrite; that substitution happens
// in the caller before the question reaches here.
type Enforcer struct {
	store Store
	group singleflight.Group
}

// NewEnforcer constructs an Enforcer over the given store.
func NewEnforcer(store Store) *Enforcer {
	return &Enforcer{store: store}
}

// Enforce returns true iff the subject, or any role assigned to it, has
// an exact rule for (object, action). Store errors propagate; they are
// never converted into a deny.
func (e *Enforcer) Enforce(ctx context.Context, subject, object, action string) (bool, error) {
	if subject == "" || object == "" || action == "" {
		return false, nil
	}
	ok, err := e.store.HasRule(ctx, Rule{Subject: subject, Object: object, Action: action})
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	roles, err := e.rolesOf(ctx, subject)
	if err != nil {
		return false, err
	}
	for _, role := range roles {
		ok, err := e.store.HasRule(ctx, Rule{Subject: role, Object: object, Action: action})
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// rolesOf coalesces concurrent role lookups for the same subject.
func (e *Enforcer) rolesOf(ctx context.Context, subject string) ([]string, error) {
	resultChan := e.group.DoChan(subject, func() (interface{}, error) {
		return e.store.RolesOf(ctx, subject)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		roles, _ := res.Val.([]string)
		return roles, nil
	}
}
