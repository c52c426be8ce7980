// Package authz combines the coarse RBAC gate with the fine-grained
// grant gate into a single access decision.
package authz

import (
	"context"
	"time"

	"github.com/stowagehq/stowage/internal/grants"
	"github.com/stowagehq/stowage/internal/policy"
	"github.com/stowagehq/stowage/internal/shared"
)

// Decision is the outcome of an authorization check. Deny is a normal
// result, not a fault; store failures surface as errors instead.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionDeny  Decision = "deny"
)

// Enforcer is the coarse category-level gate.
type Enforcer interface {
	Enforce(ctx context.Context, subject, object, action string) (bool, error)
}

// RoleChecker answers role membership questions.
type RoleChecker interface {
	HasRole(ctx context.Context, username, role string) (bool, error)
}

// LevelChecker is the per-resource grant gate.
type LevelChecker interface {
	CheckLevel(ctx context.Context, userID, pathID int64, required grants.Level) (bool, error)
}

// Event describes one completed decision, handed to recorders after the
// outcome is fixed.
type Event struct {
	Username   string
	Category   string
	Action     string
	ResourceID int64
	Decision   Decision
	DecidedAt  time.Time
}

// Recorder observes decisions. Implementations must never influence the
// outcome; recording failures are swallowed by the implementation.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

// Request is one (subject, category, action, optional resource) triple
// to authorize. ResourceID zero means the request is not scoped to a
// specific resource.
type Request struct {
	Subject    shared.Identity
	Category   string
	Action     string
	ResourceID int64
}

// Authorizer is the single entry point for access decisions. It is
// stateless across calls; concurrent use is safe.
type Authorizer struct {
	enforcer Enforcer
	roles    RoleChecker
	levels   LevelChecker
	recorder Recorder
	now      func() time.Time
}

// NewAuthorizer constructs an Authorizer. The recorder may be nil.
func NewAuthorizer(enforcer Enforcer, roles RoleChecker, levels LevelChecker, recorder Recorder) *Authorizer {
	return &Authorizer{enforcer: enforcer, roles: roles, levels: levels, recorder: recorder, now: time.Now}
}

// Authorize runs the two-gate decision:
//
//  1. Resolve the effective category: a user reading or writing their own
//     record is matched against own_user instead of users, so a narrower
//     self-service rule can apply.
//  2. RBAC gate. A miss is a hard deny; the grant gate never overrides it.
//  3. Grant gate, only for resource-scoped storage requests by subjects
//     without the admin blanket pass.
//
// Store errors propagate as errors, never as a deny.
func (a *Authorizer) Authorize(ctx context.Context, req Request) (Decision, error) {
	effective := req.Category
	if req.Category == policy.ObjectUsers && req.ResourceID != 0 && req.ResourceID == req.Subject.UserID {
		effective = policy.ObjectOwnUser
	}

	ok, err := a.enforcer.Enforce(ctx, req.Subject.Username, effective, req.Action)
	if err != nil {
		return "", err
	}
	if !ok {
		return a.record(ctx, req, DecisionDeny), nil
	}

	if req.Category == policy.ObjectStorage && req.ResourceID != 0 {
		admin, err := a.roles.HasRole(ctx, req.Subject.Username, policy.RoleAdmin)
		if err != nil {
			return "", err
		}
		if !admin {
			ok, err := a.levels.CheckLevel(ctx, req.Subject.UserID, req.ResourceID, requiredLevelFor(req.Action))
			if err != nil {
				return "", err
			}
			if !ok {
				return a.record(ctx, req, DecisionDeny), nil
			}
		}
	}

	return a.record(ctx, req, DecisionAllow), nil
}

func (a *Authorizer) record(ctx context.Context, req Request, decision Decision) Decision {
	if a.recorder != nil {
		a.recorder.Record(ctx, Event{
			Username:   req.Subject.Username,
			Category:   req.Category,
			Action:     req.Action,
			ResourceID: req.ResourceID,
			Decision:   decision,
			DecidedAt:  a.now(),
		})
	}
	return decision
}

// requiredLevelFor maps a coarse action onto the grant level it needs:
// writes need a write grant, everything else reads.
func requiredLevelFor(action string) grants.Level {
	if action == policy.ActionWrite {
		return grants.LevelWrite
	}
	return grants.LevelRead
}

// MultiRecorder fans one event out to several recorders.
type MultiRecorder []Recorder

// Record implements Recorder.
func (m MultiRecorder) Record(ctx context.Context, event Event) {
	for _, r := range m {
		if r != nil {
			r.Record(ctx, event)
		}
	}
}
