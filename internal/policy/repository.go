package policy

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stowagehq/stowage/internal/shared"
)

// Store is the persistence contract for rules and role assignments.
// Mutations are idempotent: adding an existing tuple and removing an
// absent one both succeed.
type Store interface {
	AddRule(ctx context.Context, rule Rule) error
	RemoveRule(ctx context.Context, rule Rule) error
	HasRule(ctx context.Context, rule Rule) (bool, error)
	ListRules(ctx context.Context, subject string) ([]Rule, error)
	AddRoleAssignment(ctx context.Context, username, role string) error
	RemoveRoleAssignment(ctx context.Context, username, role string) error
	RemoveAllRoleAssignments(ctx context.Context, username string) error
	RolesOf(ctx context.Context, username string) ([]string, error)
	UsersOf(ctx context.Context, role string) ([]string, error)
	HasRole(ctx context.Context, username, role string) (bool, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository provides PostgreSQL backed persistence for the policy
// relations.
type Repository struct {
	db dbtx
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

var _ Store = (*Repository)(nil)

// AddRule inserts a permission rule. Duplicate tuples are a no-op.
func (r *Repository) AddRule(ctx context.Context, rule Rule) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO policy_rules (subject, object, action) VALUES ($1, $2, $3)
		 ON CONFLICT (subject, object, action) DO NOTHING`,
		rule.Subject, rule.Object, rule.Action)
	if err != nil {
		return storeErr("add rule", err)
	}
	return nil
}

// RemoveRule deletes a permission rule. Removing an absent tuple succeeds.
func (r *Repository) RemoveRule(ctx context.Context, rule Rule) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM policy_rules WHERE subject = $1 AND object = $2 AND action = $3`,
		rule.Subject, rule.Object, rule.Action)
	if err != nil {
		return storeErr("remove rule", err)
	}
	return nil
}

// HasRule reports whether the exact tuple exists. Matching is
// case-sensitive string equality, no wildcards.
func (r *Repository) HasRule(ctx context.Context, rule Rule) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM policy_rules WHERE subject = $1 AND object = $2 AND action = $3)`,
		rule.Subject, rule.Object, rule.Action).Scan(&exists)
	if err != nil {
		return false, storeErr("has rule", err)
	}
	return exists, nil
}

// ListRules returns all rules for a subject, or every rule when subject
// is empty.
func (r *Repository) ListRules(ctx context.Context, subject string) ([]Rule, error) {
	query := `SELECT subject, object, action FROM policy_rules ORDER BY subject, object, action`
	args := []interface{}{}
	if subject != "" {
		query = `SELECT subject, object, action FROM policy_rules WHERE subject = $1 ORDER BY object, action`
		args = append(args, subject)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list rules", err)
	}
	defer rows.Close()
	var rules []Rule
	for rows.Next() {
		var rule Rule
		if err := rows.Scan(&rule.Subject, &rule.Object, &rule.Action); err != nil {
			return nil, storeErr("scan rule", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list rules", err)
	}
	return rules, nil
}

// AddRoleAssignment links a user to a role. Duplicates are a no-op.
func (r *Repository) AddRoleAssignment(ctx context.Context, username, role string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO role_assignments (username, role) VALUES ($1, $2)
		 ON CONFLICT (username, role) DO NOTHING`,
		username, role)
	if err != nil {
		return storeErr("add role assignment", err)
	}
	return nil
}

// RemoveRoleAssignment unlinks a user from a role.
func (r *Repository) RemoveRoleAssignment(ctx context.Context, username, role string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM role_assignments WHERE username = $1 AND role = $2`,
		username, role)
	if err != nil {
		return storeErr("remove role assignment", err)
	}
	return nil
}

// RemoveAllRoleAssignments clears every role held by the user.
func (r *Repository) RemoveAllRoleAssignments(ctx context.Context, username string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM role_assignments WHERE username = $1`, username)
	if err != nil {
		return storeErr("remove all role assignments", err)
	}
	return nil
}

// RolesOf returns the roles assigned to a user.
func (r *Repository) RolesOf(ctx context.Context, username string) ([]string, error) {
	return r.scanStrings(ctx,
		`SELECT role FROM role_assignments WHERE username = $1 ORDER BY role`, username)
}

// UsersOf returns the users holding a role.
func (r *Repository) UsersOf(ctx context.Context, role string) ([]string, error) {
	return r.scanStrings(ctx,
		`SELECT username FROM role_assignments WHERE role = $1 ORDER BY username`, role)
}

// HasRole reports whether the user holds the role.
func (r *Repository) HasRole(ctx context.Context, username, role string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM role_assignments WHERE username = $1 AND role = $2)`,
		username, role).Scan(&exists)
	if err != nil {
		return false, storeErr("has role", err)
	}
	return exists, nil
}

func (r *Repository) scanStrings(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr("query", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, storeErr("scan", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("query", err)
	}
	return out, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("policy: %s: %w: %v", op, shared.ErrStoreUnavailable, err)
}
