package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stowagehq/stowage/internal/shared"
)

// Repository provides PostgreSQL backed persistence for user accounts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userSelect = `
SELECT u.id, u.username, u.email, u.password_hash, u.is_active, u.created_at, u.updated_at,
       COALESCE(array_agg(ra.role ORDER BY ra.role) FILTER (WHERE ra.role IS NOT NULL), '{}')
FROM users u
LEFT JOIN role_assignments ra ON ra.username = u.username`

// List returns all users with their role sets.
func (r *Repository) List(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, userSelect+` GROUP BY u.id ORDER BY u.id`)
	if err != nil {
		return nil, storeErr("list", err)
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, user)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list", err)
	}
	return out, nil
}

// Get fetches a user by ID.
func (r *Repository) Get(ctx context.Context, id int64) (*User, error) {
	return r.getOne(ctx, userSelect+` WHERE u.id = $1 GROUP BY u.id`, id)
}

// GetByUsername fetches a user by username.
func (r *Repository) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.getOne(ctx, userSelect+` WHERE u.username = $1 GROUP BY u.id`, username)
}

func (r *Repository) getOne(ctx context.Context, query string, arg interface{}) (*User, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, storeErr("get", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, storeErr("get", err)
		}
		return nil, shared.ErrNotFound
	}
	user, err := scanUser(rows)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Create inserts a new account. Duplicate usernames or emails surface as
// shared.ErrConflict via the unique constraints.
func (r *Repository) Create(ctx context.Context, username, email, passwordHash string) (*User, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (username, email, password_hash, is_active) VALUES ($1, $2, $3, TRUE) RETURNING id`,
		username, email, passwordHash).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: username or email already taken", shared.ErrConflict)
		}
		return nil, storeErr("create", err)
	}
	return r.Get(ctx, id)
}

// UpdateProfile applies the non-nil fields to the account row.
func (r *Repository) UpdateProfile(ctx context.Context, id int64, email, passwordHash *string, isActive *bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET
			email = COALESCE($2, email),
			password_hash = COALESCE($3, password_hash),
			is_active = COALESCE($4, is_active),
			updated_at = NOW()
		 WHERE id = $1`,
		id, email, passwordHash, isActive)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: email already taken", shared.ErrConflict)
		}
		return storeErr("update", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes the account row.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return storeErr("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// MissingUsers returns the subset of ids with no matching account. Feeds
// the grant manager's batch existence check.
func (r *Repository) MissingUsers(ctx context.Context, ids []int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, storeErr("missing users", err)
	}
	defer rows.Close()
	found := make(map[int64]struct{}, len(ids))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr("missing users", err)
		}
		found[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("missing users", err)
	}
	var missing []int64
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func scanUser(rows pgx.Rows) (User, error) {
	var user User
	if err := rows.Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.IsActive, &user.CreatedAt, &user.UpdatedAt, &user.Roles,
	); err != nil {
		return User{}, storeErr("scan", err)
	}
	return user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func storeErr(op string, err error) error {
	return fmt.Errorf("users: %s: %w: %v", op, shared.ErrStoreUnavailable, err)
}
