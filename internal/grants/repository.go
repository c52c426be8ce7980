package grants

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stowagehq/stowage/internal/platform/db"
	"github.com/stowagehq/stowage/internal/shared"
)

// Store is the persistence contract for grant rows. Only the Service
// writes through it.
type Store interface {
	WithTx(ctx context.Context, fn func(Store) error) error
	Find(ctx context.Context, userID, pathID int64) (*Grant, error)
	FindAllForResource(ctx context.Context, pathID int64) ([]Grant, error)
	FindAllForUser(ctx context.Context, userID int64) ([]Grant, error)
	ListViews(ctx context.Context) ([]GrantView, error)
	ListViewsForUser(ctx context.Context, userID int64) ([]GrantView, error)
	ViewsForResource(ctx context.Context, pathID int64) ([]GrantView, error)
	Insert(ctx context.Context, grant Grant) error
	Update(ctx context.Context, grant Grant) error
	DeleteOne(ctx context.Context, userID, pathID int64) (int64, error)
	DeleteMany(ctx context.Context, userIDs []int64, pathID int64) (int64, error)
	DeleteAllForResource(ctx context.Context, pathID int64) (int64, error)
	DeleteAllForUser(ctx context.Context, userID int64) (int64, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository provides PostgreSQL backed persistence for grants.
type Repository struct {
	pool *pgxpool.Pool
	db   dbtx
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, db: pool}
}

var _ Store = (*Repository)(nil)

// WithTx runs fn against a transactional copy of the repository. The
// batch grant path relies on this for all-or-nothing writes.
func (r *Repository) WithTx(ctx context.Context, fn func(Store) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&Repository{pool: r.pool, db: tx})
	})
}

// Find returns the grant for a (user, path) pair, or shared.ErrNotFound.
func (r *Repository) Find(ctx context.Context, userID, pathID int64) (*Grant, error) {
	var g Grant
	err := r.db.QueryRow(ctx,
		`SELECT user_id, path_id, level, granted_at FROM storage_grants WHERE user_id = $1 AND path_id = $2`,
		userID, pathID).Scan(&g.UserID, &g.PathID, &g.Level, &g.GrantedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, storeErr("find", err)
	}
	return &g, nil
}

// FindAllForResource returns every grant on a path.
func (r *Repository) FindAllForResource(ctx context.Context, pathID int64) ([]Grant, error) {
	return r.scanGrants(ctx,
		`SELECT user_id, path_id, level, granted_at FROM storage_grants WHERE path_id = $1 ORDER BY granted_at DESC`,
		pathID)
}

// FindAllForUser returns every grant held by a user.
func (r *Repository) FindAllForUser(ctx context.Context, userID int64) ([]Grant, error) {
	return r.scanGrants(ctx,
		`SELECT user_id, path_id, level, granted_at FROM storage_grants WHERE user_id = $1 ORDER BY granted_at DESC`,
		userID)
}

const viewSelect = `
SELECT g.user_id, u.username, u.email,
       g.path_id, p.path, p.is_active,
       i.id, i.name, i.type,
       g.level, g.granted_at
FROM storage_grants g
JOIN users u ON u.id = g.user_id
JOIN storage_paths p ON p.id = g.path_id
JOIN storage_instances i ON i.id = p.instance_id`

// ListViews returns all grants joined with user and path metadata,
// newest first.
func (r *Repository) ListViews(ctx context.Context) ([]GrantView, error) {
	return r.scanViews(ctx, viewSelect+` ORDER BY g.granted_at DESC`)
}

// ListViewsForUser returns the denormalized grants of one user, newest
// first.
func (r *Repository) ListViewsForUser(ctx context.Context, userID int64) ([]GrantView, error) {
	return r.scanViews(ctx, viewSelect+` WHERE g.user_id = $1 ORDER BY g.granted_at DESC`, userID)
}

// ViewsForResource returns the denormalized grants on one path.
func (r *Repository) ViewsForResource(ctx context.Context, pathID int64) ([]GrantView, error) {
	return r.scanViews(ctx, viewSelect+` WHERE g.path_id = $1 ORDER BY g.granted_at DESC`, pathID)
}

// Insert writes a new grant row. The UNIQUE (user_id, path_id)
// constraint is the last line of defense against concurrent duplicate
// grants; violations surface as shared.ErrConflict.
func (r *Repository) Insert(ctx context.Context, grant Grant) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO storage_grants (user_id, path_id, level, granted_at) VALUES ($1, $2, $3, $4)`,
		grant.UserID, grant.PathID, grant.Level, grant.GrantedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: grant already exists for user %d on path %d", shared.ErrConflict, grant.UserID, grant.PathID)
		}
		return storeErr("insert", err)
	}
	return nil
}

// Update overwrites the level of an existing grant.
func (r *Repository) Update(ctx context.Context, grant Grant) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE storage_grants SET level = $3, granted_at = $4 WHERE user_id = $1 AND path_id = $2`,
		grant.UserID, grant.PathID, grant.Level, grant.GrantedAt)
	if err != nil {
		return storeErr("update", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteOne removes the grant for a (user, path) pair.
func (r *Repository) DeleteOne(ctx context.Context, userID, pathID int64) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM storage_grants WHERE user_id = $1 AND path_id = $2`, userID, pathID)
	if err != nil {
		return 0, storeErr("delete one", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteMany removes the grants of the listed users on a path and
// reports how many rows went away.
func (r *Repository) DeleteMany(ctx context.Context, userIDs []int64, pathID int64) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM storage_grants WHERE path_id = $1 AND user_id = ANY($2)`, pathID, userIDs)
	if err != nil {
		return 0, storeErr("delete many", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteAllForResource removes every grant on a path. Called by the
// storage service when a path is deleted so no grant dangles.
func (r *Repository) DeleteAllForResource(ctx context.Context, pathID int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM storage_grants WHERE path_id = $1`, pathID)
	if err != nil {
		return 0, storeErr("delete for resource", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteAllForUser removes every grant held by a user.
func (r *Repository) DeleteAllForUser(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM storage_grants WHERE user_id = $1`, userID)
	if err != nil {
		return 0, storeErr("delete for user", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) scanGrants(ctx context.Context, query string, args ...interface{}) ([]Grant, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr("query", err)
	}
	defer rows.Close()
	var out []Grant
	for rows.Next() {
		var g Grant
		if err := rows.Scan(&g.UserID, &g.PathID, &g.Level, &g.GrantedAt); err != nil {
			return nil, storeErr("scan", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("query", err)
	}
	return out, nil
}

func (r *Repository) scanViews(ctx context.Context, query string, args ...interface{}) ([]GrantView, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr("query views", err)
	}
	defer rows.Close()
	var out []GrantView
	for rows.Next() {
		var v GrantView
		if err := rows.Scan(
			&v.UserID, &v.Username, &v.Email,
			&v.PathID, &v.Path, &v.PathActive,
			&v.InstanceID, &v.InstanceName, &v.InstanceType,
			&v.Level, &v.GrantedAt,
		); err != nil {
			return nil, storeErr("scan view", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("query views", err)
	}
	return out, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("grants: %s: %w: %v", op, shared.ErrStoreUnavailable, err)
}
