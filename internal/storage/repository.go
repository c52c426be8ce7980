package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stowagehq/stowage/internal/shared"
)

// Repository provides PostgreSQL backed persistence for instances and
// paths.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateInstance inserts an instance. Duplicate names conflict.
func (r *Repository) CreateInstance(ctx context.Context, inst Instance) (*InstanceView, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO storage_instances (name, type, description, config, is_active, created_by)
		 VALUES ($1, $2, $3, $4, TRUE, $5) RETURNING id`,
		inst.Name, inst.Type, inst.Description, inst.Config, inst.CreatedByID).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: storage instance name %q already exists", shared.ErrConflict, inst.Name)
		}
		return nil, storeErr("create instance", err)
	}
	return r.GetInstance(ctx, id)
}

const instanceSelect = `
SELECT i.id, i.name, i.type, i.description, i.config, i.is_active, i.created_by, i.created_at, i.updated_at,
       u.username
FROM storage_instances i
JOIN users u ON u.id = i.created_by`

// ListInstances returns all instances with creator info, newest first.
func (r *Repository) ListInstances(ctx context.Context) ([]InstanceView, error) {
	rows, err := r.pool.Query(ctx, instanceSelect+` ORDER BY i.created_at DESC`)
	if err != nil {
		return nil, storeErr("list instances", err)
	}
	defer rows.Close()
	var out []InstanceView
	for rows.Next() {
		view, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list instances", err)
	}
	return out, nil
}

// GetInstance fetches an instance by ID.
func (r *Repository) GetInstance(ctx context.Context, id int64) (*InstanceView, error) {
	rows, err := r.pool.Query(ctx, instanceSelect+` WHERE i.id = $1`, id)
	if err != nil {
		return nil, storeErr("get instance", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, storeErr("get instance", err)
		}
		return nil, shared.ErrNotFound
	}
	view, err := scanInstance(rows)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// UpdateInstance applies the non-nil fields.
func (r *Repository) UpdateInstance(ctx context.Context, id int64, name, typ, description, config *string, isActive *bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE storage_instances SET
			name = COALESCE($2, name),
			type = COALESCE($3, type),
			description = COALESCE($4, description),
			config = COALESCE($5, config),
			is_active = COALESCE($6, is_active),
			updated_at = NOW()
		 WHERE id = $1`,
		id, name, typ, description, config, isActive)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: storage instance name already exists", shared.ErrConflict)
		}
		return storeErr("update instance", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteInstance removes an instance row.
func (r *Repository) DeleteInstance(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM storage_instances WHERE id = $1`, id)
	if err != nil {
		return storeErr("delete instance", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CountPathsForInstance reports how many paths reference an instance.
func (r *Repository) CountPathsForInstance(ctx context.Context, instanceID int64) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM storage_paths WHERE instance_id = $1`, instanceID).Scan(&count); err != nil {
		return 0, storeErr("count paths", err)
	}
	return count, nil
}

// CreatePath inserts a path. Duplicate path strings conflict.
func (r *Repository) CreatePath(ctx context.Context, path Path) (*PathView, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO storage_paths (path, description, is_active, instance_id, created_by)
		 VALUES ($1, $2, TRUE, $3, $4) RETURNING id`,
		path.Path, path.Description, path.InstanceID, path.CreatedByID).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: storage path %q already exists", shared.ErrConflict, path.Path)
		}
		return nil, storeErr("create path", err)
	}
	return r.GetPath(ctx, id)
}

const pathSelect = `
SELECT p.id, p.path, p.description, p.is_active, p.instance_id, p.created_by, p.created_at, p.updated_at,
       u.username, u.email, i.name, i.type
FROM storage_paths p
JOIN users u ON u.id = p.created_by
JOIN storage_instances i ON i.id = p.instance_id`

// ListPaths returns all paths with creator and instance info, newest
// first.
func (r *Repository) ListPaths(ctx context.Context) ([]PathView, error) {
	return r.scanPaths(ctx, pathSelect+` ORDER BY p.created_at DESC`)
}

// ListPathsForInstance returns the paths hosted on one instance, newest
// first.
func (r *Repository) ListPathsForInstance(ctx context.Context, instanceID int64) ([]PathView, error) {
	return r.scanPaths(ctx, pathSelect+` WHERE p.instance_id = $1 ORDER BY p.created_at DESC`, instanceID)
}

// GetPath fetches a path by ID.
func (r *Repository) GetPath(ctx context.Context, id int64) (*PathView, error) {
	views, err := r.scanPaths(ctx, pathSelect+` WHERE p.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, shared.ErrNotFound
	}
	return &views[0], nil
}

// PathExists reports whether a path row exists. Feeds the grant
// manager's existence check.
func (r *Repository) PathExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM storage_paths WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, storeErr("path exists", err)
	}
	return exists, nil
}

// DeletePath removes a path row.
func (r *Repository) DeletePath(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM storage_paths WHERE id = $1`, id)
	if err != nil {
		return storeErr("delete path", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *Repository) scanPaths(ctx context.Context, query string, args ...interface{}) ([]PathView, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list paths", err)
	}
	defer rows.Close()
	var out []PathView
	for rows.Next() {
		var v PathView
		if err := rows.Scan(
			&v.ID, &v.Path.Path, &v.Description, &v.IsActive, &v.InstanceID, &v.CreatedByID,
			&v.CreatedAt, &v.UpdatedAt,
			&v.CreatorUsername, &v.CreatorEmail, &v.InstanceName, &v.InstanceType,
		); err != nil {
			return nil, storeErr("scan path", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list paths", err)
	}
	return out, nil
}

func scanInstance(rows pgx.Rows) (InstanceView, error) {
	var v InstanceView
	if err := rows.Scan(
		&v.ID, &v.Name, &v.Type, &v.Description, &v.Config, &v.IsActive,
		&v.CreatedByID, &v.CreatedAt, &v.UpdatedAt, &v.CreatorUsername,
	); err != nil {
		return InstanceView{}, storeErr("scan instance", err)
	}
	return v, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func storeErr(op string, err error) error {
	return fmt.Errorf("storage: %s: %w: %v", op, shared.ErrStoreUnavailable, err)
}
