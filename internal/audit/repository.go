package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stowagehq/stowage/internal/shared"
)

// Repository persists decision log rows in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends one decision row.
func (r *Repository) Insert(ctx context.Context, payload DecisionPayload) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO authz_decisions (username, category, action, resource_id, outcome, decided_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)`,
		payload.Username, payload.Category, payload.Action, payload.ResourceID, payload.Outcome, payload.DecidedAt)
	if err != nil {
		return storeErr("insert decision", err)
	}
	return nil
}

// Recent returns the newest decisions, capped at limit.
func (r *Repository) Recent(ctx context.Context, limit int) ([]Decision, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, username, category, action, COALESCE(resource_id, ''), outcome, decided_at
		 FROM authz_decisions ORDER BY decided_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, storeErr("list decisions", err)
	}
	defer rows.Close()

	out := make([]Decision, 0, limit)
	for rows.Next() {
		var d Decision
		if err := rows.Scan(&d.ID, &d.Username, &d.Category, &d.Action, &d.ResourceID, &d.Outcome, &d.DecidedAt); err != nil {
			return nil, storeErr("scan decision", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list decisions", err)
	}
	return out, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("audit: %s: %w: %v", op, shared.ErrStoreUnavailable, err)
}
