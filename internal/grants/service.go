package grants

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/stowagehq/stowage/internal/shared"
)

// PathDirectory answers existence questions about storage paths.
type PathDirectory interface {
	PathExists(ctx context.Context, id int64) (bool, error)
}

// UserDirectory answers existence questions about users.
type UserDirectory interface {
	MissingUsers(ctx context.Context, ids []int64) ([]int64, error)
}

// Service owns the grant lifecycle. No other component writes grant rows.
type Service struct {
	store Store
	paths PathDirectory
	users UserDirectory
	now   func() time.Time
}

// NewService constructs a Service.
func NewService(store Store, paths PathDirectory, users UserDirectory) *Service {
	return &Service{store: store, paths: paths, users: users, now: time.Now}
}

// Grant creates grants for every listed user on a path.
//
// In strict mode (upsert=false) a pre-existing grant for any listed user
// fails the whole batch with a conflict and writes nothing. In upsert
// mode the existing row's level is overwritten in place. The mode is an
// explicit parameter: the bulk-grant endpoint is strict, the single-user
// grant dialog upserts.
func (s *Service) Grant(ctx context.Context, pathID int64, userIDs []int64, level Level, upsert bool) ([]GrantView, error) {
	if _, err := ParseLevel(string(level)); err != nil {
		return nil, err
	}
	userIDs = dedupe(userIDs)
	if len(userIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one user required", shared.ErrValidation)
	}

	exists, err := s.paths.PathExists(ctx, pathID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: storage path %d", shared.ErrNotFound, pathID)
	}

	missing, err := s.users.MissingUsers(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: users %s", shared.ErrNotFound, joinIDs(missing))
	}

	grantedAt := s.now()
	err = s.store.WithTx(ctx, func(tx Store) error {
		var existing []int64
		for _, userID := range userIDs {
			_, err := tx.Find(ctx, userID, pathID)
			switch {
			case err == nil:
				existing = append(existing, userID)
			case errors.Is(err, shared.ErrNotFound):
			default:
				return err
			}
		}
		if len(existing) > 0 && !upsert {
			return fmt.Errorf("%w: grants already exist for users %s", shared.ErrConflict, joinIDs(existing))
		}
		existingSet := make(map[int64]struct{}, len(existing))
		for _, id := range existing {
			existingSet[id] = struct{}{}
		}
		for _, userID := range userIDs {
			grant := Grant{UserID: userID, PathID: pathID, Level: level, GrantedAt: grantedAt}
			if _, ok := existingSet[userID]; ok {
				if err := tx.Update(ctx, grant); err != nil {
					return err
				}
				continue
			}
			if err := tx.Insert(ctx, grant); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	views, err := s.store.ViewsForResource(ctx, pathID)
	if err != nil {
		return nil, err
	}
	requested := make(map[int64]struct{}, len(userIDs))
	for _, id := range userIDs {
		requested[id] = struct{}{}
	}
	out := make([]GrantView, 0, len(userIDs))
	for _, v := range views {
		if _, ok := requested[v.UserID]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// Revoke deletes a single grant. The grant must exist.
func (s *Service) Revoke(ctx context.Context, userID, pathID int64) error {
	affected, err := s.store.DeleteOne(ctx, userID, pathID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: no grant for user %d on path %d", shared.ErrNotFound, userID, pathID)
	}
	return nil
}

// RevokeBatch deletes the grants of the listed users on a path. Users
// without a grant are skipped silently, but zero matches across the
// whole list is an error.
func (s *Service) RevokeBatch(ctx context.Context, userIDs []int64, pathID int64) error {
	userIDs = dedupe(userIDs)
	if len(userIDs) == 0 {
		return fmt.Errorf("%w: at least one user required", shared.ErrValidation)
	}
	affected, err := s.store.DeleteMany(ctx, userIDs, pathID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: no grants to revoke on path %d", shared.ErrNotFound, pathID)
	}
	return nil
}

// ListForUser returns the denormalized grants of one user, newest first.
func (s *Service) ListForUser(ctx context.Context, userID int64) ([]GrantView, error) {
	return s.store.ListViewsForUser(ctx, userID)
}

// ListAll returns every grant joined with its metadata, newest first.
func (s *Service) ListAll(ctx context.Context) ([]GrantView, error) {
	return s.store.ListViews(ctx)
}

// CheckLevel reports whether the user holds at least the required level
// on a path. Absence of a grant is false, not an error.
func (s *Service) CheckLevel(ctx context.Context, userID, pathID int64, required Level) (bool, error) {
	grant, err := s.store.Find(ctx, userID, pathID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return grant.Level.Satisfies(required), nil
}

// RemoveAllForPath drops every grant on a path. Called by the storage
// service when the path itself is deleted.
func (s *Service) RemoveAllForPath(ctx context.Context, pathID int64) error {
	_, err := s.store.DeleteAllForResource(ctx, pathID)
	return err
}

// RemoveAllForUser drops every grant held by a user. Called by the users
// service on account deletion.
func (s *Service) RemoveAllForUser(ctx context.Context, userID int64) error {
	_, err := s.store.DeleteAllForUser(ctx, userID)
	return err
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func joinIDs(ids []int64) string {
	sorted := make([]int64, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ", ")
}
