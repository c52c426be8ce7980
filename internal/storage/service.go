package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/stowagehq/stowage/internal/shared"
)

// GrantRemover detaches grants when a path disappears.
type GrantRemover interface {
	RemoveAllForPath(ctx context.Context, pathID int64) error
}

// Store is the persistence slice the service needs.
type Store interface {
	CreateInstance(ctx context.Context, inst Instance) (*InstanceView, error)
	ListInstances(ctx context.Context) ([]InstanceView, error)
	GetInstance(ctx context.Context, id int64) (*InstanceView, error)
	UpdateInstance(ctx context.Context, id int64, name, typ, description, config *string, isActive *bool) error
	DeleteInstance(ctx context.Context, id int64) error
	CountPathsForInstance(ctx context.Context, instanceID int64) (int64, error)
	CreatePath(ctx context.Context, path Path) (*PathView, error)
	ListPaths(ctx context.Context) ([]PathView, error)
	ListPathsForInstance(ctx context.Context, instanceID int64) ([]PathView, error)
	GetPath(ctx context.Context, id int64) (*PathView, error)
	DeletePath(ctx context.Context, id int64) error
}

// Service wraps storage management business rules.
type Service struct {
	repo   Store
	grants GrantRemover
}

// NewService constructs a Service.
func NewService(repo Store, grants GrantRemover) *Service {
	return &Service{repo: repo, grants: grants}
}

// CreateInstance registers a new object-storage instance.
func (s *Service) CreateInstance(ctx context.Context, name, typ, description, config string, createdBy int64) (*InstanceView, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: instance name required", shared.ErrValidation)
	}
	return s.repo.CreateInstance(ctx, Instance{
		Name:        name,
		Type:        strings.TrimSpace(typ),
		Description: strings.TrimSpace(description),
		Config:      config,
		CreatedByID: createdBy,
	})
}

// ListInstances returns all instances, newest first.
func (s *Service) ListInstances(ctx context.Context) ([]InstanceView, error) {
	return s.repo.ListInstances(ctx)
}

// GetInstance fetches one instance.
func (s *Service) GetInstance(ctx context.Context, id int64) (*InstanceView, error) {
	return s.repo.GetInstance(ctx, id)
}

// InstanceUpdate carries optional instance changes.
type InstanceUpdate struct {
	Name        *string
	Type        *string
	Description *string
	Config      *string
	IsActive    *bool
}

// UpdateInstance applies changes to an instance.
func (s *Service) UpdateInstance(ctx context.Context, id int64, update InstanceUpdate) (*InstanceView, error) {
	if err := s.repo.UpdateInstance(ctx, id, update.Name, update.Type, update.Description, update.Config, update.IsActive); err != nil {
		return nil, err
	}
	return s.repo.GetInstance(ctx, id)
}

// DeleteInstance removes an instance. Instances still hosting paths
// cannot be deleted.
func (s *Service) DeleteInstance(ctx context.Context, id int64) error {
	if _, err := s.repo.GetInstance(ctx, id); err != nil {
		return err
	}
	count, err := s.repo.CountPathsForInstance(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: instance still hosts %d storage paths", shared.ErrConflict, count)
	}
	return s.repo.DeleteInstance(ctx, id)
}

// CreatePath registers a storage path on an instance.
func (s *Service) CreatePath(ctx context.Context, path, description string, instanceID, createdBy int64) (*PathView, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: path required", shared.ErrValidation)
	}
	if _, err := s.repo.GetInstance(ctx, instanceID); err != nil {
		return nil, err
	}
	return s.repo.CreatePath(ctx, Path{
		Path:        path,
		Description: strings.TrimSpace(description),
		InstanceID:  instanceID,
		CreatedByID: createdBy,
	})
}

// ListPaths returns all paths, newest first.
func (s *Service) ListPaths(ctx context.Context) ([]PathView, error) {
	return s.repo.ListPaths(ctx)
}

// ListPathsForInstance returns the paths of one instance.
func (s *Service) ListPathsForInstance(ctx context.Context, instanceID int64) ([]PathView, error) {
	if _, err := s.repo.GetInstance(ctx, instanceID); err != nil {
		return nil, err
	}
	return s.repo.ListPathsForInstance(ctx, instanceID)
}

// GetPath fetches one path.
func (s *Service) GetPath(ctx context.Context, id int64) (*PathView, error) {
	return s.repo.GetPath(ctx, id)
}

// DeletePath removes a path. Grants referencing it are deleted first so
// none dangle.
func (s *Service) DeletePath(ctx context.Context, id int64) error {
	if _, err := s.repo.GetPath(ctx, id); err != nil {
		return err
	}
	if err := s.grants.RemoveAllForPath(ctx, id); err != nil {
		return err
	}
	return s.repo.DeletePath(ctx, id)
}
