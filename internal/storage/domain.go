package storage

import "time"

// Instance is an object-storage backend registration.
type Instance struct {
	ID          int64
	Name        string
	Type        string
	Description string
	Config      string
	IsActive    bool
	CreatedByID int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Path is an addressable storage path hosted on an instance. Deleting a
// path removes every grant referencing it.
type Path struct {
	ID          int64
	Path        string
	Description string
	IsActive    bool
	InstanceID  int64
	CreatedByID int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PathView is the denormalized read model for path listings: the path
// joined with its creator's display fields and the owning instance.
type PathView struct {
	Path
	CreatorUsername string
	CreatorEmail    string
	InstanceName    string
	InstanceType    string
}

// InstanceView joins an instance with its creator's display fields.
type InstanceView struct {
	Instance
	CreatorUsername string
}
