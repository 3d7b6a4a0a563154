// package models defines the data model for the video generation batch engine
package models

import (
	"time"
)

// Model is a persisted entity with a string id and timestamps. [Run] is the only one; jobs and
// records are values owned by their run.
type Model interface {
	ID() string
	CreatedAt() time.Time
	UpdatedAt() time.Time
	Validate() error // Validate rejects entities missing required fields before they are written
}

// Repository is CRUD access to one model type. Delete is a soft delete and List filters by
// implementation-defined criteria keys.
type Repository[T Model] interface {
	Create(model T) error
	Get(id string) (T, error)
	Update(model T) error
	Delete(id string) error
	List(criteria map[string]any) ([]T, error)
}
