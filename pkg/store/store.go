// Package store defines the entity store boundary and its in-process adapters
package store

import (
	"context"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Store is the external entity store used by the resolution engine
type Store interface {
	// Search lists entities of one type, bounded by limit
	Search(ctx context.Context, entityType models.EntityType, limit int) ([]models.EntitySummary, error)
	// GetAllEntities lists entities of every type, bounded by limit
	GetAllEntities(ctx context.Context, limit int) ([]models.EntitySummary, error)
	// Get returns nil, nil when the entity does not exist
	Get(ctx context.Context, id string) (*models.Entity, error)
	Update(ctx context.Context, id string, update models.EntityUpdate) error
	Delete(ctx context.Context, id string) error
}
