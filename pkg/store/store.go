// Package store defines the entity store: where Feed, Process and Cluster definitions live.
package store

import (
	"context"

	"github.com/opst/knitfleet/pkg/domain"
)

// ListQuery selects entities.
type ListQuery struct {
	// required.
	Type domain.EntityType

	// when not empty, entities placed on the cluster are selected.
	Cluster string

	// when not empty, entities having all of the tags are selected.
	Tags []string

	// "name" (default) or "type". Other values are validation error.
	OrderBy   string
	SortOrder domain.SortOrder

	Offset int

	// <= 0 means no limit.
	Limit int
}

type Interface interface {
	// Get returns the entity. It fails with ErrNotFound when missing.
	Get(ctx context.Context, t domain.EntityType, name string) (*domain.Entity, error)

	// Submit stores a new entity. It fails with ErrConflict when the same (type, name) exists.
	Submit(ctx context.Context, entity *domain.Entity) error

	List(ctx context.Context, q ListQuery) ([]*domain.Entity, error)
}

// Normalize validates q and fills defaults.
func (q ListQuery) Normalize() (ListQuery, error) {
	if _, err := domain.AsEntityType(string(q.Type)); err != nil {
		return q, err
	}
	switch q.OrderBy {
	case "":
		q.OrderBy = "name"
	case "name", "type":
	default:
		return q, domain.NewValidationError("orderBy of entities should be name or type: " + q.OrderBy)
	}
	switch q.SortOrder {
	case "":
		q.SortOrder = domain.Asc
	case domain.Asc, domain.Desc:
	default:
		return q, domain.NewValidationError("sortOrder should be asc or desc: " + string(q.SortOrder))
	}
	if q.Offset < 0 {
		return q, domain.NewValidationError("offset should not be negative")
	}
	return q, nil
}
