package workshop

import (
	"context"

	domain "enrollment/internal/domain/workshop"
)

// Store defines the interface for workshop persistence.
type Store interface {
	Save(ctx context.Context, w domain.Workshop) error
	GetByID(ctx context.Context, id string) (domain.Workshop, error)
	List(ctx context.Context) ([]domain.Workshop, error)
}
