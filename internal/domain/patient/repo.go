package patient

import (
	"context"

	"github.com/google/uuid"
)

// Repository stores patient records. There is no update or delete.
type Repository interface {
	Create(ctx context.Context, r *Record) error
	List(ctx context.Context) ([]Record, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
}
