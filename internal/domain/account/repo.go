package account

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists accounts. Create returns ErrDuplicateAccount when the
// email is already taken; the lookups return ErrNotFound.
type Repository interface {
	Create(ctx context.Context, a *Account) error
	FindByEmail(ctx context.Context, email string) (*Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
}
