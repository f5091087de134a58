package account

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medassist/medassist/internal/platform/db"
)

// emailConstraint is the unique index on lower(email) created by 001_accounts.sql.
const emailConstraint = "accounts_email_key"

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn() db.Querier {
	return r.pool
}

const accountCols = `id, name, email, password_hash, created_at`

func (r *repoPG) Create(ctx context.Context, a *Account) error {
	a.ID = uuid.New()
	err := r.conn().QueryRow(ctx, `
		INSERT INTO accounts (id, name, email, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		a.ID, a.Name, a.Email, a.PasswordHash,
	).Scan(&a.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, emailConstraint) {
			return ErrDuplicateAccount
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *repoPG) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return scanAccount(r.conn().QueryRow(ctx,
		`SELECT `+accountCols+` FROM accounts WHERE lower(email) = lower($1)`, email))
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return scanAccount(r.conn().QueryRow(ctx,
		`SELECT `+accountCols+` FROM accounts WHERE id = $1`, id))
}

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	if err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.CreatedAt); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}
