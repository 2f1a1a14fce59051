package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledger-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RoleRepository resolves role claims from the server-side assignment table.
// A caller's role is never read from client-held state, and no privilege is
// granted by comparing literals in request-reachable code; elevation happens
// only by inserting a row here.
type RoleRepository interface {
	GetRole(ctx context.Context, userID string) (domain.Role, error)
	Assign(ctx context.Context, userID string, role domain.Role) error
}

type roleRepo struct {
	db *pgxpool.Pool
}

// NewRoleRepo creates a postgres-backed role repository.
func NewRoleRepo(db *pgxpool.Pool) RoleRepository {
	return &roleRepo{db: db}
}

// GetRole returns the assigned role, defaulting to customer when no
// assignment exists.
func (r *roleRepo) GetRole(ctx context.Context, userID string) (domain.Role, error) {
	var role domain.Role
	err := r.db.QueryRow(ctx, `SELECT role FROM account_roles WHERE user_id = $1`, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RoleCustomer, nil
		}
		return "", fmt.Errorf("failed to resolve role: %w", err)
	}
	return role, nil
}

func (r *roleRepo) Assign(ctx context.Context, userID string, role domain.Role) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO account_roles (user_id, role, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET role = EXCLUDED.role
	`, userID, role, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}
