package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledger-service/internal/domain"
	"ledger-service/pkg/utils"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// AccountRepository owns account records. It is the only place balances are
// read or written; every balance write takes an explicit pgx.Tx so that the
// write and its ledger entry commit or roll back together.
type AccountRepository interface {
	// Create derives the account number from the phone digits and persists
	// the account, retrying with disambiguating suffix slots on collision.
	Create(ctx context.Context, req *domain.OpenAccountRequest) (*domain.Account, error)

	GetByID(ctx context.Context, accountID int64) (*domain.Account, error)
	GetByAccountNumber(ctx context.Context, accountNumber string) (*domain.Account, error)

	// LockForUpdate acquires the exclusive row lock on the account for the
	// remainder of tx and returns the locked snapshot. The lock is released
	// when tx commits or rolls back.
	LockForUpdate(ctx context.Context, tx pgx.Tx, accountID int64) (*domain.Account, error)

	// UpdateBalanceTx writes the new balance under the lock held by tx.
	UpdateBalanceTx(ctx context.Context, tx pgx.Tx, accountID int64, newBalance decimal.Decimal) error

	// Totals reports the number of active accounts and the sum of their
	// balances, read as a single consistent snapshot.
	Totals(ctx context.Context) (int64, decimal.Decimal, error)

	BeginTx(ctx context.Context) (pgx.Tx, error)
}

type accountRepo struct {
	db  *pgxpool.Pool
	gen *utils.AccountNumberGenerator
}

// NewAccountRepo creates a postgres-backed account repository.
func NewAccountRepo(db *pgxpool.Pool, gen *utils.AccountNumberGenerator) AccountRepository {
	return &accountRepo{db: db, gen: gen}
}

func (r *accountRepo) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return beginLedgerTx(ctx, r.db)
}

const accountSelect = `
	SELECT id, owner_id, account_number, routing_code, account_type,
	       balance, is_active, created_at, updated_at
	FROM accounts`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(
		&a.ID, &a.OwnerID, &a.AccountNumber, &a.RoutingCode, &a.AccountType,
		&a.Balance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return &a, nil
}

func (r *accountRepo) Create(ctx context.Context, req *domain.OpenAccountRequest) (*domain.Account, error) {
	if !domain.ValidAccountType(req.AccountType) {
		return nil, fmt.Errorf("%w: unknown account type %q", domain.ErrInvalidRequest, req.AccountType)
	}

	now := time.Now().UTC()
	for attempt := 0; attempt < utils.MaxNumberAttempts; attempt++ {
		number, err := r.gen.Derive(req.Phone, attempt)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
		}

		var a domain.Account
		err = r.db.QueryRow(ctx, `
			INSERT INTO accounts (owner_id, account_number, routing_code, account_type, balance, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 0, TRUE, $5, $5)
			RETURNING id, owner_id, account_number, routing_code, account_type,
			          balance, is_active, created_at, updated_at
		`, req.OwnerID, number, utils.RoutingCode, req.AccountType, now).Scan(
			&a.ID, &a.OwnerID, &a.AccountNumber, &a.RoutingCode, &a.AccountType,
			&a.Balance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt,
		)
		if err == nil {
			return &a, nil
		}
		if isUniqueViolation(err) {
			continue
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	return nil, fmt.Errorf("%w: no free account number slot for phone", domain.ErrPersistenceFailure)
}

func (r *accountRepo) GetByID(ctx context.Context, accountID int64) (*domain.Account, error) {
	return scanAccount(r.db.QueryRow(ctx, accountSelect+` WHERE id = $1`, accountID))
}

func (r *accountRepo) GetByAccountNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	return scanAccount(r.db.QueryRow(ctx, accountSelect+` WHERE account_number = $1`, accountNumber))
}

func (r *accountRepo) LockForUpdate(ctx context.Context, tx pgx.Tx, accountID int64) (*domain.Account, error) {
	a, err := scanAccount(tx.QueryRow(ctx, accountSelect+` WHERE id = $1 FOR UPDATE`, accountID))
	if err != nil {
		if mapped := mapPGError(err); errors.Is(mapped, domain.ErrConcurrencyConflict) {
			return nil, mapped
		}
		return nil, err
	}
	return a, nil
}

func (r *accountRepo) UpdateBalanceTx(ctx context.Context, tx pgx.Tx, accountID int64, newBalance decimal.Decimal) error {
	tag, err := tx.Exec(ctx, `
		UPDATE accounts SET balance = $2, updated_at = $3 WHERE id = $1
	`, accountID, newBalance, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update balance for account %d: %w", accountID, mapPGError(err))
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("%w: balance update touched %d rows", domain.ErrPersistenceFailure, tag.RowsAffected())
	}
	return nil
}

func (r *accountRepo) Totals(ctx context.Context) (int64, decimal.Decimal, error) {
	var count int64
	var total decimal.Decimal
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(balance), 0) FROM accounts WHERE is_active
	`).Scan(&count, &total)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("failed to aggregate accounts: %w", err)
	}
	return count, total, nil
}
