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

const defaultTransferLimit = 50

// TransferRepository persists transfer rows and enforces the state machine
// in SQL: pending rows are created on their own connection so they survive
// an aborted ledger transaction, and both terminal transitions are guarded
// with WHERE status = 'pending' so terminal rows stay immutable.
type TransferRepository interface {
	CreatePending(ctx context.Context, t *domain.Transfer) error

	// MarkCompletedTx transitions pending -> completed inside the ledger
	// transaction that moved the funds.
	MarkCompletedTx(ctx context.Context, tx pgx.Tx, transferID, toAccountID int64, completedAt time.Time) error

	// MarkFailed transitions pending -> failed on its own connection; it is
	// called after the ledger transaction rolled back.
	MarkFailed(ctx context.Context, transferID int64) error

	GetByID(ctx context.Context, transferID int64) (*domain.Transfer, error)

	// ListByAccount returns transfers where the account is either side,
	// newest first.
	ListByAccount(ctx context.Context, accountID int64, limit int) ([]*domain.Transfer, error)

	CountByStatus(ctx context.Context, status domain.TransferStatus) (int64, error)
}

type transferRepo struct {
	db *pgxpool.Pool
}

// NewTransferRepo creates a postgres-backed transfer repository.
func NewTransferRepo(db *pgxpool.Pool) TransferRepository {
	return &transferRepo{db: db}
}

const transferSelect = `
	SELECT id, reference, from_account_id, to_account_number, to_account_id,
	       amount, status, description, created_at, completed_at
	FROM transfers`

func scanTransfer(row pgx.Row) (*domain.Transfer, error) {
	var t domain.Transfer
	err := row.Scan(
		&t.ID, &t.Reference, &t.FromAccountID, &t.ToAccountNumber, &t.ToAccountID,
		&t.Amount, &t.Status, &t.Description, &t.CreatedAt, &t.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("transfer not found")
		}
		return nil, fmt.Errorf("failed to scan transfer: %w", err)
	}
	return &t, nil
}

func (r *transferRepo) CreatePending(ctx context.Context, t *domain.Transfer) error {
	t.Status = domain.TransferStatusPending
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	err := r.db.QueryRow(ctx, `
		INSERT INTO transfers (reference, from_account_id, to_account_number, amount, status, description, created_at)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6)
		RETURNING id
	`, t.Reference, t.FromAccountID, t.ToAccountNumber, t.Amount, t.Description, t.CreatedAt).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("failed to create transfer: %w", err)
	}
	return nil
}

func (r *transferRepo) MarkCompletedTx(ctx context.Context, tx pgx.Tx, transferID, toAccountID int64, completedAt time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE transfers
		SET status = 'completed', to_account_id = $2, completed_at = $3
		WHERE id = $1 AND status = 'pending'
	`, transferID, toAccountID, completedAt)
	if err != nil {
		return fmt.Errorf("failed to complete transfer %d: %w", transferID, mapPGError(err))
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("%w: transfer %d is not pending", domain.ErrPersistenceFailure, transferID)
	}
	return nil
}

func (r *transferRepo) MarkFailed(ctx context.Context, transferID int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE transfers SET status = 'failed' WHERE id = $1 AND status = 'pending'
	`, transferID)
	if err != nil {
		return fmt.Errorf("failed to fail transfer %d: %w", transferID, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("%w: transfer %d is not pending", domain.ErrPersistenceFailure, transferID)
	}
	return nil
}

func (r *transferRepo) GetByID(ctx context.Context, transferID int64) (*domain.Transfer, error) {
	return scanTransfer(r.db.QueryRow(ctx, transferSelect+` WHERE id = $1`, transferID))
}

func (r *transferRepo) ListByAccount(ctx context.Context, accountID int64, limit int) ([]*domain.Transfer, error) {
	if limit <= 0 {
		limit = defaultTransferLimit
	}

	rows, err := r.db.Query(ctx, transferSelect+`
		WHERE from_account_id = $1 OR to_account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	defer rows.Close()

	var transfers []*domain.Transfer
	for rows.Next() {
		var t domain.Transfer
		if err := rows.Scan(
			&t.ID, &t.Reference, &t.FromAccountID, &t.ToAccountNumber, &t.ToAccountID,
			&t.Amount, &t.Status, &t.Description, &t.CreatedAt, &t.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		transfers = append(transfers, &t)
	}
	return transfers, rows.Err()
}

func (r *transferRepo) CountByStatus(ctx context.Context, status domain.TransferStatus) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM transfers WHERE status = $1`, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transfers: %w", err)
	}
	return count, nil
}
