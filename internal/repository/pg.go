package repository

import (
	"context"
	"errors"
	"fmt"

	"ledger-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLSTATE codes that matter to the ledger.
const (
	pgUniqueViolation  = "23505"
	pgSerializationErr = "40001"
	pgDeadlockDetected = "40P01"
	pgLockNotAvailable = "55P03"
)

// lockTimeout bounds how long a mutating transaction waits for a row lock
// before the attempt is aborted as a retryable conflict; statementTimeout
// caps the transaction's statements outright.
const (
	lockTimeout      = "2s"
	statementTimeout = "5s"
)

// beginLedgerTx opens a read-write transaction with a bounded lock wait.
// Every balance mutation in the module goes through a transaction opened
// here; the caller is expected to defer tx.Rollback(ctx) so locks are
// released on every exit path.
func beginLedgerTx(ctx context.Context, db *pgxpool.Pool) (pgx.Tx, error) {
	tx, err := db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	for _, stmt := range []string{
		fmt.Sprintf("SET LOCAL lock_timeout = '%s'", lockTimeout),
		fmt.Sprintf("SET LOCAL statement_timeout = '%s'", statementTimeout),
	} {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			_ = tx.Rollback(ctx)
			return nil, fmt.Errorf("failed to set transaction timeouts: %w", err)
		}
	}
	return tx, nil
}

// mapPGError translates transient postgres failures into the retryable
// conflict error. Other errors pass through for the caller to wrap.
func mapPGError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationErr, pgDeadlockDetected, pgLockNotAvailable:
			return domain.ErrConcurrencyConflict
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
