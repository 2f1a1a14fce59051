package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ledger-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// defaultEntryLimit caps unbounded history listings.
const defaultEntryLimit = 50

// EntryRepository appends and lists ledger entries. Entries are created
// once, inside the same transaction as the balance write they document, and
// never updated or deleted.
type EntryRepository interface {
	CreateTx(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error
	ListByAccount(ctx context.Context, accountID int64, f *domain.EntryFilter) ([]*domain.LedgerEntry, error)
	CountSince(ctx context.Context, since time.Time) (int64, error)
}

type entryRepo struct {
	db *pgxpool.Pool
}

// NewEntryRepo creates a postgres-backed ledger entry repository.
func NewEntryRepo(db *pgxpool.Pool) EntryRepository {
	return &entryRepo{db: db}
}

func (r *entryRepo) CreateTx(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	if tx == nil {
		return errors.New("transaction cannot be nil")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	err := tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (account_id, entry_type, amount, balance_after, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, e.AccountID, e.EntryType, e.Amount, e.BalanceAfter, e.Description, e.CreatedAt).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("failed to create ledger entry: %w", mapPGError(err))
	}
	return nil
}

// ListByAccount returns the account's entries newest first, narrowed by the
// optional filter clauses.
func (r *entryRepo) ListByAccount(ctx context.Context, accountID int64, f *domain.EntryFilter) ([]*domain.LedgerEntry, error) {
	query := `
		SELECT id, account_id, entry_type, amount, balance_after, description, created_at
		FROM ledger_entries`

	where := []string{"account_id = $1"}
	args := []interface{}{accountID}
	limit := defaultEntryLimit

	if f != nil {
		if f.EntryType != nil {
			args = append(args, *f.EntryType)
			where = append(where, fmt.Sprintf("entry_type = $%d", len(args)))
		}
		if f.DateFrom != nil {
			args = append(args, *f.DateFrom)
			where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
		}
		if f.DateTo != nil {
			args = append(args, *f.DateTo)
			where = append(where, fmt.Sprintf("created_at <= $%d", len(args)))
		}
		if f.MinAmount != nil {
			args = append(args, *f.MinAmount)
			where = append(where, fmt.Sprintf("amount >= $%d", len(args)))
		}
		if f.MaxAmount != nil {
			args = append(args, *f.MaxAmount)
			where = append(where, fmt.Sprintf("amount <= $%d", len(args)))
		}
		if f.Limit > 0 {
			limit = f.Limit
		}
	}

	args = append(args, limit)
	query = fmt.Sprintf("%s WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d",
		query, strings.Join(where, " AND "), len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.EntryType, &e.Amount, &e.BalanceAfter, &e.Description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (r *entryRepo) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM ledger_entries WHERE created_at >= $1
	`, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}
	return count, nil
}
