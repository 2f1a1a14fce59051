package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledger-service/internal/domain"
	"ledger-service/internal/pub"
	"ledger-service/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// maxConflictRetries bounds how many times a mutation is retried on a
	// transient lock/serialization conflict before it is surfaced.
	maxConflictRetries = 3
	conflictBackoff    = 25 * time.Millisecond
)

// LedgerUsecase applies single-account operations. A deposit or withdrawal
// is one atomic unit: the balance write and the ledger entry append commit
// together or not at all, under the account's exclusive row lock.
type LedgerUsecase struct {
	accountRepo repository.AccountRepository
	entryRepo   repository.EntryRepository
	notifier    pub.Notifier
	results     ResultCache
	log         *zap.Logger
}

// NewLedgerUsecase creates the ledger engine.
func NewLedgerUsecase(
	accountRepo repository.AccountRepository,
	entryRepo repository.EntryRepository,
	notifier pub.Notifier,
	results ResultCache,
	log *zap.Logger,
) *LedgerUsecase {
	return &LedgerUsecase{
		accountRepo: accountRepo,
		entryRepo:   entryRepo,
		notifier:    notifier,
		results:     results,
		log:         log,
	}
}

// Deposit credits the account.
func (uc *LedgerUsecase) Deposit(ctx context.Context, accountID int64, amount decimal.Decimal, description, idempotencyKey string) (*domain.OperationResult, error) {
	return uc.applyDirect(ctx, accountID, domain.EntryTypeDeposit, amount, description, idempotencyKey)
}

// Withdraw debits the account; the locked balance must cover the amount.
func (uc *LedgerUsecase) Withdraw(ctx context.Context, accountID int64, amount decimal.Decimal, description, idempotencyKey string) (*domain.OperationResult, error) {
	return uc.applyDirect(ctx, accountID, domain.EntryTypeWithdrawal, amount, description, idempotencyKey)
}

func (uc *LedgerUsecase) applyDirect(ctx context.Context, accountID int64, kind domain.EntryType, amount decimal.Decimal, description, idempotencyKey string) (*domain.OperationResult, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if description == "" {
		description = string(kind) + " transaction"
	}

	if idempotencyKey != "" {
		var cached domain.OperationResult
		if uc.results.get(ctx, directResultKey(idempotencyKey), &cached) {
			return &cached, nil
		}
	}

	var result *domain.OperationResult
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		result, err = uc.applyOnce(ctx, accountID, kind, amount, description)
		if !errors.Is(err, domain.ErrConcurrencyConflict) {
			break
		}
		uc.log.Warn("direct operation hit a conflict, retrying",
			zap.Int64("account_id", accountID),
			zap.Int("attempt", attempt+1))
		time.Sleep(conflictBackoff << attempt)
	}
	if err != nil {
		return nil, err
	}

	if idempotencyKey != "" {
		uc.results.put(ctx, directResultKey(idempotencyKey), result)
	}

	uc.notifier.OperationCompleted(ctx, &domain.OperationEvent{
		AccountID:    accountID,
		EventType:    kind,
		Amount:       amount,
		BalanceAfter: result.NewBalance,
	})

	uc.log.Info("direct operation applied",
		zap.Int64("account_id", accountID),
		zap.String("entry_type", string(kind)),
		zap.String("amount", amount.String()),
		zap.Int64("entry_id", result.EntryID))

	return result, nil
}

// applyOnce runs one attempt of the atomic unit: lock the account row,
// validate under the lock, write the new balance and append the entry in the
// same transaction.
func (uc *LedgerUsecase) applyOnce(ctx context.Context, accountID int64, kind domain.EntryType, amount decimal.Decimal, description string) (*domain.OperationResult, error) {
	tx, err := uc.accountRepo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err)
	}
	defer tx.Rollback(ctx)

	account, err := uc.accountRepo.LockForUpdate(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	if !account.IsActive {
		return nil, domain.ErrAccountInactive
	}

	var newBalance decimal.Decimal
	if kind.Credit() {
		newBalance = account.Balance.Add(amount)
	} else {
		if account.Balance.LessThan(amount) {
			return nil, domain.ErrInsufficientFunds
		}
		newBalance = account.Balance.Sub(amount)
	}

	if err := uc.accountRepo.UpdateBalanceTx(ctx, tx, accountID, newBalance); err != nil {
		return nil, err
	}

	entry := &domain.LedgerEntry{
		AccountID:    accountID,
		EntryType:    kind,
		Amount:       amount,
		BalanceAfter: newBalance,
		Description:  description,
		CreatedAt:    time.Now().UTC(),
	}
	if err := uc.entryRepo.CreateTx(ctx, tx, entry); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", domain.ErrPersistenceFailure, err)
	}

	return &domain.OperationResult{EntryID: entry.ID, NewBalance: newBalance}, nil
}

func directResultKey(key string) string {
	return "idem:direct:" + key
}
