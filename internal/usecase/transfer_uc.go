package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledger-service/internal/domain"
	"ledger-service/internal/pub"
	"ledger-service/internal/repository"
	"ledger-service/pkg/utils"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TransferUsecase orchestrates two-account transfers. Each transfer debits
// the source and credits the destination in one database transaction that
// holds both account row locks, acquired in ascending account-id order so
// concurrent opposite transfers cannot deadlock. Every failure after the
// pending row is created leaves both balances untouched, zero ledger
// entries, and the transfer marked failed.
type TransferUsecase struct {
	accountRepo  repository.AccountRepository
	entryRepo    repository.EntryRepository
	transferRepo repository.TransferRepository
	gen          *utils.AccountNumberGenerator
	notifier     pub.Notifier
	results      ResultCache
	log          *zap.Logger
}

// NewTransferUsecase creates the transfer coordinator.
func NewTransferUsecase(
	accountRepo repository.AccountRepository,
	entryRepo repository.EntryRepository,
	transferRepo repository.TransferRepository,
	gen *utils.AccountNumberGenerator,
	notifier pub.Notifier,
	results ResultCache,
	log *zap.Logger,
) *TransferUsecase {
	return &TransferUsecase{
		accountRepo:  accountRepo,
		entryRepo:    entryRepo,
		transferRepo: transferRepo,
		gen:          gen,
		notifier:     notifier,
		results:      results,
		log:          log,
	}
}

// ExecuteTransfer moves amount from the source account to the account
// addressed by toAccountNumber.
func (uc *TransferUsecase) ExecuteTransfer(ctx context.Context, fromAccountID int64, toAccountNumber string, amount decimal.Decimal, description, idempotencyKey string) (*domain.TransferResult, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	if idempotencyKey != "" {
		var cached domain.TransferResult
		if uc.results.get(ctx, transferResultKey(idempotencyKey), &cached) {
			return &cached, nil
		}
	}

	// Source must exist before anything is recorded; an unknown caller
	// account is a validation failure, not an auditable transfer attempt.
	source, err := uc.accountRepo.GetByID(ctx, fromAccountID)
	if err != nil {
		return nil, err
	}
	if !source.IsActive {
		return nil, domain.ErrAccountInactive
	}

	transfer := &domain.Transfer{
		Reference:       uc.gen.NewReference(),
		FromAccountID:   fromAccountID,
		ToAccountNumber: toAccountNumber,
		Amount:          amount,
		Description:     description,
		CreatedAt:       time.Now().UTC(),
	}
	if err := uc.transferRepo.CreatePending(ctx, transfer); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err)
	}

	result, err := uc.run(ctx, transfer, description)
	if err != nil {
		uc.fail(transfer.ID)
		return nil, err
	}

	if idempotencyKey != "" {
		uc.results.put(ctx, transferResultKey(idempotencyKey), result)
	}
	return result, nil
}

// run resolves the destination and drives the locked execution with bounded
// conflict retries.
func (uc *TransferUsecase) run(ctx context.Context, transfer *domain.Transfer, description string) (*domain.TransferResult, error) {
	dest, err := uc.accountRepo.GetByAccountNumber(ctx, transfer.ToAccountNumber)
	if err != nil {
		return nil, err
	}
	if dest.ID == transfer.FromAccountID {
		return nil, domain.ErrSelfTransferNotAllowed
	}
	if !dest.IsActive {
		return nil, domain.ErrAccountInactive
	}

	var result *domain.TransferResult
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		result, err = uc.executeOnce(ctx, transfer, dest.ID, description)
		if !errors.Is(err, domain.ErrConcurrencyConflict) {
			break
		}
		uc.log.Warn("transfer hit a conflict, retrying",
			zap.Int64("transfer_id", transfer.ID),
			zap.Int("attempt", attempt+1))
		time.Sleep(conflictBackoff << attempt)
	}
	return result, err
}

// executeOnce is one attempt at the committed unit: both locks, funds
// re-check, debit entry, credit entry, completion mark, single commit.
func (uc *TransferUsecase) executeOnce(ctx context.Context, transfer *domain.Transfer, destID int64, description string) (*domain.TransferResult, error) {
	tx, err := uc.accountRepo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err)
	}
	defer tx.Rollback(ctx)

	source, dest, err := uc.lockBoth(ctx, tx, transfer.FromAccountID, destID)
	if err != nil {
		return nil, err
	}

	// Balance may have moved between validation and lock acquisition.
	if source.Balance.LessThan(transfer.Amount) {
		return nil, domain.ErrInsufficientFunds
	}

	now := time.Now().UTC()
	sourceBalance := source.Balance.Sub(transfer.Amount)
	destBalance := dest.Balance.Add(transfer.Amount)

	if err := uc.accountRepo.UpdateBalanceTx(ctx, tx, source.ID, sourceBalance); err != nil {
		return nil, err
	}
	if err := uc.accountRepo.UpdateBalanceTx(ctx, tx, dest.ID, destBalance); err != nil {
		return nil, err
	}

	outEntry := &domain.LedgerEntry{
		AccountID:    source.ID,
		EntryType:    domain.EntryTypeTransferOut,
		Amount:       transfer.Amount,
		BalanceAfter: sourceBalance,
		Description:  orDefault(description, "transfer to "+transfer.ToAccountNumber),
		CreatedAt:    now,
	}
	if err := uc.entryRepo.CreateTx(ctx, tx, outEntry); err != nil {
		return nil, err
	}

	inEntry := &domain.LedgerEntry{
		AccountID:    dest.ID,
		EntryType:    domain.EntryTypeTransferIn,
		Amount:       transfer.Amount,
		BalanceAfter: destBalance,
		Description:  orDefault(description, "transfer from "+source.AccountNumber),
		CreatedAt:    now,
	}
	if err := uc.entryRepo.CreateTx(ctx, tx, inEntry); err != nil {
		return nil, err
	}

	if err := uc.transferRepo.MarkCompletedTx(ctx, tx, transfer.ID, dest.ID, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", domain.ErrPersistenceFailure, err)
	}

	uc.publishCompleted(ctx, transfer, source.ID, dest.ID, sourceBalance, destBalance)

	uc.log.Info("transfer completed",
		zap.Int64("transfer_id", transfer.ID),
		zap.String("reference", transfer.Reference),
		zap.Int64("from_account_id", source.ID),
		zap.Int64("to_account_id", dest.ID),
		zap.String("amount", transfer.Amount.String()))

	return &domain.TransferResult{
		TransferID: transfer.ID,
		Reference:  transfer.Reference,
		NewBalance: sourceBalance,
	}, nil
}

// lockBoth acquires both account row locks in ascending id order and
// returns the locked snapshots keyed back to their roles.
func (uc *TransferUsecase) lockBoth(ctx context.Context, tx pgx.Tx, sourceID, destID int64) (*domain.Account, *domain.Account, error) {
	first, second := sourceID, destID
	if destID < sourceID {
		first, second = destID, sourceID
	}

	locked := make(map[int64]*domain.Account, 2)
	for _, id := range []int64{first, second} {
		account, err := uc.accountRepo.LockForUpdate(ctx, tx, id)
		if err != nil {
			return nil, nil, err
		}
		if !account.IsActive {
			return nil, nil, domain.ErrAccountInactive
		}
		locked[id] = account
	}
	return locked[sourceID], locked[destID], nil
}

// fail marks the pending row failed. The ledger transaction has already
// rolled back; a failure here only loses the audit marker, never money.
func (uc *TransferUsecase) fail(transferID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := uc.transferRepo.MarkFailed(ctx, transferID); err != nil {
		uc.log.Error("failed to mark transfer failed",
			zap.Int64("transfer_id", transferID),
			zap.Error(err))
	}
}

func (uc *TransferUsecase) publishCompleted(ctx context.Context, transfer *domain.Transfer, sourceID, destID int64, sourceBalance, destBalance decimal.Decimal) {
	transferID := transfer.ID
	uc.notifier.OperationCompleted(ctx, &domain.OperationEvent{
		AccountID:    sourceID,
		EventType:    domain.EntryTypeTransferOut,
		Amount:       transfer.Amount,
		BalanceAfter: sourceBalance,
		TransferID:   &transferID,
	})
	uc.notifier.OperationCompleted(ctx, &domain.OperationEvent{
		AccountID:    destID,
		EventType:    domain.EntryTypeTransferIn,
		Amount:       transfer.Amount,
		BalanceAfter: destBalance,
		TransferID:   &transferID,
	})
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func transferResultKey(key string) string {
	return "idem:transfer:" + key
}
