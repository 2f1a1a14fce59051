package usecase

import (
	"context"
	"fmt"

	"ledger-service/internal/domain"
	"ledger-service/internal/repository"

	"go.uber.org/zap"
)

// AccountUsecase opens accounts and serves the read-only query surface.
// Reads take no locks; each query observes a single consistent snapshot.
type AccountUsecase struct {
	accountRepo  repository.AccountRepository
	entryRepo    repository.EntryRepository
	transferRepo repository.TransferRepository
	log          *zap.Logger
}

// NewAccountUsecase creates the account usecase.
func NewAccountUsecase(
	accountRepo repository.AccountRepository,
	entryRepo repository.EntryRepository,
	transferRepo repository.TransferRepository,
	log *zap.Logger,
) *AccountUsecase {
	return &AccountUsecase{
		accountRepo:  accountRepo,
		entryRepo:    entryRepo,
		transferRepo: transferRepo,
		log:          log,
	}
}

// OpenAccount creates an account whose number is derived from the owner's
// phone digits plus the routing prefix. Collisions are resolved by the
// store's deterministic suffix retry.
func (uc *AccountUsecase) OpenAccount(ctx context.Context, req *domain.OpenAccountRequest) (*domain.Account, error) {
	if req.OwnerID == "" {
		return nil, fmt.Errorf("%w: owner_id is required", domain.ErrInvalidRequest)
	}

	account, err := uc.accountRepo.Create(ctx, req)
	if err != nil {
		return nil, err
	}

	uc.log.Info("account opened",
		zap.Int64("account_id", account.ID),
		zap.String("account_number", account.AccountNumber),
		zap.String("account_type", string(account.AccountType)))

	return account, nil
}

// GetAccount returns the account snapshot.
func (uc *AccountUsecase) GetAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	return uc.accountRepo.GetByID(ctx, accountID)
}

// ListEntries returns the account's ledger entries, newest first, narrowed
// by the optional filter.
func (uc *AccountUsecase) ListEntries(ctx context.Context, accountID int64, f *domain.EntryFilter) ([]*domain.LedgerEntry, error) {
	if _, err := uc.accountRepo.GetByID(ctx, accountID); err != nil {
		return nil, err
	}
	return uc.entryRepo.ListByAccount(ctx, accountID, f)
}

// ListTransfers returns transfers touching the account on either side,
// newest first.
func (uc *AccountUsecase) ListTransfers(ctx context.Context, accountID int64, limit int) ([]*domain.Transfer, error) {
	if _, err := uc.accountRepo.GetByID(ctx, accountID); err != nil {
		return nil, err
	}
	return uc.transferRepo.ListByAccount(ctx, accountID, limit)
}
