package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryType classifies a ledger entry
type EntryType string

const (
	EntryTypeDeposit     EntryType = "deposit"
	EntryTypeWithdrawal  EntryType = "withdrawal"
	EntryTypeTransferIn  EntryType = "transfer_in"
	EntryTypeTransferOut EntryType = "transfer_out"
)

// Credit reports whether the entry type increases the account balance.
func (t EntryType) Credit() bool {
	return t == EntryTypeDeposit || t == EntryTypeTransferIn
}

// LedgerEntry is an immutable record of one balance-affecting event on one
// account. BalanceAfter is the balance snapshot taken in the same database
// transaction that applied the mutation. Rows are append-only.
type LedgerEntry struct {
	ID           int64           `json:"id"`
	AccountID    int64           `json:"account_id"`
	EntryType    EntryType       `json:"entry_type"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Description  string          `json:"description"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Signed returns the entry amount with its balance-effect sign applied.
func (e *LedgerEntry) Signed() decimal.Decimal {
	if e.EntryType.Credit() {
		return e.Amount
	}
	return e.Amount.Neg()
}

// EntryFilter narrows a ledger-entry listing. Nil fields are ignored.
// Results are always newest first.
type EntryFilter struct {
	EntryType *EntryType
	DateFrom  *time.Time
	DateTo    *time.Time
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	Limit     int
}
