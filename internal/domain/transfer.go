package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferStatus is the transfer state machine. pending is the only
// non-terminal state: pending -> completed or pending -> failed, and
// terminal rows are never mutated again.
type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusCompleted TransferStatus = "completed"
	TransferStatusFailed    TransferStatus = "failed"
)

// Transfer is a two-account money movement. A completed transfer owns
// exactly two ledger entries (transfer_out on the source, transfer_in on the
// destination); a pending or failed transfer owns none.
type Transfer struct {
	ID              int64           `json:"id"`
	Reference       string          `json:"reference"`
	FromAccountID   int64           `json:"from_account_id"`
	ToAccountNumber string          `json:"to_account_number"`
	ToAccountID     *int64          `json:"to_account_id,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	Status          TransferStatus  `json:"status"`
	Description     string          `json:"description"`
	CreatedAt       time.Time       `json:"created_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}
