package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OperationResult is the outcome of a successful deposit or withdrawal.
type OperationResult struct {
	EntryID    int64           `json:"entry_id"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// TransferResult is the outcome of a successful transfer. NewBalance is the
// source account's balance after the debit.
type TransferResult struct {
	TransferID int64           `json:"transfer_id"`
	Reference  string          `json:"reference"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// MutationOutcome is the tagged result shape returned by the mutation
// surface: success carries the updated balance and the row id, failure
// carries a structured error. Exactly one branch is populated.
type MutationOutcome struct {
	Success bool `json:"success"`

	Balance *decimal.Decimal `json:"balance,omitempty"`
	ID      int64            `json:"id,omitempty"`

	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// OkOutcome builds the success branch.
func OkOutcome(balance decimal.Decimal, id int64) MutationOutcome {
	return MutationOutcome{Success: true, Balance: &balance, ID: id}
}

// ErrOutcome builds the failure branch from a ledger error.
func ErrOutcome(err error) MutationOutcome {
	return MutationOutcome{Success: false, ErrorKind: KindOf(err), Message: err.Error()}
}

// OperationEvent is handed to the external notification collaborator after
// every completed mutation. Delivery is fire-and-forget; it never blocks or
// fails the mutation it documents.
type OperationEvent struct {
	AccountID    int64           `json:"account_id"`
	EventType    EntryType       `json:"event_type"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	TransferID   *int64          `json:"transfer_id,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// SystemMetric is one sampled gauge in the system_metrics table.
type SystemMetric struct {
	ID         int64           `json:"id"`
	MetricName string          `json:"metric_name"`
	Value      decimal.Decimal `json:"metric_value"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// Role is a server-verified role claim resolved from the role-assignment
// table, never from client-held state.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)
