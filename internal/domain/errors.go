package domain

import "errors"

// Ledger error taxonomy. Validation errors are returned before any lock is
// taken; ErrConcurrencyConflict is retryable and retried internally before
// being surfaced; ErrPersistenceFailure is fatal and guarantees no partial
// write was left behind.
var (
	ErrInvalidAmount          = errors.New("amount must be greater than zero")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrAccountNotFound        = errors.New("account not found")
	ErrSelfTransferNotAllowed = errors.New("cannot transfer to the same account")
	ErrConcurrencyConflict    = errors.New("concurrent modification, retry")
	ErrPersistenceFailure     = errors.New("persistence failure")

	ErrAccountInactive = errors.New("account is inactive")
	ErrInvalidRequest  = errors.New("invalid request")
)

// ErrorKind is the stable machine-readable code exposed to callers.
type ErrorKind string

const (
	KindInvalidAmount       ErrorKind = "invalid_amount"
	KindInsufficientFunds   ErrorKind = "insufficient_funds"
	KindAccountNotFound     ErrorKind = "account_not_found"
	KindSelfTransfer        ErrorKind = "self_transfer_not_allowed"
	KindConcurrencyConflict ErrorKind = "concurrency_conflict"
	KindPersistenceFailure  ErrorKind = "persistence_failure"
	KindAccountInactive     ErrorKind = "account_inactive"
	KindInvalidRequest      ErrorKind = "invalid_request"
)

// KindOf maps a ledger error to its caller-facing kind.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		return KindInvalidAmount
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrAccountNotFound):
		return KindAccountNotFound
	case errors.Is(err, ErrSelfTransferNotAllowed):
		return KindSelfTransfer
	case errors.Is(err, ErrConcurrencyConflict):
		return KindConcurrencyConflict
	case errors.Is(err, ErrAccountInactive):
		return KindAccountInactive
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	default:
		return KindPersistenceFailure
	}
}
