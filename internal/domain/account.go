package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType classifies a retail account
type AccountType string

const (
	AccountTypeSavings  AccountType = "savings"
	AccountTypeChecking AccountType = "checking"
	AccountTypeBusiness AccountType = "business"
)

// ValidAccountType reports whether t is one of the supported account types.
func ValidAccountType(t AccountType) bool {
	switch t {
	case AccountTypeSavings, AccountTypeChecking, AccountTypeBusiness:
		return true
	}
	return false
}

// Account represents a customer ledger account. The balance column is the
// only authoritative balance; it is mutated exclusively inside a database
// transaction that also appends the matching ledger entry.
type Account struct {
	ID            int64           `json:"id"`
	OwnerID       string          `json:"owner_id"`
	AccountNumber string          `json:"account_number"`
	RoutingCode   string          `json:"routing_code"`
	AccountType   AccountType     `json:"account_type"`
	Balance       decimal.Decimal `json:"balance"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// OpenAccountRequest carries the inputs for opening a new account.
// The account number is derived from Phone at persistence time.
type OpenAccountRequest struct {
	OwnerID     string      `json:"owner_id"`
	Phone       string      `json:"phone"`
	AccountType AccountType `json:"account_type"`
}
