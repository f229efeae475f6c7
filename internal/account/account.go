package account

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("account not found")
	ErrSuspended       = errors.New("account suspended")
	ErrInvalidAmount   = errors.New("amount must be greater than zero")
	ErrInvalidLimit    = errors.New("credit limit must not be negative")
	ErrInvalidName     = errors.New("organisation name is required")
	ErrStatusUnchanged = errors.New("account already has that status")
)

// InsufficientCreditError is returned when a debit exceeds the available credit.
type InsufficientCreditError struct {
	Available int64
	Requested int64
}

func (e *InsufficientCreditError) Error() string {
	return fmt.Sprintf("insufficient credit: available %d, requested %d, short by %d",
		e.Available, e.Requested, e.Shortfall())
}

func (e *InsufficientCreditError) Shortfall() int64 {
	return e.Requested - e.Available
}

// Status represents whether an account may be debited or credited.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// TxType is the kind of ledger entry.
type TxType string

const (
	TxDebit  TxType = "debit"
	TxCredit TxType = "credit"
	TxRefund TxType = "refund"
)

// Account is an organisation's revolving credit line used for purchase-order bookings.
type Account struct {
	ID               uuid.UUID
	AccountNumber    string
	OrganisationName string
	ContactEmail     string
	CreditLimit      int64 // Amounts in pence
	CurrentBalance   int64
	AvailableCredit  int64
	Status           Status
	CreatedAt        time.Time
	CreatedBy        string
	UpdatedAt        time.Time
}

// Transaction is an append-only ledger entry against an account.
type Transaction struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	Type        TxType
	Amount      int64
	BookingRef  string
	Description string
	CreatedAt   time.Time
	CreatedBy   string
}

// Signed returns the effect of the entry on the account balance.
func (t *Transaction) Signed() int64 {
	if t.Type == TxDebit {
		return t.Amount
	}

	return -t.Amount
}
