// Package ledger maintains per-customer running-balance ledgers.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EntryType enumerates ledger-affecting transaction kinds.
type EntryType string

const (
	EntryTypeInvoice    EntryType = "invoice"
	EntryTypePayment    EntryType = "payment"
	EntryTypeAdjustment EntryType = "adjustment"
	EntryTypeCreditNote EntryType = "credit_note"
	EntryTypeDebitNote  EntryType = "debit_note"
)

// Entry is a single debit or credit transaction for a customer. Exactly one
// of Debit/Credit is positive. Balance is the running total after this entry
// in (Date, CreatedAt, ID) order.
type Entry struct {
	ID         int64
	CustomerID int64
	Type       EntryType
	SourceID   string
	Number     string
	Date       time.Time
	Debit      decimal.Decimal
	Credit     decimal.Decimal
	Balance    decimal.Decimal
	CreatedAt  time.Time
}

// EntryInput describes a new ledger entry before persistence assigns the
// running balance.
type EntryInput struct {
	CustomerID int64
	Type       EntryType
	SourceID   string
	Number     string
	Date       time.Time
	Debit      decimal.Decimal
	Credit     decimal.Decimal
}

// Summary aggregates a customer's ledger. Balance must always equal the
// Balance field of the most recent entry.
type Summary struct {
	CustomerID  int64           `json:"customer_id"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
	Balance     decimal.Decimal `json:"balance"`
	EntryCount  int             `json:"entry_count"`
}

// ErrMalformedEntry indicates the debit/credit exclusivity invariant is
// violated: both positive, both zero, or a negative amount.
var ErrMalformedEntry = errors.New("ledger: exactly one of debit or credit must be positive")

// ErrCustomerRequired indicates a missing customer id.
var ErrCustomerRequired = errors.New("ledger: customer id required")

// EntryError reports a single rejected entry during recalculation.
type EntryError struct {
	EntryID int64
	Err     error
}

func (e EntryError) Error() string {
	return fmt.Sprintf("ledger: entry %d: %v", e.EntryID, e.Err)
}

func (e EntryError) Unwrap() error { return e.Err }

// validateAmounts enforces the debit-XOR-credit invariant.
func validateAmounts(debit, credit decimal.Decimal) error {
	if debit.IsNegative() || credit.IsNegative() {
		return ErrMalformedEntry
	}
	if debit.IsPositive() == credit.IsPositive() {
		return ErrMalformedEntry
	}
	return nil
}
