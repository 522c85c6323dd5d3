// Package invoicing manages quotations, invoices, and payments. Posting an
// invoice is where FIFO costing, stock decrements, and the customer ledger
// meet: lines are allocated against purchase lots, cost of goods and profit
// are fixed at posting time, and a ledger debit is written.
package invoicing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus string

const (
	StatusDraft  InvoiceStatus = "draft"
	StatusPosted InvoiceStatus = "posted"
	StatusVoid   InvoiceStatus = "void"
)

// QuotationStatus is the lifecycle state of a quotation.
type QuotationStatus string

const (
	QuotationOpen      QuotationStatus = "open"
	QuotationConverted QuotationStatus = "converted"
)

// Line is one item position on an invoice or quotation. Cost fields are zero
// until the owning invoice is posted.
type Line struct {
	ID        int64
	ProductID int64
	Variant   string
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
	UnitCost  decimal.Decimal
	CostTotal decimal.Decimal
}

// Invoice is a brand-scoped sales document. Number is empty until posted;
// drafts carry only the uuid SourceID as their external reference.
type Invoice struct {
	ID         int64
	BrandID    int64
	CustomerID int64
	SourceID   string
	Number     string
	Status     InvoiceStatus
	IssueDate  time.Time
	Lines      []Line
	Subtotal   decimal.Decimal
	COGS       decimal.Decimal
	Profit     decimal.Decimal
	PostedAt   *time.Time
	CreatedAt  time.Time
}

// Quotation is a non-binding offer. It never touches stock or the ledger.
type Quotation struct {
	ID         int64
	BrandID    int64
	CustomerID int64
	Number     string
	Status     QuotationStatus
	IssueDate  time.Time
	Lines      []Line
	Subtotal   decimal.Decimal
	CreatedAt  time.Time
}

// Payment is money received against a posted invoice.
type Payment struct {
	ID        int64
	InvoiceID int64
	Number    string
	Amount    decimal.Decimal
	PaidAt    time.Time
	CreatedAt time.Time
}

// LineInput describes one requested line.
type LineInput struct {
	ProductID int64
	Variant   string
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// CreateInvoiceInput describes a new draft invoice.
type CreateInvoiceInput struct {
	BrandID    int64
	CustomerID int64
	IssueDate  time.Time
	Lines      []LineInput
	ActorID    int64
}

// CreateQuotationInput describes a new quotation.
type CreateQuotationInput struct {
	BrandID    int64
	CustomerID int64
	IssueDate  time.Time
	Lines      []LineInput
	ActorID    int64
}

// RecordPaymentInput describes a payment against an invoice.
type RecordPaymentInput struct {
	InvoiceID int64
	Amount    decimal.Decimal
	PaidAt    time.Time
	ActorID   int64
}

var (
	// ErrNotDraft indicates a state transition only valid on drafts.
	ErrNotDraft = errors.New("invoicing: invoice is not a draft")
	// ErrNotPosted indicates an operation requiring a posted invoice.
	ErrNotPosted = errors.New("invoicing: invoice is not posted")
	// ErrNoLines indicates a document without any lines.
	ErrNoLines = errors.New("invoicing: at least one line is required")
	// ErrInvalidLine indicates a non-positive quantity or negative price.
	ErrInvalidLine = errors.New("invoicing: line quantity must be positive and price non-negative")
	// ErrInvalidAmount indicates a non-positive payment amount.
	ErrInvalidAmount = errors.New("invoicing: amount must be positive")
	// ErrAlreadyConverted indicates a quotation that was converted before.
	ErrAlreadyConverted = errors.New("invoicing: quotation already converted")
)

func validateLines(lines []LineInput) error {
	if len(lines) == 0 {
		return ErrNoLines
	}
	for _, line := range lines {
		if line.ProductID == 0 || !line.Quantity.IsPositive() || line.UnitPrice.IsNegative() {
			return ErrInvalidLine
		}
	}
	return nil
}

func subtotal(lines []LineInput) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Quantity.Mul(line.UnitPrice))
	}
	return total
}
