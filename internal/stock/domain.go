// Package stock manages purchase lots: intake, lookup, and commit-time
// decrements for FIFO allocations.
package stock

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lotline/lotline/internal/costing"
)

// Lot is a persisted purchase lot with its brand scope and audit fields.
// Lots are append-only: a fully consumed lot keeps its row for history.
type Lot struct {
	costing.PurchaseLot
	BrandID   int64
	Note      string
	CreatedAt time.Time
}

// ReceiveInput describes a stock intake.
type ReceiveInput struct {
	BrandID      int64
	ProductID    int64
	Variant      string
	Quantity     decimal.Decimal
	UnitCost     decimal.Decimal
	PurchaseDate time.Time
	Note         string
	ActorID      int64
}

// ItemFilter scopes lot queries to one item within a brand.
type ItemFilter struct {
	BrandID int64
	ItemKey costing.ItemKey
}

// IntegrityIssue reports a lot that violates the non-negative invariant.
type IntegrityIssue struct {
	LotID     int64
	BrandID   int64
	ItemKey   costing.ItemKey
	Remaining decimal.Decimal
}

// ErrConcurrentModification indicates the conditional decrement matched no
// row: another operation consumed the lot first. Callers must re-read and
// re-allocate from fresh state rather than assume partial success.
var ErrConcurrentModification = errors.New("stock: lot changed concurrently")

// ErrInvalidQuantity indicates a non-positive intake quantity.
var ErrInvalidQuantity = errors.New("stock: quantity must be positive")

// ErrInvalidUnitCost indicates a negative unit cost. Zero is valid free stock.
var ErrInvalidUnitCost = errors.New("stock: unit cost must be >= 0")
