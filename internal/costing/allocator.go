// Package costing implements FIFO purchase-lot cost allocation.
package costing

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ItemKey identifies a product variant that purchase lots belong to.
type ItemKey struct {
	ProductID int64
	Variant   string
}

// PurchaseLot is a batch of stock received at a specific time and unit cost.
type PurchaseLot struct {
	ID           int64
	ItemKey      ItemKey
	PurchaseDate time.Time
	UnitCost     decimal.Decimal
	Remaining    decimal.Decimal
}

// AllocationRequest asks for a quantity of one item. Reserved carries
// quantities already earmarked from specific lots by earlier lines of the
// same uncommitted operation, so one lot is never promised twice within a
// single commit unit.
type AllocationRequest struct {
	ItemKey  ItemKey
	Quantity decimal.Decimal
	Reserved map[int64]decimal.Decimal
}

// LotAllocation records how much was taken from one lot and at what cost.
type LotAllocation struct {
	LotID    int64
	Quantity decimal.Decimal
	UnitCost decimal.Decimal
}

// AllocationResult is the full set of lot consumptions for a request.
// Allocations always sum exactly to the requested quantity.
type AllocationResult struct {
	Allocations []LotAllocation
	TotalCost   decimal.Decimal
	UnitCost    decimal.Decimal
}

// ErrInvalidQuantity indicates a non-positive requested quantity.
var ErrInvalidQuantity = errors.New("costing: quantity must be positive")

// ErrInsufficientStock indicates eligible lots cannot cover the request.
var ErrInsufficientStock = errors.New("costing: insufficient stock")

// InsufficientStockError carries the shortfall and the partial allocation
// computed before lots ran out. Whether to accept partial fulfilment is the
// caller's decision.
type InsufficientStockError struct {
	Shortfall decimal.Decimal
	Partial   []LotAllocation
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("costing: insufficient stock, short %s", e.Shortfall)
}

// Unwrap lets callers match with errors.Is(err, ErrInsufficientStock).
func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

type eligibleLot struct {
	lot       PurchaseLot
	effective decimal.Decimal
}

// Allocate selects lots for the requested quantity, oldest purchase first.
// Lots not matching the request's item key are ignored, so callers may pass
// mixed slices. The input slice is never mutated; persisting the decrements
// is the caller's responsibility.
func Allocate(req AllocationRequest, lots []PurchaseLot) (AllocationResult, error) {
	if !req.Quantity.IsPositive() {
		return AllocationResult{}, ErrInvalidQuantity
	}

	eligible := make([]eligibleLot, 0, len(lots))
	for _, lot := range lots {
		if lot.ItemKey != req.ItemKey {
			continue
		}
		effective := lot.Remaining
		if reserved, ok := req.Reserved[lot.ID]; ok {
			effective = effective.Sub(reserved)
		}
		if !effective.IsPositive() {
			continue
		}
		eligible = append(eligible, eligibleLot{lot: lot, effective: effective})
	}

	// Oldest purchase first, lot id breaks same-date ties for determinism.
	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i].lot, eligible[j].lot
		if !a.PurchaseDate.Equal(b.PurchaseDate) {
			return a.PurchaseDate.Before(b.PurchaseDate)
		}
		return a.ID < b.ID
	})

	stillNeeded := req.Quantity
	allocations := make([]LotAllocation, 0, len(eligible))
	totalCost := decimal.Zero
	for _, el := range eligible {
		if !stillNeeded.IsPositive() {
			break
		}
		take := decimal.Min(el.effective, stillNeeded)
		allocations = append(allocations, LotAllocation{
			LotID:    el.lot.ID,
			Quantity: take,
			UnitCost: el.lot.UnitCost,
		})
		totalCost = totalCost.Add(take.Mul(el.lot.UnitCost))
		stillNeeded = stillNeeded.Sub(take)
	}

	if stillNeeded.IsPositive() {
		return AllocationResult{}, &InsufficientStockError{
			Shortfall: stillNeeded,
			Partial:   allocations,
		}
	}

	return AllocationResult{
		Allocations: allocations,
		TotalCost:   totalCost,
		UnitCost:    totalCost.Div(req.Quantity),
	}, nil
}
