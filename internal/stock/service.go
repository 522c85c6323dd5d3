package stock

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lotline/lotline/internal/costing"
	"github.com/lotline/lotline/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	InsertLot(ctx context.Context, lot Lot) (int64, error)
	LotsForItem(ctx context.Context, filter ItemFilter) ([]costing.PurchaseLot, error)
	StockOnHand(ctx context.Context, filter ItemFilter) (decimal.Decimal, error)
	NegativeLots(ctx context.Context) ([]IntegrityIssue, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates purchase-lot operations.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// Receive records a new purchase lot.
func (s *Service) Receive(ctx context.Context, input ReceiveInput) (Lot, error) {
	if input.BrandID == 0 || input.ProductID == 0 {
		return Lot{}, errors.New("stock: brand and product required")
	}
	if !input.Quantity.IsPositive() {
		return Lot{}, ErrInvalidQuantity
	}
	if input.UnitCost.IsNegative() {
		return Lot{}, ErrInvalidUnitCost
	}
	purchaseDate := input.PurchaseDate
	if purchaseDate.IsZero() {
		purchaseDate = time.Now().UTC()
	}
	lot := Lot{
		PurchaseLot: costing.PurchaseLot{
			ItemKey:      costing.ItemKey{ProductID: input.ProductID, Variant: input.Variant},
			PurchaseDate: purchaseDate,
			UnitCost:     input.UnitCost,
			Remaining:    input.Quantity,
		},
		BrandID:   input.BrandID,
		Note:      input.Note,
		CreatedAt: time.Now().UTC(),
	}
	id, err := s.repo.InsertLot(ctx, lot)
	if err != nil {
		return Lot{}, err
	}
	lot.ID = id

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "stock:receive",
			Entity:   "purchase_lot",
			EntityID: strconv.FormatInt(id, 10),
			Meta: map[string]any{
				"brand_id":   input.BrandID,
				"product_id": input.ProductID,
				"variant":    input.Variant,
				"qty":        input.Quantity.String(),
				"unit_cost":  input.UnitCost.String(),
			},
		})
	}
	return lot, nil
}

// LotsForItem returns eligible lots for one item in allocation order.
func (s *Service) LotsForItem(ctx context.Context, filter ItemFilter) ([]costing.PurchaseLot, error) {
	if filter.BrandID == 0 || filter.ItemKey.ProductID == 0 {
		return nil, errors.New("stock: brand and product required")
	}
	return s.repo.LotsForItem(ctx, filter)
}

// StockOnHand sums remaining quantity for one item.
func (s *Service) StockOnHand(ctx context.Context, filter ItemFilter) (decimal.Decimal, error) {
	if filter.BrandID == 0 || filter.ItemKey.ProductID == 0 {
		return decimal.Zero, errors.New("stock: brand and product required")
	}
	return s.repo.StockOnHand(ctx, filter)
}

// CommitAllocation applies lot decrements from a FIFO allocation as one
// transaction. Any conditional-update miss aborts the whole commit with
// ErrConcurrentModification, leaving no partial decrement behind.
func (s *Service) CommitAllocation(ctx context.Context, allocations []costing.LotAllocation) error {
	if len(allocations) == 0 {
		return nil
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, alloc := range allocations {
			if err := tx.DecrementLot(ctx, alloc.LotID, alloc.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
}

// IntegrityScan reports lots violating the non-negative invariant.
func (s *Service) IntegrityScan(ctx context.Context) ([]IntegrityIssue, error) {
	return s.repo.NegativeLots(ctx)
}
