package stock

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/lotline/lotline/internal/costing"
	"github.com/lotline/lotline/internal/platform/db"
)

// Repository persists purchase lots in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	DecrementLot(ctx context.Context, lotID int64, qty decimal.Decimal) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps the callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// InsertLot stores a received lot and returns its id.
func (r *Repository) InsertLot(ctx context.Context, lot Lot) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO purchase_lots (brand_id, product_id, variant, purchase_date, unit_cost, remaining_qty, note, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		lot.BrandID, lot.ItemKey.ProductID, lot.ItemKey.Variant,
		pgtype.Timestamptz{Time: lot.PurchaseDate, Valid: true},
		db.DecimalToNumeric(lot.UnitCost), db.DecimalToNumeric(lot.Remaining),
		lot.Note, pgtype.Timestamptz{Time: lot.CreatedAt, Valid: true}).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// LotsForItem returns lots with positive remaining stock for one item,
// oldest purchase first with id tie-break, matching allocation order.
func (r *Repository) LotsForItem(ctx context.Context, filter ItemFilter) ([]costing.PurchaseLot, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, variant, purchase_date, unit_cost, remaining_qty
FROM purchase_lots
WHERE brand_id = $1 AND product_id = $2 AND variant = $3 AND remaining_qty > 0
ORDER BY purchase_date, id`, filter.BrandID, filter.ItemKey.ProductID, filter.ItemKey.Variant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lots []costing.PurchaseLot
	for rows.Next() {
		var lot costing.PurchaseLot
		var purchaseDate pgtype.Timestamptz
		var unitCost, remaining pgtype.Numeric
		if err := rows.Scan(&lot.ID, &lot.ItemKey.ProductID, &lot.ItemKey.Variant, &purchaseDate, &unitCost, &remaining); err != nil {
			return nil, err
		}
		lot.PurchaseDate = purchaseDate.Time
		lot.UnitCost = db.NumericToDecimal(unitCost)
		lot.Remaining = db.NumericToDecimal(remaining)
		lots = append(lots, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lots, nil
}

// StockOnHand sums remaining quantity for one item.
func (r *Repository) StockOnHand(ctx context.Context, filter ItemFilter) (decimal.Decimal, error) {
	var total pgtype.Numeric
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(remaining_qty), 0) FROM purchase_lots
WHERE brand_id = $1 AND product_id = $2 AND variant = $3`,
		filter.BrandID, filter.ItemKey.ProductID, filter.ItemKey.Variant).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return db.NumericToDecimal(total), nil
}

// NegativeLots returns lots whose remaining quantity went below zero.
// A healthy system returns nothing here; the integrity scan reports hits.
func (r *Repository) NegativeLots(ctx context.Context) ([]IntegrityIssue, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, brand_id, product_id, variant, remaining_qty FROM purchase_lots WHERE remaining_qty < 0 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var issues []IntegrityIssue
	for rows.Next() {
		var issue IntegrityIssue
		var remaining pgtype.Numeric
		if err := rows.Scan(&issue.LotID, &issue.BrandID, &issue.ItemKey.ProductID, &issue.ItemKey.Variant, &remaining); err != nil {
			return nil, err
		}
		issue.Remaining = db.NumericToDecimal(remaining)
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

// DecrementLot applies a conditional decrement. The WHERE guard keeps the
// remaining quantity from ever going negative; a zero row count means the
// lot was consumed concurrently.
func (r *txRepo) DecrementLot(ctx context.Context, lotID int64, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return ErrInvalidQuantity
	}
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_lots SET remaining_qty = remaining_qty - $1 WHERE id = $2 AND remaining_qty >= $1`,
		db.DecimalToNumeric(qty), lotID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrentModification
	}
	return nil
}
