package invoicing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lotline/lotline/internal/platform/db"
	"github.com/lotline/lotline/internal/shared"
)

// Repository persists invoicing documents in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func mapInsertErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.ErrDuplicate
	}
	return err
}

// NextSequence advances the per-brand document counter for one kind and year.
// The upsert keeps numbering gap-free under concurrent posters.
func (r *Repository) NextSequence(ctx context.Context, brandID int64, kind string, year int) (int, error) {
	var seq int
	err := r.pool.QueryRow(ctx, `INSERT INTO document_sequences (brand_id, kind, year, seq)
VALUES ($1, $2, $3, 1)
ON CONFLICT (brand_id, kind, year) DO UPDATE SET seq = document_sequences.seq + 1
RETURNING seq`, brandID, kind, year).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// BrandCode resolves a brand's short code used in document numbers.
func (r *Repository) BrandCode(ctx context.Context, brandID int64) (string, error) {
	var code string
	err := r.pool.QueryRow(ctx, `SELECT code FROM brands WHERE id = $1`, brandID).Scan(&code)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("brand %d: %w", brandID, shared.ErrNotFound)
	}
	return code, err
}

// InsertInvoice stores a draft invoice with its lines in one transaction.
func (r *Repository) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO invoices (brand_id, customer_id, source_id, status, issue_date, subtotal, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			inv.BrandID, inv.CustomerID, inv.SourceID, inv.Status,
			pgtype.Timestamptz{Time: inv.IssueDate, Valid: true},
			db.DecimalToNumeric(inv.Subtotal),
			pgtype.Timestamptz{Time: inv.CreatedAt, Valid: true}).Scan(&inv.ID)
		if err != nil {
			return err
		}
		for i := range inv.Lines {
			line := &inv.Lines[i]
			err := tx.QueryRow(ctx, `INSERT INTO invoice_lines (invoice_id, product_id, variant, quantity, unit_price, line_total)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
				inv.ID, line.ProductID, line.Variant,
				db.DecimalToNumeric(line.Quantity), db.DecimalToNumeric(line.UnitPrice),
				db.DecimalToNumeric(line.LineTotal)).Scan(&line.ID)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Invoice{}, mapInsertErr(err)
	}
	return inv, nil
}

// GetInvoice loads an invoice and its lines.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	var inv Invoice
	var issueDate, createdAt, postedAt pgtype.Timestamptz
	var number pgtype.Text
	var subtotal, cogs, profit pgtype.Numeric
	err := r.pool.QueryRow(ctx, `SELECT id, brand_id, customer_id, source_id, number, status, issue_date, subtotal, cogs, profit, posted_at, created_at
FROM invoices WHERE id = $1`, id).Scan(
		&inv.ID, &inv.BrandID, &inv.CustomerID, &inv.SourceID, &number, &inv.Status,
		&issueDate, &subtotal, &cogs, &profit, &postedAt, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, fmt.Errorf("invoice %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return Invoice{}, err
	}
	inv.Number = number.String
	inv.IssueDate = issueDate.Time
	inv.Subtotal = db.NumericToDecimal(subtotal)
	inv.COGS = db.NumericToDecimal(cogs)
	inv.Profit = db.NumericToDecimal(profit)
	inv.CreatedAt = createdAt.Time
	if postedAt.Valid {
		t := postedAt.Time
		inv.PostedAt = &t
	}

	rows, err := r.pool.Query(ctx, `SELECT id, product_id, variant, quantity, unit_price, line_total, unit_cost, cost_total
FROM invoice_lines WHERE invoice_id = $1 ORDER BY id`, id)
	if err != nil {
		return Invoice{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line Line
		var qty, price, lineTotal, unitCost, costTotal pgtype.Numeric
		if err := rows.Scan(&line.ID, &line.ProductID, &line.Variant, &qty, &price, &lineTotal, &unitCost, &costTotal); err != nil {
			return Invoice{}, err
		}
		line.Quantity = db.NumericToDecimal(qty)
		line.UnitPrice = db.NumericToDecimal(price)
		line.LineTotal = db.NumericToDecimal(lineTotal)
		line.UnitCost = db.NumericToDecimal(unitCost)
		line.CostTotal = db.NumericToDecimal(costTotal)
		inv.Lines = append(inv.Lines, line)
	}
	return inv, rows.Err()
}

// ListInvoices returns one brand's invoices newest first, without lines.
func (r *Repository) ListInvoices(ctx context.Context, brandID int64, page, perPage int) ([]Invoice, shared.Pagination, error) {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM invoices WHERE brand_id = $1`, brandID).Scan(&total); err != nil {
		return nil, shared.Pagination{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, brand_id, customer_id, source_id, number, status, issue_date, subtotal, cogs, profit, posted_at, created_at
FROM invoices WHERE brand_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		brandID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		var inv Invoice
		var issueDate, createdAt, postedAt pgtype.Timestamptz
		var number pgtype.Text
		var subtotal, cogs, profit pgtype.Numeric
		if err := rows.Scan(&inv.ID, &inv.BrandID, &inv.CustomerID, &inv.SourceID, &number, &inv.Status,
			&issueDate, &subtotal, &cogs, &profit, &postedAt, &createdAt); err != nil {
			return nil, shared.Pagination{}, err
		}
		inv.Number = number.String
		inv.IssueDate = issueDate.Time
		inv.Subtotal = db.NumericToDecimal(subtotal)
		inv.COGS = db.NumericToDecimal(cogs)
		inv.Profit = db.NumericToDecimal(profit)
		inv.CreatedAt = createdAt.Time
		if postedAt.Valid {
			t := postedAt.Time
			inv.PostedAt = &t
		}
		out = append(out, inv)
	}
	return out, shared.NewPagination(page, perPage, total), rows.Err()
}

// MarkPosted records the posting outcome: document number, fixed costs per
// line, aggregate COGS and profit, and the posting timestamp.
func (r *Repository) MarkPosted(ctx context.Context, inv Invoice) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE invoices SET number = $1, status = $2, cogs = $3, profit = $4, posted_at = $5
WHERE id = $6 AND status = 'draft'`,
			inv.Number, StatusPosted, db.DecimalToNumeric(inv.COGS), db.DecimalToNumeric(inv.Profit),
			pgtype.Timestamptz{Time: *inv.PostedAt, Valid: true}, inv.ID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotDraft
		}
		for _, line := range inv.Lines {
			tag, err := tx.Exec(ctx, `UPDATE invoice_lines SET unit_cost = $1, cost_total = $2 WHERE id = $3 AND invoice_id = $4`,
				db.DecimalToNumeric(line.UnitCost), db.DecimalToNumeric(line.CostTotal), line.ID, inv.ID)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("invoice line %d: %w", line.ID, shared.ErrNotFound)
			}
		}
		return nil
	})
	return mapInsertErr(err)
}

// MarkVoid transitions a posted invoice to void.
func (r *Repository) MarkVoid(ctx context.Context, invoiceID int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE invoices SET status = $1 WHERE id = $2 AND status = 'posted'`, StatusVoid, invoiceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPosted
	}
	return nil
}

// InsertPayment stores a payment row.
func (r *Repository) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO payments (invoice_id, number, amount, paid_at, created_at)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		p.InvoiceID, p.Number, db.DecimalToNumeric(p.Amount),
		pgtype.Timestamptz{Time: p.PaidAt, Valid: true},
		pgtype.Timestamptz{Time: p.CreatedAt, Valid: true}).Scan(&p.ID)
	if err != nil {
		return Payment{}, mapInsertErr(err)
	}
	return p, nil
}

// CountPayments returns how many payments exist for an invoice. The next
// payment's ordinal is this count plus one.
func (r *Repository) CountPayments(ctx context.Context, invoiceID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM payments WHERE invoice_id = $1`, invoiceID).Scan(&n)
	return n, err
}

// InsertQuotation stores a quotation with its lines.
func (r *Repository) InsertQuotation(ctx context.Context, q Quotation) (Quotation, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO quotations (brand_id, customer_id, number, status, issue_date, subtotal, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			q.BrandID, q.CustomerID, q.Number, q.Status,
			pgtype.Timestamptz{Time: q.IssueDate, Valid: true},
			db.DecimalToNumeric(q.Subtotal),
			pgtype.Timestamptz{Time: q.CreatedAt, Valid: true}).Scan(&q.ID)
		if err != nil {
			return err
		}
		for i := range q.Lines {
			line := &q.Lines[i]
			err := tx.QueryRow(ctx, `INSERT INTO quotation_lines (quotation_id, product_id, variant, quantity, unit_price, line_total)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
				q.ID, line.ProductID, line.Variant,
				db.DecimalToNumeric(line.Quantity), db.DecimalToNumeric(line.UnitPrice),
				db.DecimalToNumeric(line.LineTotal)).Scan(&line.ID)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Quotation{}, mapInsertErr(err)
	}
	return q, nil
}

// GetQuotation loads a quotation and its lines.
func (r *Repository) GetQuotation(ctx context.Context, id int64) (Quotation, error) {
	var q Quotation
	var issueDate, createdAt pgtype.Timestamptz
	var subtotal pgtype.Numeric
	err := r.pool.QueryRow(ctx, `SELECT id, brand_id, customer_id, number, status, issue_date, subtotal, created_at
FROM quotations WHERE id = $1`, id).Scan(
		&q.ID, &q.BrandID, &q.CustomerID, &q.Number, &q.Status, &issueDate, &subtotal, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Quotation{}, fmt.Errorf("quotation %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return Quotation{}, err
	}
	q.IssueDate = issueDate.Time
	q.Subtotal = db.NumericToDecimal(subtotal)
	q.CreatedAt = createdAt.Time

	rows, err := r.pool.Query(ctx, `SELECT id, product_id, variant, quantity, unit_price, line_total
FROM quotation_lines WHERE quotation_id = $1 ORDER BY id`, id)
	if err != nil {
		return Quotation{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line Line
		var qty, price, lineTotal pgtype.Numeric
		if err := rows.Scan(&line.ID, &line.ProductID, &line.Variant, &qty, &price, &lineTotal); err != nil {
			return Quotation{}, err
		}
		line.Quantity = db.NumericToDecimal(qty)
		line.UnitPrice = db.NumericToDecimal(price)
		line.LineTotal = db.NumericToDecimal(lineTotal)
		q.Lines = append(q.Lines, line)
	}
	return q, rows.Err()
}

// MarkQuotationConverted flips an open quotation to converted exactly once.
func (r *Repository) MarkQuotationConverted(ctx context.Context, id int64, invoiceID int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE quotations SET status = $1, invoice_id = $2 WHERE id = $3 AND status = 'open'`,
		QuotationConverted, invoiceID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyConverted
	}
	return nil
}
