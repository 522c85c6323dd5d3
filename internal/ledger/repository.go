package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lotline/lotline/internal/platform/db"
	"github.com/lotline/lotline/internal/shared"
)

// Repository provides PostgreSQL backed persistence for ledger entries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const entryColumns = `id, customer_id, entry_type, source_id, number, entry_date, debit, credit, balance, created_at`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	var debit, credit, balance pgtype.Numeric
	var entryDate, createdAt pgtype.Timestamptz
	if err := row.Scan(&e.ID, &e.CustomerID, &e.Type, &e.SourceID, &e.Number, &entryDate, &debit, &credit, &balance, &createdAt); err != nil {
		return Entry{}, err
	}
	e.Date = entryDate.Time
	e.CreatedAt = createdAt.Time
	e.Debit = db.NumericToDecimal(debit)
	e.Credit = db.NumericToDecimal(credit)
	e.Balance = db.NumericToDecimal(balance)
	return e, nil
}

// ListEntries returns the full history for one customer in ledger order.
func (r *Repository) ListEntries(ctx context.Context, customerID int64) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE customer_id = $1 ORDER BY entry_date, created_at, id`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// ListCustomerIDs returns every customer with at least one ledger entry.
func (r *Repository) ListCustomerIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT customer_id FROM ledger_entries ORDER BY customer_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertEntry appends an entry, deriving its balance from the customer's
// latest entry inside a repeatable-read transaction.
func (r *Repository) InsertEntry(ctx context.Context, input EntryInput) (*Entry, error) {
	var entry Entry
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var prev pgtype.Numeric
		err := tx.QueryRow(ctx, `SELECT balance FROM ledger_entries WHERE customer_id = $1 ORDER BY entry_date DESC, created_at DESC, id DESC LIMIT 1 FOR UPDATE`, input.CustomerID).Scan(&prev)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		balance := db.NumericToDecimal(prev).Add(input.Debit).Sub(input.Credit)

		now := time.Now().UTC()
		date := input.Date
		if date.IsZero() {
			date = now
		}
		row := tx.QueryRow(ctx, `INSERT INTO ledger_entries (customer_id, entry_type, source_id, number, entry_date, debit, credit, balance, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING `+entryColumns,
			input.CustomerID, input.Type, input.SourceID, input.Number,
			pgtype.Timestamptz{Time: date, Valid: true},
			db.DecimalToNumeric(input.Debit), db.DecimalToNumeric(input.Credit),
			db.DecimalToNumeric(balance),
			pgtype.Timestamptz{Time: now, Valid: true})
		entry, err = scanEntry(row)
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("ledger: number %s: %w", input.Number, shared.ErrDuplicate)
		}
		return nil, err
	}
	return &entry, nil
}

// ApplyCorrections persists balance and number deltas from a recalculation.
// The whole set commits atomically so a half-repaired ledger is never stored.
func (r *Repository) ApplyCorrections(ctx context.Context, customerID int64, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, e := range entries {
			tag, err := tx.Exec(ctx, `UPDATE ledger_entries SET balance = $1, number = $2 WHERE id = $3 AND customer_id = $4`,
				db.DecimalToNumeric(e.Balance), e.Number, e.ID, customerID)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("ledger: entry %d: %w", e.ID, shared.ErrNotFound)
			}
		}
		return nil
	})
}
