package projects

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/lotline/lotline/internal/platform/db"
	"github.com/lotline/lotline/internal/shared"
)

// Repository persists projects and expenses in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertProject stores a project and returns it with its id.
func (r *Repository) InsertProject(ctx context.Context, p Project) (Project, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO projects (brand_id, name, budget, start_date, created_at)
VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		p.BrandID, p.Name, db.DecimalToNumeric(p.Budget),
		pgtype.Timestamptz{Time: p.StartDate, Valid: true},
		pgtype.Timestamptz{Time: p.CreatedAt, Valid: true}).Scan(&p.ID)
	if err != nil {
		return Project{}, err
	}
	return p, nil
}

// GetProject loads one project.
func (r *Repository) GetProject(ctx context.Context, id int64) (Project, error) {
	var p Project
	var startDate, createdAt pgtype.Timestamptz
	var budget pgtype.Numeric
	err := r.pool.QueryRow(ctx, `SELECT id, brand_id, name, budget, start_date, created_at FROM projects WHERE id = $1`, id).
		Scan(&p.ID, &p.BrandID, &p.Name, &budget, &startDate, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Project{}, fmt.Errorf("project %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return Project{}, err
	}
	p.Budget = db.NumericToDecimal(budget)
	p.StartDate = startDate.Time
	p.CreatedAt = createdAt.Time
	return p, nil
}

// ListProjects returns one brand's projects.
func (r *Repository) ListProjects(ctx context.Context, brandID int64) ([]Project, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, brand_id, name, budget, start_date, created_at
FROM projects WHERE brand_id = $1 ORDER BY created_at DESC, id DESC`, brandID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Project
	for rows.Next() {
		var p Project
		var startDate, createdAt pgtype.Timestamptz
		var budget pgtype.Numeric
		if err := rows.Scan(&p.ID, &p.BrandID, &p.Name, &budget, &startDate, &createdAt); err != nil {
			return nil, err
		}
		p.Budget = db.NumericToDecimal(budget)
		p.StartDate = startDate.Time
		p.CreatedAt = createdAt.Time
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertExpense stores an expense row.
func (r *Repository) InsertExpense(ctx context.Context, e Expense) (Expense, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO project_expenses (project_id, category, note, amount, spent_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		e.ProjectID, e.Category, e.Note, db.DecimalToNumeric(e.Amount),
		pgtype.Timestamptz{Time: e.SpentAt, Valid: true},
		pgtype.Timestamptz{Time: e.CreatedAt, Valid: true}).Scan(&e.ID)
	if err != nil {
		return Expense{}, err
	}
	return e, nil
}

// ListExpenses returns a project's expenses newest first.
func (r *Repository) ListExpenses(ctx context.Context, projectID int64) ([]Expense, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, project_id, category, note, amount, spent_at, created_at
FROM project_expenses WHERE project_id = $1 ORDER BY spent_at DESC, id DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Expense
	for rows.Next() {
		var e Expense
		var spentAt, createdAt pgtype.Timestamptz
		var amount pgtype.Numeric
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.Category, &e.Note, &amount, &spentAt, &createdAt); err != nil {
			return nil, err
		}
		e.Amount = db.NumericToDecimal(amount)
		e.SpentAt = spentAt.Time
		e.CreatedAt = createdAt.Time
		out = append(out, e)
	}
	return out, rows.Err()
}

// TotalSpent sums a project's expenses.
func (r *Repository) TotalSpent(ctx context.Context, projectID int64) (decimal.Decimal, int, error) {
	var total pgtype.Numeric
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0), COUNT(*) FROM project_expenses WHERE project_id = $1`, projectID).
		Scan(&total, &count)
	if err != nil {
		return decimal.Zero, 0, err
	}
	return db.NumericToDecimal(total), count, nil
}
