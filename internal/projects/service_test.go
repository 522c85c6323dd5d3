package projects

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/lotline/lotline/internal/shared"
)

type memoryProjectRepo struct {
	projects map[int64]*Project
	expenses map[int64]*Expense
	nextID   int64
}

func newMemoryProjectRepo() *memoryProjectRepo {
	return &memoryProjectRepo{projects: make(map[int64]*Project), expenses: make(map[int64]*Expense)}
}

func (r *memoryProjectRepo) InsertProject(ctx context.Context, p Project) (Project, error) {
	r.nextID++
	p.ID = r.nextID
	stored := p
	r.projects[p.ID] = &stored
	return p, nil
}

func (r *memoryProjectRepo) GetProject(ctx context.Context, id int64) (Project, error) {
	p, ok := r.projects[id]
	if !ok {
		return Project{}, shared.ErrNotFound
	}
	return *p, nil
}

func (r *memoryProjectRepo) ListProjects(ctx context.Context, brandID int64) ([]Project, error) {
	var out []Project
	for _, p := range r.projects {
		if p.BrandID == brandID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memoryProjectRepo) InsertExpense(ctx context.Context, e Expense) (Expense, error) {
	r.nextID++
	e.ID = r.nextID
	stored := e
	r.expenses[e.ID] = &stored
	return e, nil
}

func (r *memoryProjectRepo) ListExpenses(ctx context.Context, projectID int64) ([]Expense, error) {
	var out []Expense
	for _, e := range r.expenses {
		if e.ProjectID == projectID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *memoryProjectRepo) TotalSpent(ctx context.Context, projectID int64) (decimal.Decimal, int, error) {
	total := decimal.Zero
	count := 0
	for _, e := range r.expenses {
		if e.ProjectID == projectID {
			total = total.Add(e.Amount)
			count++
		}
	}
	return total, count, nil
}

func newProject(t *testing.T, svc *Service, budget int64) Project {
	t.Helper()
	p, err := svc.CreateProject(context.Background(), CreateProjectInput{
		BrandID: 1,
		Name:    "Spring launch",
		Budget:  decimal.NewFromInt(budget),
	})
	require.NoError(t, err)
	return p
}

func TestCreateProjectValidation(t *testing.T) {
	svc := NewService(newMemoryProjectRepo(), nil)
	ctx := context.Background()

	_, err := svc.CreateProject(ctx, CreateProjectInput{BrandID: 1, Name: "  ", Budget: decimal.NewFromInt(10)})
	require.ErrorIs(t, err, ErrNameRequired)

	_, err = svc.CreateProject(ctx, CreateProjectInput{BrandID: 1, Name: "x", Budget: decimal.NewFromInt(-1)})
	require.ErrorIs(t, err, ErrInvalidBudget)

	_, err = svc.CreateProject(ctx, CreateProjectInput{Name: "x", Budget: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestRecordExpenseRequiresExistingProject(t *testing.T) {
	svc := NewService(newMemoryProjectRepo(), nil)

	_, err := svc.RecordExpense(context.Background(), RecordExpenseInput{
		ProjectID: 99,
		Category:  "materials",
		Amount:    decimal.NewFromInt(50),
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRecordExpenseRejectsNonPositiveAmount(t *testing.T) {
	svc := NewService(newMemoryProjectRepo(), nil)
	p := newProject(t, svc, 100)

	_, err := svc.RecordExpense(context.Background(), RecordExpenseInput{
		ProjectID: p.ID,
		Category:  "materials",
		Amount:    decimal.Zero,
	})
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestSpendSummary(t *testing.T) {
	svc := NewService(newMemoryProjectRepo(), nil)
	ctx := context.Background()
	p := newProject(t, svc, 100)

	for _, amount := range []int64{30, 25} {
		_, err := svc.RecordExpense(ctx, RecordExpenseInput{
			ProjectID: p.ID,
			Category:  "materials",
			Amount:    decimal.NewFromInt(amount),
		})
		require.NoError(t, err)
	}

	summary, err := svc.SpendSummary(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, summary.Spent.Equal(decimal.NewFromInt(55)))
	require.True(t, summary.Remaining.Equal(decimal.NewFromInt(45)))
	require.False(t, summary.OverBudget)
	require.Equal(t, 2, summary.Expenses)
}

func TestSpendSummaryOverBudget(t *testing.T) {
	svc := NewService(newMemoryProjectRepo(), nil)
	ctx := context.Background()
	p := newProject(t, svc, 100)

	// Over-budget spend is allowed; the summary flags it.
	_, err := svc.RecordExpense(ctx, RecordExpenseInput{
		ProjectID: p.ID,
		Category:  "freight",
		Amount:    decimal.NewFromInt(130),
	})
	require.NoError(t, err)

	summary, err := svc.SpendSummary(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, summary.Remaining.Equal(decimal.NewFromInt(-30)))
	require.True(t, summary.OverBudget)
}
