package projects

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lotline/lotline/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	InsertProject(ctx context.Context, p Project) (Project, error)
	GetProject(ctx context.Context, id int64) (Project, error)
	ListProjects(ctx context.Context, brandID int64) ([]Project, error)
	InsertExpense(ctx context.Context, e Expense) (Expense, error)
	ListExpenses(ctx context.Context, projectID int64) ([]Expense, error)
	TotalSpent(ctx context.Context, projectID int64) (decimal.Decimal, int, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates project budgeting.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// CreateProject stores a new budgeted project.
func (s *Service) CreateProject(ctx context.Context, input CreateProjectInput) (Project, error) {
	if input.BrandID == 0 {
		return Project{}, fmt.Errorf("projects: brand required: %w", shared.ErrValidation)
	}
	if strings.TrimSpace(input.Name) == "" {
		return Project{}, ErrNameRequired
	}
	if input.Budget.IsNegative() {
		return Project{}, ErrInvalidBudget
	}
	startDate := input.StartDate
	if startDate.IsZero() {
		startDate = time.Now().UTC()
	}
	created, err := s.repo.InsertProject(ctx, Project{
		BrandID:   input.BrandID,
		Name:      strings.TrimSpace(input.Name),
		Budget:    input.Budget,
		StartDate: startDate,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return Project{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "project:create",
			Entity:   "project",
			EntityID: strconv.FormatInt(created.ID, 10),
			Meta:     map[string]any{"brand_id": created.BrandID, "budget": created.Budget.String()},
		})
	}
	return created, nil
}

// GetProject loads one project.
func (s *Service) GetProject(ctx context.Context, id int64) (Project, error) {
	return s.repo.GetProject(ctx, id)
}

// ListProjects returns one brand's projects.
func (s *Service) ListProjects(ctx context.Context, brandID int64) ([]Project, error) {
	if brandID == 0 {
		return nil, fmt.Errorf("projects: brand required: %w", shared.ErrValidation)
	}
	return s.repo.ListProjects(ctx, brandID)
}

// RecordExpense books spend against a project. The project must exist; the
// amount must be positive. Over-budget spend is allowed and surfaced through
// the summary, not blocked here.
func (s *Service) RecordExpense(ctx context.Context, input RecordExpenseInput) (Expense, error) {
	if !input.Amount.IsPositive() {
		return Expense{}, ErrInvalidAmount
	}
	if _, err := s.repo.GetProject(ctx, input.ProjectID); err != nil {
		return Expense{}, err
	}
	spentAt := input.SpentAt
	if spentAt.IsZero() {
		spentAt = time.Now().UTC()
	}
	created, err := s.repo.InsertExpense(ctx, Expense{
		ProjectID: input.ProjectID,
		Category:  input.Category,
		Note:      input.Note,
		Amount:    input.Amount,
		SpentAt:   spentAt,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return Expense{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "project:expense",
			Entity:   "project_expense",
			EntityID: strconv.FormatInt(created.ID, 10),
			Meta:     map[string]any{"project_id": created.ProjectID, "amount": created.Amount.String()},
		})
	}
	return created, nil
}

// ListExpenses returns a project's expenses.
func (s *Service) ListExpenses(ctx context.Context, projectID int64) ([]Expense, error) {
	if _, err := s.repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.repo.ListExpenses(ctx, projectID)
}

// SpendSummary reports budget consumption for one project.
func (s *Service) SpendSummary(ctx context.Context, projectID int64) (SpendSummary, error) {
	project, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return SpendSummary{}, err
	}
	spent, count, err := s.repo.TotalSpent(ctx, projectID)
	if err != nil {
		return SpendSummary{}, err
	}
	remaining := project.Budget.Sub(spent)
	return SpendSummary{
		ProjectID:  projectID,
		Budget:     project.Budget,
		Spent:      spent,
		Remaining:  remaining,
		OverBudget: remaining.IsNegative(),
		Expenses:   count,
	}, nil
}
