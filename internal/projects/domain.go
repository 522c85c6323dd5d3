// Package projects tracks per-brand project budgets and the expenses booked
// against them.
package projects

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Project is a budgeted unit of work owned by one brand.
type Project struct {
	ID        int64
	BrandID   int64
	Name      string
	Budget    decimal.Decimal
	StartDate time.Time
	CreatedAt time.Time
}

// Expense is money spent against a project.
type Expense struct {
	ID        int64
	ProjectID int64
	Category  string
	Note      string
	Amount    decimal.Decimal
	SpentAt   time.Time
	CreatedAt time.Time
}

// SpendSummary aggregates a project's budget consumption.
type SpendSummary struct {
	ProjectID  int64           `json:"project_id"`
	Budget     decimal.Decimal `json:"budget"`
	Spent      decimal.Decimal `json:"spent"`
	Remaining  decimal.Decimal `json:"remaining"`
	OverBudget bool            `json:"over_budget"`
	Expenses   int             `json:"expenses"`
}

// CreateProjectInput describes a new project.
type CreateProjectInput struct {
	BrandID   int64
	Name      string
	Budget    decimal.Decimal
	StartDate time.Time
	ActorID   int64
}

// RecordExpenseInput describes a new expense.
type RecordExpenseInput struct {
	ProjectID int64
	Category  string
	Note      string
	Amount    decimal.Decimal
	SpentAt   time.Time
	ActorID   int64
}

var (
	// ErrInvalidBudget indicates a negative budget. Zero means untracked.
	ErrInvalidBudget = errors.New("projects: budget must be >= 0")
	// ErrInvalidAmount indicates a non-positive expense amount.
	ErrInvalidAmount = errors.New("projects: amount must be positive")
	// ErrNameRequired indicates a missing project name.
	ErrNameRequired = errors.New("projects: name is required")
)
