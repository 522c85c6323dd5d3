package projects

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/lotline/lotline/internal/platform/httpx"
)

// Handler wires HTTP endpoints for projects and expenses.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs projects handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers project routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/projects", h.createProject)
	r.Get("/projects", h.listProjects)
	r.Get("/projects/{projectID}", h.getProject)
	r.Post("/projects/{projectID}/expenses", h.recordExpense)
	r.Get("/projects/{projectID}/expenses", h.listExpenses)
	r.Get("/projects/{projectID}/summary", h.spendSummary)
}

func projectID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "projectID"), 10, 64)
}

type projectResponse struct {
	ID        int64     `json:"id"`
	BrandID   int64     `json:"brand_id"`
	Name      string    `json:"name"`
	Budget    string    `json:"budget"`
	StartDate time.Time `json:"start_date"`
	CreatedAt time.Time `json:"created_at"`
}

func toProjectResponse(p Project) projectResponse {
	return projectResponse{
		ID:        p.ID,
		BrandID:   p.BrandID,
		Name:      p.Name,
		Budget:    p.Budget.String(),
		StartDate: p.StartDate,
		CreatedAt: p.CreatedAt,
	}
}

type createProjectRequest struct {
	BrandID   int64  `json:"brand_id" validate:"required,gt=0"`
	Name      string `json:"name" validate:"required,max=200"`
	Budget    string `json:"budget" validate:"required"`
	StartDate string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
}

func (h *Handler) createProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	budget, err := decimal.NewFromString(req.Budget)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "budget must be a number")
		return
	}
	input := CreateProjectInput{BrandID: req.BrandID, Name: req.Name, Budget: budget}
	if req.StartDate != "" {
		input.StartDate, _ = time.Parse("2006-01-02", req.StartDate)
	}
	project, err := h.service.CreateProject(r.Context(), input)
	if err != nil {
		if errors.Is(err, ErrInvalidBudget) || errors.Is(err, ErrNameRequired) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		h.logger.Error("create project", slog.Int64("brand_id", req.BrandID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toProjectResponse(project))
}

func (h *Handler) listProjects(w http.ResponseWriter, r *http.Request) {
	brandID, err := strconv.ParseInt(r.URL.Query().Get("brand_id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "brand_id is required")
		return
	}
	list, err := h.service.ListProjects(r.Context(), brandID)
	if err != nil {
		h.logger.Error("list projects", slog.Int64("brand_id", brandID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]projectResponse, 0, len(list))
	for _, p := range list {
		out = append(out, toProjectResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"projects": out})
}

func (h *Handler) getProject(w http.ResponseWriter, r *http.Request) {
	id, err := projectID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid project id")
		return
	}
	project, err := h.service.GetProject(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProjectResponse(project))
}

type expenseRequest struct {
	Category string `json:"category" validate:"required,max=100"`
	Note     string `json:"note" validate:"omitempty,max=500"`
	Amount   string `json:"amount" validate:"required"`
	SpentAt  string `json:"spent_at" validate:"omitempty,datetime=2006-01-02"`
}

func (h *Handler) recordExpense(w http.ResponseWriter, r *http.Request) {
	id, err := projectID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid project id")
		return
	}
	var req expenseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be a number")
		return
	}
	input := RecordExpenseInput{ProjectID: id, Category: req.Category, Note: req.Note, Amount: amount}
	if req.SpentAt != "" {
		input.SpentAt, _ = time.Parse("2006-01-02", req.SpentAt)
	}
	expense, err := h.service.RecordExpense(r.Context(), input)
	if err != nil {
		if errors.Is(err, ErrInvalidAmount) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		h.logger.Error("record expense", slog.Int64("project_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":         expense.ID,
		"project_id": expense.ProjectID,
		"category":   expense.Category,
		"amount":     expense.Amount.String(),
		"spent_at":   expense.SpentAt,
	})
}

func (h *Handler) listExpenses(w http.ResponseWriter, r *http.Request) {
	id, err := projectID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid project id")
		return
	}
	expenses, err := h.service.ListExpenses(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	type expenseResponse struct {
		ID       int64     `json:"id"`
		Category string    `json:"category"`
		Note     string    `json:"note,omitempty"`
		Amount   string    `json:"amount"`
		SpentAt  time.Time `json:"spent_at"`
	}
	out := make([]expenseResponse, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, expenseResponse{
			ID:       e.ID,
			Category: e.Category,
			Note:     e.Note,
			Amount:   e.Amount.String(),
			SpentAt:  e.SpentAt,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"expenses": out})
}

func (h *Handler) spendSummary(w http.ResponseWriter, r *http.Request) {
	id, err := projectID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid project id")
		return
	}
	summary, err := h.service.SpendSummary(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}
