package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/lotline/lotline/internal/platform/httpx"
)

// Handler wires HTTP endpoints for customer ledgers.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/customers/{customerID}/entries", h.listEntries)
	r.Get("/customers/{customerID}/summary", h.getSummary)
	r.Post("/customers/{customerID}/adjustments", h.createAdjustment)
	r.Post("/customers/{customerID}/reconcile", h.reconcile)
}

func customerID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "customerID"), 10, 64)
}

type entryResponse struct {
	ID        int64     `json:"id"`
	Type      EntryType `json:"type"`
	SourceID  string    `json:"source_id,omitempty"`
	Number    string    `json:"number"`
	Date      time.Time `json:"date"`
	Debit     string    `json:"debit"`
	Credit    string    `json:"credit"`
	Balance   string    `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

func toEntryResponse(e Entry) entryResponse {
	return entryResponse{
		ID:        e.ID,
		Type:      e.Type,
		SourceID:  e.SourceID,
		Number:    e.Number,
		Date:      e.Date,
		Debit:     e.Debit.String(),
		Credit:    e.Credit.String(),
		Balance:   e.Balance.String(),
		CreatedAt: e.CreatedAt,
	}
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	id, err := customerID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid customer id")
		return
	}
	entries, err := h.service.Statement(r.Context(), id)
	if err != nil {
		h.logger.Error("list ledger entries", slog.Int64("customer_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (h *Handler) getSummary(w http.ResponseWriter, r *http.Request) {
	id, err := customerID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid customer id")
		return
	}
	summary, err := h.service.GetSummary(r.Context(), id)
	if err != nil {
		h.logger.Error("ledger summary", slog.Int64("customer_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

type adjustmentRequest struct {
	Direction string `json:"direction" validate:"required,oneof=debit credit"`
	Amount    string `json:"amount" validate:"required"`
	Date      string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Number    string `json:"number" validate:"omitempty,max=64"`
	Note      string `json:"note" validate:"omitempty,max=500"`
}

func (h *Handler) createAdjustment(w http.ResponseWriter, r *http.Request) {
	id, err := customerID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid customer id")
		return
	}
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be a positive number")
		return
	}

	input := EntryInput{
		CustomerID: id,
		Type:       EntryTypeAdjustment,
		Number:     req.Number,
	}
	if input.Number == "" {
		input.Number = fmt.Sprintf("ADJ-%d", time.Now().UTC().UnixNano())
	}
	if req.Date != "" {
		input.Date, _ = time.Parse("2006-01-02", req.Date)
	}
	if req.Direction == "debit" {
		input.Debit = amount
	} else {
		input.Credit = amount
	}

	entry, err := h.service.Record(r.Context(), input)
	if err != nil {
		if errors.Is(err, ErrMalformedEntry) || errors.Is(err, ErrCustomerRequired) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		h.logger.Error("record adjustment", slog.Int64("customer_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(*entry))
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	id, err := customerID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid customer id")
		return
	}
	result, err := h.service.Reconcile(r.Context(), id)
	if err != nil {
		h.logger.Error("reconcile ledger", slog.Int64("customer_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	skipped := make([]string, 0, len(result.Skipped))
	for _, s := range result.Skipped {
		skipped = append(skipped, s.Error())
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"changed_count": result.ChangedCount,
		"skipped":       skipped,
	})
}
