package invoicing

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/lotline/lotline/internal/costing"
	"github.com/lotline/lotline/internal/platform/httpx"
)

// Handler wires HTTP endpoints for quotations, invoices, and payments.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs invoicing handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers invoicing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/invoices", h.createInvoice)
	r.Get("/invoices", h.listInvoices)
	r.Get("/invoices/{invoiceID}", h.getInvoice)
	r.Post("/invoices/{invoiceID}/post", h.postInvoice)
	r.Post("/invoices/{invoiceID}/void", h.voidInvoice)
	r.Post("/invoices/{invoiceID}/payments", h.recordPayment)
	r.Post("/quotations", h.createQuotation)
	r.Post("/quotations/{quotationID}/convert", h.convertQuotation)
}

type lineRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Variant   string `json:"variant" validate:"omitempty,max=64"`
	Quantity  string `json:"quantity" validate:"required"`
	UnitPrice string `json:"unit_price" validate:"required"`
}

type createDocumentRequest struct {
	BrandID    int64         `json:"brand_id" validate:"required,gt=0"`
	CustomerID int64         `json:"customer_id" validate:"required,gt=0"`
	IssueDate  string        `json:"issue_date" validate:"omitempty,datetime=2006-01-02"`
	Lines      []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) parseLines(reqs []lineRequest) ([]LineInput, error) {
	lines := make([]LineInput, 0, len(reqs))
	for _, lr := range reqs {
		qty, err := decimal.NewFromString(lr.Quantity)
		if err != nil {
			return nil, errors.New("line quantity must be a number")
		}
		price, err := decimal.NewFromString(lr.UnitPrice)
		if err != nil {
			return nil, errors.New("line unit_price must be a number")
		}
		lines = append(lines, LineInput{
			ProductID: lr.ProductID,
			Variant:   lr.Variant,
			Quantity:  qty,
			UnitPrice: price,
		})
	}
	return lines, nil
}

type lineResponse struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Variant   string `json:"variant,omitempty"`
	Quantity  string `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
	UnitCost  string `json:"unit_cost,omitempty"`
	CostTotal string `json:"cost_total,omitempty"`
}

type invoiceResponse struct {
	ID         int64          `json:"id"`
	BrandID    int64          `json:"brand_id"`
	CustomerID int64          `json:"customer_id"`
	SourceID   string         `json:"source_id"`
	Number     string         `json:"number,omitempty"`
	Status     InvoiceStatus  `json:"status"`
	IssueDate  time.Time      `json:"issue_date"`
	Lines      []lineResponse `json:"lines,omitempty"`
	Subtotal   string         `json:"subtotal"`
	COGS       string         `json:"cogs,omitempty"`
	Profit     string         `json:"profit,omitempty"`
	PostedAt   *time.Time     `json:"posted_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

func toInvoiceResponse(inv Invoice) invoiceResponse {
	out := invoiceResponse{
		ID:         inv.ID,
		BrandID:    inv.BrandID,
		CustomerID: inv.CustomerID,
		SourceID:   inv.SourceID,
		Number:     inv.Number,
		Status:     inv.Status,
		IssueDate:  inv.IssueDate,
		Subtotal:   inv.Subtotal.String(),
		PostedAt:   inv.PostedAt,
		CreatedAt:  inv.CreatedAt,
	}
	if inv.Status != StatusDraft {
		out.COGS = inv.COGS.String()
		out.Profit = inv.Profit.String()
	}
	for _, line := range inv.Lines {
		lr := lineResponse{
			ID:        line.ID,
			ProductID: line.ProductID,
			Variant:   line.Variant,
			Quantity:  line.Quantity.String(),
			UnitPrice: line.UnitPrice.String(),
			LineTotal: line.LineTotal.String(),
		}
		if inv.Status != StatusDraft {
			lr.UnitCost = line.UnitCost.String()
			lr.CostTotal = line.CostTotal.String()
		}
		out.Lines = append(out.Lines, lr)
	}
	return out
}

func (h *Handler) decodeDocument(w http.ResponseWriter, r *http.Request) (createDocumentRequest, []LineInput, time.Time, bool) {
	var req createDocumentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return req, nil, time.Time{}, false
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return req, nil, time.Time{}, false
	}
	lines, err := h.parseLines(req.Lines)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return req, nil, time.Time{}, false
	}
	var issueDate time.Time
	if req.IssueDate != "" {
		issueDate, _ = time.Parse("2006-01-02", req.IssueDate)
	}
	return req, lines, issueDate, true
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	req, lines, issueDate, ok := h.decodeDocument(w, r)
	if !ok {
		return
	}
	inv, err := h.service.CreateInvoice(r.Context(), CreateInvoiceInput{
		BrandID:    req.BrandID,
		CustomerID: req.CustomerID,
		IssueDate:  issueDate,
		Lines:      lines,
	})
	if err != nil {
		if errors.Is(err, ErrNoLines) || errors.Is(err, ErrInvalidLine) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		h.logger.Error("create invoice", slog.Int64("brand_id", req.BrandID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toInvoiceResponse(inv))
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	brandID, err := strconv.ParseInt(r.URL.Query().Get("brand_id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "brand_id is required")
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	invoices, pagination, err := h.service.ListInvoices(r.Context(), brandID, page, perPage)
	if err != nil {
		h.logger.Error("list invoices", slog.Int64("brand_id", brandID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]invoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, toInvoiceResponse(inv))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": out, "pagination": pagination})
}

func invoiceID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "invoiceID"), 10, 64)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) postInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	inv, err := h.service.PostInvoice(r.Context(), id, r.Header.Get("Idempotency-Key"), 0)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotDraft):
			httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
		case errors.Is(err, costing.ErrInsufficientStock):
			var insufficient *costing.InsufficientStockError
			detail := err.Error()
			if errors.As(err, &insufficient) {
				detail = "insufficient stock, short " + insufficient.Shortfall.String()
			}
			httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", detail)
		default:
			h.logger.Error("post invoice", slog.Int64("invoice_id", id), slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) voidInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	inv, err := h.service.VoidInvoice(r.Context(), id, 0)
	if err != nil {
		if errors.Is(err, ErrNotPosted) {
			httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
			return
		}
		h.logger.Error("void invoice", slog.Int64("invoice_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(inv))
}

type paymentRequest struct {
	Amount string `json:"amount" validate:"required"`
	PaidAt string `json:"paid_at" validate:"omitempty,datetime=2006-01-02"`
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid invoice id")
		return
	}
	var req paymentRequest
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
	input := RecordPaymentInput{InvoiceID: id, Amount: amount}
	if req.PaidAt != "" {
		input.PaidAt, _ = time.Parse("2006-01-02", req.PaidAt)
	}
	payment, err := h.service.RecordPayment(r.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAmount):
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		case errors.Is(err, ErrNotPosted):
			httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
		default:
			h.logger.Error("record payment", slog.Int64("invoice_id", id), slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":         payment.ID,
		"invoice_id": payment.InvoiceID,
		"number":     payment.Number,
		"amount":     payment.Amount.String(),
		"paid_at":    payment.PaidAt,
	})
}

func (h *Handler) createQuotation(w http.ResponseWriter, r *http.Request) {
	req, lines, issueDate, ok := h.decodeDocument(w, r)
	if !ok {
		return
	}
	q, err := h.service.CreateQuotation(r.Context(), CreateQuotationInput{
		BrandID:    req.BrandID,
		CustomerID: req.CustomerID,
		IssueDate:  issueDate,
		Lines:      lines,
	})
	if err != nil {
		if errors.Is(err, ErrNoLines) || errors.Is(err, ErrInvalidLine) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		h.logger.Error("create quotation", slog.Int64("brand_id", req.BrandID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":          q.ID,
		"brand_id":    q.BrandID,
		"customer_id": q.CustomerID,
		"number":      q.Number,
		"status":      q.Status,
		"subtotal":    q.Subtotal.String(),
	})
}

func (h *Handler) convertQuotation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "quotationID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid quotation id")
		return
	}
	inv, err := h.service.ConvertQuotation(r.Context(), id, 0)
	if err != nil {
		if errors.Is(err, ErrAlreadyConverted) {
			httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
			return
		}
		h.logger.Error("convert quotation", slog.Int64("quotation_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toInvoiceResponse(inv))
}
