package stock

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

// Handler wires HTTP endpoints for purchase lots.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs stock handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/stock/lots", h.receiveLot)
	r.Get("/stock/lots", h.listLots)
	r.Get("/stock/on-hand", h.stockOnHand)
	r.Get("/stock/integrity", h.integrityScan)
}

type receiveLotRequest struct {
	BrandID      int64  `json:"brand_id" validate:"required,gt=0"`
	ProductID    int64  `json:"product_id" validate:"required,gt=0"`
	Variant      string `json:"variant" validate:"omitempty,max=64"`
	Quantity     string `json:"quantity" validate:"required"`
	UnitCost     string `json:"unit_cost" validate:"required"`
	PurchaseDate string `json:"purchase_date" validate:"omitempty,datetime=2006-01-02"`
	Note         string `json:"note" validate:"omitempty,max=500"`
}

type lotResponse struct {
	ID           int64     `json:"id"`
	BrandID      int64     `json:"brand_id"`
	ProductID    int64     `json:"product_id"`
	Variant      string    `json:"variant,omitempty"`
	PurchaseDate time.Time `json:"purchase_date"`
	UnitCost     string    `json:"unit_cost"`
	Remaining    string    `json:"remaining_qty"`
	Note         string    `json:"note,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func toLotResponse(lot Lot) lotResponse {
	return lotResponse{
		ID:           lot.ID,
		BrandID:      lot.BrandID,
		ProductID:    lot.ItemKey.ProductID,
		Variant:      lot.ItemKey.Variant,
		PurchaseDate: lot.PurchaseDate,
		UnitCost:     lot.UnitCost.String(),
		Remaining:    lot.Remaining.String(),
		Note:         lot.Note,
		CreatedAt:    lot.CreatedAt,
	}
}

func (h *Handler) receiveLot(w http.ResponseWriter, r *http.Request) {
	var req receiveLotRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	qty, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "quantity must be a number")
		return
	}
	cost, err := decimal.NewFromString(req.UnitCost)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_cost must be a number")
		return
	}

	input := ReceiveInput{
		BrandID:   req.BrandID,
		ProductID: req.ProductID,
		Variant:   req.Variant,
		Quantity:  qty,
		UnitCost:  cost,
		Note:      req.Note,
	}
	if req.PurchaseDate != "" {
		input.PurchaseDate, _ = time.Parse("2006-01-02", req.PurchaseDate)
	}

	lot, err := h.service.Receive(r.Context(), input)
	if err != nil {
		if errors.Is(err, ErrInvalidQuantity) || errors.Is(err, ErrInvalidUnitCost) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		h.logger.Error("receive lot", slog.Int64("brand_id", req.BrandID), slog.Int64("product_id", req.ProductID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toLotResponse(lot))
}

func itemFilter(r *http.Request) (ItemFilter, error) {
	brandID, err := strconv.ParseInt(r.URL.Query().Get("brand_id"), 10, 64)
	if err != nil {
		return ItemFilter{}, errors.New("brand_id is required")
	}
	productID, err := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	if err != nil {
		return ItemFilter{}, errors.New("product_id is required")
	}
	return ItemFilter{
		BrandID: brandID,
		ItemKey: costing.ItemKey{ProductID: productID, Variant: r.URL.Query().Get("variant")},
	}, nil
}

func (h *Handler) listLots(w http.ResponseWriter, r *http.Request) {
	filter, err := itemFilter(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	lots, err := h.service.LotsForItem(r.Context(), filter)
	if err != nil {
		h.logger.Error("list lots", slog.Int64("brand_id", filter.BrandID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	type itemLot struct {
		ID           int64     `json:"id"`
		PurchaseDate time.Time `json:"purchase_date"`
		UnitCost     string    `json:"unit_cost"`
		Remaining    string    `json:"remaining_qty"`
	}
	out := make([]itemLot, 0, len(lots))
	for _, lot := range lots {
		out = append(out, itemLot{
			ID:           lot.ID,
			PurchaseDate: lot.PurchaseDate,
			UnitCost:     lot.UnitCost.String(),
			Remaining:    lot.Remaining.String(),
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"lots": out})
}

func (h *Handler) stockOnHand(w http.ResponseWriter, r *http.Request) {
	filter, err := itemFilter(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	total, err := h.service.StockOnHand(r.Context(), filter)
	if err != nil {
		h.logger.Error("stock on hand", slog.Int64("brand_id", filter.BrandID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"brand_id":   filter.BrandID,
		"product_id": filter.ItemKey.ProductID,
		"variant":    filter.ItemKey.Variant,
		"on_hand":    total.String(),
	})
}

func (h *Handler) integrityScan(w http.ResponseWriter, r *http.Request) {
	issues, err := h.service.IntegrityScan(r.Context())
	if err != nil {
		h.logger.Error("stock integrity scan", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	type issueResponse struct {
		LotID     int64  `json:"lot_id"`
		BrandID   int64  `json:"brand_id"`
		ProductID int64  `json:"product_id"`
		Variant   string `json:"variant,omitempty"`
		Remaining string `json:"remaining_qty"`
	}
	out := make([]issueResponse, 0, len(issues))
	for _, issue := range issues {
		out = append(out, issueResponse{
			LotID:     issue.LotID,
			BrandID:   issue.BrandID,
			ProductID: issue.ItemKey.ProductID,
			Variant:   issue.ItemKey.Variant,
			Remaining: issue.Remaining.String(),
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"issues": out})
}
