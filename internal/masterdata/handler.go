package masterdata

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/lotline/lotline/internal/platform/httpx"
)

// Handler wires HTTP endpoints for master data.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs masterdata handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers master data routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/brands", h.createBrand)
	r.Get("/brands", h.listBrands)
	r.Get("/brands/{brandID}", h.getBrand)
	r.Put("/brands/{brandID}", h.updateBrand)
	r.Post("/customers", h.createCustomer)
	r.Get("/customers", h.listCustomers)
	r.Get("/customers/{customerID}", h.getCustomer)
	r.Put("/customers/{customerID}", h.updateCustomer)
	r.Post("/products", h.createProduct)
	r.Get("/products", h.listProducts)
	r.Get("/products/{productID}", h.getProduct)
	r.Put("/products/{productID}", h.updateProduct)
	r.Post("/products/{productID}/variants", h.addVariant)
}

func urlID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func listFilters(r *http.Request) ListFilters {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	brandID, _ := strconv.ParseInt(q.Get("brand_id"), 10, 64)
	return ListFilters{Page: page, PerPage: perPage, Search: q.Get("q"), BrandID: brandID}
}

func (h *Handler) respondValidation(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, ErrCodeRequired), errors.Is(err, ErrNameRequired),
		errors.Is(err, ErrSKURequired), errors.Is(err, ErrInvalidPrice):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return true
	}
	return false
}

type brandRequest struct {
	Code     string `json:"code" validate:"required,max=16"`
	Name     string `json:"name" validate:"required,max=200"`
	IsActive *bool  `json:"is_active"`
}

func (h *Handler) createBrand(w http.ResponseWriter, r *http.Request) {
	var req brandRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	brand, err := h.service.CreateBrand(r.Context(), Brand{Code: req.Code, Name: req.Name})
	if err != nil {
		if h.respondValidation(w, err) {
			return
		}
		h.logger.Error("create brand", slog.String("code", req.Code), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, brand)
}

func (h *Handler) listBrands(w http.ResponseWriter, r *http.Request) {
	brands, pagination, err := h.service.ListBrands(r.Context(), listFilters(r))
	if err != nil {
		h.logger.Error("list brands", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"brands": brands, "pagination": pagination})
}

func (h *Handler) getBrand(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "brandID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid brand id")
		return
	}
	brand, err := h.service.GetBrand(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, brand)
}

func (h *Handler) updateBrand(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "brandID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid brand id")
		return
	}
	var req brandRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	if err := h.service.UpdateBrand(r.Context(), id, req.Name, isActive); err != nil {
		if h.respondValidation(w, err) {
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"updated": true})
}

type customerRequest struct {
	Name     string `json:"name" validate:"required,max=200"`
	Phone    string `json:"phone" validate:"omitempty,max=32"`
	Email    string `json:"email" validate:"omitempty,email"`
	Address  string `json:"address" validate:"omitempty,max=500"`
	IsActive *bool  `json:"is_active"`
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	customer, err := h.service.CreateCustomer(r.Context(), Customer{
		Name: req.Name, Phone: req.Phone, Email: req.Email, Address: req.Address,
	})
	if err != nil {
		if h.respondValidation(w, err) {
			return
		}
		h.logger.Error("create customer", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, customer)
}

func (h *Handler) listCustomers(w http.ResponseWriter, r *http.Request) {
	customers, pagination, err := h.service.ListCustomers(r.Context(), listFilters(r))
	if err != nil {
		h.logger.Error("list customers", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"customers": customers, "pagination": pagination})
}

func (h *Handler) getCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "customerID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid customer id")
		return
	}
	customer, err := h.service.GetCustomer(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, customer)
}

func (h *Handler) updateCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "customerID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid customer id")
		return
	}
	var req customerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	err = h.service.UpdateCustomer(r.Context(), Customer{
		ID: id, Name: req.Name, Phone: req.Phone, Email: req.Email, Address: req.Address, IsActive: isActive,
	})
	if err != nil {
		if h.respondValidation(w, err) {
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"updated": true})
}

type variantRequest struct {
	Code string `json:"code" validate:"required,max=64"`
	Name string `json:"name" validate:"omitempty,max=200"`
}

type productRequest struct {
	BrandID  int64            `json:"brand_id" validate:"required,gt=0"`
	SKU      string           `json:"sku" validate:"required,max=64"`
	Name     string           `json:"name" validate:"required,max=200"`
	Price    string           `json:"price" validate:"required"`
	Variants []variantRequest `json:"variants" validate:"omitempty,dive"`
	IsActive *bool            `json:"is_active"`
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "price must be a number")
		return
	}
	product := Product{BrandID: req.BrandID, SKU: req.SKU, Name: req.Name, Price: price}
	for _, v := range req.Variants {
		product.Variants = append(product.Variants, Variant{Code: v.Code, Name: v.Name})
	}
	created, err := h.service.CreateProduct(r.Context(), product)
	if err != nil {
		if h.respondValidation(w, err) {
			return
		}
		h.logger.Error("create product", slog.String("sku", req.SKU), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	filters := listFilters(r)
	if filters.BrandID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "brand_id is required")
		return
	}
	products, pagination, err := h.service.ListProducts(r.Context(), filters)
	if err != nil {
		h.logger.Error("list products", slog.Int64("brand_id", filters.BrandID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": products, "pagination": pagination})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "productID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "productID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	var req productRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "price must be a number")
		return
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	err = h.service.UpdateProduct(r.Context(), Product{ID: id, Name: req.Name, Price: price, IsActive: isActive})
	if err != nil {
		if h.respondValidation(w, err) {
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (h *Handler) addVariant(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "productID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	var req variantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	variant, err := h.service.AddVariant(r.Context(), Variant{ProductID: id, Code: req.Code, Name: req.Name})
	if err != nil {
		if h.respondValidation(w, err) {
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, variant)
}
