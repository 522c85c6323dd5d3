// Package masterdata holds the reference entities everything else hangs off:
// brands, customers, and products with their sellable variants.
package masterdata

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Brand scopes stock, documents, and projects. Code appears in document
// numbers and must stay short and stable.
type Brand struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Customer is a party invoices and ledger entries belong to.
type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Product is a sellable item. Variants distinguish stock-keeping flavours of
// the same product; the empty variant code is valid for single-variant items.
type Product struct {
	ID        int64           `json:"id"`
	BrandID   int64           `json:"brand_id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Variants  []Variant       `json:"variants,omitempty"`
	IsActive  bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Variant is one stock-keeping flavour of a product.
type Variant struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Code      string `json:"code"`
	Name      string `json:"name,omitempty"`
}

// ListFilters narrows listings.
type ListFilters struct {
	Page    int
	PerPage int
	Search  string
	BrandID int64
}

var (
	// ErrCodeRequired indicates a missing brand code.
	ErrCodeRequired = errors.New("masterdata: code is required")
	// ErrNameRequired indicates a missing name.
	ErrNameRequired = errors.New("masterdata: name is required")
	// ErrSKURequired indicates a missing product SKU.
	ErrSKURequired = errors.New("masterdata: sku is required")
	// ErrInvalidPrice indicates a negative price.
	ErrInvalidPrice = errors.New("masterdata: price must be >= 0")
)
