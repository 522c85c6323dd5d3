package masterdata

import (
	"context"
	"strings"

	"github.com/lotline/lotline/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	CreateBrand(ctx context.Context, b Brand) (Brand, error)
	GetBrand(ctx context.Context, id int64) (Brand, error)
	ListBrands(ctx context.Context, f ListFilters) ([]Brand, int, error)
	UpdateBrand(ctx context.Context, id int64, name string, isActive bool) error
	CreateCustomer(ctx context.Context, c Customer) (Customer, error)
	GetCustomer(ctx context.Context, id int64) (Customer, error)
	ListCustomers(ctx context.Context, f ListFilters) ([]Customer, int, error)
	UpdateCustomer(ctx context.Context, c Customer) error
	CreateProduct(ctx context.Context, p Product) (Product, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	ListProducts(ctx context.Context, f ListFilters) ([]Product, int, error)
	UpdateProduct(ctx context.Context, p Product) error
	AddVariant(ctx context.Context, v Variant) (Variant, error)
}

// Service coordinates master data maintenance.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// CreateBrand stores a new brand. Codes are upper-cased so document numbers
// stay consistent regardless of input casing.
func (s *Service) CreateBrand(ctx context.Context, b Brand) (Brand, error) {
	b.Code = strings.ToUpper(strings.TrimSpace(b.Code))
	b.Name = strings.TrimSpace(b.Name)
	if b.Code == "" {
		return Brand{}, ErrCodeRequired
	}
	if b.Name == "" {
		return Brand{}, ErrNameRequired
	}
	return s.repo.CreateBrand(ctx, b)
}

// GetBrand loads one brand.
func (s *Service) GetBrand(ctx context.Context, id int64) (Brand, error) {
	return s.repo.GetBrand(ctx, id)
}

// ListBrands pages all brands.
func (s *Service) ListBrands(ctx context.Context, f ListFilters) ([]Brand, shared.Pagination, error) {
	brands, total, err := s.repo.ListBrands(ctx, f)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return brands, shared.NewPagination(f.Page, f.PerPage, total), nil
}

// UpdateBrand renames or (de)activates a brand.
func (s *Service) UpdateBrand(ctx context.Context, id int64, name string, isActive bool) error {
	if strings.TrimSpace(name) == "" {
		return ErrNameRequired
	}
	return s.repo.UpdateBrand(ctx, id, strings.TrimSpace(name), isActive)
}

// CreateCustomer stores a new customer.
func (s *Service) CreateCustomer(ctx context.Context, c Customer) (Customer, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return Customer{}, ErrNameRequired
	}
	return s.repo.CreateCustomer(ctx, c)
}

// GetCustomer loads one customer.
func (s *Service) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

// ListCustomers pages customers with optional name search.
func (s *Service) ListCustomers(ctx context.Context, f ListFilters) ([]Customer, shared.Pagination, error) {
	customers, total, err := s.repo.ListCustomers(ctx, f)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return customers, shared.NewPagination(f.Page, f.PerPage, total), nil
}

// UpdateCustomer updates contact details.
func (s *Service) UpdateCustomer(ctx context.Context, c Customer) error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrNameRequired
	}
	return s.repo.UpdateCustomer(ctx, c)
}

// CreateProduct stores a product with optional variants. The owning brand
// must exist.
func (s *Service) CreateProduct(ctx context.Context, p Product) (Product, error) {
	p.SKU = strings.TrimSpace(p.SKU)
	p.Name = strings.TrimSpace(p.Name)
	if p.SKU == "" {
		return Product{}, ErrSKURequired
	}
	if p.Name == "" {
		return Product{}, ErrNameRequired
	}
	if p.Price.IsNegative() {
		return Product{}, ErrInvalidPrice
	}
	if _, err := s.repo.GetBrand(ctx, p.BrandID); err != nil {
		return Product{}, err
	}
	for i := range p.Variants {
		p.Variants[i].Code = strings.ToUpper(strings.TrimSpace(p.Variants[i].Code))
	}
	return s.repo.CreateProduct(ctx, p)
}

// GetProduct loads a product with variants.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// ListProducts pages one brand's products.
func (s *Service) ListProducts(ctx context.Context, f ListFilters) ([]Product, shared.Pagination, error) {
	products, total, err := s.repo.ListProducts(ctx, f)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return products, shared.NewPagination(f.Page, f.PerPage, total), nil
}

// UpdateProduct updates product attributes.
func (s *Service) UpdateProduct(ctx context.Context, p Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrNameRequired
	}
	if p.Price.IsNegative() {
		return ErrInvalidPrice
	}
	return s.repo.UpdateProduct(ctx, p)
}

// AddVariant appends a variant to a product.
func (s *Service) AddVariant(ctx context.Context, v Variant) (Variant, error) {
	v.Code = strings.ToUpper(strings.TrimSpace(v.Code))
	if v.Code == "" {
		return Variant{}, ErrCodeRequired
	}
	if _, err := s.repo.GetProduct(ctx, v.ProductID); err != nil {
		return Variant{}, err
	}
	return s.repo.AddVariant(ctx, v)
}
