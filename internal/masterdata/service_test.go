package masterdata

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/lotline/lotline/internal/shared"
)

type memoryMasterRepo struct {
	brands    map[int64]*Brand
	customers map[int64]*Customer
	products  map[int64]*Product
	codes     map[string]bool
	nextID    int64
}

func newMemoryMasterRepo() *memoryMasterRepo {
	return &memoryMasterRepo{
		brands:    make(map[int64]*Brand),
		customers: make(map[int64]*Customer),
		products:  make(map[int64]*Product),
		codes:     make(map[string]bool),
	}
}

func (r *memoryMasterRepo) CreateBrand(ctx context.Context, b Brand) (Brand, error) {
	if r.codes[b.Code] {
		return Brand{}, shared.ErrDuplicate
	}
	r.codes[b.Code] = true
	r.nextID++
	b.ID = r.nextID
	b.IsActive = true
	stored := b
	r.brands[b.ID] = &stored
	return b, nil
}

func (r *memoryMasterRepo) GetBrand(ctx context.Context, id int64) (Brand, error) {
	b, ok := r.brands[id]
	if !ok {
		return Brand{}, shared.ErrNotFound
	}
	return *b, nil
}

func (r *memoryMasterRepo) ListBrands(ctx context.Context, f ListFilters) ([]Brand, int, error) {
	var out []Brand
	for _, b := range r.brands {
		out = append(out, *b)
	}
	return out, len(out), nil
}

func (r *memoryMasterRepo) UpdateBrand(ctx context.Context, id int64, name string, isActive bool) error {
	b, ok := r.brands[id]
	if !ok {
		return shared.ErrNotFound
	}
	b.Name = name
	b.IsActive = isActive
	return nil
}

func (r *memoryMasterRepo) CreateCustomer(ctx context.Context, c Customer) (Customer, error) {
	r.nextID++
	c.ID = r.nextID
	c.IsActive = true
	stored := c
	r.customers[c.ID] = &stored
	return c, nil
}

func (r *memoryMasterRepo) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	c, ok := r.customers[id]
	if !ok {
		return Customer{}, shared.ErrNotFound
	}
	return *c, nil
}

func (r *memoryMasterRepo) ListCustomers(ctx context.Context, f ListFilters) ([]Customer, int, error) {
	var out []Customer
	for _, c := range r.customers {
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (r *memoryMasterRepo) UpdateCustomer(ctx context.Context, c Customer) error {
	stored, ok := r.customers[c.ID]
	if !ok {
		return shared.ErrNotFound
	}
	*stored = c
	return nil
}

func (r *memoryMasterRepo) CreateProduct(ctx context.Context, p Product) (Product, error) {
	r.nextID++
	p.ID = r.nextID
	p.IsActive = true
	for i := range p.Variants {
		r.nextID++
		p.Variants[i].ID = r.nextID
		p.Variants[i].ProductID = p.ID
	}
	stored := p
	r.products[p.ID] = &stored
	return p, nil
}

func (r *memoryMasterRepo) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, ok := r.products[id]
	if !ok {
		return Product{}, shared.ErrNotFound
	}
	return *p, nil
}

func (r *memoryMasterRepo) ListProducts(ctx context.Context, f ListFilters) ([]Product, int, error) {
	var out []Product
	for _, p := range r.products {
		if p.BrandID == f.BrandID {
			out = append(out, *p)
		}
	}
	return out, len(out), nil
}

func (r *memoryMasterRepo) UpdateProduct(ctx context.Context, p Product) error {
	stored, ok := r.products[p.ID]
	if !ok {
		return shared.ErrNotFound
	}
	stored.Name = p.Name
	stored.Price = p.Price
	stored.IsActive = p.IsActive
	return nil
}

func (r *memoryMasterRepo) AddVariant(ctx context.Context, v Variant) (Variant, error) {
	p, ok := r.products[v.ProductID]
	if !ok {
		return Variant{}, shared.ErrNotFound
	}
	r.nextID++
	v.ID = r.nextID
	p.Variants = append(p.Variants, v)
	return v, nil
}

func TestCreateBrandNormalisesCode(t *testing.T) {
	svc := NewService(newMemoryMasterRepo())

	brand, err := svc.CreateBrand(context.Background(), Brand{Code: " acme ", Name: "Acme Trading"})
	require.NoError(t, err)
	require.Equal(t, "ACME", brand.Code)
	require.True(t, brand.IsActive)
}

func TestCreateBrandValidation(t *testing.T) {
	svc := NewService(newMemoryMasterRepo())
	ctx := context.Background()

	_, err := svc.CreateBrand(ctx, Brand{Name: "No code"})
	require.ErrorIs(t, err, ErrCodeRequired)

	_, err = svc.CreateBrand(ctx, Brand{Code: "X"})
	require.ErrorIs(t, err, ErrNameRequired)
}

func TestCreateBrandDuplicateCode(t *testing.T) {
	svc := NewService(newMemoryMasterRepo())
	ctx := context.Background()

	_, err := svc.CreateBrand(ctx, Brand{Code: "ACME", Name: "Acme"})
	require.NoError(t, err)

	_, err = svc.CreateBrand(ctx, Brand{Code: "acme", Name: "Acme again"})
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestCreateProductRequiresBrand(t *testing.T) {
	svc := NewService(newMemoryMasterRepo())

	_, err := svc.CreateProduct(context.Background(), Product{
		BrandID: 42, SKU: "TS-01", Name: "T-Shirt", Price: decimal.NewFromInt(20),
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateProductWithVariants(t *testing.T) {
	repo := newMemoryMasterRepo()
	svc := NewService(repo)
	ctx := context.Background()

	brand, err := svc.CreateBrand(ctx, Brand{Code: "ACME", Name: "Acme"})
	require.NoError(t, err)

	product, err := svc.CreateProduct(ctx, Product{
		BrandID: brand.ID,
		SKU:     "TS-01",
		Name:    "T-Shirt",
		Price:   decimal.NewFromInt(20),
		Variants: []Variant{
			{Code: "red"},
			{Code: "blue"},
		},
	})
	require.NoError(t, err)
	require.Len(t, product.Variants, 2)
	require.Equal(t, "RED", product.Variants[0].Code)
	require.Equal(t, "BLUE", product.Variants[1].Code)
}

func TestCreateProductValidation(t *testing.T) {
	repo := newMemoryMasterRepo()
	svc := NewService(repo)
	ctx := context.Background()

	brand, err := svc.CreateBrand(ctx, Brand{Code: "ACME", Name: "Acme"})
	require.NoError(t, err)

	_, err = svc.CreateProduct(ctx, Product{BrandID: brand.ID, Name: "x", Price: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, ErrSKURequired)

	_, err = svc.CreateProduct(ctx, Product{BrandID: brand.ID, SKU: "S", Name: "x", Price: decimal.NewFromInt(-1)})
	require.ErrorIs(t, err, ErrInvalidPrice)
}

func TestAddVariantRequiresProduct(t *testing.T) {
	svc := NewService(newMemoryMasterRepo())

	_, err := svc.AddVariant(context.Background(), Variant{ProductID: 9, Code: "XL"})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCustomerLifecycle(t *testing.T) {
	svc := NewService(newMemoryMasterRepo())
	ctx := context.Background()

	_, err := svc.CreateCustomer(ctx, Customer{Name: "   "})
	require.ErrorIs(t, err, ErrNameRequired)

	customer, err := svc.CreateCustomer(ctx, Customer{Name: "Budi", Email: "budi@example.com"})
	require.NoError(t, err)
	require.True(t, customer.IsActive)

	customer.Phone = "+62 812 000"
	require.NoError(t, svc.UpdateCustomer(ctx, customer))

	got, err := svc.GetCustomer(ctx, customer.ID)
	require.NoError(t, err)
	require.Equal(t, "+62 812 000", got.Phone)
}
