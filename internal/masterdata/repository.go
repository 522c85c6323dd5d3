package masterdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lotline/lotline/internal/platform/db"
	"github.com/lotline/lotline/internal/shared"
)

// Repository persists master data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.ErrDuplicate
	}
	return err
}

func pageBounds(f ListFilters) (limit, offset int) {
	perPage := f.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	return perPage, (page - 1) * perPage
}

// CreateBrand stores a brand.
func (r *Repository) CreateBrand(ctx context.Context, b Brand) (Brand, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO brands (code, name, is_active, created_at, updated_at)
VALUES ($1, $2, TRUE, NOW(), NOW()) RETURNING id, is_active, created_at, updated_at`,
		b.Code, b.Name).Scan(&b.ID, &b.IsActive, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return Brand{}, mapWriteErr(err)
	}
	return b, nil
}

// GetBrand loads one brand.
func (r *Repository) GetBrand(ctx context.Context, id int64) (Brand, error) {
	var b Brand
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, is_active, created_at, updated_at FROM brands WHERE id = $1`, id).
		Scan(&b.ID, &b.Code, &b.Name, &b.IsActive, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Brand{}, fmt.Errorf("brand %d: %w", id, shared.ErrNotFound)
	}
	return b, err
}

// ListBrands returns brands with pagination.
func (r *Repository) ListBrands(ctx context.Context, f ListFilters) ([]Brand, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM brands`).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit, offset := pageBounds(f)
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, is_active, created_at, updated_at
FROM brands ORDER BY code LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Brand
	for rows.Next() {
		var b Brand
		if err := rows.Scan(&b.ID, &b.Code, &b.Name, &b.IsActive, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, b)
	}
	return out, total, rows.Err()
}

// UpdateBrand renames a brand. The code is immutable once referenced by
// document numbers.
func (r *Repository) UpdateBrand(ctx context.Context, id int64, name string, isActive bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE brands SET name = $1, is_active = $2, updated_at = NOW() WHERE id = $3`, name, isActive, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("brand %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

// CreateCustomer stores a customer.
func (r *Repository) CreateCustomer(ctx context.Context, c Customer) (Customer, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO customers (name, phone, email, address, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, TRUE, NOW(), NOW()) RETURNING id, is_active, created_at, updated_at`,
		c.Name, c.Phone, c.Email, c.Address).Scan(&c.ID, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Customer{}, mapWriteErr(err)
	}
	return c, nil
}

// GetCustomer loads one customer.
func (r *Repository) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	var c Customer
	err := r.pool.QueryRow(ctx, `SELECT id, name, phone, email, address, is_active, created_at, updated_at
FROM customers WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, fmt.Errorf("customer %d: %w", id, shared.ErrNotFound)
	}
	return c, err
}

// ListCustomers returns customers, optionally name-filtered, with pagination.
func (r *Repository) ListCustomers(ctx context.Context, f ListFilters) ([]Customer, int, error) {
	search := "%" + f.Search + "%"
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM customers WHERE name ILIKE $1`, search).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit, offset := pageBounds(f)
	rows, err := r.pool.Query(ctx, `SELECT id, name, phone, email, address, is_active, created_at, updated_at
FROM customers WHERE name ILIKE $1 ORDER BY name LIMIT $2 OFFSET $3`, search, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// UpdateCustomer updates customer contact details.
func (r *Repository) UpdateCustomer(ctx context.Context, c Customer) error {
	tag, err := r.pool.Exec(ctx, `UPDATE customers SET name = $1, phone = $2, email = $3, address = $4, is_active = $5, updated_at = NOW()
WHERE id = $6`, c.Name, c.Phone, c.Email, c.Address, c.IsActive, c.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("customer %d: %w", c.ID, shared.ErrNotFound)
	}
	return nil
}

// CreateProduct stores a product and its variants in one transaction.
func (r *Repository) CreateProduct(ctx context.Context, p Product) (Product, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO products (brand_id, sku, name, price, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, TRUE, NOW(), NOW()) RETURNING id, is_active, created_at, updated_at`,
			p.BrandID, p.SKU, p.Name, db.DecimalToNumeric(p.Price)).
			Scan(&p.ID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return err
		}
		for i := range p.Variants {
			v := &p.Variants[i]
			v.ProductID = p.ID
			if err := tx.QueryRow(ctx, `INSERT INTO product_variants (product_id, code, name)
VALUES ($1, $2, $3) RETURNING id`, p.ID, v.Code, v.Name).Scan(&v.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Product{}, mapWriteErr(err)
	}
	return p, nil
}

// GetProduct loads a product with its variants.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	var price pgtype.Numeric
	err := r.pool.QueryRow(ctx, `SELECT id, brand_id, sku, name, price, is_active, created_at, updated_at
FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.BrandID, &p.SKU, &p.Name, &price, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("product %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return Product{}, err
	}
	p.Price = db.NumericToDecimal(price)

	rows, err := r.pool.Query(ctx, `SELECT id, product_id, code, name FROM product_variants WHERE product_id = $1 ORDER BY code`, id)
	if err != nil {
		return Product{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var v Variant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Code, &v.Name); err != nil {
			return Product{}, err
		}
		p.Variants = append(p.Variants, v)
	}
	return p, rows.Err()
}

// ListProducts returns one brand's products without variants.
func (r *Repository) ListProducts(ctx context.Context, f ListFilters) ([]Product, int, error) {
	search := "%" + f.Search + "%"
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE brand_id = $1 AND (name ILIKE $2 OR sku ILIKE $2)`,
		f.BrandID, search).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit, offset := pageBounds(f)
	rows, err := r.pool.Query(ctx, `SELECT id, brand_id, sku, name, price, is_active, created_at, updated_at
FROM products WHERE brand_id = $1 AND (name ILIKE $2 OR sku ILIKE $2) ORDER BY sku LIMIT $3 OFFSET $4`,
		f.BrandID, search, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		var p Product
		var price pgtype.Numeric
		if err := rows.Scan(&p.ID, &p.BrandID, &p.SKU, &p.Name, &price, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		p.Price = db.NumericToDecimal(price)
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// UpdateProduct updates product attributes, not variants.
func (r *Repository) UpdateProduct(ctx context.Context, p Product) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET name = $1, price = $2, is_active = $3, updated_at = NOW() WHERE id = $4`,
		p.Name, db.DecimalToNumeric(p.Price), p.IsActive, p.ID)
	if err != nil {
		return mapWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %d: %w", p.ID, shared.ErrNotFound)
	}
	return nil
}

// AddVariant appends a variant to an existing product.
func (r *Repository) AddVariant(ctx context.Context, v Variant) (Variant, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO product_variants (product_id, code, name) VALUES ($1, $2, $3) RETURNING id`,
		v.ProductID, v.Code, v.Name).Scan(&v.ID)
	if err != nil {
		return Variant{}, mapWriteErr(err)
	}
	return v, nil
}
