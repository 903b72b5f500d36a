package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/raulancona/gourmetclick/pkg/database"
	apperrors "github.com/raulancona/gourmetclick/pkg/errors"
	"github.com/raulancona/gourmetclick/services/pos/internal/domain"
)

// CategoryRepository implements repository.CategoryRepository using PostgreSQL.
type CategoryRepository struct {
	pool database.DBTX
}

// NewCategoryRepository creates a new PostgreSQL-backed category repository.
func NewCategoryRepository(pool database.DBTX) *CategoryRepository {
	return &CategoryRepository{pool: pool}
}

// Create inserts a new category.
func (r *CategoryRepository) Create(ctx context.Context, c *domain.Category) error {
	query := `
		INSERT INTO categories (id, tenant_id, name, sort_order, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := r.pool.Exec(ctx, query, c.ID, c.TenantID, c.Name, c.SortOrder, c.CreatedAt); err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

// Update saves the name and sort order of a category.
func (r *CategoryRepository) Update(ctx context.Context, c *domain.Category) error {
	query := `UPDATE categories SET name = $1, sort_order = $2 WHERE id = $3 AND tenant_id = $4`

	ct, err := r.pool.Exec(ctx, query, c.Name, c.SortOrder, c.ID, c.TenantID)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("category", c.ID)
	}
	return nil
}

// Delete removes a category. A category still referenced by products is a Conflict.
func (r *CategoryRepository) Delete(ctx context.Context, tenantID, id string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM categories WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return apperrors.Conflict("category still has products")
		}
		return fmt.Errorf("delete category: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("category", id)
	}
	return nil
}

// GetByID retrieves a category of the tenant.
func (r *CategoryRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Category, error) {
	query := `SELECT id, tenant_id, name, sort_order, created_at FROM categories WHERE id = $1 AND tenant_id = $2`

	var c domain.Category
	err := r.pool.QueryRow(ctx, query, id, tenantID).Scan(&c.ID, &c.TenantID, &c.Name, &c.SortOrder, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("category", id)
		}
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &c, nil
}

// List returns the tenant's categories in menu order.
func (r *CategoryRepository) List(ctx context.Context, tenantID string) ([]domain.Category, error) {
	query := `
		SELECT id, tenant_id, name, sort_order, created_at
		FROM categories
		WHERE tenant_id = $1
		ORDER BY sort_order, name`

	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := make([]domain.Category, 0)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.SortOrder, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}

// CountProducts returns how many products belong to a category.
func (r *CategoryRepository) CountProducts(ctx context.Context, tenantID, id string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM products WHERE tenant_id = $1 AND category_id = $2`, tenantID, id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count category products: %w", err)
	}
	return n, nil
}

// ProductRepository implements repository.ProductRepository using PostgreSQL.
type ProductRepository struct {
	pool database.DBTX
}

// NewProductRepository creates a new PostgreSQL-backed product repository.
func NewProductRepository(pool database.DBTX) *ProductRepository {
	return &ProductRepository{pool: pool}
}

const productColumns = `id, tenant_id, COALESCE(category_id::text, ''), name, description, price, image_url,
	available, modifiers, sort_order, created_at, updated_at`

// Create inserts a new product.
func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) error {
	mods, err := marshalOptions(p.Modifiers)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO products (id, tenant_id, category_id, name, description, price, image_url,
			available, modifiers, sort_order, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = r.pool.Exec(ctx, query,
		p.ID, p.TenantID, p.CategoryID, p.Name, p.Description, p.Price, p.ImageURL,
		p.Available, mods, p.SortOrder, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return apperrors.InvalidInput("category does not exist")
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// Update saves every editable field of a product.
func (r *ProductRepository) Update(ctx context.Context, p *domain.Product) error {
	mods, err := marshalOptions(p.Modifiers)
	if err != nil {
		return err
	}

	query := `
		UPDATE products
		SET category_id = NULLIF($1, '')::uuid, name = $2, description = $3, price = $4, image_url = $5,
			available = $6, modifiers = $7, sort_order = $8, updated_at = $9
		WHERE id = $10 AND tenant_id = $11`

	ct, err := r.pool.Exec(ctx, query,
		p.CategoryID, p.Name, p.Description, p.Price, p.ImageURL,
		p.Available, mods, p.SortOrder, p.UpdatedAt, p.ID, p.TenantID,
	)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return apperrors.InvalidInput("category does not exist")
		}
		return fmt.Errorf("update product: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("product", p.ID)
	}
	return nil
}

// Delete removes a product of the tenant.
func (r *ProductRepository) Delete(ctx context.Context, tenantID, id string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("product", id)
	}
	return nil
}

// GetByID retrieves a product of the tenant.
func (r *ProductRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 AND tenant_id = $2`

	p, err := scanProduct(r.pool.QueryRow(ctx, query, id, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("product", id)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// List returns all of the tenant's products in menu order.
func (r *ProductRepository) List(ctx context.Context, tenantID string) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE tenant_id = $1 ORDER BY sort_order, name`

	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var (
		p    domain.Product
		mods []byte
	)
	if err := row.Scan(
		&p.ID, &p.TenantID, &p.CategoryID, &p.Name, &p.Description, &p.Price, &p.ImageURL,
		&p.Available, &mods, &p.SortOrder, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Modifiers = []domain.ModifierOption{}
	if len(mods) > 0 && string(mods) != "null" {
		if err := json.Unmarshal(mods, &p.Modifiers); err != nil {
			return nil, fmt.Errorf("unmarshal product modifiers: %w", err)
		}
	}
	return &p, nil
}

func marshalOptions(o []domain.ModifierOption) ([]byte, error) {
	if o == nil {
		o = []domain.ModifierOption{}
	}
	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("marshal product modifiers: %w", err)
	}
	return data, nil
}
