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

// TenantRepository implements repository.TenantRepository using PostgreSQL.
type TenantRepository struct {
	pool database.DBTX
}

// NewTenantRepository creates a new PostgreSQL-backed tenant repository.
func NewTenantRepository(pool database.DBTX) *TenantRepository {
	return &TenantRepository{pool: pool}
}

const tenantColumns = `id, name, slug, logo_url, banner_url, popup_image_url, popup_enabled,
	phone, address, links, created_at, updated_at`

// Create inserts a new restaurant profile.
func (r *TenantRepository) Create(ctx context.Context, t *domain.Tenant) error {
	links, err := marshalLinks(t.Links)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tenants (` + tenantColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = r.pool.Exec(ctx, query,
		t.ID, t.Name, t.Slug, t.LogoURL, t.BannerURL, t.PopupImageURL, t.PopupEnabled,
		t.Phone, t.Address, links, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "tenants_slug_key") {
			return apperrors.AlreadyExists("tenant", "slug", t.Slug)
		}
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("tenant", "id", t.ID)
		}
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

// Update saves a restaurant profile.
func (r *TenantRepository) Update(ctx context.Context, t *domain.Tenant) error {
	links, err := marshalLinks(t.Links)
	if err != nil {
		return err
	}

	query := `
		UPDATE tenants
		SET name = $1, slug = $2, logo_url = $3, banner_url = $4, popup_image_url = $5,
			popup_enabled = $6, phone = $7, address = $8, links = $9, updated_at = $10
		WHERE id = $11`

	ct, err := r.pool.Exec(ctx, query,
		t.Name, t.Slug, t.LogoURL, t.BannerURL, t.PopupImageURL,
		t.PopupEnabled, t.Phone, t.Address, links, t.UpdatedAt, t.ID,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "tenants_slug_key") {
			return apperrors.AlreadyExists("tenant", "slug", t.Slug)
		}
		return fmt.Errorf("update tenant: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("tenant", t.ID)
	}
	return nil
}

// GetByID retrieves a restaurant profile by tenant id.
func (r *TenantRepository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	return r.getBy(ctx, "id", id)
}

// GetBySlug retrieves a restaurant profile by its public slug.
func (r *TenantRepository) GetBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	return r.getBy(ctx, "slug", slug)
}

func (r *TenantRepository) getBy(ctx context.Context, column, value string) (*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE ` + column + ` = $1`

	var (
		t     domain.Tenant
		links []byte
	)
	err := r.pool.QueryRow(ctx, query, value).Scan(
		&t.ID, &t.Name, &t.Slug, &t.LogoURL, &t.BannerURL, &t.PopupImageURL, &t.PopupEnabled,
		&t.Phone, &t.Address, &links, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("tenant", value)
		}
		return nil, fmt.Errorf("get tenant: %w", err)
	}

	t.Links = []domain.Link{}
	if len(links) > 0 && string(links) != "null" {
		if err := json.Unmarshal(links, &t.Links); err != nil {
			return nil, fmt.Errorf("unmarshal tenant links: %w", err)
		}
	}
	return &t, nil
}

// SlugExists reports whether another tenant than excludeID uses slug.
func (r *TenantRepository) SlugExists(ctx context.Context, slug, excludeID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM tenants WHERE slug = $1 AND id::text <> $2)`, slug, excludeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check tenant slug: %w", err)
	}
	return exists, nil
}

func marshalLinks(l []domain.Link) ([]byte, error) {
	if l == nil {
		l = []domain.Link{}
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshal tenant links: %w", err)
	}
	return data, nil
}
