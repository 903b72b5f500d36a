package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/raulancona/gourmetclick/pkg/errors"
	"github.com/raulancona/gourmetclick/pkg/slug"
	"github.com/raulancona/gourmetclick/services/pos/internal/domain"
	"github.com/raulancona/gourmetclick/services/pos/internal/repository"
)

const maxSlugAttempts = 5

// ImageStore keeps uploaded images. *supabase.StorageClient implements it.
type ImageStore interface {
	Upload(ctx context.Context, bucket, objectPath, contentType string, body []byte) (string, error)
	Remove(ctx context.Context, bucket string, paths ...string) error
	ObjectPath(bucket, publicURL string) (string, bool)
}

// LinkInput is one link card entry.
type LinkInput struct {
	Label string `json:"label" validate:"required,max=60"`
	URL   string `json:"url" validate:"required,url"`
}

// ProfileInput holds the editable fields of the restaurant profile.
type ProfileInput struct {
	Name         string      `json:"name" validate:"required,max=120"`
	Slug         string      `json:"slug" validate:"omitempty,max=80"`
	Phone        string      `json:"phone" validate:"max=30"`
	Address      string      `json:"address" validate:"max=300"`
	PopupEnabled bool        `json:"popup_enabled"`
	Links        []LinkInput `json:"links" validate:"max=20,dive"`
}

// TenantService manages the restaurant profile and its public pages.
type TenantService struct {
	tenants  repository.TenantRepository
	catalog  *CatalogService
	images   ImageStore
	bucket   string
	maxBytes int64
	logger   *slog.Logger
}

// NewTenantService creates a new tenant service. images may be nil when no
// storage backend is configured; uploads then fail.
func NewTenantService(
	tenants repository.TenantRepository,
	catalog *CatalogService,
	images ImageStore,
	bucket string,
	maxBytes int64,
	logger *slog.Logger,
) *TenantService {
	return &TenantService{
		tenants:  tenants,
		catalog:  catalog,
		images:   images,
		bucket:   bucket,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// GetProfile returns the tenant's profile.
func (s *TenantService) GetProfile(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	return s.tenants.GetByID(ctx, tenantID)
}

// SaveProfile creates the profile on first save and updates it afterwards.
// A slug is derived from the name when none is given; a taken slug gets a
// numeric suffix.
func (s *TenantService) SaveProfile(ctx context.Context, tenantID string, input ProfileInput) (*domain.Tenant, error) {
	t, err := s.tenants.GetByID(ctx, tenantID)
	creating := false
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
		creating = true
		t = &domain.Tenant{ID: tenantID, CreatedAt: time.Now().UTC()}
	}

	base := slug.Generate(input.Slug)
	if base == "" {
		base = slug.Generate(input.Name)
	}
	if base == "" {
		return nil, apperrors.InvalidInput("name must contain letters or digits")
	}
	if base != t.Slug {
		free, err := s.freeSlug(ctx, base, tenantID)
		if err != nil {
			return nil, err
		}
		t.Slug = free
	}

	t.Name = input.Name
	t.Phone = input.Phone
	t.Address = input.Address
	t.PopupEnabled = input.PopupEnabled
	t.Links = make([]domain.Link, 0, len(input.Links))
	for _, l := range input.Links {
		t.Links = append(t.Links, domain.Link{Label: l.Label, URL: l.URL})
	}
	t.UpdatedAt = time.Now().UTC()

	if creating {
		err = s.tenants.Create(ctx, t)
	} else {
		err = s.tenants.Update(ctx, t)
	}
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "tenant profile saved",
		slog.String("tenant_id", tenantID),
		slog.String("slug", t.Slug),
		slog.Bool("created", creating),
	)
	return t, nil
}

func (s *TenantService) freeSlug(ctx context.Context, base, tenantID string) (string, error) {
	candidate := base
	for i := 2; i < maxSlugAttempts+2; i++ {
		taken, err := s.tenants.SlugExists(ctx, candidate, tenantID)
		if err != nil {
			return "", fmt.Errorf("check slug: %w", err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = slug.WithSuffix(base, fmt.Sprint(i))
	}
	return "", apperrors.AlreadyExists("tenant", "slug", base)
}

// GetPublicMenu returns the profile, categories and available products of
// the restaurant published under slug.
func (s *TenantService) GetPublicMenu(ctx context.Context, slugValue string) (*domain.PublicMenu, error) {
	t, err := s.tenants.GetBySlug(ctx, slugValue)
	if err != nil {
		return nil, err
	}
	categories, err := s.catalog.ListCategories(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	products, err := s.catalog.ListProducts(ctx, t.ID)
	if err != nil {
		return nil, err
	}

	available := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if p.Available {
			available = append(available, p)
		}
	}
	return &domain.PublicMenu{Tenant: t, Categories: categories, Products: available}, nil
}

// GetLinkCard returns the social link page of the restaurant.
func (s *TenantService) GetLinkCard(ctx context.Context, slugValue string) (*domain.LinkCard, error) {
	t, err := s.tenants.GetBySlug(ctx, slugValue)
	if err != nil {
		return nil, err
	}
	card := t.LinkCard()
	return &card, nil
}

var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// UploadImage stores a logo, banner or popup image and points the profile at
// it. The previous image of that kind is removed on a best-effort basis.
func (s *TenantService) UploadImage(ctx context.Context, tenantID, kind string, body []byte) (*domain.Tenant, error) {
	if !domain.IsValidImageKind(kind) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid image kind %q", kind))
	}
	if len(body) == 0 {
		return nil, apperrors.InvalidInput("image is empty")
	}
	if int64(len(body)) > s.maxBytes {
		return nil, apperrors.InvalidInput(fmt.Sprintf("image must not exceed %d bytes", s.maxBytes))
	}
	contentType := http.DetectContentType(body)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, apperrors.InvalidInput("file is not an image")
	}
	if s.images == nil {
		return nil, apperrors.Unavailable("image storage")
	}

	t, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	objectPath := fmt.Sprintf("%s/%s-%s%s", tenantID, kind, uuid.NewString(), imageExtensions[contentType])
	url, err := s.images.Upload(ctx, s.bucket, objectPath, contentType, body)
	if err != nil {
		return nil, fmt.Errorf("upload %s image: %w", kind, err)
	}

	previous := t.ImageURL(kind)
	t.SetImageURL(kind, url)
	t.UpdatedAt = time.Now().UTC()
	if err := s.tenants.Update(ctx, t); err != nil {
		return nil, err
	}

	if old, ok := s.images.ObjectPath(s.bucket, previous); ok {
		if err := s.images.Remove(ctx, s.bucket, old); err != nil {
			s.logger.WarnContext(ctx, "failed to remove previous image",
				slog.String("tenant_id", tenantID),
				slog.String("path", old),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "tenant image uploaded",
		slog.String("tenant_id", tenantID),
		slog.String("kind", kind),
		slog.Int("bytes", len(body)),
	)
	return t, nil
}
