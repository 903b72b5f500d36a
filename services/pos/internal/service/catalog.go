package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/raulancona/gourmetclick/pkg/errors"
	"github.com/raulancona/gourmetclick/services/pos/internal/domain"
	"github.com/raulancona/gourmetclick/services/pos/internal/realtime"
	"github.com/raulancona/gourmetclick/services/pos/internal/repository"
)

const invalidateTimeout = 2 * time.Second

// ChangeSubscriber delivers row change events per tenant. *realtime.Hub
// implements it.
type ChangeSubscriber interface {
	Subscribe(ctx context.Context, tenantID, table string, cb realtime.Callback) (*realtime.Subscription, error)
}

// CategoryInput holds the editable fields of a category.
type CategoryInput struct {
	Name      string `json:"name" validate:"required,max=80"`
	SortOrder int    `json:"sort_order" validate:"gte=0"`
}

// ModifierOptionInput describes a customization a product offers.
type ModifierOptionInput struct {
	Name       string   `json:"name" validate:"required,max=60"`
	Values     []string `json:"values" validate:"max=30,dive,max=60"`
	ExtraPrice int64    `json:"extra_price" validate:"gte=0"`
}

// ProductInput holds the editable fields of a product.
type ProductInput struct {
	CategoryID  string                `json:"category_id" validate:"omitempty,uuid"`
	Name        string                `json:"name" validate:"required,max=120"`
	Description string                `json:"description" validate:"max=500"`
	Price       int64                 `json:"price" validate:"gte=0"`
	ImageURL    string                `json:"image_url" validate:"omitempty,url"`
	Available   *bool                 `json:"available"`
	Modifiers   []ModifierOptionInput `json:"modifiers" validate:"max=20,dive"`
	SortOrder   int                   `json:"sort_order" validate:"gte=0"`
}

// CatalogService manages the menu. Product and category lists are read
// through a per-tenant cache, dropped on local writes and on realtime
// products/categories events.
type CatalogService struct {
	categories repository.CategoryRepository
	products   repository.ProductRepository
	cache      repository.CatalogCache
	changes    ChangeSubscriber
	logger     *slog.Logger

	mu      sync.Mutex
	watched map[string]*catalogWatch
	closed  bool
	joins   sync.WaitGroup
	now     func() time.Time
}

// catalogWatch holds one tenant's change subscriptions. subs is nil while the
// join is still running.
type catalogWatch struct {
	subs     []*realtime.Subscription
	lastRead time.Time
}

// NewCatalogService creates a new catalog service. changes may be nil, in
// which case only local writes invalidate the cache.
func NewCatalogService(
	categories repository.CategoryRepository,
	products repository.ProductRepository,
	cache repository.CatalogCache,
	changes ChangeSubscriber,
	logger *slog.Logger,
) *CatalogService {
	return &CatalogService{
		categories: categories,
		products:   products,
		cache:      cache,
		changes:    changes,
		logger:     logger,
		watched:    make(map[string]*catalogWatch),
		now:        time.Now,
	}
}

// ListCategories returns the tenant's categories in menu order.
func (s *CatalogService) ListCategories(ctx context.Context, tenantID string) ([]domain.Category, error) {
	s.watch(ctx, tenantID)

	if cached, ok, err := s.cache.GetCategories(ctx, tenantID); err != nil {
		s.logger.WarnContext(ctx, "catalog cache read failed", slog.String("error", err.Error()))
	} else if ok {
		return cached, nil
	}

	categories, err := s.categories.List(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	if err := s.cache.SetCategories(ctx, tenantID, categories); err != nil {
		s.logger.WarnContext(ctx, "catalog cache write failed", slog.String("error", err.Error()))
	}
	return categories, nil
}

// ListProducts returns all of the tenant's products in menu order.
func (s *CatalogService) ListProducts(ctx context.Context, tenantID string) ([]domain.Product, error) {
	s.watch(ctx, tenantID)

	if cached, ok, err := s.cache.GetProducts(ctx, tenantID); err != nil {
		s.logger.WarnContext(ctx, "catalog cache read failed", slog.String("error", err.Error()))
	} else if ok {
		return cached, nil
	}

	products, err := s.products.List(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	if err := s.cache.SetProducts(ctx, tenantID, products); err != nil {
		s.logger.WarnContext(ctx, "catalog cache write failed", slog.String("error", err.Error()))
	}
	return products, nil
}

// GetProduct returns one product.
func (s *CatalogService) GetProduct(ctx context.Context, tenantID, id string) (*domain.Product, error) {
	return s.products.GetByID(ctx, tenantID, id)
}

// CreateCategory adds a menu category.
func (s *CatalogService) CreateCategory(ctx context.Context, tenantID string, input CategoryInput) (*domain.Category, error) {
	c := &domain.Category{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      input.Name,
		SortOrder: input.SortOrder,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.categories.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	s.invalidate(ctx, tenantID)

	s.logger.InfoContext(ctx, "category created",
		slog.String("tenant_id", tenantID),
		slog.String("category_id", c.ID),
	)
	return c, nil
}

// UpdateCategory renames or reorders a category.
func (s *CatalogService) UpdateCategory(ctx context.Context, tenantID, id string, input CategoryInput) (*domain.Category, error) {
	c, err := s.categories.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	c.Name = input.Name
	c.SortOrder = input.SortOrder
	if err := s.categories.Update(ctx, c); err != nil {
		return nil, err
	}
	s.invalidate(ctx, tenantID)
	return c, nil
}

// DeleteCategory removes an empty category. Categories that still hold
// products are kept and a Conflict is returned.
func (s *CatalogService) DeleteCategory(ctx context.Context, tenantID, id string) error {
	n, err := s.categories.CountProducts(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return apperrors.Conflict(fmt.Sprintf("category still has %d products", n))
	}
	if err := s.categories.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	s.invalidate(ctx, tenantID)

	s.logger.InfoContext(ctx, "category deleted",
		slog.String("tenant_id", tenantID),
		slog.String("category_id", id),
	)
	return nil
}

// CreateProduct adds a product. New products are available unless the input says otherwise.
func (s *CatalogService) CreateProduct(ctx context.Context, tenantID string, input ProductInput) (*domain.Product, error) {
	now := time.Now().UTC()
	p := &domain.Product{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Available: true,
		CreatedAt: now,
	}
	applyProductInput(p, input)
	p.UpdatedAt = now

	if err := s.products.Create(ctx, p); err != nil {
		return nil, err
	}
	s.invalidate(ctx, tenantID)

	s.logger.InfoContext(ctx, "product created",
		slog.String("tenant_id", tenantID),
		slog.String("product_id", p.ID),
		slog.Int64("price", p.Price),
	)
	return p, nil
}

// UpdateProduct replaces the editable fields of a product.
func (s *CatalogService) UpdateProduct(ctx context.Context, tenantID, id string, input ProductInput) (*domain.Product, error) {
	p, err := s.products.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	applyProductInput(p, input)
	p.UpdatedAt = time.Now().UTC()

	if err := s.products.Update(ctx, p); err != nil {
		return nil, err
	}
	s.invalidate(ctx, tenantID)
	return p, nil
}

// DeleteProduct removes a product from the menu.
func (s *CatalogService) DeleteProduct(ctx context.Context, tenantID, id string) error {
	if err := s.products.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	s.invalidate(ctx, tenantID)

	s.logger.InfoContext(ctx, "product deleted",
		slog.String("tenant_id", tenantID),
		slog.String("product_id", id),
	)
	return nil
}

func applyProductInput(p *domain.Product, input ProductInput) {
	p.CategoryID = input.CategoryID
	p.Name = input.Name
	p.Description = input.Description
	p.Price = input.Price
	p.ImageURL = input.ImageURL
	if input.Available != nil {
		p.Available = *input.Available
	}
	p.SortOrder = input.SortOrder
	p.Modifiers = make([]domain.ModifierOption, 0, len(input.Modifiers))
	for _, m := range input.Modifiers {
		p.Modifiers = append(p.Modifiers, domain.ModifierOption{
			Name:       m.Name,
			Values:     m.Values,
			ExtraPrice: m.ExtraPrice,
		})
	}
}

func (s *CatalogService) invalidate(ctx context.Context, tenantID string) {
	if err := s.cache.Invalidate(ctx, tenantID); err != nil {
		s.logger.ErrorContext(ctx, "failed to invalidate catalog cache",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
	}
}

// watch starts the tenant's products and categories subscriptions once.
// The join runs in the background, so catalog reads never wait on it.
func (s *CatalogService) watch(ctx context.Context, tenantID string) {
	if s.changes == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if w, ok := s.watched[tenantID]; ok {
		w.lastRead = s.now()
		s.mu.Unlock()
		return
	}
	w := &catalogWatch{lastRead: s.now()}
	s.watched[tenantID] = w
	s.joins.Add(1)
	s.mu.Unlock()

	go s.subscribe(context.WithoutCancel(ctx), tenantID, w)
}

func (s *CatalogService) subscribe(ctx context.Context, tenantID string, w *catalogWatch) {
	defer s.joins.Done()

	subs := make([]*realtime.Subscription, 0, 2)
	for _, table := range []string{realtime.TableProducts, realtime.TableCategories} {
		sub, err := s.changes.Subscribe(ctx, tenantID, table, s.onChange)
		if err != nil {
			s.logger.WarnContext(ctx, "catalog change subscription failed",
				slog.String("tenant_id", tenantID),
				slog.String("table", table),
				slog.String("error", err.Error()),
			)
			continue
		}
		subs = append(subs, sub)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.watched[tenantID] != w {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
		return
	}
	w.subs = subs
}

// ReleaseIdle drops the subscriptions of tenants whose catalog was not read
// within maxIdle, letting the hub close their channels. With maxIdle at least
// the cache TTL no cached list can outlive its invalidation. It returns the
// number of tenants released.
func (s *CatalogService) ReleaseIdle(maxIdle time.Duration) int {
	s.mu.Lock()
	now := s.now()
	var idle [][]*realtime.Subscription
	for tenant, w := range s.watched {
		if w.subs == nil || now.Sub(w.lastRead) <= maxIdle {
			continue
		}
		idle = append(idle, w.subs)
		delete(s.watched, tenant)
	}
	s.mu.Unlock()

	for _, subs := range idle {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}
	return len(idle)
}

// Run calls ReleaseIdle every maxIdle until ctx is cancelled.
func (s *CatalogService) Run(ctx context.Context, maxIdle time.Duration) {
	ticker := time.NewTicker(maxIdle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.ReleaseIdle(maxIdle); n > 0 {
				s.logger.Debug("released idle catalog subscriptions", slog.Int("tenants", n))
			}
		}
	}
}

// onChange runs on the realtime delivery goroutine, so the cache round trip
// is moved off it.
func (s *CatalogService) onChange(ev realtime.Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
		defer cancel()
		s.invalidate(ctx, ev.TenantID)
		s.logger.Debug("catalog cache invalidated by change event",
			slog.String("tenant_id", ev.TenantID),
			slog.String("table", ev.Table),
			slog.String("event_type", ev.Type),
		)
	}()
}

// Close releases the realtime subscriptions and waits for pending joins.
func (s *CatalogService) Close() {
	s.mu.Lock()
	s.closed = true
	for tenant, w := range s.watched {
		for _, sub := range w.subs {
			sub.Unsubscribe()
		}
		delete(s.watched, tenant)
	}
	s.mu.Unlock()

	s.joins.Wait()
}
