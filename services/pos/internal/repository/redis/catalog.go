package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/raulancona/gourmetclick/services/pos/internal/domain"
)

const catalogKeyPrefix = "pos:catalog:"

// CatalogCache caches product and category lists per tenant.
type CatalogCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCatalogCache creates a new catalog cache.
func NewCatalogCache(client *redis.Client, ttl time.Duration) *CatalogCache {
	return &CatalogCache{client: client, ttl: ttl}
}

func productsKey(tenantID string) string   { return catalogKeyPrefix + tenantID + ":products" }
func categoriesKey(tenantID string) string { return catalogKeyPrefix + tenantID + ":categories" }

// GetProducts returns the cached product list of a tenant, if present.
func (c *CatalogCache) GetProducts(ctx context.Context, tenantID string) ([]domain.Product, bool, error) {
	var products []domain.Product
	ok, err := c.get(ctx, productsKey(tenantID), &products)
	return products, ok, err
}

// SetProducts caches the product list of a tenant.
func (c *CatalogCache) SetProducts(ctx context.Context, tenantID string, products []domain.Product) error {
	return c.set(ctx, productsKey(tenantID), products)
}

// GetCategories returns the cached category list of a tenant, if present.
func (c *CatalogCache) GetCategories(ctx context.Context, tenantID string) ([]domain.Category, bool, error) {
	var categories []domain.Category
	ok, err := c.get(ctx, categoriesKey(tenantID), &categories)
	return categories, ok, err
}

// SetCategories caches the category list of a tenant.
func (c *CatalogCache) SetCategories(ctx context.Context, tenantID string, categories []domain.Category) error {
	return c.set(ctx, categoriesKey(tenantID), categories)
}

// Invalidate drops both lists of a tenant.
func (c *CatalogCache) Invalidate(ctx context.Context, tenantID string) error {
	if err := c.client.Del(ctx, productsKey(tenantID), categoriesKey(tenantID)).Err(); err != nil {
		return fmt.Errorf("redis del catalog: %w", err)
	}
	return nil
}

func (c *CatalogCache) get(ctx context.Context, key string, dst any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (c *CatalogCache) set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
