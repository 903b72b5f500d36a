package repository

import (
	"context"
	"time"

	"github.com/raulancona/gourmetclick/pkg/pagination"
	"github.com/raulancona/gourmetclick/services/pos/internal/domain"
)

// CartRepository persists per-terminal cart sessions.
type CartRepository interface {
	// Get returns the cart of a terminal, or a NotFound error.
	Get(ctx context.Context, tenantID, terminalID string) (*domain.Cart, error)

	// SaveIfVersion stores the cart only if the stored version still equals
	// expectedVersion, bumping cart.Version on success.
	SaveIfVersion(ctx context.Context, cart *domain.Cart, expectedVersion int) (bool, error)

	// Delete removes the cart of a terminal.
	Delete(ctx context.Context, tenantID, terminalID string) error
}

// HandoffRepository is the one-shot slot used to carry an order into a cart
// for editing.
type HandoffRepository interface {
	Put(ctx context.Context, tenantID, terminalID string, payload []byte) error

	// Take returns and clears the slot. ok is false when the slot is empty.
	Take(ctx context.Context, tenantID, terminalID string) (payload []byte, ok bool, err error)
}

// PINSessionRepository stores employee sessions opened by PIN.
type PINSessionRepository interface {
	Save(ctx context.Context, session *domain.PINSession) error
	Get(ctx context.Context, token string) (*domain.PINSession, error)
	Delete(ctx context.Context, token string) error
}

// CatalogCache caches the product and category lists of a tenant.
type CatalogCache interface {
	GetProducts(ctx context.Context, tenantID string) ([]domain.Product, bool, error)
	SetProducts(ctx context.Context, tenantID string, products []domain.Product) error
	GetCategories(ctx context.Context, tenantID string) ([]domain.Category, bool, error)
	SetCategories(ctx context.Context, tenantID string, categories []domain.Category) error
	Invalidate(ctx context.Context, tenantID string) error
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	Status string
	From   *time.Time
	To     *time.Time
	pagination.Params
}

// SalesSummary aggregates non-cancelled orders in a period.
type SalesSummary struct {
	OrderCount       int
	Revenue          int64
	RevenueByPayment map[string]int64
}

// OrderRepository persists orders and their items.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error

	// Update replaces the order's metadata and items atomically.
	Update(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Order, error)
	List(ctx context.Context, tenantID string, filter OrderFilter) ([]domain.Order, int, error)
	UpdateStatus(ctx context.Context, tenantID, id, status string) error

	// SumCashSales totals cash orders created in [from, to) that were not cancelled.
	SumCashSales(ctx context.Context, tenantID string, from, to time.Time) (int64, error)
	Summary(ctx context.Context, tenantID string, from, to time.Time) (*SalesSummary, error)
}

// CategoryRepository persists menu categories.
type CategoryRepository interface {
	Create(ctx context.Context, category *domain.Category) error
	Update(ctx context.Context, category *domain.Category) error
	Delete(ctx context.Context, tenantID, id string) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Category, error)
	List(ctx context.Context, tenantID string) ([]domain.Category, error)
	CountProducts(ctx context.Context, tenantID, id string) (int, error)
}

// ProductRepository persists menu products.
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	Update(ctx context.Context, product *domain.Product) error
	Delete(ctx context.Context, tenantID, id string) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Product, error)
	List(ctx context.Context, tenantID string) ([]domain.Product, error)
}

// TenantRepository persists restaurant profiles.
type TenantRepository interface {
	Create(ctx context.Context, tenant *domain.Tenant) error
	Update(ctx context.Context, tenant *domain.Tenant) error
	GetByID(ctx context.Context, id string) (*domain.Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Tenant, error)
	SlugExists(ctx context.Context, slug, excludeID string) (bool, error)
}

// StaffRepository persists employees.
type StaffRepository interface {
	Create(ctx context.Context, staff *domain.Staff) error
	Update(ctx context.Context, staff *domain.Staff) error
	Delete(ctx context.Context, tenantID, id string) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Staff, error)
	List(ctx context.Context, tenantID string) ([]domain.Staff, error)
}

// CashSessionRepository persists caja shifts.
type CashSessionRepository interface {
	// Create inserts an open session. AlreadyExists when one is open already.
	Create(ctx context.Context, session *domain.CashSession) error

	// Close stores the closing figures of an open session; Conflict when it
	// was closed in the meantime.
	Close(ctx context.Context, session *domain.CashSession) error
	GetOpen(ctx context.Context, tenantID string) (*domain.CashSession, error)
	List(ctx context.Context, tenantID string, params pagination.Params) ([]domain.CashSession, int, error)
}

// ExpenseRepository persists expenses.
type ExpenseRepository interface {
	Create(ctx context.Context, expense *domain.Expense) error
	Delete(ctx context.Context, tenantID, id string) error
	List(ctx context.Context, tenantID string, from, to time.Time) ([]domain.Expense, error)

	// Sum totals expenses in [from, to); an empty paymentMethod matches all.
	Sum(ctx context.Context, tenantID string, from, to time.Time, paymentMethod string) (int64, error)
}
