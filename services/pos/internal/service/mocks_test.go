package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	apperrors "github.com/raulancona/gourmetclick/pkg/errors"
	pkgkafka "github.com/raulancona/gourmetclick/pkg/kafka"
	"github.com/raulancona/gourmetclick/pkg/pagination"
	"github.com/raulancona/gourmetclick/services/pos/internal/domain"
	"github.com/raulancona/gourmetclick/services/pos/internal/event"
	"github.com/raulancona/gourmetclick/services/pos/internal/realtime"
	"github.com/raulancona/gourmetclick/services/pos/internal/repository"
)

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestProducer() *event.Producer {
	logger := newTestLogger()
	return event.NewProducer(pkgkafka.NopPublisher{Logger: logger}, logger)
}

// --- In-memory cart store ---

type memCartRepository struct {
	mu    sync.Mutex
	carts map[string]domain.Cart
	// saveErr, when set, is returned by every SaveIfVersion call.
	saveErr error
}

func newMemCartRepository() *memCartRepository {
	return &memCartRepository{carts: make(map[string]domain.Cart)}
}

func (m *memCartRepository) Get(_ context.Context, tenantID, terminalID string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[tenantID+"/"+terminalID]
	if !ok {
		return nil, apperrors.NotFound("cart", terminalID)
	}
	c.Lines = append([]domain.CartLine(nil), c.Lines...)
	return &c, nil
}

func (m *memCartRepository) SaveIfVersion(_ context.Context, cart *domain.Cart, expected int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return false, m.saveErr
	}
	key := cart.TenantID + "/" + cart.TerminalID
	if stored, ok := m.carts[key]; ok && stored.Version != expected {
		return false, nil
	} else if !ok && expected != 0 {
		return false, nil
	}
	cart.Version = expected + 1
	c := *cart
	c.Lines = append([]domain.CartLine(nil), cart.Lines...)
	m.carts[key] = c
	return true, nil
}

func (m *memCartRepository) Delete(_ context.Context, tenantID, terminalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, tenantID+"/"+terminalID)
	return nil
}

type memHandoffRepository struct {
	mu    sync.Mutex
	slots map[string][]byte
}

func newMemHandoffRepository() *memHandoffRepository {
	return &memHandoffRepository{slots: make(map[string][]byte)}
}

func (m *memHandoffRepository) Put(_ context.Context, tenantID, terminalID string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[tenantID+"/"+terminalID] = payload
	return nil
}

func (m *memHandoffRepository) Take(_ context.Context, tenantID, terminalID string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tenantID + "/" + terminalID
	p, ok := m.slots[key]
	delete(m.slots, key)
	return p, ok, nil
}

// --- Mock Repositories ---

type mockOrderRepository struct {
	mock.Mock
}

func (m *mockOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	return m.Called(ctx, order).Error(0)
}

func (m *mockOrderRepository) Update(ctx context.Context, order *domain.Order) error {
	return m.Called(ctx, order).Error(0)
}

func (m *mockOrderRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Order, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockOrderRepository) List(ctx context.Context, tenantID string, filter repository.OrderFilter) ([]domain.Order, int, error) {
	args := m.Called(ctx, tenantID, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Order), args.Int(1), args.Error(2)
}

func (m *mockOrderRepository) UpdateStatus(ctx context.Context, tenantID, id, status string) error {
	return m.Called(ctx, tenantID, id, status).Error(0)
}

func (m *mockOrderRepository) SumCashSales(ctx context.Context, tenantID string, from, to time.Time) (int64, error) {
	args := m.Called(ctx, tenantID, from, to)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockOrderRepository) Summary(ctx context.Context, tenantID string, from, to time.Time) (*repository.SalesSummary, error) {
	args := m.Called(ctx, tenantID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.SalesSummary), args.Error(1)
}

type mockProductRepository struct {
	mock.Mock
}

func (m *mockProductRepository) Create(ctx context.Context, p *domain.Product) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockProductRepository) Update(ctx context.Context, p *domain.Product) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockProductRepository) Delete(ctx context.Context, tenantID, id string) error {
	return m.Called(ctx, tenantID, id).Error(0)
}

func (m *mockProductRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Product, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *mockProductRepository) List(ctx context.Context, tenantID string) ([]domain.Product, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Product), args.Error(1)
}

type mockCategoryRepository struct {
	mock.Mock
}

func (m *mockCategoryRepository) Create(ctx context.Context, c *domain.Category) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockCategoryRepository) Update(ctx context.Context, c *domain.Category) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockCategoryRepository) Delete(ctx context.Context, tenantID, id string) error {
	return m.Called(ctx, tenantID, id).Error(0)
}

func (m *mockCategoryRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Category, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Category), args.Error(1)
}

func (m *mockCategoryRepository) List(ctx context.Context, tenantID string) ([]domain.Category, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Category), args.Error(1)
}

func (m *mockCategoryRepository) CountProducts(ctx context.Context, tenantID, id string) (int, error) {
	args := m.Called(ctx, tenantID, id)
	return args.Int(0), args.Error(1)
}

type mockCatalogCache struct {
	mock.Mock
}

func (m *mockCatalogCache) GetProducts(ctx context.Context, tenantID string) ([]domain.Product, bool, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]domain.Product), args.Bool(1), args.Error(2)
}

func (m *mockCatalogCache) SetProducts(ctx context.Context, tenantID string, products []domain.Product) error {
	return m.Called(ctx, tenantID, products).Error(0)
}

func (m *mockCatalogCache) GetCategories(ctx context.Context, tenantID string) ([]domain.Category, bool, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]domain.Category), args.Bool(1), args.Error(2)
}

func (m *mockCatalogCache) SetCategories(ctx context.Context, tenantID string, categories []domain.Category) error {
	return m.Called(ctx, tenantID, categories).Error(0)
}

func (m *mockCatalogCache) Invalidate(ctx context.Context, tenantID string) error {
	return m.Called(ctx, tenantID).Error(0)
}

type mockTenantRepository struct {
	mock.Mock
}

func (m *mockTenantRepository) Create(ctx context.Context, t *domain.Tenant) error {
	return m.Called(ctx, t).Error(0)
}

func (m *mockTenantRepository) Update(ctx context.Context, t *domain.Tenant) error {
	return m.Called(ctx, t).Error(0)
}

func (m *mockTenantRepository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Tenant), args.Error(1)
}

func (m *mockTenantRepository) GetBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Tenant), args.Error(1)
}

func (m *mockTenantRepository) SlugExists(ctx context.Context, slug, excludeID string) (bool, error) {
	args := m.Called(ctx, slug, excludeID)
	return args.Bool(0), args.Error(1)
}

type mockStaffRepository struct {
	mock.Mock
}

func (m *mockStaffRepository) Create(ctx context.Context, s *domain.Staff) error {
	return m.Called(ctx, s).Error(0)
}

func (m *mockStaffRepository) Update(ctx context.Context, s *domain.Staff) error {
	return m.Called(ctx, s).Error(0)
}

func (m *mockStaffRepository) Delete(ctx context.Context, tenantID, id string) error {
	return m.Called(ctx, tenantID, id).Error(0)
}

func (m *mockStaffRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Staff, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Staff), args.Error(1)
}

func (m *mockStaffRepository) List(ctx context.Context, tenantID string) ([]domain.Staff, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Staff), args.Error(1)
}

type mockPINSessionRepository struct {
	mock.Mock
}

func (m *mockPINSessionRepository) Save(ctx context.Context, s *domain.PINSession) error {
	return m.Called(ctx, s).Error(0)
}

func (m *mockPINSessionRepository) Get(ctx context.Context, token string) (*domain.PINSession, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PINSession), args.Error(1)
}

func (m *mockPINSessionRepository) Delete(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

type mockCashSessionRepository struct {
	mock.Mock
}

func (m *mockCashSessionRepository) Create(ctx context.Context, s *domain.CashSession) error {
	return m.Called(ctx, s).Error(0)
}

func (m *mockCashSessionRepository) Close(ctx context.Context, s *domain.CashSession) error {
	return m.Called(ctx, s).Error(0)
}

func (m *mockCashSessionRepository) GetOpen(ctx context.Context, tenantID string) (*domain.CashSession, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CashSession), args.Error(1)
}

func (m *mockCashSessionRepository) List(ctx context.Context, tenantID string, params pagination.Params) ([]domain.CashSession, int, error) {
	args := m.Called(ctx, tenantID, params)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.CashSession), args.Int(1), args.Error(2)
}

type mockExpenseRepository struct {
	mock.Mock
}

func (m *mockExpenseRepository) Create(ctx context.Context, e *domain.Expense) error {
	return m.Called(ctx, e).Error(0)
}

func (m *mockExpenseRepository) Delete(ctx context.Context, tenantID, id string) error {
	return m.Called(ctx, tenantID, id).Error(0)
}

func (m *mockExpenseRepository) List(ctx context.Context, tenantID string, from, to time.Time) ([]domain.Expense, error) {
	args := m.Called(ctx, tenantID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Expense), args.Error(1)
}

func (m *mockExpenseRepository) Sum(ctx context.Context, tenantID string, from, to time.Time, paymentMethod string) (int64, error) {
	args := m.Called(ctx, tenantID, from, to, paymentMethod)
	return args.Get(0).(int64), args.Error(1)
}

// --- Fakes for external collaborators ---

type fakeSubscriber struct {
	mu        sync.Mutex
	callbacks map[string]realtime.Callback
	calls     int
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{callbacks: make(map[string]realtime.Callback)}
}

func (f *fakeSubscriber) Subscribe(_ context.Context, tenantID, table string, cb realtime.Callback) (*realtime.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.callbacks[tenantID+"/"+table] = cb
	return nil, nil
}

func (f *fakeSubscriber) emit(ev realtime.Event) {
	f.mu.Lock()
	cb := f.callbacks[ev.TenantID+"/"+ev.Table]
	f.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

type fakeImageStore struct {
	mu       sync.Mutex
	uploaded map[string][]byte
	removed  []string
	baseURL  string
}

func newFakeImageStore() *fakeImageStore {
	return &fakeImageStore{uploaded: make(map[string][]byte), baseURL: "https://cdn.test/"}
}

func (f *fakeImageStore) Upload(_ context.Context, bucket, objectPath, _ string, body []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded[objectPath] = body
	return f.baseURL + bucket + "/" + objectPath, nil
}

func (f *fakeImageStore) Remove(_ context.Context, _ string, paths ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, paths...)
	return nil
}

func (f *fakeImageStore) ObjectPath(bucket, publicURL string) (string, bool) {
	prefix := f.baseURL + bucket + "/"
	if len(publicURL) <= len(prefix) || publicURL[:len(prefix)] != prefix {
		return "", false
	}
	return publicURL[len(prefix):], true
}
