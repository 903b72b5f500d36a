package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/raulancona/gourmetclick/pkg/errors"
	"github.com/raulancona/gourmetclick/services/pos/internal/domain"
	"github.com/raulancona/gourmetclick/services/pos/internal/realtime"
)

type catalogFixture struct {
	svc        *CatalogService
	categories *mockCategoryRepository
	products   *mockProductRepository
	cache      *mockCatalogCache
	changes    *fakeSubscriber
}

func newCatalogFixture() *catalogFixture {
	f := &catalogFixture{
		categories: new(mockCategoryRepository),
		products:   new(mockProductRepository),
		cache:      new(mockCatalogCache),
		changes:    newFakeSubscriber(),
	}
	f.svc = NewCatalogService(f.categories, f.products, f.cache, f.changes, newTestLogger())
	return f
}

func TestListProducts_CacheHit(t *testing.T) {
	f := newCatalogFixture()
	ctx := context.Background()
	cached := []domain.Product{*tacoProduct()}
	f.cache.On("GetProducts", ctx, testTenant).Return(cached, true, nil)

	got, err := f.svc.ListProducts(ctx, testTenant)

	require.NoError(t, err)
	assert.Equal(t, cached, got)
	f.products.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestListProducts_CacheMissFillsCache(t *testing.T) {
	f := newCatalogFixture()
	ctx := context.Background()
	fromDB := []domain.Product{*tacoProduct()}
	f.cache.On("GetProducts", ctx, testTenant).Return(nil, false, nil)
	f.products.On("List", ctx, testTenant).Return(fromDB, nil)
	f.cache.On("SetProducts", ctx, testTenant, fromDB).Return(nil)

	got, err := f.svc.ListProducts(ctx, testTenant)

	require.NoError(t, err)
	assert.Equal(t, fromDB, got)
	f.cache.AssertExpectations(t)
}

func TestListCategories_CacheErrorFallsBackToDatabase(t *testing.T) {
	f := newCatalogFixture()
	ctx := context.Background()
	fromDB := []domain.Category{{ID: "cat-1", TenantID: testTenant, Name: "Tacos"}}
	f.cache.On("GetCategories", ctx, testTenant).Return(nil, false, errors.New("redis down"))
	f.categories.On("List", ctx, testTenant).Return(fromDB, nil)
	f.cache.On("SetCategories", ctx, testTenant, fromDB).Return(errors.New("redis down"))

	got, err := f.svc.ListCategories(ctx, testTenant)

	require.NoError(t, err)
	assert.Equal(t, fromDB, got)
}

func TestCatalog_SubscribesOncePerTenant(t *testing.T) {
	f := newCatalogFixture()
	ctx := context.Background()
	f.cache.On("GetProducts", ctx, mock.Anything).Return([]domain.Product{}, true, nil)
	f.cache.On("GetCategories", ctx, mock.Anything).Return([]domain.Category{}, true, nil)

	_, _ = f.svc.ListProducts(ctx, testTenant)
	_, _ = f.svc.ListCategories(ctx, testTenant)
	_, _ = f.svc.ListProducts(ctx, "tenant-2")
	f.svc.joins.Wait()

	assert.Equal(t, 4, f.changes.calls)
}

func TestCatalog_ChangeEventInvalidatesCache(t *testing.T) {
	f := newCatalogFixture()
	ctx := context.Background()
	f.cache.On("GetProducts", ctx, testTenant).Return([]domain.Product{}, true, nil)

	invalidated := make(chan string, 1)
	f.cache.On("Invalidate", mock.Anything, testTenant).
		Run(func(args mock.Arguments) { invalidated <- args.String(1) }).
		Return(nil)

	_, err := f.svc.ListProducts(ctx, testTenant)
	require.NoError(t, err)
	f.svc.joins.Wait()

	f.changes.emit(realtime.Event{TenantID: testTenant, Table: realtime.TableProducts, Type: "UPDATE"})

	select {
	case tenant := <-invalidated:
		assert.Equal(t, testTenant, tenant)
	case <-time.After(2 * time.Second):
		t.Fatal("cache was not invalidated")
	}
}

func TestCreateProduct_InvalidatesCache(t *testing.T) {
	f := newCatalogFixture()
	ctx := context.Background()
	f.products.On("Create", ctx, mock.AnythingOfType("*domain.Product")).Return(nil)
	f.cache.On("Invalidate", ctx, testTenant).Return(nil)

	p, err := f.svc.CreateProduct(ctx, testTenant, ProductInput{
		Name:      "Gringa",
		Price:     4500,
		Modifiers: []ModifierOptionInput{{Name: "Salsa", Values: []string{"verde"}}},
	})

	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.True(t, p.Available)
	assert.Equal(t, int64(4500), p.Price)
	require.Len(t, p.Modifiers, 1)
	f.cache.AssertExpectations(t)
}

func TestUpdateProduct_TogglesAvailability(t *testing.T) {
	f := newCatalogFixture()
	ctx := context.Background()
	f.products.On("GetByID", ctx, testTenant, "prod-taco").Return(tacoProduct(), nil)
	f.products.On("Update", ctx, mock.AnythingOfType("*domain.Product")).Return(nil)
	f.cache.On("Invalidate", ctx, testTenant).Return(nil)
	off := false

	p, err := f.svc.UpdateProduct(ctx, testTenant, "prod-taco", ProductInput{Name: "Taco al pastor", Price: 2600, Available: &off})

	require.NoError(t, err)
	assert.False(t, p.Available)
	assert.Equal(t, int64(2600), p.Price)
	assert.Empty(t, p.Modifiers)
}

func TestUpdateProduct_NotFound(t *testing.T) {
	f := newCatalogFixture()
	ctx := context.Background()
	f.products.On("GetByID", ctx, testTenant, "x").Return(nil, apperrors.NotFound("product", "x"))

	_, err := f.svc.UpdateProduct(ctx, testTenant, "x", ProductInput{Name: "X"})

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	f.cache.AssertNotCalled(t, "Invalidate", mock.Anything, mock.Anything)
}

func TestDeleteCategory_WithProductsIsConflict(t *testing.T) {
	f := newCatalogFixture()
	ctx := context.Background()
	f.categories.On("CountProducts", ctx, testTenant, "cat-1").Return(3, nil)

	err := f.svc.DeleteCategory(ctx, testTenant, "cat-1")

	assert.ErrorIs(t, err, apperrors.ErrConflict)
	f.categories.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeleteCategory_Empty(t *testing.T) {
	f := newCatalogFixture()
	ctx := context.Background()
	f.categories.On("CountProducts", ctx, testTenant, "cat-1").Return(0, nil)
	f.categories.On("Delete", ctx, testTenant, "cat-1").Return(nil)
	f.cache.On("Invalidate", ctx, testTenant).Return(nil)

	require.NoError(t, f.svc.DeleteCategory(ctx, testTenant, "cat-1"))
	f.categories.AssertExpectations(t)
}

func TestCreateCategory(t *testing.T) {
	f := newCatalogFixture()
	ctx := context.Background()
	f.categories.On("Create", ctx, mock.AnythingOfType("*domain.Category")).Return(nil)
	f.cache.On("Invalidate", ctx, testTenant).Return(errors.New("redis down"))

	c, err := f.svc.CreateCategory(ctx, testTenant, CategoryInput{Name: "Bebidas", SortOrder: 2})

	require.NoError(t, err)
	assert.Equal(t, "Bebidas", c.Name)
	assert.Equal(t, 2, c.SortOrder)
}

// slowSubscriber holds every join for one tenant until release is closed.
type slowSubscriber struct {
	slowTenant string
	release    chan struct{}
	ctxErrs    chan error
}

func (s *slowSubscriber) Subscribe(ctx context.Context, tenantID, _ string, _ realtime.Callback) (*realtime.Subscription, error) {
	if tenantID == s.slowTenant {
		<-s.release
		s.ctxErrs <- ctx.Err()
	}
	return nil, nil
}

func TestCatalog_SlowJoinDoesNotBlockReads(t *testing.T) {
	f := newCatalogFixture()
	changes := &slowSubscriber{slowTenant: "slow", release: make(chan struct{}), ctxErrs: make(chan error, 2)}
	svc := NewCatalogService(f.categories, f.products, f.cache, changes, newTestLogger())
	f.cache.On("GetProducts", mock.Anything, mock.Anything).Return([]domain.Product{}, true, nil)

	reqCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.ListProducts(reqCtx, "slow")
		_, _ = svc.ListProducts(context.Background(), "fast")
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		close(changes.release)
		t.Fatal("catalog reads waited on a realtime join")
	}

	// The request that started the join going away must not abort it.
	cancel()
	close(changes.release)
	svc.Close()
	assert.NoError(t, <-changes.ctxErrs)
	assert.NoError(t, <-changes.ctxErrs)
}

func TestCatalogClose_DropsLateJoin(t *testing.T) {
	f := newCatalogFixture()
	changes := &slowSubscriber{slowTenant: testTenant, release: make(chan struct{}), ctxErrs: make(chan error, 2)}
	svc := NewCatalogService(f.categories, f.products, f.cache, changes, newTestLogger())
	f.cache.On("GetProducts", mock.Anything, testTenant).Return([]domain.Product{}, true, nil)

	_, err := svc.ListProducts(context.Background(), testTenant)
	require.NoError(t, err)

	closed := make(chan struct{})
	go func() {
		svc.Close()
		close(closed)
	}()
	close(changes.release)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("close did not return")
	}
	assert.Empty(t, svc.watched)
}

// routerSubscriber registers every tenant's callbacks on one router.
type routerSubscriber struct{ router *realtime.Router }

func (r routerSubscriber) Subscribe(_ context.Context, _, table string, cb realtime.Callback) (*realtime.Subscription, error) {
	return r.router.Subscribe(table, cb), nil
}

func TestCatalog_ReleaseIdle(t *testing.T) {
	f := newCatalogFixture()
	router := realtime.NewRouter(nil, nil, newTestLogger())
	svc := NewCatalogService(f.categories, f.products, f.cache, routerSubscriber{router}, newTestLogger())
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }
	ctx := context.Background()
	f.cache.On("GetProducts", ctx, testTenant).Return([]domain.Product{}, true, nil)

	_, err := svc.ListProducts(ctx, testTenant)
	require.NoError(t, err)
	svc.joins.Wait()
	require.Equal(t, 1, router.ListenerCount(realtime.TableProducts))

	clock = clock.Add(5 * time.Minute)
	assert.Zero(t, svc.ReleaseIdle(10*time.Minute))
	assert.Equal(t, 1, router.ListenerCount(realtime.TableCategories))

	clock = clock.Add(6 * time.Minute)
	assert.Equal(t, 1, svc.ReleaseIdle(10*time.Minute))
	assert.Zero(t, router.ListenerCount(realtime.TableProducts))
	assert.Zero(t, router.ListenerCount(realtime.TableCategories))

	// The next read watches again.
	_, err = svc.ListProducts(ctx, testTenant)
	require.NoError(t, err)
	svc.joins.Wait()
	assert.Equal(t, 1, router.ListenerCount(realtime.TableProducts))
	svc.Close()
	assert.Zero(t, router.ListenerCount(realtime.TableProducts))
}

func TestCatalogClose_WithoutSubscriptions(t *testing.T) {
	f := newCatalogFixture()
	ctx := context.Background()
	f.cache.On("GetProducts", ctx, testTenant).Return([]domain.Product{}, true, nil)
	_, _ = f.svc.ListProducts(ctx, testTenant)

	assert.NotPanics(t, f.svc.Close)
}
