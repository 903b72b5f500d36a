package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/raulancona/gourmetclick/pkg/errors"
	"github.com/raulancona/gourmetclick/pkg/health"
	"github.com/raulancona/gourmetclick/pkg/httputil"
	pkgkafka "github.com/raulancona/gourmetclick/pkg/kafka"
	"github.com/raulancona/gourmetclick/pkg/middleware"
	"github.com/raulancona/gourmetclick/pkg/ratelimit"
	"github.com/raulancona/gourmetclick/services/pos/internal/auth"
	"github.com/raulancona/gourmetclick/services/pos/internal/domain"
	"github.com/raulancona/gourmetclick/services/pos/internal/event"
	"github.com/raulancona/gourmetclick/services/pos/internal/realtime"
	redisrepo "github.com/raulancona/gourmetclick/services/pos/internal/repository/redis"
	"github.com/raulancona/gourmetclick/services/pos/internal/service"
)

const testTenant = "tenant-1"

// ============================================================================
// Fakes
// ============================================================================

// fakeFeed registers subscriptions on a real, never connected router so
// listener counts can be observed, and delivers events itself.
type fakeFeed struct {
	router *realtime.Router

	mu         sync.Mutex
	callbacks  map[string][]realtime.Callback
	states     map[string]string
	reconnects []string
}

func newFakeFeed(logger *slog.Logger) *fakeFeed {
	return &fakeFeed{
		router:    realtime.NewRouter(nil, nil, logger),
		callbacks: make(map[string][]realtime.Callback),
		states:    make(map[string]string),
	}
}

func (f *fakeFeed) Subscribe(_ context.Context, _, table string, cb realtime.Callback) (*realtime.Subscription, error) {
	f.mu.Lock()
	f.callbacks[table] = append(f.callbacks[table], cb)
	f.mu.Unlock()
	return f.router.Subscribe(table, cb), nil
}

func (f *fakeFeed) Reconnect(_ context.Context, tenantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnects = append(f.reconnects, tenantID)
	f.states[tenantID] = realtime.StateConnected
	return nil
}

func (f *fakeFeed) States() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.states))
	for k, v := range f.states {
		out[k] = v
	}
	return out
}

func (f *fakeFeed) Bindings() []realtime.Binding { return realtime.DefaultBindings() }

func (f *fakeFeed) emit(ev realtime.Event) {
	f.mu.Lock()
	cbs := append([]realtime.Callback(nil), f.callbacks[ev.Table]...)
	f.mu.Unlock()
	for _, cb := range cbs {
		cb(ev)
	}
}

// ============================================================================
// Test helpers
// ============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testValidator(token string) (*middleware.Claims, error) {
	switch token {
	case "owner-token":
		return &middleware.Claims{UserID: "user-1", Role: auth.RoleOwner, TenantID: testTenant}, nil
	case "staff-token":
		return &middleware.Claims{UserID: "user-2", Role: auth.RoleStaff, TenantID: testTenant}, nil
	case "orphan-token":
		return &middleware.Claims{UserID: "user-9", Role: auth.RoleOwner}, nil
	}
	return nil, errors.New("invalid token")
}

type testEnv struct {
	router     http.Handler
	products   *mockProductRepository
	categories *mockCategoryRepository
	tenants    *mockTenantRepository
	expenses   *mockExpenseRepository
	feed       *fakeFeed
}

func setupRouter(t *testing.T) *testEnv {
	t.Helper()
	logger := testLogger()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	producer := event.NewProducer(pkgkafka.NopPublisher{Logger: logger}, logger)
	numbers, err := service.NewSnowflakeNumberer(1)
	require.NoError(t, err)

	env := &testEnv{
		products:   new(mockProductRepository),
		categories: new(mockCategoryRepository),
		tenants:    new(mockTenantRepository),
		expenses:   new(mockExpenseRepository),
		feed:       newFakeFeed(logger),
	}

	catalog := service.NewCatalogService(env.categories, env.products,
		redisrepo.NewCatalogCache(client, time.Minute), nil, logger)
	t.Cleanup(catalog.Close)

	staff := service.NewStaffService(nil, redisrepo.NewPINSessionStore(client),
		ratelimit.NewKeyed(ratelimit.PerMinute(5), 5, time.Minute),
		ratelimit.NewKeyed(ratelimit.PerMinute(20), 20, time.Minute), time.Hour, logger)

	svc := Services{
		Cart: service.NewCartService(
			redisrepo.NewCartStore(client, time.Hour),
			redisrepo.NewHandoffStore(client, time.Minute),
			env.products, nil, numbers, producer, logger,
		),
		Orders:    service.NewOrderService(nil, producer, logger),
		Catalog:   catalog,
		Tenants:   service.NewTenantService(env.tenants, catalog, nil, "public", 1<<20, logger),
		Staff:     staff,
		Cash:      service.NewCashService(nil, nil, env.expenses, producer, logger),
		Expenses:  service.NewExpenseService(env.expenses, producer, logger),
		Dashboard: service.NewDashboardService(nil, env.expenses),
		Realtime:  env.feed,
	}

	env.router = NewRouter(svc, testValidator, health.NewHandler(), RouterConfig{
		CORS:           middleware.DefaultCORSConfig(),
		PublicLimiter:  ratelimit.NewKeyed(ratelimit.PerMinute(1), 1, time.Minute),
		MaxUploadBytes: 1 << 20,
	}, logger)
	return env
}

func doRequest(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// decodeResponse reads the response body into the standard Response struct.
func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func dataMap(t *testing.T, resp httputil.Response) map[string]any {
	t.Helper()
	m, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is %T", resp.Data)
	return m
}

// ============================================================================
// Auth and routing
// ============================================================================

func TestRouter_Liveness(t *testing.T) {
	env := setupRouter(t)

	rec := doRequest(t, env.router, http.MethodGet, "/health/live", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_MissingTokenIsUnauthorized(t *testing.T) {
	env := setupRouter(t)

	rec := doRequest(t, env.router, http.MethodGet, "/api/v1/cart", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)
}

func TestRouter_InvalidTokenIsUnauthorized(t *testing.T) {
	env := setupRouter(t)

	rec := doRequest(t, env.router, http.MethodGet, "/api/v1/cart", "forged", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_TokenWithoutTenantIsForbidden(t *testing.T) {
	env := setupRouter(t)

	rec := doRequest(t, env.router, http.MethodGet, "/api/v1/cart", "orphan-token", nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "FORBIDDEN", resp.Error.Code)
}

// ============================================================================
// Cart
// ============================================================================

func TestCart_AddItemIsScopedToTerminal(t *testing.T) {
	env := setupRouter(t)
	env.products.On("GetByID", mock.Anything, testTenant, "prod-1").Return(&domain.Product{
		ID: "prod-1", TenantID: testTenant, Name: "Taco al pastor", Price: 4500, Available: true,
	}, nil)

	body, _ := json.Marshal(service.AddItemInput{ProductID: "prod-1", Quantity: 2})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer owner-token")
	req.Header.Set(middleware.TerminalHeader, "bar")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cart := dataMap(t, decodeResponse(t, rec))
	assert.Equal(t, "bar", cart["terminal_id"])
	lines := cart["lines"].([]any)
	require.Len(t, lines, 1)
	line := lines[0].(map[string]any)
	assert.Equal(t, float64(2), line["quantity"])
	assert.Equal(t, float64(4500), line["unit_price"])

	// Same terminal sees the line.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("Authorization", "Bearer owner-token")
	req.Header.Set(middleware.TerminalHeader, "bar")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, dataMap(t, decodeResponse(t, rec))["lines"], 1)

	// The default terminal has its own empty cart.
	rec = doRequest(t, env.router, http.MethodGet, "/api/v1/cart", "owner-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, dataMap(t, decodeResponse(t, rec))["lines"])
}

func TestCart_AddUnknownProductIsNotFound(t *testing.T) {
	env := setupRouter(t)
	env.products.On("GetByID", mock.Anything, testTenant, "ghost").
		Return(nil, apperrors.NotFound("product", "ghost"))

	rec := doRequest(t, env.router, http.MethodPost, "/api/v1/cart/items", "owner-token",
		service.AddItemInput{ProductID: "ghost", Quantity: 1})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCart_UpdateQuantityRejectsZeroDelta(t *testing.T) {
	env := setupRouter(t)

	rec := doRequest(t, env.router, http.MethodPatch, "/api/v1/cart/items/line-1", "owner-token",
		map[string]int{"delta": 0})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCart_ResponsesAreNotCached(t *testing.T) {
	env := setupRouter(t)

	rec := doRequest(t, env.router, http.MethodGet, "/api/v1/cart", "owner-token", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

// ============================================================================
// Catalog roles
// ============================================================================

func TestCatalog_StaffCannotCreateCategory(t *testing.T) {
	env := setupRouter(t)

	rec := doRequest(t, env.router, http.MethodPost, "/api/v1/categories", "staff-token",
		service.CategoryInput{Name: "Tacos"})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	env.categories.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCatalog_OwnerCreatesCategory(t *testing.T) {
	env := setupRouter(t)
	env.categories.On("Create", mock.Anything, mock.AnythingOfType("*domain.Category")).Return(nil)

	rec := doRequest(t, env.router, http.MethodPost, "/api/v1/categories", "owner-token",
		service.CategoryInput{Name: "Tacos", SortOrder: 1})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	category := dataMap(t, decodeResponse(t, rec))
	assert.Equal(t, "Tacos", category["name"])
	assert.Equal(t, testTenant, category["tenant_id"])
	env.categories.AssertExpectations(t)
}

func TestCatalog_StaffCanReadCategories(t *testing.T) {
	env := setupRouter(t)
	env.categories.On("List", mock.Anything, testTenant).
		Return([]domain.Category{{ID: "c1", TenantID: testTenant, Name: "Bebidas"}}, nil)

	rec := doRequest(t, env.router, http.MethodGet, "/api/v1/categories", "staff-token", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Len(t, resp.Data, 1)
}

// ============================================================================
// Public surface
// ============================================================================

func TestPublicLinks_CachedAndRateLimited(t *testing.T) {
	env := setupRouter(t)
	env.tenants.On("GetBySlug", mock.Anything, "la-cocina").Return(&domain.Tenant{
		ID: testTenant, Name: "La Cocina", Slug: "la-cocina", Links: []domain.Link{},
	}, nil)

	rec := doRequest(t, env.router, http.MethodGet, "/api/v1/public/links/la-cocina", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=60", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "La Cocina", dataMap(t, decodeResponse(t, rec))["name"])

	rec = doRequest(t, env.router, http.MethodGet, "/api/v1/public/links/la-cocina", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

// ============================================================================
// Expenses
// ============================================================================

func TestExpenses_ExportCSV(t *testing.T) {
	env := setupRouter(t)
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	env.expenses.On("List", mock.Anything, testTenant,
		mock.MatchedBy(func(t time.Time) bool { return t.Equal(from) }),
		mock.MatchedBy(func(t time.Time) bool { return t.Equal(to) }),
	).Return([]domain.Expense{{
		ID: "e1", TenantID: testTenant, Description: "Gas LP", Category: "supplies",
		Amount: 12550, PaymentMethod: domain.PaymentCash, SpentAt: from.Add(9 * time.Hour),
	}}, nil)

	rec := doRequest(t, env.router, http.MethodGet,
		"/api/v1/expenses/export?from=2026-03-01&to=2026-03-01", "owner-token", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "gastos_2026-03-01_2026-03-01.csv")
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "date,description,category,payment_method,amount"))
	assert.Contains(t, body, "2026-03-01,Gas LP,supplies,cash,125.50")
}

func TestExpenses_InvalidRange(t *testing.T) {
	env := setupRouter(t)

	rec := doRequest(t, env.router, http.MethodGet, "/api/v1/expenses?from=yesterday", "owner-token", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ============================================================================
// parseRange
// ============================================================================

func TestParseRange(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		name     string
		query    string
		wantFrom time.Time
		wantTo   time.Time
		wantErr  bool
	}{
		{"date only includes whole day", "from=2026-03-01&to=2026-03-01", day(1), day(2), false},
		{"multi day", "from=2026-03-01&to=2026-03-03", day(1), day(4), false},
		{"timestamps", "from=2026-03-01T10:00:00Z&to=2026-03-01T12:00:00Z",
			day(1).Add(10 * time.Hour), day(1).Add(12 * time.Hour), false},
		{"only from", "from=2026-03-01T10:00:00Z", day(1).Add(10 * time.Hour), day(2).Add(10 * time.Hour), false},
		{"only to", "to=2026-03-05", day(5), day(6), false},
		{"bad from", "from=yesterday", time.Time{}, time.Time{}, true},
		{"bad to", "from=2026-03-01&to=03/05/2026", time.Time{}, time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			from, to, err := parseRange(req)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.wantFrom.Equal(from), "from = %s", from)
			assert.True(t, tt.wantTo.Equal(to), "to = %s", to)
		})
	}
}

func TestParseRange_DefaultsToToday(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	from, to, err := parseRange(req)

	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, to.Sub(from))
	assert.Equal(t, 0, from.Hour())
	assert.False(t, time.Now().Before(from))
}

// ============================================================================
// Realtime
// ============================================================================

func TestRealtime_UnknownTableRejected(t *testing.T) {
	env := setupRouter(t)

	rec := doRequest(t, env.router, http.MethodGet, "/api/v1/realtime?tables=orders,secrets", "owner-token", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, env.feed.router.ListenerCount(realtime.TableOrders))
}

func TestRealtime_StatusDefaultsToDisconnected(t *testing.T) {
	env := setupRouter(t)

	rec := doRequest(t, env.router, http.MethodGet, "/api/v1/realtime/status", "staff-token", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, realtime.StateDisconnected, dataMap(t, decodeResponse(t, rec))["state"])
}

func TestRealtime_ReconnectRequiresAdmin(t *testing.T) {
	env := setupRouter(t)

	rec := doRequest(t, env.router, http.MethodPost, "/api/v1/realtime/reconnect", "staff-token", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, env.router, http.MethodPost, "/api/v1/realtime/reconnect", "owner-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, realtime.StateConnected, dataMap(t, decodeResponse(t, rec))["state"])
	assert.Equal(t, []string{testTenant}, env.feed.reconnects)
}

func TestRealtime_StreamForwardsEventsAndUnsubscribes(t *testing.T) {
	env := setupRouter(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/realtime?tables=orders&access_token=owner-token"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.Eventually(t, func() bool {
		return env.feed.router.ListenerCount(realtime.TableOrders) == 1
	}, 2*time.Second, 10*time.Millisecond)

	env.feed.emit(realtime.Event{TenantID: testTenant, Table: realtime.TableOrders, Type: "INSERT"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var n Notification
	require.NoError(t, conn.ReadJSON(&n))
	assert.Equal(t, Notification{Table: realtime.TableOrders, EventType: "INSERT"}, n)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		return env.feed.router.ListenerCount(realtime.TableOrders) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
