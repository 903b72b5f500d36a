package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/raulancona/gourmetclick/pkg/health"
	"github.com/raulancona/gourmetclick/pkg/middleware"
	"github.com/raulancona/gourmetclick/pkg/ratelimit"
	"github.com/raulancona/gourmetclick/services/pos/internal/auth"
	"github.com/raulancona/gourmetclick/services/pos/internal/service"
)

// Services groups what the router dispatches to.
type Services struct {
	Cart      *service.CartService
	Orders    *service.OrderService
	Catalog   *service.CatalogService
	Tenants   *service.TenantService
	Staff     *service.StaffService
	Cash      *service.CashService
	Expenses  *service.ExpenseService
	Dashboard *service.DashboardService
	// Realtime is nil when the change feed is disabled.
	Realtime ChangeFeed
}

// RouterConfig carries the HTTP-level settings.
type RouterConfig struct {
	CORS           middleware.CORSConfig
	PprofCIDRs     []string
	PublicLimiter  *ratelimit.Keyed
	MaxUploadBytes int64
	RequestTimeout time.Duration
}

// NewRouter creates a chi router with all POS routes registered.
func NewRouter(
	svc Services,
	validate middleware.TokenValidator,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("pos"))
	r.Use(middleware.Tracing("pos"))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg.CORS))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	cartHandler := NewCartHandler(svc.Cart, svc.Staff, logger)
	orderHandler := NewOrderHandler(svc.Orders, logger)
	catalogHandler := NewCatalogHandler(svc.Catalog, logger)
	tenantHandler := NewTenantHandler(svc.Tenants, cfg.MaxUploadBytes, logger)
	staffHandler := NewStaffHandler(svc.Staff, logger)
	cashHandler := NewCashHandler(svc.Cash, svc.Expenses, svc.Dashboard, svc.Staff, logger)

	// Public menu and link card, no authentication.
	r.Route("/api/v1/public", func(r chi.Router) {
		r.Use(chimw.Compress(5))
		r.Use(chimw.Timeout(cfg.RequestTimeout))
		if cfg.PublicLimiter != nil {
			r.Use(middleware.RateLimit(cfg.PublicLimiter, logger))
		}
		r.Use(middleware.CacheControl(60))

		r.Get("/menu/{slug}", tenantHandler.PublicMenu)
		r.Get("/links/{slug}", tenantHandler.PublicLinks)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(validate))
		r.Use(requireTenant)
		r.Use(middleware.Terminal)

		if svc.Realtime != nil {
			rt := NewRealtimeHandler(svc.Realtime, cfg.CORS.AllowedOrigins, logger)
			// Long-lived, so outside the request timeout.
			r.Get("/realtime", rt.Stream)
			r.Group(func(r chi.Router) {
				r.Use(chimw.Timeout(cfg.RequestTimeout))
				r.Use(middleware.NoStore)
				r.Get("/realtime/status", rt.Status)
				r.With(middleware.RequireRole(auth.RoleOwner, auth.RoleAdmin)).
					Post("/realtime/reconnect", rt.Reconnect)
			})
		}

		r.Group(func(r chi.Router) {
			r.Use(chimw.Compress(5))
			r.Use(chimw.Timeout(cfg.RequestTimeout))
			r.Use(middleware.NoStore)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartHandler.GetCart)
				r.Delete("/", cartHandler.ClearCart)
				r.Put("/details", cartHandler.UpdateDetails)
				r.Post("/checkout", cartHandler.Checkout)

				r.Post("/items", cartHandler.AddItem)
				r.Patch("/items/{lineId}", cartHandler.UpdateQuantity)
				r.Delete("/items/{lineId}", cartHandler.RemoveItem)
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", orderHandler.ListOrders)
				r.Get("/{id}", orderHandler.GetOrder)
				r.Patch("/{id}/status", orderHandler.UpdateStatus)
				r.Post("/{id}/cancel", orderHandler.CancelOrder)
				r.Post("/{id}/edit", cartHandler.BeginEdit)
			})

			r.Get("/categories", catalogHandler.ListCategories)
			r.Get("/products", catalogHandler.ListProducts)
			r.Get("/products/{id}", catalogHandler.GetProduct)

			r.Route("/staff", func(r chi.Router) {
				r.Post("/verify-pin", staffHandler.VerifyPIN)
				r.Get("/session", staffHandler.GetSession)
				r.Delete("/session", staffHandler.EndSession)

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireRole(auth.RoleOwner, auth.RoleAdmin))
					r.Get("/", staffHandler.ListStaff)
					r.Post("/", staffHandler.CreateStaff)
					r.Put("/{id}", staffHandler.UpdateStaff)
					r.Delete("/{id}", staffHandler.DeleteStaff)
				})
			})

			r.Route("/caja", func(r chi.Router) {
				r.Get("/current", cashHandler.CurrentCash)
				r.Get("/history", cashHandler.CashHistory)
				r.Post("/open", cashHandler.OpenCash)
				r.Post("/close", cashHandler.CloseCash)
			})

			r.Route("/expenses", func(r chi.Router) {
				r.Get("/", cashHandler.ListExpenses)
				r.Post("/", cashHandler.CreateExpense)
				r.Get("/export", cashHandler.ExportExpenses)
				r.Delete("/{id}", cashHandler.DeleteExpense)
			})

			r.Get("/dashboard", cashHandler.Dashboard)

			// Owner and admin only.
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(auth.RoleOwner, auth.RoleAdmin))

				r.Post("/categories", catalogHandler.CreateCategory)
				r.Put("/categories/{id}", catalogHandler.UpdateCategory)
				r.Delete("/categories/{id}", catalogHandler.DeleteCategory)

				r.Post("/products", catalogHandler.CreateProduct)
				r.Put("/products/{id}", catalogHandler.UpdateProduct)
				r.Delete("/products/{id}", catalogHandler.DeleteProduct)

				r.Get("/tenant", tenantHandler.GetProfile)
				r.Put("/tenant", tenantHandler.SaveProfile)
				r.Post("/tenant/images/{kind}", tenantHandler.UploadImage)
			})
		})
	})

	return r
}
