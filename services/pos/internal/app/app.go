package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/raulancona/gourmetclick/pkg/database"
	"github.com/raulancona/gourmetclick/pkg/health"
	"github.com/raulancona/gourmetclick/pkg/httpclient"
	pkgkafka "github.com/raulancona/gourmetclick/pkg/kafka"
	"github.com/raulancona/gourmetclick/pkg/middleware"
	"github.com/raulancona/gourmetclick/pkg/ratelimit"
	"github.com/raulancona/gourmetclick/pkg/supabase"
	"github.com/raulancona/gourmetclick/pkg/tracing"
	"github.com/raulancona/gourmetclick/services/pos/internal/auth"
	"github.com/raulancona/gourmetclick/services/pos/internal/config"
	"github.com/raulancona/gourmetclick/services/pos/internal/event"
	handler "github.com/raulancona/gourmetclick/services/pos/internal/handler/http"
	"github.com/raulancona/gourmetclick/services/pos/internal/realtime"
	"github.com/raulancona/gourmetclick/services/pos/internal/repository/postgres"
	redisrepo "github.com/raulancona/gourmetclick/services/pos/internal/repository/redis"
	"github.com/raulancona/gourmetclick/services/pos/internal/service"
)

// App wires together all dependencies and runs the POS service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	rdb            *redis.Client
	publisher      pkgkafka.Publisher
	hub            *realtime.Hub
	catalog        *service.CatalogService
	httpServer     *http.Server
	tracerShutdown tracing.Shutdown

	// background stops the limiter sweepers.
	background context.CancelFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize PostgreSQL connection pool.
	pool, err := database.NewPostgresPoolWithLogger(ctx, cfg.Postgres(), logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, "pos"); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	if cfg.RunMigrations {
		if err := database.RunMigrations(ctx, pool, postgres.Migrations(), logger); err != nil {
			pool.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations completed")
	}
	if cfg.SlowQueryMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryMs)*time.Millisecond, logger)
	}

	// Initialize Redis client.
	rdb, err := database.NewRedisClient(ctx, cfg.Redis(), logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis", slog.String("addr", cfg.RedisAddr), slog.Int("db", cfg.RedisDB))

	// Event publishing is optional; without brokers events are only logged.
	var publisher pkgkafka.Publisher = pkgkafka.NopPublisher{Logger: logger}
	var kafkaProducer *pkgkafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		kafkaProducer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = kafkaProducer
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}
	eventProducer := event.NewProducer(publisher, logger)

	// Realtime change feed.
	var hub *realtime.Hub
	if cfg.RealtimeEnabled && cfg.SupabaseURL != "" {
		rtClient, err := supabase.NewRealtimeClient(supabase.RealtimeConfig{
			URL:         cfg.SupabaseURL,
			APIKey:      cfg.SupabaseAnonKey,
			AccessToken: cfg.SupabaseServiceKey,
		}, logger)
		if err != nil {
			pool.Close()
			_ = rdb.Close()
			return nil, fmt.Errorf("init realtime client: %w", err)
		}
		hub = realtime.NewHub(realtime.NewSupabaseUpstream(rtClient), realtime.DefaultBindings(), logger)
		logger.Info("realtime change feed enabled")
	}

	// Storage for menu and profile images, behind a circuit breaker.
	var images service.ImageStore
	if cfg.SupabaseURL != "" && cfg.SupabaseServiceKey != "" {
		cbClient := httpclient.NewCircuitBreakerClient(
			httpclient.New(httpclient.DefaultConfig()),
			httpclient.DefaultCircuitBreakerConfig("supabase-storage"),
			logger,
		)
		images = supabase.NewStorageClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, cbClient)
	}

	// Rate limiters.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	pinLimiter := ratelimit.NewKeyed(ratelimit.PerMinute(cfg.PINAttemptsPerMinute), cfg.PINAttemptsPerMinute, 15*time.Minute)
	pinTenantLimiter := ratelimit.NewKeyed(ratelimit.PerMinute(cfg.PINTenantAttemptsPerMin), cfg.PINTenantAttemptsPerMin, 15*time.Minute)
	publicLimiter := ratelimit.NewKeyed(ratelimit.PerMinute(cfg.PublicRequestsPerMin), 20, 10*time.Minute)
	go pinLimiter.Run(bgCtx)
	go pinTenantLimiter.Run(bgCtx)
	go publicLimiter.Run(bgCtx)

	// Build the dependency graph.
	numbers, err := service.NewSnowflakeNumberer(cfg.OrderNodeID)
	if err != nil {
		bgCancel()
		pool.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("init order numbers: %w", err)
	}

	orders := postgres.NewOrderRepository(pool)
	products := postgres.NewProductRepository(pool)
	expenses := postgres.NewExpenseRepository(pool)

	var changes service.ChangeSubscriber
	if hub != nil {
		changes = hub
	}
	catalog := service.NewCatalogService(
		postgres.NewCategoryRepository(pool),
		products,
		redisrepo.NewCatalogCache(rdb, cfg.CatalogCacheTTL()),
		changes,
		logger,
	)
	if hub != nil {
		go catalog.Run(bgCtx, cfg.CatalogCacheTTL())
	}

	svc := handler.Services{
		Cart: service.NewCartService(
			redisrepo.NewCartStore(rdb, cfg.CartTTL()),
			redisrepo.NewHandoffStore(rdb, cfg.HandoffTTL()),
			products,
			orders,
			numbers,
			eventProducer,
			logger,
		),
		Orders:  service.NewOrderService(orders, eventProducer, logger),
		Catalog: catalog,
		Tenants: service.NewTenantService(postgres.NewTenantRepository(pool), catalog, images,
			cfg.StorageBucket, cfg.MaxUploadBytes, logger),
		Staff: service.NewStaffService(postgres.NewStaffRepository(pool), redisrepo.NewPINSessionStore(rdb),
			pinLimiter, pinTenantLimiter, cfg.PINSessionTTL(), logger),
		Cash:      service.NewCashService(postgres.NewCashSessionRepository(pool), orders, expenses, eventProducer, logger),
		Expenses:  service.NewExpenseService(expenses, eventProducer, logger),
		Dashboard: service.NewDashboardService(orders, expenses),
	}
	if hub != nil {
		svc.Realtime = hub
	}

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.Register("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	if kafkaProducer != nil {
		healthHandler.RegisterOptional("kafka", kafkaProducer.Ping)
	}
	if hub != nil {
		healthHandler.RegisterOptional("realtime", func(context.Context) error {
			for tenant, state := range hub.States() {
				if state == realtime.StateError {
					return fmt.Errorf("realtime channel of tenant %s failed", tenant)
				}
			}
			return nil
		})
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSOrigins
	cors.AllowCredentials = true
	cors.Environment = cfg.Environment

	validator := auth.NewSupabaseValidator(cfg.SupabaseJWTSecret, cfg.JWTAudience)

	router := handler.NewRouter(svc, validator.TokenValidator(), healthHandler, handler.RouterConfig{
		CORS:           cors,
		PprofCIDRs:     cfg.PprofAllowedCIDRs,
		PublicLimiter:  publicLimiter,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		rdb:            rdb,
		publisher:      publisher,
		hub:            hub,
		catalog:        catalog,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
		background:     bgCancel,
	}, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in order: HTTP server, realtime
// subscriptions, tracer, event publisher, then the stores.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.background()
	a.catalog.Close()
	if a.hub != nil {
		if err := a.hub.Close(); err != nil {
			a.logger.Error("realtime hub close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.publisher.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.rdb.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
