package config

import (
	"errors"
	"fmt"
	"time"

	pkgconfig "github.com/raulancona/gourmetclick/pkg/config"
	"github.com/raulancona/gourmetclick/pkg/database"
	"github.com/raulancona/gourmetclick/pkg/tracing"
)

// Config holds all configuration for the POS service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort          int      `env:"POS_HTTP_PORT" envDefault:"8010"`
	CORSOrigins       []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envSeparator:","`

	// PostgreSQL. DATABASE_URL wins over the discrete settings.
	DatabaseURL   string `env:"DATABASE_URL"`
	PostgresHost  string `env:"DB_HOST" envDefault:"localhost"`
	PostgresPort  int    `env:"DB_PORT" envDefault:"5432"`
	PostgresUser  string `env:"DB_USER" envDefault:"gourmetclick"`
	PostgresPass  string `env:"DB_PASSWORD" envDefault:"gourmetclick"`
	PostgresDB    string `env:"DB_NAME" envDefault:"gourmetclick"`
	PostgresSSL   string `env:"DB_SSL_MODE" envDefault:"disable"`
	RunMigrations bool   `env:"DB_RUN_MIGRATIONS" envDefault:"true"`
	SlowQueryMs   int    `env:"DB_SLOW_QUERY_MS" envDefault:"200"`

	// Redis
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka. An empty list disables event publishing.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Supabase
	SupabaseURL        string `env:"SUPABASE_URL"`
	SupabaseAnonKey    string `env:"SUPABASE_ANON_KEY"`
	SupabaseServiceKey string `env:"SUPABASE_SERVICE_KEY"`
	SupabaseJWTSecret  string `env:"SUPABASE_JWT_SECRET"`
	JWTAudience        string `env:"SUPABASE_JWT_AUDIENCE" envDefault:"authenticated"`
	StorageBucket      string `env:"STORAGE_BUCKET" envDefault:"menu-images"`
	RealtimeEnabled    bool   `env:"REALTIME_ENABLED" envDefault:"true"`

	// Sessions and limits
	CartTTLHours            int   `env:"CART_TTL_HOURS" envDefault:"12"`
	HandoffTTLMinutes       int   `env:"HANDOFF_TTL_MINUTES" envDefault:"10"`
	PINSessionTTLHours      int   `env:"PIN_SESSION_TTL_HOURS" envDefault:"12"`
	PINAttemptsPerMinute    int   `env:"PIN_ATTEMPTS_PER_MINUTE" envDefault:"5"`
	PINTenantAttemptsPerMin int   `env:"PIN_TENANT_ATTEMPTS_PER_MINUTE" envDefault:"20"`
	PublicRequestsPerMin    int   `env:"PUBLIC_REQUESTS_PER_MINUTE" envDefault:"120"`
	CatalogCacheTTLMinutes  int   `env:"CATALOG_CACHE_TTL_MINUTES" envDefault:"10"`
	MaxUploadBytes          int64 `env:"MAX_UPLOAD_BYTES" envDefault:"5242880"`

	// OrderNodeID distinguishes instances generating ticket numbers.
	OrderNodeID int64 `env:"ORDER_NODE_ID" envDefault:"1"`

	Tracing tracing.Config
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load pos config: %w", err)
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "pos-service"
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	var errs []error
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP port: %d", c.HTTPPort))
	}
	if c.OrderNodeID < 0 || c.OrderNodeID > 1023 {
		errs = append(errs, fmt.Errorf("ORDER_NODE_ID must be between 0 and 1023, got %d", c.OrderNodeID))
	}
	if c.PINAttemptsPerMinute < 1 {
		errs = append(errs, errors.New("PIN_ATTEMPTS_PER_MINUTE must be positive"))
	}
	if c.PINTenantAttemptsPerMin < c.PINAttemptsPerMinute {
		errs = append(errs, errors.New("PIN_TENANT_ATTEMPTS_PER_MINUTE must not be below PIN_ATTEMPTS_PER_MINUTE"))
	}
	if c.PublicRequestsPerMin < 1 {
		errs = append(errs, errors.New("PUBLIC_REQUESTS_PER_MINUTE must be positive"))
	}
	if c.CartTTLHours < 1 || c.HandoffTTLMinutes < 1 || c.PINSessionTTLHours < 1 {
		errs = append(errs, errors.New("session TTLs must be positive"))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %v", c.Tracing.SampleRate))
	}
	if c.MaxUploadBytes < 1 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	if c.IsProduction() {
		if c.SupabaseJWTSecret == "" {
			errs = append(errs, errors.New("SUPABASE_JWT_SECRET is required in production"))
		}
		if c.SupabaseURL == "" || c.SupabaseServiceKey == "" {
			errs = append(errs, errors.New("SUPABASE_URL and SUPABASE_SERVICE_KEY are required in production"))
		}
	}
	return errors.Join(errs...)
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Postgres returns the connection settings for database.NewPostgresPool.
func (c *Config) Postgres() *database.PostgresConfig {
	pg := database.DefaultPostgresConfig()
	pg.URL = c.DatabaseURL
	pg.Host = c.PostgresHost
	pg.Port = c.PostgresPort
	pg.User = c.PostgresUser
	pg.Password = c.PostgresPass
	pg.DBName = c.PostgresDB
	pg.SSLMode = c.PostgresSSL
	return &pg
}

// Redis returns the connection settings for database.NewRedisClient.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{Addr: c.RedisAddr, Password: c.RedisPass, DB: c.RedisDB}
}

// CartTTL is how long an idle cart session is kept.
func (c *Config) CartTTL() time.Duration { return time.Duration(c.CartTTLHours) * time.Hour }

// HandoffTTL is how long an unconsumed edit hand-off is kept.
func (c *Config) HandoffTTL() time.Duration {
	return time.Duration(c.HandoffTTLMinutes) * time.Minute
}

// PINSessionTTL is the lifetime of an employee PIN session.
func (c *Config) PINSessionTTL() time.Duration {
	return time.Duration(c.PINSessionTTLHours) * time.Hour
}

// CatalogCacheTTL is how long cached product and category lists live.
func (c *Config) CatalogCacheTTL() time.Duration {
	return time.Duration(c.CatalogCacheTTLMinutes) * time.Minute
}
