package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:5000"

// Order and catalog store drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverSheet    = "sheet"
	DriverBolt     = "bolt"
)

// Config holds the complete application configuration, loadable from
// environment variables (CHRONOS_ prefix), flags, or YAML config files.
type Config struct {
	Addr      string `default:"0.0.0.0:5000" usage:"API server listen address"`
	Orders    OrdersConfig
	Catalog   CatalogConfig
	Cache     CacheConfig
	Events    EventsConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// OrdersConfig selects and configures the order store.
type OrdersConfig struct {
	Driver        string `default:"postgres" usage:"Order store driver: postgres or mongo"`
	DatabaseURL   string `usage:"PostgreSQL connection URL (CHRONOS_ORDERS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	MongoURI      string `usage:"MongoDB connection URI (CHRONOS_ORDERS_MONGO_URI or MONGO_URI)" flag:"mongo-uri"`
	MongoDatabase string `default:"chronos" usage:"MongoDB database name" flag:"mongo-database"`
}

// CatalogConfig selects and configures the product store and image uploads.
type CatalogConfig struct {
	Driver        string `default:"sheet" usage:"Product store driver: sheet or bolt"`
	SheetPath     string `default:"data/products.xlsx" usage:"Product spreadsheet path" flag:"sheet-path"`
	BoltPath      string `default:"data/catalog.db" usage:"Product bolt database path" flag:"bolt-path"`
	UploadsDir    string `default:"uploads" usage:"Directory for uploaded product images" flag:"uploads-dir"`
	PublicBaseURL string `default:"" usage:"Base URL for uploaded image links (e.g. https://shop.example.com)" flag:"public-base-url"`
}

// CacheConfig enables the Redis product list cache when RedisAddr is set.
type CacheConfig struct {
	RedisAddr     string        `usage:"Redis address (CHRONOS_CACHE_REDIS_ADDR or REDIS_ADDR)" flag:"redis-addr"`
	RedisPassword string        `usage:"Redis password" flag:"redis-password"`
	RedisDB       int           `default:"0" usage:"Redis database number" flag:"redis-db"`
	TTL           time.Duration `default:"5m" usage:"Product list cache TTL"`
}

// EventsConfig enables order event publishing when AMQPURL is set.
type EventsConfig struct {
	AMQPURL  string `usage:"RabbitMQ URL for order events" flag:"amqp-url"`
	Exchange string `default:"chronos.orders" usage:"Topic exchange for order events"`
}

// RateLimitConfig controls the per-client write rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"60" usage:"Max write requests per window"`
	Window time.Duration `default:"1m" usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CHRONOS",
		Files:     []string{"config.yaml", "/etc/chronos/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names (DATABASE_URL, MONGO_URI, REDIS_ADDR, PORT) onto the
// CHRONOS_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	fallback := func(dst *string, env string) {
		if *dst != "" {
			return
		}
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	fallback(&c.Orders.DatabaseURL, "DATABASE_URL")
	fallback(&c.Orders.MongoURI, "MONGO_URI")
	fallback(&c.Cache.RedisAddr, "REDIS_ADDR")

	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	switch c.Orders.Driver {
	case DriverPostgres:
		if c.Orders.DatabaseURL == "" {
			return errors.New("database URL is required: set CHRONOS_ORDERS_DATABASE_URL or DATABASE_URL")
		}
	case DriverMongo:
		if c.Orders.MongoURI == "" {
			return errors.New("mongo URI is required: set CHRONOS_ORDERS_MONGO_URI or MONGO_URI")
		}
	default:
		return errors.Errorf("unknown order store driver %q", c.Orders.Driver)
	}

	switch c.Catalog.Driver {
	case DriverSheet, DriverBolt:
	default:
		return errors.Errorf("unknown catalog store driver %q", c.Catalog.Driver)
	}

	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit max and window must be positive")
	}
	return nil
}
