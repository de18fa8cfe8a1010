package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/chronos-shop/internal/domain/order"
	"github.com/xenking/chronos-shop/internal/domain/product"
	"github.com/xenking/chronos-shop/internal/messaging/rabbitmq"
	boltstore "github.com/xenking/chronos-shop/internal/storage/bolt"
	mongostore "github.com/xenking/chronos-shop/internal/storage/mongo"
	"github.com/xenking/chronos-shop/internal/storage/postgres"
	"github.com/xenking/chronos-shop/internal/storage/rediscache"
	"github.com/xenking/chronos-shop/internal/storage/sheet"
	"github.com/xenking/chronos-shop/pkg/health"
)

// closers releases resources in reverse order of acquisition.
type closers []func()

func (c *closers) add(fn func()) {
	*c = append(*c, fn)
}

func (c closers) close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func openOrderStore(ctx context.Context, lg *zap.Logger, cfg OrdersConfig, hc *health.Health, cl *closers) (order.Repository, error) {
	switch cfg.Driver {
	case DriverMongo:
		client, err := mongostore.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, errors.Wrap(err, "connect to mongo")
		}
		cl.add(func() {
			if err := client.Disconnect(context.Background()); err != nil {
				lg.Warn("Disconnect mongo", zap.Error(err))
			}
		})

		repo := mongostore.NewOrderRepository(client.Database(cfg.MongoDatabase))
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, errors.Wrap(err, "ensure indexes")
		}
		hc.AddReadinessCheck("mongo", 5*time.Second, func(ctx context.Context) error {
			return client.Ping(ctx, nil)
		})
		lg.Info("Order store ready", zap.String("driver", DriverMongo), zap.String("database", cfg.MongoDatabase))
		return repo, nil
	default:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		cl.add(pool.Close)

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return nil, errors.Wrap(err, "run migrations")
		}
		hc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
			return pool.Ping(ctx)
		})
		lg.Info("Order store ready", zap.String("driver", DriverPostgres))
		return postgres.NewOrderRepository(pool), nil
	}
}

func openProductStore(lg *zap.Logger, cfg CatalogConfig, cl *closers) (product.Repository, error) {
	switch cfg.Driver {
	case DriverBolt:
		store, err := boltstore.Open(cfg.BoltPath)
		if err != nil {
			return nil, errors.Wrap(err, "open bolt catalog")
		}
		cl.add(func() {
			if err := store.Close(); err != nil {
				lg.Warn("Close bolt catalog", zap.Error(err))
			}
		})
		lg.Info("Product store ready", zap.String("driver", DriverBolt), zap.String("path", cfg.BoltPath))
		return store, nil
	default:
		lg.Info("Product store ready", zap.String("driver", DriverSheet), zap.String("path", cfg.SheetPath))
		return sheet.NewProductStore(cfg.SheetPath), nil
	}
}

// withCache decorates products with the Redis list cache when configured.
func withCache(lg *zap.Logger, cfg CacheConfig, products product.Repository, hc *health.Health, cl *closers) product.Repository {
	if cfg.RedisAddr == "" {
		return products
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	cl.add(func() { _ = rdb.Close() })

	cache := rediscache.NewProductCache(products, rdb, cfg.TTL)
	hc.AddReadinessCheck("redis", time.Second, health.PingCheck(cache))
	lg.Info("Product cache enabled", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.TTL))
	return cache
}

func openPublisher(lg *zap.Logger, cfg EventsConfig, cl *closers) (order.Publisher, error) {
	if cfg.AMQPURL == "" {
		return order.NopPublisher{}, nil
	}
	pub, err := rabbitmq.Dial(cfg.AMQPURL, cfg.Exchange)
	if err != nil {
		return nil, errors.Wrap(err, "dial broker")
	}
	cl.add(func() {
		if err := pub.Close(); err != nil {
			lg.Warn("Close publisher", zap.Error(err))
		}
	})
	lg.Info("Order events enabled", zap.String("exchange", cfg.Exchange))
	return pub, nil
}
