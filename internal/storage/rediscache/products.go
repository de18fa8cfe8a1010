// Package rediscache provides a cache-aside decorator for the product catalog.
package rediscache

import (
	"context"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/chronos-shop/internal/domain/product"
)

// DefaultKey is the key holding the serialised catalog.
const DefaultKey = "chronos:products"

var _ product.Repository = (*ProductCache)(nil)

// ProductCache wraps a product.Repository. List is served from a single Redis
// key; writes go to the wrapped store and then drop the key. Redis failures
// fall back to the store.
//
// Every write bumps a generation counter. A list loaded while the generation
// moved is returned to its callers but never written to Redis, so a fill can
// not resurrect data a concurrent write already invalidated. The counter is
// per process: several API instances sharing one key still rely on the TTL.
type ProductCache struct {
	next  product.Repository
	rdb   redis.Cmdable
	key   string
	ttl   time.Duration
	gen   atomic.Uint64
	group singleflight.Group
}

// NewProductCache returns a cache over next. A zero ttl keeps entries until
// the next write.
func NewProductCache(next product.Repository, rdb redis.Cmdable, ttl time.Duration) *ProductCache {
	return &ProductCache{
		next: next,
		rdb:  rdb,
		key:  DefaultKey,
		ttl:  ttl,
	}
}

// List returns the cached catalog, loading it from the store on a miss.
// Concurrent misses share one store read.
func (c *ProductCache) List(ctx context.Context) ([]product.Product, error) {
	lg := zctx.From(ctx)
	gen := c.gen.Load()

	data, err := c.rdb.Get(ctx, c.key).Bytes()
	switch {
	case err == nil:
		products, decodeErr := decodeProducts(data)
		if decodeErr == nil {
			return products, nil
		}
		lg.Warn("Decode cached products", zap.Error(decodeErr))
	case errors.Is(err, redis.Nil):
	default:
		lg.Warn("Read product cache", zap.Error(err))
	}

	// Callers arriving after a write start a new flight instead of joining a
	// load that began before it.
	v, err, _ := c.group.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		return c.load(ctx, gen)
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]product.Product)), nil
}

// load reads the store and fills the cache unless a write happened since gen
// was observed. The load is shared by every waiting caller, so it is detached
// from the cancellation of the caller that started it.
func (c *ProductCache) load(ctx context.Context, gen uint64) ([]product.Product, error) {
	ctx = context.WithoutCancel(ctx)
	lg := zctx.From(ctx)

	products, err := c.next.List(ctx)
	if err != nil {
		return nil, err
	}
	if c.gen.Load() != gen {
		return products, nil
	}
	if err := c.rdb.Set(ctx, c.key, encodeProducts(products), c.ttl).Err(); err != nil {
		lg.Warn("Fill product cache", zap.Error(err))
		return products, nil
	}
	// A write that committed between the check above and Set has already
	// issued its Del; drop the stale entry written after it.
	if c.gen.Load() != gen {
		c.drop(ctx)
	}
	return products, nil
}

// Create stores p and invalidates the cached list.
func (c *ProductCache) Create(ctx context.Context, p product.Product) error {
	if err := c.next.Create(ctx, p); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

// Delete removes the product and invalidates the cached list.
func (c *ProductCache) Delete(ctx context.Context, id int64) (*product.Product, error) {
	p, err := c.next.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx)
	return p, nil
}

// Ping reports whether Redis is reachable.
func (c *ProductCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *ProductCache) invalidate(ctx context.Context) {
	c.gen.Add(1)
	c.drop(ctx)
}

func (c *ProductCache) drop(ctx context.Context) {
	if err := c.rdb.Del(ctx, c.key).Err(); err != nil {
		zctx.From(ctx).Warn("Invalidate product cache", zap.Error(err))
	}
}

func encodeProducts(products []product.Product) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, p := range products {
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(p.ID)
		e.FieldStart("name")
		e.Str(p.Name)
		e.FieldStart("price")
		e.Str(p.Price.String())
		e.FieldStart("image")
		e.Str(p.Image)
		e.ObjEnd()
	}
	e.ArrEnd()
	return e.Bytes()
}

func decodeProducts(data []byte) ([]product.Product, error) {
	products := []product.Product{}
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var p product.Product
		err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "id":
				p.ID, err = d.Int64()
			case "name":
				p.Name, err = d.Str()
			case "price":
				var s string
				if s, err = d.Str(); err == nil {
					p.Price, err = decimal.NewFromString(s)
				}
			case "image":
				p.Image, err = d.Str()
			default:
				err = d.Skip()
			}
			return err
		})
		if err != nil {
			return err
		}
		products = append(products, p)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode products")
	}
	return products, nil
}
