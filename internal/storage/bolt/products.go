// Package bolt stores the product catalog in an embedded bolt database, one
// key per product. Keys are big-endian ids, so iteration yields creation order.
package bolt

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/boltdb/bolt"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/chronos-shop/internal/domain/product"
)

var bucketProducts = []byte("products")

var _ product.Repository = (*ProductStore)(nil)

// ProductStore implements product.Repository on top of bolt.
type ProductStore struct {
	db *bolt.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*ProductStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketProducts)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}
	return &ProductStore{db: db}, nil
}

// Close releases the database file lock.
func (s *ProductStore) Close() error {
	return s.db.Close()
}

// List returns every product ordered by id.
func (s *ProductStore) List(ctx context.Context) ([]product.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	products := []product.Product{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProducts).ForEach(func(k, v []byte) error {
			p, err := decodeProduct(v)
			if err != nil {
				return fmt.Errorf("decoding product %d: %w", binary.BigEndian.Uint64(k), err)
			}
			products = append(products, p)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return products, nil
}

// Create stores p under its id.
func (s *ProductStore) Create(ctx context.Context, p product.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProducts).Put(key(p.ID), encodeProduct(p))
	})
	if err != nil {
		return fmt.Errorf("creating product %d: %w", p.ID, err)
	}
	return nil
}

// Delete removes and returns the product with the given id.
func (s *ProductStore) Delete(ctx context.Context, id int64) (*product.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var removed product.Product
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProducts)
		v := b.Get(key(id))
		if v == nil {
			return product.ErrNotFound
		}
		p, err := decodeProduct(v)
		if err != nil {
			return err
		}
		removed = p
		return b.Delete(key(id))
	})
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("deleting product %d: %w", id, err)
	}
	return &removed, nil
}

func key(id int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(id))
	return k
}

func encodeProduct(p product.Product) []byte {
	var e jx.Encoder
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
	return e.Bytes()
}

func decodeProduct(data []byte) (product.Product, error) {
	var p product.Product
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, k string) error {
		var err error
		switch k {
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
	return p, err
}
