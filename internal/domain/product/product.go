package product

import (
	"context"
	"io"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID    int64
	Name  string
	Price decimal.Decimal
	// Image is an absolute URL of the uploaded picture, or empty.
	Image string
}

// Repository persists the product catalog.
type Repository interface {
	// List returns every stored product in insertion order. A store that has
	// never been written returns an empty list.
	List(ctx context.Context) ([]Product, error)
	Create(ctx context.Context, p Product) error
	// Delete removes the product and returns the removed record.
	Delete(ctx context.Context, id int64) (*Product, error)
}

// ImageStore keeps uploaded product pictures.
type ImageStore interface {
	// Save stores the content under a unique name derived from name and
	// returns that file name.
	Save(ctx context.Context, name string, content io.Reader) (string, error)
	// Remove deletes the file. Removing a missing file is not an error.
	Remove(ctx context.Context, file string) error
}
