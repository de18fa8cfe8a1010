package product

import (
	"context"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// UploadsPath is the URL path under which uploaded images are served.
const UploadsPath = "/uploads/"

// ValidationError reports a missing or malformed caller-supplied field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Attachment is an uploaded file accompanying a create request.
type Attachment struct {
	Filename string
	Content  io.Reader
}

// CreateRequest holds the caller input for adding a product.
type CreateRequest struct {
	Name  string
	Price string
	Image *Attachment
	// BaseURL is the scheme://host prefix used to build the image URL.
	BaseURL string
}

// Service implements catalog operations, tying image files to the lifecycle
// of the records that reference them.
type Service struct {
	products Repository
	images   ImageStore
	ids      *IDSequence
}

// NewService creates a catalog Service.
func NewService(products Repository, images ImageStore, ids *IDSequence) *Service {
	if ids == nil {
		ids = NewIDSequence()
	}
	return &Service{
		products: products,
		images:   images,
		ids:      ids,
	}
}

// Prime raises the id floor to the highest id already stored, so a restarted
// process whose clock went backwards cannot reuse an id.
func (s *Service) Prime(ctx context.Context) error {
	products, err := s.products.List(ctx)
	if err != nil {
		return errors.Wrap(err, "list products")
	}
	for _, p := range products {
		s.ids.Observe(p.ID)
	}
	return nil
}

// List returns the whole catalog.
func (s *Service) List(ctx context.Context) ([]Product, error) {
	products, err := s.products.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return products, nil
}

// Create validates the request, stores the optional image and appends the new
// product to the catalog.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Product, error) {
	rawPrice := strings.TrimSpace(req.Price)
	if strings.TrimSpace(req.Name) == "" || rawPrice == "" {
		return nil, &ValidationError{Message: "Name and Price required"}
	}
	price, err := decimal.NewFromString(rawPrice)
	if err != nil {
		return nil, &ValidationError{Field: "price", Message: "price must be a number"}
	}

	p := Product{
		ID:    s.ids.Next(),
		Name:  req.Name,
		Price: price,
	}

	if req.Image != nil {
		file, err := s.images.Save(ctx, req.Image.Filename, req.Image.Content)
		if err != nil {
			return nil, errors.Wrap(err, "save image")
		}
		p.Image = strings.TrimRight(req.BaseURL, "/") + UploadsPath + url.PathEscape(file)
	}

	if err := s.products.Create(ctx, p); err != nil {
		if p.Image != "" {
			s.removeImage(ctx, p)
		}
		return nil, errors.Wrap(err, "create product")
	}
	return &p, nil
}

// Delete removes a product and, best-effort, its image file.
func (s *Service) Delete(ctx context.Context, id int64) error {
	p, err := s.products.Delete(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "delete product %d", id)
	}
	if p.Image != "" {
		s.removeImage(ctx, *p)
	}
	return nil
}

func (s *Service) removeImage(ctx context.Context, p Product) {
	file := path.Base(p.Image)
	if unescaped, err := url.PathUnescape(file); err == nil {
		file = unescaped
	}
	if err := s.images.Remove(ctx, file); err != nil {
		zctx.From(ctx).Warn("Remove product image",
			zap.Int64("product_id", p.ID),
			zap.String("file", file),
			zap.Error(err),
		)
	}
}
