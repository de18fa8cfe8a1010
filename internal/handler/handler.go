// Package handler implements the REST API on top of net/http.
package handler

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/chronos-shop/internal/domain/order"
	"github.com/xenking/chronos-shop/internal/domain/product"
)

// OrderService is the order lifecycle used by the handler.
type OrderService interface {
	Create(ctx context.Context, req order.CreateRequest) (*order.Order, error)
	List(ctx context.Context) ([]order.Order, error)
	Get(ctx context.Context, id string) (*order.Order, error)
	SetStatus(ctx context.Context, id string, status order.Status) (*order.Order, error)
	Update(ctx context.Context, id string, patch order.Patch) (*order.Order, error)
	Delete(ctx context.Context, id string) error
}

// CatalogService is the product catalog used by the handler.
type CatalogService interface {
	List(ctx context.Context) ([]product.Product, error)
	Create(ctx context.Context, req product.CreateRequest) (*product.Product, error)
	Delete(ctx context.Context, id int64) error
}

var (
	_ OrderService   = (*order.Service)(nil)
	_ CatalogService = (*product.Service)(nil)
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// PublicBaseURL prefixes uploaded image URLs. When empty, the scheme and
	// host of the request are used.
	PublicBaseURL string
	// UploadsDir is served under /uploads/.
	UploadsDir string
	// MaxBodyBytes bounds JSON bodies.
	MaxBodyBytes int64
	// MaxUploadBytes bounds multipart product forms.
	MaxUploadBytes int64
}

// Handler serves the shop API.
type Handler struct {
	orders  OrderService
	catalog CatalogService
	cfg     Config
}

// New constructs a Handler.
func New(cfg Config, orders OrderService, catalog CatalogService) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	return &Handler{
		orders:  orders,
		catalog: catalog,
		cfg:     cfg,
	}
}

// Register adds every API route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.root)

	mux.HandleFunc("POST /api/orders", h.createOrder)
	mux.HandleFunc("GET /api/orders", h.listOrders)
	mux.HandleFunc("GET /api/orders/{id}", h.getOrder)
	mux.HandleFunc("PUT /api/orders/{id}/status", h.setOrderStatus)
	mux.HandleFunc("PUT /api/orders/{id}", h.updateOrder)
	mux.HandleFunc("DELETE /api/orders/{id}", h.deleteOrder)

	mux.HandleFunc("GET /api/products", h.listProducts)
	mux.HandleFunc("POST /api/products", h.createProduct)
	mux.HandleFunc("DELETE /api/products/{id}", h.deleteProduct)

	if h.cfg.UploadsDir != "" {
		mux.Handle("GET "+product.UploadsPath, http.StripPrefix(product.UploadsPath, noListing(http.FileServer(http.Dir(h.cfg.UploadsDir)))))
	}
}

func (h *Handler) root(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "API is running...")
}

// noListing hides directory indexes.
func noListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// readBody reads a bounded JSON body. An empty body reads as {}.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(errBadRequest, err.Error())
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []byte("{}"), nil
	}
	return data, nil
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) { encodeMessage(e, msg) })
}

// fail maps err to a status code: validation failures are 400, unknown ids
// 404, anything else 500 with the detail logged but not sent.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		orderErr   *order.ValidationError
		productErr *product.ValidationError
	)
	switch {
	case errors.As(err, &orderErr):
		writeMessage(w, http.StatusBadRequest, orderErr.Message)
	case errors.As(err, &productErr):
		writeMessage(w, http.StatusBadRequest, productErr.Message)
	case errors.Is(err, errBadRequest):
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
	case errors.Is(err, order.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "Order not found")
	case errors.Is(err, product.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "Product not found")
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "Server error")
	}
}
