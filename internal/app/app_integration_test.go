//go:build integration

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// Response types are defined locally to keep the tests black-box.

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type orderResponse struct {
	ID    string `json:"_id"`
	Items []struct {
		Name     string  `json:"name"`
		Price    float64 `json:"price"`
		Quantity int     `json:"quantity"`
	} `json:"items"`
	Total float64 `json:"total"`
	User  struct {
		Name    string `json:"name"`
		Email   string `json:"email"`
		Address string `json:"address"`
	} `json:"user"`
	PaymentMethod string `json:"paymentMethod"`
	Status        string `json:"status"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
}

type orderEnvelope struct {
	Message string        `json:"message"`
	Order   orderResponse `json:"order"`
}

type productResponse struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Image string  `json:"image"`
}

type noopTelemetry struct{}

func (noopTelemetry) TracerProvider() trace.TracerProvider { return tracenoop.NewTracerProvider() }
func (noopTelemetry) MeterProvider() metric.MeterProvider  { return metricnoop.NewMeterProvider() }
func (noopTelemetry) TextMapPropagator() propagation.TextMapPropagator {
	return propagation.TraceContext{}
}

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "chronos",
				"POSTGRES_PASSWORD": "chronos",
				"POSTGRES_DB":       "chronos",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}
	return fmt.Sprintf("postgres://chronos:chronos@%s:%s/chronos?sslmode=disable", host, port.Port())
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}

// startServer runs the whole application against a fresh database and
// returns its base URL.
func startServer(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := &Config{
		Addr: freeAddr(t),
		Orders: OrdersConfig{
			Driver:      DriverPostgres,
			DatabaseURL: startPostgres(t),
		},
		Catalog: CatalogConfig{
			Driver:     DriverSheet,
			SheetPath:  filepath.Join(dir, "products.xlsx"),
			UploadsDir: filepath.Join(dir, "uploads"),
		},
		RateLimit: RateLimitConfig{Max: 1000, Window: time.Minute},
		CORS:      CORSConfig{Origins: []string{"*"}},
		Graceful:  GracefulConfig{ShutdownTimeout: 5 * time.Second},
	}

	lg := zap.NewNop()
	ctx, cancel := context.WithCancel(zctx.Base(context.Background(), lg))
	done := make(chan error, 1)
	go func() { done <- Run(ctx, lg, noopTelemetry{}, cfg) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("run: %v", err)
		}
	})

	baseURL := "http://" + cfg.Addr
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(baseURL + "/readyz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return baseURL
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatal("server did not become ready")
	return ""
}

func do(t *testing.T, method, url string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, url, body)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func doJSON(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	return do(t, method, url, r, "application/json")
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status: got %d, want %d (body: %s)", resp.StatusCode, want, body)
	}
}

func TestServer(t *testing.T) {
	baseURL := startServer(t)

	t.Run("health", func(t *testing.T) {
		for _, path := range []string{"/livez", "/readyz"} {
			resp := do(t, http.MethodGet, baseURL+path, nil, "")
			expectStatus(t, resp, http.StatusOK)
			if got := decodeJSON[healthResponse](t, resp); got.Status != "ok" {
				t.Errorf("%s: status %q, want ok", path, got.Status)
			}
		}
	})

	t.Run("request id echoed", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, baseURL+"/", nil)
		if err != nil {
			t.Fatalf("create request: %v", err)
		}
		req.Header.Set("X-Request-ID", "custom-request-id-12345")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("do request: %v", err)
		}
		defer resp.Body.Close()
		if got := resp.Header.Get("X-Request-ID"); got != "custom-request-id-12345" {
			t.Errorf("X-Request-ID: got %q", got)
		}
	})

	t.Run("order lifecycle", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, baseURL+"/api/orders", `{
			"items": [{"name": "Chronos Diver 300", "price": 249.95, "quantity": 2}],
			"total": 499.90,
			"user": {"name": "Ada", "email": "ada@example.com", "address": "1 Loop St"},
			"paymentMethod": "Card"
		}`)
		expectStatus(t, resp, http.StatusCreated)
		created := decodeJSON[orderEnvelope](t, resp)
		if created.Message != "Order placed successfully!" {
			t.Errorf("message: %q", created.Message)
		}
		id := created.Order.ID
		if id == "" || created.Order.Status != "Pending" || created.Order.Total != 499.9 {
			t.Fatalf("unexpected order: %+v", created.Order)
		}

		resp = doJSON(t, http.MethodGet, baseURL+"/api/orders/"+id, "")
		expectStatus(t, resp, http.StatusOK)
		if got := decodeJSON[orderResponse](t, resp); got.User.Email != "ada@example.com" || len(got.Items) != 1 {
			t.Errorf("fetched order: %+v", got)
		}

		resp = doJSON(t, http.MethodPut, baseURL+"/api/orders/"+id+"/status", `{"status":"Shipped"}`)
		expectStatus(t, resp, http.StatusOK)
		if got := decodeJSON[orderEnvelope](t, resp); got.Order.Status != "Shipped" || got.Message != "Order status updated" {
			t.Errorf("status update: %+v", got)
		}

		resp = doJSON(t, http.MethodPut, baseURL+"/api/orders/"+id+"/status", `{"status":"Lost"}`)
		expectStatus(t, resp, http.StatusBadRequest)
		resp.Body.Close()

		resp = doJSON(t, http.MethodPut, baseURL+"/api/orders/"+id, `{"paymentMethod":"Cash on Delivery"}`)
		expectStatus(t, resp, http.StatusOK)
		if got := decodeJSON[orderEnvelope](t, resp); got.Order.PaymentMethod != "Cash on Delivery" || got.Order.Status != "Shipped" {
			t.Errorf("update: %+v", got.Order)
		}

		resp = doJSON(t, http.MethodPut, baseURL+"/api/orders/"+id, `{"total": 1}`)
		expectStatus(t, resp, http.StatusBadRequest)
		resp.Body.Close()

		resp = doJSON(t, http.MethodGet, baseURL+"/api/orders", "")
		expectStatus(t, resp, http.StatusOK)
		if got := decodeJSON[[]orderResponse](t, resp); len(got) != 1 || got[0].ID != id {
			t.Errorf("list: %+v", got)
		}

		resp = doJSON(t, http.MethodDelete, baseURL+"/api/orders/"+id, "")
		expectStatus(t, resp, http.StatusOK)
		if got := decodeJSON[messageResponse](t, resp); got.Message != "Order deleted successfully" {
			t.Errorf("delete message: %q", got.Message)
		}

		resp = doJSON(t, http.MethodGet, baseURL+"/api/orders/"+id, "")
		expectStatus(t, resp, http.StatusNotFound)
		if got := decodeJSON[messageResponse](t, resp); got.Message != "Order not found" {
			t.Errorf("not found message: %q", got.Message)
		}
	})

	t.Run("order missing fields", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, baseURL+"/api/orders", `{"items": []}`)
		expectStatus(t, resp, http.StatusBadRequest)
		if got := decodeJSON[messageResponse](t, resp); got.Message != "Missing required fields" {
			t.Errorf("message: %q", got.Message)
		}
	})

	t.Run("product with image", func(t *testing.T) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		_ = mw.WriteField("name", "Chronos Field Watch")
		_ = mw.WriteField("price", "129.50")
		part, err := mw.CreateFormFile("image", "field.png")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		_, _ = part.Write([]byte("fake png"))
		if err := mw.Close(); err != nil {
			t.Fatalf("close multipart: %v", err)
		}

		resp := do(t, http.MethodPost, baseURL+"/api/products", &body, mw.FormDataContentType())
		expectStatus(t, resp, http.StatusCreated)
		p := decodeJSON[productResponse](t, resp)
		if p.Name != "Chronos Field Watch" || p.Price != 129.5 || p.Image == "" {
			t.Fatalf("created product: %+v", p)
		}

		resp = do(t, http.MethodGet, p.Image, nil, "")
		expectStatus(t, resp, http.StatusOK)
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if string(data) != "fake png" {
			t.Errorf("image body: %q", data)
		}

		resp = doJSON(t, http.MethodGet, baseURL+"/api/products", "")
		expectStatus(t, resp, http.StatusOK)
		if got := decodeJSON[[]productResponse](t, resp); len(got) != 1 || got[0].ID != p.ID {
			t.Errorf("list: %+v", got)
		}

		resp = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/api/products/%d", baseURL, p.ID), "")
		expectStatus(t, resp, http.StatusOK)
		resp.Body.Close()

		resp = do(t, http.MethodGet, p.Image, nil, "")
		expectStatus(t, resp, http.StatusNotFound)
		resp.Body.Close()

		resp = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/api/products/%d", baseURL, p.ID), "")
		expectStatus(t, resp, http.StatusNotFound)
		resp.Body.Close()
	})
}
