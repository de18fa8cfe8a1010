package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/chronos-shop/internal/domain/order"
	"github.com/xenking/chronos-shop/internal/domain/product"
	"github.com/xenking/chronos-shop/internal/handler"
	"github.com/xenking/chronos-shop/internal/storage/uploads"
	"github.com/xenking/chronos-shop/pkg/health"
	"github.com/xenking/chronos-shop/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
//
// m is normally the *app.Telemetry of github.com/go-faster/sdk.
func Run(ctx context.Context, lg *zap.Logger, m httpmiddleware.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	var cl closers
	defer cl.close()

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Stores.
	orderRepo, err := openOrderStore(ctx, lg, cfg.Orders, healthSvc, &cl)
	if err != nil {
		return err
	}
	productRepo, err := openProductStore(lg, cfg.Catalog, &cl)
	if err != nil {
		return err
	}
	productRepo = withCache(lg, cfg.Cache, productRepo, healthSvc, &cl)

	images, err := uploads.New(cfg.Catalog.UploadsDir)
	if err != nil {
		return errors.Wrap(err, "create uploads dir")
	}
	healthSvc.AddReadinessCheck("uploads", time.Second, images.Check)

	events, err := openPublisher(lg, cfg.Events, &cl)
	if err != nil {
		return err
	}

	// Domain services.
	orderService := order.NewService(orderRepo, events)
	catalogService := product.NewService(productRepo, images, nil)
	if err := catalogService.Prime(ctx); err != nil {
		return errors.Wrap(err, "prime product ids")
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	handler.New(handler.Config{
		PublicBaseURL: cfg.Catalog.PublicBaseURL,
		UploadsDir:    images.Dir(),
	}, orderService, catalogService).Register(mux)

	routeFinder := httpmiddleware.MakeRouteFinder(mux)
	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.RequestID(),
			httpmiddleware.Instrument("chronos-api", routeFinder, m),
			httpmiddleware.Labeler(routeFinder),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization"},
				ExposeHeaders:    []string{httpmiddleware.HeaderRequestID},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				Methods: []string{http.MethodPost, http.MethodPut, http.MethodDelete},
			}),
		),
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		healthSvc.SetReady(false)
		if ctx.Err() != nil {
			lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
			time.Sleep(cfg.Graceful.ReadinessDelay)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})
	return g.Wait()
}
