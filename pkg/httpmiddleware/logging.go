package httpmiddleware

import (
	"net/http"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// InjectLogger injects lg into every request context.
func InjectLogger(lg *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(zctx.Base(r.Context(), lg)))
		})
	}
}

// LogRequests attaches a per-request child logger (request id, method,
// route) to the context and logs every completed request.
func LogRequests(find RouteFinder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()

			route := zap.Skip()
			if pattern, ok := find(r); ok {
				route = zap.String("route", pattern)
			}
			requestID := zap.Skip()
			if id := RequestIDFromContext(ctx); id != "" {
				requestID = zap.String("request_id", id)
			}
			lg := zctx.From(ctx).With(requestID, zap.String("method", r.Method), route)

			sw := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(sw, r.WithContext(zctx.Base(ctx, lg)))

			lg.Info("Request",
				zap.Stringer("url", r.URL),
				zap.Int("status", sw.code()),
				zap.Int("bytes", sw.bytes),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
