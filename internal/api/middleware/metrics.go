package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/depotfs/depotfs/pkg/metrics"
)

// Metrics records per-request observations against the matched chi route
// pattern. A nil sink disables the middleware.
func Metrics(sink metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if sink == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			pattern := routePattern(r)
			sink.ObserveRequest(r.Method, pattern, ww.Status(), time.Since(start))
			if r.ContentLength > 0 {
				sink.ObserveRequestSize(r.Method, pattern, r.ContentLength)
			}
		})
	}
}

// routePattern returns the chi route pattern for the request, falling back
// to the raw path for unmatched requests. The pattern is only complete
// after the routing tree has run, so this must be read post-ServeHTTP.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
