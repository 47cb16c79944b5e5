// Package httpapi assembles the HTTP surface: the shared middleware
// chain, operational endpoints, and every module handler.
package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"meridian/internal/platform/metrics"
	"meridian/pkg/platform/middleware/metadata"
	"meridian/pkg/platform/middleware/requestid"
	"meridian/pkg/platform/middleware/requesttime"
)

// Registrar is implemented by module handlers that mount routes.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter builds the chi router with the shared middleware chain and
// mounts every handler.
func NewRouter(logger *slog.Logger, httpMetrics *metrics.Metrics, handlers ...Registrar) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(latency(httpMetrics))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	for _, h := range handlers {
		h.Register(r)
	}

	return r
}

// latency records per-route request metrics. Route patterns, not raw
// paths, keep the label cardinality bounded.
func latency(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			m.ObserveRequest(route, strconv.Itoa(ww.Status()), time.Since(start))
		})
	}
}
