package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Clearfield-Labs/asset_layer/internal/app/metrics"
	"github.com/gorilla/mux"
)

// Metrics records request counters and latency against the route template so
// path parameters do not explode label cardinality.
func Metrics() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			metrics.HTTPInFlightInc()
			defer metrics.HTTPInFlightDec()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			path := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if template, err := route.GetPathTemplate(); err == nil {
					path = template
				}
			}

			metrics.RecordHTTPRequest(r.Method, path, strconv.Itoa(wrapped.statusCode), time.Since(start))
		})
	}
}
