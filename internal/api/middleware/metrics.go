package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// unmatchedRoute labels requests no route matched, keeping label
// cardinality bounded.
const unmatchedRoute = "unmatched"

// HTTPObserver receives one call per finished request plus in-flight
// changes.
type HTTPObserver interface {
	RequestsInFlight(delta float64)
	RequestServed(method, route string, status int, elapsed time.Duration)
}

// Metrics reports every request to obs under its chi route pattern.
func Metrics(obs HTTPObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			obs.RequestsInFlight(1)
			defer obs.RequestsInFlight(-1)

			rw := wrap(w)
			next.ServeHTTP(rw, r)

			// The pattern is complete only after chi has routed the request.
			obs.RequestServed(r.Method, routePattern(r), rw.status, time.Since(start))
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return unmatchedRoute
}
