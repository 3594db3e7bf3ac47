package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RouteLabeler returns a low-cardinality label for a served request. It
// runs after the handler, so routing information is available.
type RouteLabeler func(r *http.Request) string

// ChiRoutePattern labels a request with its chi route pattern, or "other".
func ChiRoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "other"
}
