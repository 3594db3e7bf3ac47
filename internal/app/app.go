// Package app assembles the web UI: the route table, its views and the
// HTTP handler tree that serves them next to the API.
package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warent/proxycop/internal/api"
	"github.com/warent/proxycop/internal/errors"
	"github.com/warent/proxycop/internal/views"
	"github.com/warent/proxycop/pkg/middleware"
	"github.com/warent/proxycop/pkg/router"
)

// ViewSet provides the views referenced by the route table.
type ViewSet interface {
	Home() router.View
	URLStatus() router.View
	NotFound() router.View
}

// Routes returns the route table of the web UI, in match order.
func Routes(v ViewSet) []router.Route {
	return []router.Route{
		{Path: "/", Name: views.HomeRoute, View: v.Home()},
		{Path: "/url/:url/status", Name: views.URLStatusRoute, View: v.URLStatus()},
	}
}

// NewRouter builds the history-mode route table mounted at base.
func NewRouter(v ViewSet, base string, logger *slog.Logger) (*router.Router, error) {
	opts := []router.Option{router.WithNotFound(v.NotFound()), router.WithBase(base)}
	if logger != nil {
		opts = append(opts, router.WithLogger(logger))
	}
	rt, err := router.New(router.ModeHistory, Routes(v), opts...)
	if err != nil {
		return nil, errors.New(errors.CodeRouteTable).Wrap(err)
	}
	return rt, nil
}

// Deps are the dependencies of the handler tree.
type Deps struct {
	Views ViewSet
	API   *api.Handler

	// Base is the path prefix the UI is served under ("" for the root).
	Base string

	// Registry receives the HTTP metrics. Nil disables metrics.
	Registry *prometheus.Registry

	// MetricsNamespace prefixes the metric names.
	MetricsNamespace string

	// MetricsPath serves the registry (default "/metrics").
	MetricsPath string

	Logger *slog.Logger
}

// Handler registers the route table with a chi mux. API, static assets,
// metrics and health checks are mounted first; every other path is
// resolved by the route table.
func Handler(deps Deps) (http.Handler, *router.Router, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "app")
	}

	rt, err := NewRouter(deps.Views, deps.Base, logger)
	if err != nil {
		return nil, nil, err
	}

	label := routeLabel(rt)
	r := chi.NewRouter()
	r.Use(
		chimw.RequestID,
		chimw.Recoverer,
		middleware.OpenTelemetry(
			middleware.WithSpanRouteLabel(label),
			middleware.WithRequestFilter(func(r *http.Request) bool {
				return r.URL.Path != "/healthz"
			}),
		),
		middleware.AccessLog(logger),
	)
	if deps.Registry != nil {
		ns := deps.MetricsNamespace
		if ns == "" {
			ns = "proxycop"
		}
		m := middleware.NewMetrics(
			middleware.WithRegistry(deps.Registry),
			middleware.WithNamespace(ns),
			middleware.WithRouteLabel(label),
		)
		r.Use(m.Handler)
	}

	mount := func(p string) string { return deps.Base + p }

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	})
	if deps.Registry != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}
	if deps.API != nil {
		r.Mount(mount("/api"), deps.API.Routes())
	}

	static := http.StripPrefix(mount("/static"), views.Static())
	r.Handle(mount("/static/*"), cacheControl(time.Hour, static))

	// Everything else belongs to the route table.
	r.Handle("/*", rt)
	r.Handle("/", rt)

	return r, rt, nil
}

// routeLabel names a served request for metrics and spans: the chi pattern
// for mounted handlers, the route table entry name for pages.
func routeLabel(rt *router.Router) middleware.RouteLabeler {
	return func(r *http.Request) string {
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" && p != "/*" && p != "/" {
				return p
			}
		}
		if m, ok := rt.ResolveURL(r.URL); ok {
			return m.Route.Name
		}
		return "NotFound"
	}
}

func cacheControl(maxAge time.Duration, next http.Handler) http.Handler {
	value := fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds()))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/") {
			w.Header().Set("Cache-Control", value)
		}
		next.ServeHTTP(w, r)
	})
}
