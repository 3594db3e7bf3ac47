// Package middleware provides net/http middleware for proxycop's web UI and
// API.
//
// This package includes:
//   - OpenTelemetry request tracing
//   - Prometheus request metrics labelled by route
//   - structured access logging with log/slog
//
// All middleware has the func(http.Handler) http.Handler shape and plugs
// into chi:
//
//	r := chi.NewRouter()
//	r.Use(
//	    middleware.OpenTelemetry(),
//	    middleware.NewMetrics(middleware.WithRegistry(reg)).Handler,
//	    middleware.AccessLog(logger),
//	)
//
// # Route labels
//
// Metrics and spans are labelled with a low-cardinality route name. By
// default the chi route pattern is used. WithRouteLabel and
// WithSpanRouteLabel install a custom labeller, for example one that
// reports the name of the matched route table entry.
package middleware
