package router

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// Router is an immutable, ordered route table. It is safe for concurrent use.
type Router struct {
	mode     Mode
	base     string
	routes   []Route
	patterns []*pattern
	byName   map[string]int
	notFound View
	logger   *slog.Logger
}

// Option configures a Router at construction time.
type Option func(*Router)

// WithBase mounts the table under a path prefix such as "/ui".
func WithBase(base string) Option {
	return func(r *Router) {
		r.base = strings.TrimRight(base, "/")
	}
}

// WithNotFound sets the view rendered for unmatched paths. It is served
// with status 404 and a Match whose Route is zero.
func WithNotFound(v View) Option {
	return func(r *Router) {
		r.notFound = v
	}
}

// WithLogger sets the router logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// New builds a route table. Entries are matched in the given order.
// Every invalid entry is reported in a single *TableError.
func New(mode Mode, routes []Route, opts ...Option) (*Router, error) {
	r := &Router{
		mode:   mode,
		byName: make(map[string]int, len(routes)),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default().With("component", "router")
	}

	var errs []*RouteError
	for i, route := range routes {
		fail := func(err error) {
			errs = append(errs, &RouteError{Index: i, Name: route.Name, Path: route.Path, Err: err})
		}

		if route.Name == "" {
			fail(ErrEmptyName)
		} else if _, dup := r.byName[route.Name]; dup {
			fail(ErrDuplicateName)
		}
		if route.View == nil {
			fail(ErrNilView)
		}

		p, err := compilePattern(route.Path)
		if err != nil {
			fail(err)
			continue
		}

		if route.Name != "" {
			if _, dup := r.byName[route.Name]; !dup {
				r.byName[route.Name] = len(r.routes)
			}
		}
		r.routes = append(r.routes, route)
		r.patterns = append(r.patterns, p)
	}

	if len(errs) > 0 {
		return nil, &TableError{Errors: errs}
	}
	return r, nil
}

// Mode returns the navigation mode.
func (r *Router) Mode() Mode {
	return r.mode
}

// Base returns the mount prefix, "" when mounted at the root.
func (r *Router) Base() string {
	return r.base
}

// Routes returns a copy of the table in match order.
func (r *Router) Routes() []Route {
	out := make([]Route, len(r.routes))
	copy(out, r.routes)
	return out
}

// Lookup returns the route registered under name.
func (r *Router) Lookup(name string) (Route, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Route{}, false
	}
	return r.routes[i], true
}

// ParamNames returns the parameter names of a route in pattern order.
func (r *Router) ParamNames(name string) ([]string, error) {
	i, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRoute, name)
	}
	return r.patterns[i].paramNames(), nil
}

// Resolve matches an application path (relative to the base) against the
// table. The first entry that matches wins.
func (r *Router) Resolve(path string) (*Match, bool) {
	cp, err := CanonicalizePath(path)
	if err != nil {
		r.logger.Debug("rejecting path", "path", path, "error", err)
		return nil, false
	}

	raw := splitPath(cp.Path)
	for i, p := range r.patterns {
		if params, ok := p.match(raw); ok {
			return &Match{Route: r.routes[i], Path: cp.Path, Params: params}, true
		}
	}
	return nil, false
}

// ResolveURL resolves a full application URL. In history mode the path is
// used; in hash mode the fragment carries the route.
func (r *Router) ResolveURL(u *url.URL) (*Match, bool) {
	if r.mode == ModeHash {
		path, _ := SplitPathAndQuery(u.EscapedFragment())
		if path == "" {
			path = "/"
		}
		return r.Resolve(path)
	}

	path, ok := r.stripBase(u.EscapedPath())
	if !ok {
		return nil, false
	}
	return r.Resolve(path)
}

// Href builds the URL of a named route. History mode yields a plain path;
// hash mode places the route after "#".
func (r *Router) Href(name string, params Params) (string, error) {
	i, ok := r.byName[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRoute, name)
	}

	path, err := r.patterns[i].build(params)
	if err != nil {
		return "", fmt.Errorf("route %q: %w", name, err)
	}

	if r.mode == ModeHash {
		return r.base + "/#" + path, nil
	}
	if r.base != "" && path == "/" {
		return r.base + "/", nil
	}
	return r.base + path, nil
}

// ServeHTTP resolves the request and renders the matched view. The match is
// available to the view through MatchFrom.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	path, ok := r.stripBase(req.URL.EscapedPath())

	var m *Match
	if ok {
		if r.mode == ModeHash {
			// The fragment never reaches the server; only the shell is served.
			if cp, err := CanonicalizePath(path); err == nil && cp.Path == "/" {
				m, ok = r.Resolve("/")
			} else {
				ok = false
			}
		} else {
			m, ok = r.Resolve(path)
		}
	}

	if !ok {
		r.serveNotFound(w, req)
		return
	}

	r.logger.Debug("route matched", "route", m.Route.Name, "path", m.Path)
	m.Route.View.ServeView(w, req.WithContext(r.viewContext(req.Context(), m)), m)
}

func (r *Router) serveNotFound(w http.ResponseWriter, req *http.Request) {
	if r.notFound == nil {
		http.NotFound(w, req)
		return
	}
	m := &Match{Path: req.URL.Path, Params: Params{}}
	nw := &notFoundWriter{ResponseWriter: w}
	r.notFound.ServeView(nw, req.WithContext(r.viewContext(req.Context(), m)), m)
	nw.WriteHeader(http.StatusNotFound)
}

// notFoundWriter pins the response status to 404 while letting the view
// set headers first.
type notFoundWriter struct {
	http.ResponseWriter
	wrote bool
}

func (w *notFoundWriter) WriteHeader(int) {
	if w.wrote {
		return
	}
	w.wrote = true
	w.ResponseWriter.WriteHeader(http.StatusNotFound)
}

func (w *notFoundWriter) Write(b []byte) (int, error) {
	w.WriteHeader(http.StatusNotFound)
	return w.ResponseWriter.Write(b)
}

func (r *Router) viewContext(ctx context.Context, m *Match) context.Context {
	return context.WithValue(WithMatch(ctx, m), routerKey{}, r)
}

// stripBase removes the mount prefix from an escaped request path.
func (r *Router) stripBase(path string) (string, bool) {
	if r.base == "" {
		return path, true
	}
	if path == r.base {
		return "/", true
	}
	if rest, ok := strings.CutPrefix(path, r.base+"/"); ok {
		return "/" + rest, true
	}
	return "", false
}

type (
	matchKey  struct{}
	routerKey struct{}
)

// FromContext returns the router serving the current view, so views can
// build links with Href.
func FromContext(ctx context.Context) (*Router, bool) {
	r, ok := ctx.Value(routerKey{}).(*Router)
	return r, ok && r != nil
}

// WithMatch returns a copy of ctx carrying m.
func WithMatch(ctx context.Context, m *Match) context.Context {
	return context.WithValue(ctx, matchKey{}, m)
}

// MatchFrom returns the match stored by ServeHTTP.
func MatchFrom(ctx context.Context) (*Match, bool) {
	m, ok := ctx.Value(matchKey{}).(*Match)
	return m, ok && m != nil
}

// Param returns a route parameter of the request, or "".
func Param(r *http.Request, name string) string {
	if m, ok := MatchFrom(r.Context()); ok {
		return m.Params[name]
	}
	return ""
}

// RouteName returns the matched route name of the request, or "".
func RouteName(r *http.Request) string {
	if m, ok := MatchFrom(r.Context()); ok {
		return m.Route.Name
	}
	return ""
}
