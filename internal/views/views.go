// Package views renders the pages referenced by the route table.
package views

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/warent/proxycop/internal/status"
	"github.com/warent/proxycop/internal/store"
	"github.com/warent/proxycop/pkg/router"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Route names the views link to.
const (
	HomeRoute      = "Home"
	URLStatusRoute = "URLStatus"
)

const layoutName = "layout"

// Page templates, keyed by file name.
const (
	homePage      = "home.html"
	urlStatusPage = "url_status.html"
	notFoundPage  = "not_found.html"
)

// Config is the state the views read.
type Config interface {
	Blacklist(ctx context.Context) ([]string, error)
	URLConfigs(ctx context.Context) (map[string]store.URLConfig, error)
	URLConfig(ctx context.Context, host string) (store.URLConfig, error)
}

// StatusFetcher reports the restrictions of a host.
type StatusFetcher interface {
	Fetch(ctx context.Context, host string) (status.URLStatus, error)
}

// Deps are the dependencies of the views.
type Deps struct {
	Config Config
	Status StatusFetcher
	Logger *slog.Logger
}

// Views holds the parsed page templates. Templates are parsed once at
// start-up.
type Views struct {
	pages  map[string]*template.Template
	config Config
	status StatusFetcher
	logger *slog.Logger
}

// New parses the embedded templates.
func New(deps Deps) (*Views, error) {
	if deps.Config == nil || deps.Status == nil {
		return nil, errors.New("views: Config and Status are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default().With("component", "views")
	}

	layout, err := template.ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	pages := make(map[string]*template.Template, 3)
	for _, name := range []string{homePage, urlStatusPage, notFoundPage} {
		t, err := layout.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone layout for %s: %w", name, err)
		}
		if _, err := t.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		pages[name] = t
	}

	return &Views{
		pages:  pages,
		config: deps.Config,
		status: deps.Status,
		logger: deps.Logger,
	}, nil
}

// Static serves the embedded stylesheets and scripts. Mount it under
// /static/.
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}

// pageData is passed to every page template.
type pageData struct {
	Title    string
	Base     string
	HomeHref string
	Data     any
}

func (v *Views) render(w http.ResponseWriter, r *http.Request, page, title string, code int, data any) {
	pd := pageData{Title: title, HomeHref: "/", Data: data}
	if rt, ok := router.FromContext(r.Context()); ok {
		pd.Base = rt.Base()
		if href, err := rt.Href(HomeRoute, nil); err == nil {
			pd.HomeHref = href
		}
	}

	var buf bytes.Buffer
	if err := v.pages[page].ExecuteTemplate(&buf, layoutName, pd); err != nil {
		v.logger.Error("render failed", "page", page, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	buf.WriteTo(w)
}

func (v *Views) serverError(w http.ResponseWriter, r *http.Request, err error) {
	v.logger.Error("view failed", "path", r.URL.Path, "error", err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// hostLink is a host with the href of its status page.
type hostLink struct {
	Host string
	Href string
}

type cooldownLink struct {
	hostLink
	Minutes uint64
}

type homeData struct {
	Query     string
	Error     string
	Blacklist []hostLink
	Cooldowns []cooldownLink
}

// Home lists the blacklist and the configured cooldowns. A "url" query
// parameter is normalized to a host and redirected to its status page.
func (v *Views) Home() router.View {
	return router.ViewFunc(func(w http.ResponseWriter, r *http.Request, m *router.Match) {
		rt, _ := router.FromContext(r.Context())
		data := homeData{}
		code := http.StatusOK

		if q := r.URL.Query().Get("url"); q != "" {
			host, err := status.HostOf(q)
			if err == nil && rt != nil {
				if err := rt.Navigate(w, r, URLStatusRoute, router.Params{"url": host}); err != nil {
					v.serverError(w, r, err)
				}
				return
			}
			data.Query = q
			data.Error = fmt.Sprintf("%q is not a valid host.", q)
			code = http.StatusBadRequest
		}

		ctx := r.Context()
		hosts, err := v.config.Blacklist(ctx)
		if err != nil {
			v.serverError(w, r, err)
			return
		}
		for _, h := range hosts {
			data.Blacklist = append(data.Blacklist, hostLink{Host: h, Href: statusHref(rt, h)})
		}

		configs, err := v.config.URLConfigs(ctx)
		if err != nil {
			v.serverError(w, r, err)
			return
		}
		for _, h := range store.SortedHosts(configs) {
			data.Cooldowns = append(data.Cooldowns, cooldownLink{
				hostLink: hostLink{Host: h, Href: statusHref(rt, h)},
				Minutes:  configs[h].Cooldown,
			})
		}

		v.render(w, r, homePage, "Home", code, data)
	})
}

type urlStatusData struct {
	Status          status.URLStatus
	CooldownMinutes uint64
	LiveURL         string
}

// URLStatus shows the restrictions of the host named by the "url" route
// parameter.
func (v *Views) URLStatus() router.View {
	return router.ViewFunc(func(w http.ResponseWriter, r *http.Request, m *router.Match) {
		host, err := status.HostOf(m.Params.Get("url"))
		if err != nil {
			v.render(w, r, notFoundPage, "Not found", http.StatusNotFound, notFoundData{Path: r.URL.Path})
			return
		}

		ctx := r.Context()
		st, err := v.status.Fetch(ctx, host)
		if err != nil && !errors.Is(err, status.ErrNoStatus) {
			v.serverError(w, r, err)
			return
		}
		st.Host = host

		data := urlStatusData{Status: st}
		if cfg, err := v.config.URLConfig(ctx, host); err == nil {
			data.CooldownMinutes = cfg.Cooldown
		}

		base := ""
		if rt, ok := router.FromContext(ctx); ok {
			base = rt.Base()
		}
		data.LiveURL = base + "/api/urls/" + url.PathEscape(host) + "/status/live"

		v.render(w, r, urlStatusPage, host, http.StatusOK, data)
	})
}

type notFoundData struct {
	Path string
}

// NotFound renders the 404 page.
func (v *Views) NotFound() router.View {
	return router.ViewFunc(func(w http.ResponseWriter, r *http.Request, m *router.Match) {
		v.render(w, r, notFoundPage, "Not found", http.StatusNotFound, notFoundData{Path: m.Path})
	})
}

func statusHref(rt *router.Router, host string) string {
	if rt == nil {
		return ""
	}
	href, err := rt.Href(URLStatusRoute, router.Params{"url": host})
	if err != nil {
		return ""
	}
	return href
}
