// Package proxy is the filtering forward proxy. Every request is admitted
// through the status service; refused requests get a 403 explaining why.
// Requests to the UI host are answered by the web UI itself.
package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/elazarl/goproxy"

	"github.com/warent/proxycop/internal/errors"
	"github.com/warent/proxycop/internal/status"
)

// Admitter decides visits. *status.Service implements it.
type Admitter interface {
	Admit(ctx context.Context, host string) (status.Verdict, error)
	Peek(ctx context.Context, host string) (status.Verdict, error)
}

// Config configures a Proxy.
type Config struct {
	// UIHost is the virtual host answered by UI (e.g. "proxy.cop").
	UIHost string

	// UI serves requests to UIHost. Nil answers them with 404.
	UI http.Handler

	// Verbose enables goproxy's request logging.
	Verbose bool

	Logger *slog.Logger
}

// Proxy is an http.Handler that acts as a forward proxy.
type Proxy struct {
	server   *goproxy.ProxyHttpServer
	admitter Admitter
	uiHost   string
	ui       http.Handler
	logger   *slog.Logger
}

// New creates the proxy.
func New(admitter Admitter, cfg Config) *Proxy {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default().With("component", "proxy")
	}
	if cfg.UI == nil {
		cfg.UI = http.NotFoundHandler()
	}

	p := &Proxy{
		server:   goproxy.NewProxyHttpServer(),
		admitter: admitter,
		uiHost:   strings.ToLower(cfg.UIHost),
		ui:       cfg.UI,
		logger:   cfg.Logger,
	}
	p.server.Verbose = cfg.Verbose
	p.server.Logger = printfLogger{p.logger}

	// The UI host is answered before admission so it can never be refused.
	p.server.OnRequest(goproxy.ReqConditionFunc(p.isUIHost)).HandleConnect(goproxy.AlwaysMitm)
	p.server.OnRequest(goproxy.ReqConditionFunc(p.isUIHost)).DoFunc(p.serveUI)

	p.server.OnRequest().HandleConnectFunc(p.handleConnect)
	p.server.OnRequest().DoFunc(p.admit)

	return p
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.server.ServeHTTP(w, r)
}

func (p *Proxy) isUIHost(r *http.Request, _ *goproxy.ProxyCtx) bool {
	return p.uiHost != "" && hostname(r) == p.uiHost
}

// serveUI renders the UI into a recorded response.
func (p *Proxy) serveUI(r *http.Request, _ *goproxy.ProxyCtx) (*http.Request, *http.Response) {
	w := httptest.NewRecorder()
	p.ui.ServeHTTP(w, r)
	return r, w.Result()
}

// handleConnect tunnels allowed hosts untouched. Refused hosts are
// intercepted so the refusal can be answered over TLS.
func (p *Proxy) handleConnect(host string, ctx *goproxy.ProxyCtx) (*goproxy.ConnectAction, string) {
	name, err := status.HostOf(host)
	if err != nil {
		return goproxy.RejectConnect, host
	}

	v, err := p.admitter.Peek(requestContext(ctx), name)
	if err != nil {
		p.logger.Error("connect decision failed", "host", name, "error", err)
		return goproxy.OkConnect, host
	}
	if !v.Allowed() {
		return goproxy.MitmConnect, host
	}
	return goproxy.OkConnect, host
}

func (p *Proxy) admit(r *http.Request, _ *goproxy.ProxyCtx) (*http.Request, *http.Response) {
	host := hostname(r)
	if host == "" {
		return r, nil
	}

	v, err := p.admitter.Admit(r.Context(), host)
	if err != nil {
		e := errors.New(errors.CodeProxyFailed).Wrap(err)
		p.logger.Error("admission failed", "host", host, "error", err)
		return r, goproxy.NewResponse(r, goproxy.ContentTypeText, e.HTTPStatus(), e.Message)
	}
	if !v.Allowed() {
		return r, goproxy.NewResponse(r, goproxy.ContentTypeText, http.StatusForbidden, v.Message)
	}
	return r, nil
}

func hostname(r *http.Request) string {
	host := r.URL.Hostname()
	if host == "" {
		host = r.Host
		if i := strings.LastIndexByte(host, ':'); i >= 0 && !strings.Contains(host[i:], "]") {
			host = host[:i]
		}
	}
	return strings.ToLower(strings.TrimSuffix(host, "."))
}

func requestContext(ctx *goproxy.ProxyCtx) context.Context {
	if ctx != nil && ctx.Req != nil {
		return ctx.Req.Context()
	}
	return context.Background()
}

// printfLogger adapts slog to goproxy's Printf logger.
type printfLogger struct {
	logger *slog.Logger
}

func (l printfLogger) Printf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
