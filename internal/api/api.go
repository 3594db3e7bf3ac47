// Package api serves the JSON API mounted under /api.
package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/warent/proxycop/internal/errors"
	"github.com/warent/proxycop/internal/status"
	"github.com/warent/proxycop/internal/store"
)

// Store is the state the API reads and edits. *store.Store implements it.
type Store interface {
	Blacklist(ctx context.Context) ([]string, error)
	SetBlacklist(ctx context.Context, hosts []string) error
	AddToBlacklist(ctx context.Context, host string) (bool, error)
	RemoveFromBlacklist(ctx context.Context, host string) (bool, error)
	URLConfig(ctx context.Context, host string) (store.URLConfig, error)
	URLConfigs(ctx context.Context) (map[string]store.URLConfig, error)
	SetURLConfig(ctx context.Context, host string, cfg store.URLConfig) error
	DeleteURLConfig(ctx context.Context, host string) error
}

// StatusService reports and streams host status. *status.Service
// implements it.
type StatusService interface {
	Fetch(ctx context.Context, host string) (status.URLStatus, error)
	Watch(ctx context.Context, host string, interval time.Duration) <-chan status.URLStatus
}

// Deps are the dependencies of the API.
type Deps struct {
	Store        Store
	Status       StatusService
	Logger       *slog.Logger
	LiveInterval time.Duration
}

// Handler serves the API.
type Handler struct {
	store        Store
	status       StatusService
	logger       *slog.Logger
	liveInterval time.Duration
	upgrader     websocket.Upgrader
}

// New creates the API handler.
func New(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default().With("component", "api")
	}
	if deps.LiveInterval <= 0 {
		deps.LiveInterval = time.Second
	}
	return &Handler{
		store:        deps.Store,
		status:       deps.Status,
		logger:       deps.Logger,
		liveInterval: deps.LiveInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Routes returns the API router. Mount it at /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.writeError(w, r, errors.New(errors.CodeInvalidRequest).
			WithDetail("No API endpoint at %s.", r.URL.Path).
			WithStatus(http.StatusNotFound))
	})

	r.Get("/config", h.getConfig)
	r.Put("/config/blacklist", h.putBlacklist)
	r.Post("/config/blacklist", h.addToBlacklist)
	r.Delete("/config/blacklist/{host}", h.removeFromBlacklist)

	r.Route("/urls/{url}", func(r chi.Router) {
		r.Get("/config", h.getURLConfig)
		r.Put("/config", h.putURLConfig)
		r.Delete("/config", h.deleteURLConfig)
		r.Get("/status", h.getStatus)
		r.Get("/status/live", h.liveStatus)
	})
	return r
}

// ConfigResponse is the body of GET /api/config.
type ConfigResponse struct {
	Blacklist []string                   `json:"blacklist"`
	URLs      map[string]store.URLConfig `json:"urls"`
}

// BlacklistRequest is the body of PUT /api/config/blacklist.
type BlacklistRequest struct {
	Hosts []string `json:"hosts"`
}

// HostRequest is the body of POST /api/config/blacklist.
type HostRequest struct {
	Host string `json:"host"`
}

// URLConfigRequest is the body of PUT /api/urls/{url}/config.
type URLConfigRequest struct {
	// Cooldown in minutes.
	Cooldown *uint64 `json:"cooldown"`
}

func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hosts, err := h.store.Blacklist(ctx)
	if err != nil {
		h.writeError(w, r, errors.New(errors.CodeStoreRead).Wrap(err))
		return
	}
	configs, err := h.store.URLConfigs(ctx)
	if err != nil {
		h.writeError(w, r, errors.New(errors.CodeStoreRead).Wrap(err))
		return
	}
	if hosts == nil {
		hosts = []string{}
	}
	h.writeJSON(w, http.StatusOK, ConfigResponse{Blacklist: hosts, URLs: configs})
}

func (h *Handler) putBlacklist(w http.ResponseWriter, r *http.Request) {
	var req BlacklistRequest
	if !h.decode(w, r, &req) {
		return
	}

	hosts := make([]string, 0, len(req.Hosts))
	for _, raw := range req.Hosts {
		host, err := status.HostOf(raw)
		if err != nil {
			h.writeError(w, r, errors.New(errors.CodeInvalidHost).WithDetail("%q is not a valid host.", raw))
			return
		}
		hosts = append(hosts, host)
	}

	ctx := r.Context()
	if err := h.store.SetBlacklist(ctx, hosts); err != nil {
		h.writeError(w, r, errors.New(errors.CodeStoreWrite).Wrap(err))
		return
	}
	h.logger.Info("blacklist replaced", "hosts", len(hosts))
	h.getConfig(w, r)
}

func (h *Handler) addToBlacklist(w http.ResponseWriter, r *http.Request) {
	var req HostRequest
	if !h.decode(w, r, &req) {
		return
	}
	host, err := status.HostOf(req.Host)
	if err != nil {
		h.writeError(w, r, errors.New(errors.CodeInvalidHost).WithDetail("%q is not a valid host.", req.Host))
		return
	}
	if _, err := h.store.AddToBlacklist(r.Context(), host); err != nil {
		h.writeError(w, r, errors.New(errors.CodeStoreWrite).Wrap(err))
		return
	}
	h.getConfig(w, r)
}

func (h *Handler) removeFromBlacklist(w http.ResponseWriter, r *http.Request) {
	host, ok := h.hostParam(w, r, "host")
	if !ok {
		return
	}
	removed, err := h.store.RemoveFromBlacklist(r.Context(), host)
	if err != nil {
		h.writeError(w, r, errors.New(errors.CodeStoreWrite).Wrap(err))
		return
	}
	if !removed {
		h.writeError(w, r, errors.New(errors.CodeInvalidRequest).
			WithDetail("%s is not blacklisted.", host).
			WithStatus(http.StatusNotFound))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getURLConfig(w http.ResponseWriter, r *http.Request) {
	host, ok := h.hostParam(w, r, "url")
	if !ok {
		return
	}
	cfg, err := h.store.URLConfig(r.Context(), host)
	if stderrors.Is(err, store.ErrNotFound) {
		h.writeError(w, r, errors.New(errors.CodeNotConfigured).WithDetail("%s has no cooldown configured.", host))
		return
	}
	if err != nil {
		h.writeError(w, r, errors.New(errors.CodeStoreRead).Wrap(err))
		return
	}
	h.writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) putURLConfig(w http.ResponseWriter, r *http.Request) {
	host, ok := h.hostParam(w, r, "url")
	if !ok {
		return
	}
	var req URLConfigRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Cooldown == nil {
		h.writeError(w, r, errors.New(errors.CodeInvalidBody).WithDetail("The cooldown field is required."))
		return
	}

	cfg := store.URLConfig{Cooldown: *req.Cooldown}
	if err := h.store.SetURLConfig(r.Context(), host, cfg); err != nil {
		h.writeError(w, r, errors.New(errors.CodeStoreWrite).Wrap(err))
		return
	}
	h.logger.Info("cooldown configured", "host", host, "minutes", cfg.Cooldown)
	h.writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) deleteURLConfig(w http.ResponseWriter, r *http.Request) {
	host, ok := h.hostParam(w, r, "url")
	if !ok {
		return
	}
	err := h.store.DeleteURLConfig(r.Context(), host)
	if stderrors.Is(err, store.ErrNotFound) {
		h.writeError(w, r, errors.New(errors.CodeNotConfigured).WithDetail("%s has no cooldown configured.", host))
		return
	}
	if err != nil {
		h.writeError(w, r, errors.New(errors.CodeStoreWrite).Wrap(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	host, ok := h.hostParam(w, r, "url")
	if !ok {
		return
	}
	st, err := h.status.Fetch(r.Context(), host)
	if stderrors.Is(err, status.ErrNoStatus) {
		h.writeError(w, r, errors.New(errors.CodeNoStatus).WithDetail("%s is neither blacklisted nor cooling down.", host))
		return
	}
	if err != nil {
		h.writeError(w, r, errors.New(errors.CodeStoreRead).Wrap(err))
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

// liveStatus streams status snapshots of a host over a WebSocket until
// the client disconnects.
func (h *Handler) liveStatus(w http.ResponseWriter, r *http.Request) {
	host, ok := h.hostParam(w, r, "url")
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.logger.Debug("websocket upgrade failed", "host", host, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Keep reading so close frames are processed; any read error ends the
	// stream.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for st := range h.status.Watch(ctx, host, h.liveInterval) {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(st); err != nil {
			h.logger.Debug("live status write failed", "host", host, "error", err)
			return
		}
	}
}

// hostParam reads and normalizes a host route parameter.
func (h *Handler) hostParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	raw := chi.URLParam(r, name)
	if unescaped, err := url.PathUnescape(raw); err == nil {
		raw = unescaped
	}
	host, err := status.HostOf(raw)
	if err != nil {
		h.writeError(w, r, errors.New(errors.CodeInvalidHost).WithDetail("%q is not a valid host.", raw))
		return "", false
	}
	return host, true
}

const maxBodyBytes = 1 << 20

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		h.writeError(w, r, errors.New(errors.CodeInvalidBody).WithDetail("%v", err))
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("encode response failed", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, e *errors.Error) {
	code := e.HTTPStatus()
	if code >= http.StatusInternalServerError {
		h.logger.Error("api request failed", "method", r.Method, "path", r.URL.Path, "error", e)
	}
	h.writeJSON(w, code, e)
}
