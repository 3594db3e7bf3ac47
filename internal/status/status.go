// Package status decides whether a host may be visited and reports the
// restrictions currently applied to it.
package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/warent/proxycop/internal/store"
)

var (
	// ErrNoStatus is returned by Fetch when no restriction applies.
	ErrNoStatus = errors.New("no status")

	// ErrInvalidHost is returned by HostOf for input without a hostname.
	ErrInvalidHost = errors.New("invalid host")
)

// Backend is the state the service reads and writes. *store.Store
// implements it.
type Backend interface {
	Cooldown(ctx context.Context, host string) (time.Duration, bool, error)
	StartCooldown(ctx context.Context, host string, d time.Duration) error
	IsBlacklisted(ctx context.Context, host string) (bool, error)
	URLConfig(ctx context.Context, host string) (store.URLConfig, error)
	RecordVisit(ctx context.Context, host string) (uint64, error)
	Visits(ctx context.Context, host string) (uint64, error)
}

// URLStatus is the restriction state of a host.
type URLStatus struct {
	Host        string `json:"host"`
	Blacklisted bool   `json:"blacklisted"`
	// Cooldown is the remaining cooldown in whole seconds.
	Cooldown uint64 `json:"cooldown"`
	Visits   uint64 `json:"visits"`
}

// Restricted reports whether the host cannot currently be visited.
func (s URLStatus) Restricted() bool {
	return s.Blacklisted || s.Cooldown > 0
}

// Service answers status queries and admits proxied visits.
type Service struct {
	backend Backend
	logger  *slog.Logger
	tracer  trace.Tracer
	grace   time.Duration

	verdicts *prometheus.CounterVec
}

// Option configures a Service.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	registry   prometheus.Registerer
	namespace  string
	tracerName string
	grace      time.Duration
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRegistry registers the verdict counter with registry. Without it the
// counter is kept but never exported.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(o *options) {
		o.registry = registry
	}
}

// WithVisitGrace lets requests to a host through for d after the visit
// that started its cooldown, so the requests of one page load are not
// refused. They are not counted as visits.
func WithVisitGrace(d time.Duration) Option {
	return func(o *options) {
		o.grace = d
	}
}

// WithNamespace sets the metrics namespace (default: "proxycop").
func WithNamespace(namespace string) Option {
	return func(o *options) {
		o.namespace = namespace
	}
}

// WithTracerName sets the OpenTelemetry tracer name.
func WithTracerName(name string) Option {
	return func(o *options) {
		o.tracerName = name
	}
}

// New creates a Service over backend.
func New(backend Backend, opts ...Option) *Service {
	o := options{
		namespace:  "proxycop",
		tracerName: "github.com/warent/proxycop/internal/status",
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default().With("component", "status")
	}

	return &Service{
		backend: backend,
		logger:  o.logger,
		tracer:  otel.Tracer(o.tracerName),
		grace:   o.grace,
		verdicts: promauto.With(o.registry).NewCounterVec(prometheus.CounterOpts{
			Namespace: o.namespace,
			Name:      "verdicts_total",
			Help:      "Total number of proxy admission verdicts by kind",
		}, []string{"verdict"}),
	}
}

// Fetch returns the restrictions of host. A pending cooldown is reported
// before the blacklist. ErrNoStatus means the host is unrestricted.
func (s *Service) Fetch(ctx context.Context, host string) (URLStatus, error) {
	st, err := s.snapshot(ctx, host)
	if err != nil {
		return URLStatus{}, err
	}
	if !st.Restricted() {
		return st, ErrNoStatus
	}
	return st, nil
}

func (s *Service) snapshot(ctx context.Context, host string) (URLStatus, error) {
	st := URLStatus{Host: host}

	remaining, pending, err := s.backend.Cooldown(ctx, host)
	if err != nil {
		return st, fmt.Errorf("read cooldown of %s: %w", host, err)
	}
	if pending {
		st.Cooldown = uint64(remaining / time.Second)
		// A sub-second remainder still counts as pending.
		if st.Cooldown == 0 {
			st.Cooldown = 1
		}
	}

	st.Blacklisted, err = s.backend.IsBlacklisted(ctx, host)
	if err != nil {
		return st, fmt.Errorf("read blacklist: %w", err)
	}

	st.Visits, err = s.backend.Visits(ctx, host)
	if err != nil {
		return st, fmt.Errorf("read visits of %s: %w", host, err)
	}
	return st, nil
}

// Peek returns the verdict Admit would give without recording anything.
func (s *Service) Peek(ctx context.Context, host string) (Verdict, error) {
	v, _, err := s.decide(ctx, host)
	return v, err
}

// decide computes the verdict for host. grace is true when the host is
// cooling down but still inside the grace period of the visit that started
// the cooldown.
func (s *Service) decide(ctx context.Context, host string) (v Verdict, grace bool, err error) {
	remaining, pending, err := s.backend.Cooldown(ctx, host)
	if err != nil {
		return Verdict{}, false, fmt.Errorf("read cooldown of %s: %w", host, err)
	}
	if pending {
		if s.inGrace(ctx, host, remaining) {
			return Verdict{Kind: Allowed, Host: host}, true, nil
		}
		return cooldownVerdict(host, remaining), false, nil
	}

	blacklisted, err := s.backend.IsBlacklisted(ctx, host)
	if err != nil {
		return Verdict{}, false, fmt.Errorf("read blacklist: %w", err)
	}
	if blacklisted {
		return blacklistedVerdict(host), false, nil
	}
	return Verdict{Kind: Allowed, Host: host}, false, nil
}

func (s *Service) inGrace(ctx context.Context, host string, remaining time.Duration) bool {
	if s.grace <= 0 {
		return false
	}
	cfg, err := s.backend.URLConfig(ctx, host)
	if err != nil {
		return false
	}
	return cfg.CooldownDuration()-remaining < s.grace
}

// Admit decides a visit to host. An allowed visit is counted and starts
// the host's configured cooldown.
func (s *Service) Admit(ctx context.Context, host string) (Verdict, error) {
	ctx, span := s.tracer.Start(ctx, "status.Admit",
		trace.WithAttributes(attribute.String("proxycop.host", host)))
	defer span.End()

	v, err := s.admit(ctx, host)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.verdicts.WithLabelValues("error").Inc()
		return v, err
	}

	span.SetAttributes(attribute.String("proxycop.verdict", v.Kind.String()))
	s.verdicts.WithLabelValues(v.Kind.String()).Inc()
	if !v.Allowed() {
		s.logger.Info("visit refused", "host", host, "verdict", v.Kind.String())
	}
	return v, nil
}

func (s *Service) admit(ctx context.Context, host string) (Verdict, error) {
	v, grace, err := s.decide(ctx, host)
	if err != nil || !v.Allowed() || grace {
		return v, err
	}

	if _, err := s.backend.RecordVisit(ctx, host); err != nil {
		return v, fmt.Errorf("record visit to %s: %w", host, err)
	}

	cfg, err := s.backend.URLConfig(ctx, host)
	if errors.Is(err, store.ErrNotFound) {
		return v, nil
	}
	if err != nil {
		return v, fmt.Errorf("read config of %s: %w", host, err)
	}
	if d := cfg.CooldownDuration(); d > 0 {
		if err := s.backend.StartCooldown(ctx, host, d); err != nil {
			return v, fmt.Errorf("start cooldown of %s: %w", host, err)
		}
		s.logger.Debug("cooldown started", "host", host, "duration", d)
	}
	return v, nil
}

// Watch sends the status of host immediately and then every interval
// until ctx is done. The channel is closed when watching stops. Slow
// receivers miss intermediate snapshots.
func (s *Service) Watch(ctx context.Context, host string, interval time.Duration) <-chan URLStatus {
	if interval <= 0 {
		interval = time.Second
	}
	ch := make(chan URLStatus, 1)

	go func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			st, err := s.snapshot(ctx, host)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("watch snapshot failed", "host", host, "error", err)
			} else {
				select {
				case ch <- st:
				case <-ctx.Done():
					return
				default:
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return ch
}

// HostOf extracts the lowercase hostname from a bare host, a host:port or
// a full URL.
func HostOf(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidHost
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidHost, err)
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" || strings.ContainsAny(host, " /\\") {
		return "", ErrInvalidHost
	}
	return host, nil
}
