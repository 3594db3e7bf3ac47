package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/warent/proxycop/internal/api"
	"github.com/warent/proxycop/internal/app"
	"github.com/warent/proxycop/internal/config"
	"github.com/warent/proxycop/internal/proxy"
	"github.com/warent/proxycop/internal/status"
	"github.com/warent/proxycop/internal/store"
	"github.com/warent/proxycop/internal/views"
)

func serveCmd(g *globals) *cobra.Command {
	var (
		proxyAddr string
		uiAddr    string
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the proxy and the web UI",
		Long: `Run the filtering proxy and the web UI.

Point your browser's HTTP and HTTPS proxy at the proxy address.
The UI is served at http://proxy.cop through the proxy and, unless
ui.addr is empty, directly on the UI address.

Examples:
  proxycop serve
  proxycop serve --proxy-addr=:3128 --ui-addr=127.0.0.1:8081`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer e.Close()

			if proxyAddr != "" {
				e.cfg.Proxy.Addr = proxyAddr
			}
			if cmd.Flags().Changed("ui-addr") {
				e.cfg.UI.Addr = uiAddr
			}
			if verbose {
				e.cfg.Proxy.Verbose = true
			}
			if err := e.cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, e)
		},
	}

	cmd.Flags().StringVar(&proxyAddr, "proxy-addr", "", "Proxy listen address (default from proxycop.json)")
	cmd.Flags().StringVar(&uiAddr, "ui-addr", "", "Standalone UI listen address, empty to disable")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log every proxied request")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, e *env) error {
	cfg, logger := e.cfg, e.logger

	if err := e.store.Seed(ctx, store.Seed{
		Blacklist: cfg.Seed.Blacklist,
		Cooldowns: cfg.Seed.Cooldowns,
	}); err != nil {
		return fmt.Errorf("seed store: %w", err)
	}

	var registry *prometheus.Registry
	statusOpts := []status.Option{
		status.WithLogger(logger.With("component", "status")),
		status.WithVisitGrace(cfg.VisitGrace()),
	}
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		statusOpts = append(statusOpts,
			status.WithRegistry(registry),
			status.WithNamespace(cfg.Metrics.Namespace))
	}
	svc := status.New(e.store, statusOpts...)

	ui, err := buildUI(cfg, e.store, svc, registry, logger)
	if err != nil {
		return err
	}

	p := proxy.New(svc, proxy.Config{
		UIHost:  cfg.Proxy.UIHost,
		UI:      ui,
		Verbose: cfg.Proxy.Verbose,
		Logger:  logger.With("component", "proxy"),
	})

	servers := []*http.Server{{Addr: cfg.Proxy.Addr, Handler: p}}
	if cfg.UI.Addr != "" {
		servers = append(servers, &http.Server{Addr: cfg.UI.Addr, Handler: ui, ReadHeaderTimeout: 10 * time.Second})
	}

	out := cmd.OutOrStdout()
	printBanner(out)
	success(out, "Proxy listening on %s", cfg.Proxy.Addr)
	info(out, "UI through the proxy: http://%s%s/", cfg.Proxy.UIHost, cfg.UI.Base)
	if cfg.UI.Addr != "" {
		success(out, "UI listening on %s", cfg.UI.Addr)
	}
	fmt.Fprintln(out)

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listen on %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	select {
	case <-ctx.Done():
		fmt.Fprintln(out, "\n  Shutting down...")
	case err = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, srv := range servers {
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			logger.Warn("shutdown", "addr", srv.Addr, "error", serr)
		}
	}
	return err
}

func buildUI(cfg *config.Config, st *store.Store, svc *status.Service, registry *prometheus.Registry, logger *slog.Logger) (http.Handler, error) {
	v, err := views.New(views.Deps{
		Config: st,
		Status: svc,
		Logger: logger.With("component", "views"),
	})
	if err != nil {
		return nil, err
	}

	handler, _, err := app.Handler(app.Deps{
		Views: v,
		API: api.New(api.Deps{
			Store:        st,
			Status:       svc,
			Logger:       logger.With("component", "api"),
			LiveInterval: cfg.LiveInterval(),
		}),
		Base:             cfg.UI.Base,
		Registry:         registry,
		MetricsNamespace: cfg.Metrics.Namespace,
		MetricsPath:      cfg.Metrics.Path,
		Logger:           logger.With("component", "http"),
	})
	return handler, err
}
