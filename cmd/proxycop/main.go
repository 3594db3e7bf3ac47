package main

import (
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/warent/proxycop/internal/config"
	"github.com/warent/proxycop/internal/errors"
	"github.com/warent/proxycop/internal/store"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ┌─┐┬─┐┌─┐─┐ ┬┬ ┬┌─┐┌─┐┌─┐
  ├─┘├┬┘│ │┌┴┬┘└┬┘│  │ │├─┘
  ┴  ┴└─└─┘┴ └─ ┴ └─┘└─┘┴
`

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var e *errors.Error
		if stderrors.As(err, &e) {
			fmt.Fprint(os.Stderr, e.Format())
		} else {
			fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		}
		os.Exit(1)
	}
}

// globals holds the persistent flags.
type globals struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:   "proxycop",
		Short: "A filtering proxy that keeps you off distracting sites",
		Long: `proxycop is a forward HTTP(S) proxy with a small web UI.

It refuses visits to blacklisted hosts and enforces per-host
cooldowns: after visiting a host it stays locked for a while.

  • Blacklist and cooldowns stored in a local buntdb file
  • Web UI at http://proxy.cop through the proxy
  • JSON API and live status over WebSocket
  • Snapshots to S3 or any S3-compatible store`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Path to proxycop.json (default ./proxycop.json)")

	rootCmd.AddCommand(
		serveCmd(g),
		routesCmd(g),
		statusCmd(g),
		blacklistCmd(g),
		cooldownCmd(g),
		backupCmd(g),
		restoreCmd(g),
		configCmd(g),
		versionCmd(),
	)
	return rootCmd
}

func (g *globals) load() (*config.Config, error) {
	path := g.configPath
	if path == "" {
		path = config.ConfigFileName
	}
	return config.Load(path)
}

// env is the state most commands work with.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
}

// open loads the configuration and opens the store. Logs go to stderr.
func (g *globals) open(w io.Writer) (*env, error) {
	cfg, err := g.load()
	if err != nil {
		return nil, err
	}
	logger := cfg.Log.NewLogger(w)
	st, err := store.Open(cfg.Store.Path, store.WithLogger(logger.With("component", "store")))
	if err != nil {
		return nil, errors.New(errors.CodeStoreOpen).WithDetail("open %s", cfg.Store.Path).Wrap(err)
	}
	return &env{cfg: cfg, logger: logger, store: st}, nil
}

func (e *env) Close() error {
	return e.store.Close()
}

// printBanner prints the proxycop ASCII art banner.
func printBanner(w io.Writer) {
	fmt.Fprint(w, banner)
}

// success prints a success message.
func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}
