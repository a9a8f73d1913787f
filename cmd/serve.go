package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/x/term"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/scopecomms/internal/capture"
	"github.com/fakeyudi/scopecomms/internal/logging"
	"github.com/fakeyudi/scopecomms/internal/perfserver"
	"github.com/fakeyudi/scopecomms/internal/transport"
	"github.com/fakeyudi/scopecomms/internal/tui"
	"github.com/fakeyudi/scopecomms/internal/watch"
)

// webSocketPath is where the WebSocket listener accepts upgrades.
const webSocketPath = "/scopecomms"

type serveOptions struct {
	listen   string
	headless bool
	noSave   bool
	watchDir string
	logFile  string
}

var serveOpts serveOptions

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the perf server and its live tuning console",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cmd.OutOrStdout(), serveOpts)
	},
}

func runServe(ctx context.Context, out io.Writer, o serveOptions) error {
	interactive := !o.headless && term.IsTerminal(os.Stdout.Fd())
	if interactive {
		// Console mode logs to --log-file or nowhere.
		var w io.Writer = io.Discard
		if o.logFile != "" {
			f, err := os.OpenFile(o.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return fmt.Errorf("opening log file: %w", err)
			}
			defer f.Close()
			w = f
		}
		logging.SetOutput(w)
		defer logging.SetOutput(os.Stderr)
	}
	logger := logging.Named("serve")

	reg := prometheus.NewRegistry()
	opts := []perfserver.Option{perfserver.WithRegisterer(reg), perfserver.WithHistory(cfg.HistorySize)}
	if !o.noSave {
		store, err := openStore()
		if err != nil {
			return err
		}
		opts = append(opts, perfserver.WithOnClose(saveCapture(store, logger)))
	}
	srv := perfserver.New(opts...)

	addr := o.listen
	if addr == "" {
		addr = cfg.Listen
	}
	lns, err := listen(addr, cfg.WebSocketListen)
	if err != nil {
		return err
	}
	defer func() {
		for _, ln := range lns {
			ln.Close()
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.MetricsListen != "" {
		if err := serveMetrics(ctx, cfg.MetricsListen, reg, logger); err != nil {
			return err
		}
	}

	if o.watchDir != "" {
		w, err := watch.New(o.watchDir, srv, cfg.IgnorePatterns, logging.Named("watch"))
		if err != nil {
			return err
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Error("watcher stopped", "err", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeAll(ctx, lns...) }()

	addrs := make([]string, len(lns))
	for i, ln := range lns {
		addrs[i] = ln.Addr()
	}
	if interactive {
		uiErr := tui.RunLive(ctx, srv, "serving on "+strings.Join(addrs, ", "))
		cancel()
		return errors.Join(uiErr, <-errCh)
	}
	fmt.Fprintf(out, "Listening on %s. Press Ctrl+C to stop.\n", strings.Join(addrs, ", "))
	return <-errCh
}

// listen opens the TCP listener and, when wsAddr is set, the WebSocket one.
func listen(tcpAddr, wsAddr string) ([]transport.Listener, error) {
	tcp, err := transport.ListenTCP(tcpAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", tcpAddr, err)
	}
	lns := []transport.Listener{tcp}
	if wsAddr != "" {
		ws, err := transport.ListenWebSocket(wsAddr, webSocketPath)
		if err != nil {
			tcp.Close()
			return nil, fmt.Errorf("listening on %s: %w", wsAddr, err)
		}
		lns = append(lns, ws)
	}
	return lns, nil
}

// serveMetrics exposes reg on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *log.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	hs := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		hs.Close()
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())
	return nil
}

// saveCapture returns an OnClose hook that persists each finished client.
func saveCapture(store capture.Store, logger *log.Logger) func(perfserver.Snapshot) {
	return func(s perfserver.Snapshot) {
		path, err := store.Save(capture.FromSnapshot(s))
		if err != nil {
			logger.Error("saving capture", "client", s.ID, "err", err)
			return
		}
		logger.Info("capture saved", "app", s.App, "path", path)
	}
}

func init() {
	serveCmd.Flags().StringVar(&serveOpts.listen, "listen", "", "TCP listen address (overrides config)")
	serveCmd.Flags().BoolVar(&serveOpts.headless, "headless", false, "log to stderr instead of opening the console")
	serveCmd.Flags().BoolVar(&serveOpts.noSave, "no-save", false, "do not save captures when clients disconnect")
	serveCmd.Flags().StringVar(&serveOpts.watchDir, "watch", "", "push edits of files in this directory to matching String items")
	serveCmd.Flags().StringVar(&serveOpts.logFile, "log-file", "", "where console mode writes its log")
	rootCmd.AddCommand(serveCmd)
}
