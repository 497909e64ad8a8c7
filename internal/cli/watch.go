package cli

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rileyhilliard/pyscope/internal/dashboard"
	"github.com/rileyhilliard/pyscope/internal/errors"
	"github.com/rileyhilliard/pyscope/internal/logger"
	"github.com/rileyhilliard/pyscope/internal/telemetry"
	"github.com/spf13/cobra"
)

var watchMetricsAddr string

var watchCmd = &cobra.Command{
	Use:   "watch <pid>",
	Short: "Open the live dashboard for a Python process",
	Long: `Open a full-screen dashboard that graphs cpu, memory, I/O and per-thread
cpu of a running Python process while the inspection stages run.

Tabs: resources, threads, connections, files, stacks, objects, info.
Press ? for key bindings and q to quit.

With --metrics-addr the latest sample is also served as Prometheus
metrics on /metrics.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return watchCommand(args[0], watchMetricsAddr)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9464")
}

func watchCommand(arg, metricsAddr string) error {
	pid, err := parsePID(arg)
	if err != nil {
		return err
	}

	t, err := openTarget(nil)
	if err != nil {
		return err
	}
	defer t.Close()

	ctx, stop := signalContext()
	defer stop()

	run, err := t.session.Select(ctx, pid)
	if err != nil {
		return err
	}
	defer run.Cancel()

	details, err := t.session.Details(ctx)
	if err != nil {
		logger.Default().Debug("watch: details for pid %d: %v", pid, err)
		details.PID = pid
	}

	if metricsAddr != "" {
		shutdown, err := serveMetrics(metricsAddr, t.session)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	model, err := dashboard.NewModel(dashboard.Options{
		Frames:  t.session,
		Run:     run,
		Details: details,
	})
	if err != nil {
		return err
	}
	defer model.Close()

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !stderrors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

// serveMetrics exposes source on addr until the returned func is called.
func serveMetrics(addr string, source telemetry.FrameSource) (func(), error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(telemetry.NewExporter(source)); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig, "Couldn't register metrics", "")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't serve metrics on "+addr,
			"Pick a free address with --metrics-addr")
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			logger.Default().Debug("metrics server: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
