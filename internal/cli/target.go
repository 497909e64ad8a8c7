package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rileyhilliard/pyscope/internal/config"
	"github.com/rileyhilliard/pyscope/internal/errors"
	"github.com/rileyhilliard/pyscope/internal/pipeline"
	"github.com/rileyhilliard/pyscope/internal/remote"
	"github.com/rileyhilliard/pyscope/internal/session"
	"github.com/rileyhilliard/pyscope/internal/telemetry"
)

// closeTimeout bounds artifact cleanup when a command exits.
const closeTimeout = 10 * time.Second

// target is a session wired to the configured channel.
type target struct {
	cfg     *config.Config
	session *session.Session
	pool    *remote.Pool
}

// loadConfig resolves, loads and validates the config for this invocation.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parsePID validates a pid argument.
func parsePID(arg string) (int32, error) {
	pid, err := strconv.ParseInt(arg, 10, 32)
	if err != nil || pid <= 0 {
		return 0, errors.New(errors.ErrConfig,
			fmt.Sprintf("'%s' isn't a process id", arg),
			"Pass the numeric pid of the Python process, e.g. pyscope inspect 4242")
	}
	return int32(pid), nil
}

// sessionOptions maps the config onto session collaborators. The returned
// pool is nil unless the channel goes over SSH.
func sessionOptions(cfg *config.Config) (session.Options, *remote.Pool) {
	var (
		runner remote.Runner
		fs     remote.FS = remote.LocalFS{}
		pool   *remote.Pool
		local  string
	)
	if cfg.Channel.Mode == config.ModeSSH {
		pool = remote.NewPool(cfg.Channel.Timeout)
		runner = remote.NewSSHRunner(pool, cfg.Channel.Host)
		fs = remote.RunnerFS{Runner: runner}
		// Fetched call graphs land next to the user, not on the target host.
		local = os.TempDir()
	} else {
		runner = remote.NewLocalRunner()
	}

	return session.Options{
		Inspector: newInspector(cfg, runner),
		Dialer: &remote.CommandDialer{
			Runner:   runner,
			Template: cfg.Channel.Command,
			Timeout:  cfg.Channel.Timeout,
		},
		Runner:    runner,
		FS:        fs,
		Artifacts: remote.Artifacts{Dir: cfg.TempDir()},
		LocalDir:  local,
		Sampler:   telemetry.Options{Interval: cfg.Sampler.Interval},
		Pipeline: pipeline.Config{
			CallGraphSample:  cfg.Pipeline.CallGraphSample,
			HeapPollInterval: cfg.Pipeline.HeapPollInterval,
			HeapTimeout:      cfg.Pipeline.HeapTimeout,
			GraphTool:        cfg.Pipeline.GraphTool,
			Interpreter:      cfg.Pipeline.Interpreter,
			ConnectRetries:   uint64(cfg.Channel.ConnectRetries),
		},
	}, pool
}

// newInspector picks the OS inspector. gopsutil only sees local
// processes, so auto falls back to /proc over the runner for SSH.
func newInspector(cfg *config.Config, runner remote.Runner) telemetry.Inspector {
	switch cfg.Inspector {
	case config.InspectorGopsutil:
		return telemetry.NewGopsutilInspector()
	case config.InspectorProcfs:
		return telemetry.NewProcfsInspector(runner)
	}
	if cfg.Channel.Mode == config.ModeSSH {
		return telemetry.NewProcfsInspector(runner)
	}
	return telemetry.NewGopsutilInspector()
}

// openTarget loads the config and builds a session. tune adjusts the
// options before the session is created.
func openTarget(tune func(*session.Options)) (*target, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	opts, pool := sessionOptions(cfg)
	if tune != nil {
		tune(&opts)
	}
	return &target{cfg: cfg, session: session.New(opts), pool: pool}, nil
}

// Close ends the session and drops pooled SSH connections.
func (t *target) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	_ = t.session.Close(ctx)
	if t.pool != nil {
		t.pool.Close()
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
