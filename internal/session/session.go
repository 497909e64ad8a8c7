// Package session binds one selected target process to its sampler,
// injection channels, inspection runs and on-disk artifacts.
package session

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rileyhilliard/pyscope/internal/errors"
	"github.com/rileyhilliard/pyscope/internal/logger"
	"github.com/rileyhilliard/pyscope/internal/pipeline"
	"github.com/rileyhilliard/pyscope/internal/remote"
	"github.com/rileyhilliard/pyscope/internal/telemetry"
)

// Options wires a Session to its collaborators.
type Options struct {
	Inspector telemetry.Inspector
	Dialer    remote.Dialer
	Runner    remote.Runner
	FS        remote.FS
	Dialect   remote.Dialect
	Artifacts remote.Artifacts
	// LocalDir receives fetched artifacts. Defaults to Artifacts.Dir.
	LocalDir string
	// KeepLocal leaves fetched artifacts in LocalDir on Close.
	KeepLocal bool
	Sampler   telemetry.Options
	Pipeline  pipeline.Config
	Logger    logger.Logger
	// PipelineLogger is handed to every inspection run.
	PipelineLogger logger.Logger
}

// Session is the handle on the selected target.
type Session struct {
	opts Options
	log  logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	pid        int32
	selected   bool
	closed     bool
	sampler    *telemetry.Sampler
	run        *pipeline.Run
	transcript strings.Builder
	touched    map[int32]struct{}

	chMu     sync.Mutex
	channels map[int32]remote.Channel
}

// New creates a session with nothing selected. The sampler is created on
// the first Select.
func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = logger.NewEnvLogger("[session]")
	}
	if opts.Dialect == nil {
		opts.Dialect = remote.PythonDialect{}
	}
	if opts.FS == nil {
		opts.FS = remote.LocalFS{}
	}
	if opts.LocalDir == "" {
		opts.LocalDir = opts.Artifacts.Dir
	}
	if opts.PipelineLogger == nil {
		opts.PipelineLogger = logger.NewEnvLogger("[pipeline]")
	}
	if opts.Sampler.Logger == nil {
		opts.Sampler.Logger = logger.NewEnvLogger("[sampler]")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		opts:     opts,
		log:      opts.Logger,
		ctx:      ctx,
		cancel:   cancel,
		touched:  make(map[int32]struct{}),
		channels: make(map[int32]remote.Channel),
	}
}

// Select makes pid the target. Any run still in flight for the previous
// target is cancelled, the sampler is retargeted (or started) unless it is
// already sampling pid, and a new inspection run begins. Moving to a different pid unlinks the previous
// pid's artifacts and closes its channel.
func (s *Session) Select(ctx context.Context, pid int32) (*pipeline.Run, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New(errors.ErrProcess, "Session is closed", "")
	}
	old := s.run
	s.run = nil
	s.mu.Unlock()

	if old != nil {
		old.Cancel()
		select {
		case <-old.Done():
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New(errors.ErrProcess, "Session is closed", "")
	}

	// A concurrent Select may have started a run since the first unlock.
	if s.run != nil {
		s.run.Cancel()
		s.run = nil
	}

	retarget := !s.selected || s.pid != pid
	if s.selected && s.pid != pid {
		prev := s.pid
		s.removeArtifacts(ctx, prev)
		s.dropChannel(prev)
		delete(s.touched, prev)
		s.transcript.Reset()
		s.log.Debug("switched from pid %d to %d", prev, pid)
	}
	s.pid = pid
	s.selected = true
	s.touched[pid] = struct{}{}

	switch {
	case s.sampler == nil:
		s.sampler = telemetry.NewSampler(s.opts.Inspector, s.opts.Sampler)
		s.sampler.Retarget(pid)
		s.sampler.Start(s.ctx)
	case retarget || s.sampler.State() == telemetry.StateLost:
		s.sampler.Retarget(pid)
	}

	p := pipeline.New(pipeline.Env{
		PID:       pid,
		Connect:   func(ctx context.Context) (remote.Channel, error) { return s.channel(ctx, pid) },
		Dialect:   s.opts.Dialect,
		Runner:    s.opts.Runner,
		FS:        s.opts.FS,
		Artifacts: s.opts.Artifacts,
		LocalDir:  s.opts.LocalDir,
		Logger:    s.opts.PipelineLogger,
	}, s.opts.Pipeline)
	s.run = p.Start(ctx)
	go s.seedTranscript(s.run, pid)
	return s.run, nil
}

// seedTranscript starts the shell transcript with the interpreter banner
// once the run reports it.
func (s *Session) seedTranscript(run *pipeline.Run, pid int32) {
	report, _ := run.Wait()
	if report == nil || report.Version == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pid != pid || s.transcript.Len() > 0 {
		return
	}
	s.transcript.WriteString(report.Version + "\n")
}

// channel returns the cached channel for pid, dialing one if needed.
func (s *Session) channel(ctx context.Context, pid int32) (remote.Channel, error) {
	s.chMu.Lock()
	defer s.chMu.Unlock()
	if ch, ok := s.channels[pid]; ok {
		return ch, nil
	}
	if s.opts.Dialer == nil {
		return nil, errors.New(errors.ErrConfig, "No injection channel configured", "Set channel.command in .pyscope.yaml")
	}
	ch, err := s.opts.Dialer.Dial(ctx, pid)
	if err != nil {
		return nil, err
	}
	s.channels[pid] = ch
	return ch, nil
}

func (s *Session) dropChannel(pid int32) {
	s.chMu.Lock()
	ch, ok := s.channels[pid]
	delete(s.channels, pid)
	s.chMu.Unlock()
	if ok {
		if err := ch.Close(); err != nil {
			s.log.Debug("closing channel for pid %d: %v", pid, err)
		}
	}
}

// PID returns the selected pid, or false when nothing is selected.
func (s *Session) PID() (int32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pid, s.selected
}

// State reports the connection state of the selected target.
func (s *Session) State() telemetry.ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sampler == nil {
		return telemetry.StateUnconnected
	}
	return s.sampler.State()
}

// Frame returns the latest telemetry frame. It is empty before the first
// Select.
func (s *Session) Frame() telemetry.Frame {
	s.mu.Lock()
	sampler := s.sampler
	s.mu.Unlock()
	if sampler == nil {
		return telemetry.Frame{State: telemetry.StateUnconnected}
	}
	return sampler.Frame()
}

// Subscribe delivers telemetry frames; see telemetry.Sampler.Subscribe.
// It fails before the first Select.
func (s *Session) Subscribe() (<-chan telemetry.Frame, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sampler == nil {
		return nil, nil, errors.New(errors.ErrProcess, "No process selected", "")
	}
	ch, unsubscribe := s.sampler.Subscribe()
	return ch, unsubscribe, nil
}

// Shell sends one line of code to the target and records it in the
// transcript.
func (s *Session) Shell(ctx context.Context, line string) (string, error) {
	pid, ok := s.PID()
	if !ok {
		return "", errors.New(errors.ErrProcess, "No process selected", "Select a process before using the shell")
	}
	ch, err := s.channel(ctx, pid)
	if err != nil {
		return "", err
	}
	out, err := ch.Send(ctx, line)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pid == pid {
		fmt.Fprintf(&s.transcript, ">>> %s\n%s", line, out)
		if out != "" && !strings.HasSuffix(out, "\n") {
			s.transcript.WriteByte('\n')
		}
	}
	return out, nil
}

// Transcript returns the shell history of the selected target.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.String()
}

// Details describes the selected target.
func (s *Session) Details(ctx context.Context) (telemetry.Details, error) {
	pid, ok := s.PID()
	if !ok {
		return telemetry.Details{}, errors.New(errors.ErrProcess, "No process selected", "")
	}
	d, err := s.opts.Inspector.Details(ctx, pid)
	if err != nil {
		return telemetry.Details{}, errors.WrapWithCode(err, errors.ErrProcess,
			fmt.Sprintf("Couldn't read details of process %d", pid), "")
	}
	return d, nil
}

// Close stops the sampler, cancels the current run, closes every channel
// and unlinks the artifacts of every pid this session touched.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	run := s.run
	s.run = nil
	sampler := s.sampler
	touched := make([]int32, 0, len(s.touched))
	for pid := range s.touched {
		touched = append(touched, pid)
	}
	s.mu.Unlock()

	if run != nil {
		run.Cancel()
		select {
		case <-run.Done():
		case <-ctx.Done():
		}
	}
	if sampler != nil {
		sampler.Stop()
	}
	s.cancel()

	s.chMu.Lock()
	pids := make([]int32, 0, len(s.channels))
	for pid := range s.channels {
		pids = append(pids, pid)
	}
	s.chMu.Unlock()
	for _, pid := range pids {
		s.dropChannel(pid)
	}

	for _, pid := range touched {
		s.removeArtifacts(ctx, pid)
	}
	return nil
}

// removeArtifacts unlinks the target-side artifacts of pid and, unless
// KeepLocal is set, the fetched local copies.
func (s *Session) removeArtifacts(ctx context.Context, pid int32) {
	image := s.opts.Artifacts.CallGraph(pid)
	local := filepath.Join(s.opts.LocalDir, filepath.Base(image))
	for _, path := range s.opts.Artifacts.All(pid) {
		if s.opts.KeepLocal && path == local {
			continue
		}
		if err := s.opts.FS.Remove(ctx, path); err != nil {
			s.log.Debug("removing %s: %v", path, err)
		}
	}
	if s.opts.KeepLocal || local == image {
		return
	}
	if err := (remote.LocalFS{}).Remove(ctx, local); err != nil {
		s.log.Debug("removing %s: %v", local, err)
	}
}
