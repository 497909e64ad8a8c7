// Package pipeline runs the staged inspection of one target process:
// connect, extend search paths, dump stacks, capture a call graph, summarize
// the heap and check the interpreter version. Progress is reported as a
// stream of events whose fraction never goes backwards and ends at 1.0.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rileyhilliard/pyscope/internal/logger"
	"github.com/rileyhilliard/pyscope/internal/remote"
	"github.com/sourcegraph/conc/panics"
)

// Defaults for Config fields left at zero.
const (
	DefaultCallGraphSample  = time.Second
	DefaultHeapPollInterval = 3 * time.Second
	DefaultHeapTimeout      = 10 * time.Minute
	DefaultGraphTool        = "dot"
	DefaultInterpreter      = "python3"
	DefaultConnectRetries   = 3
	DefaultConnectBackoff   = 200 * time.Millisecond
)

// eventBuffer holds every event of a normal run so a slow reader never
// stalls the stages.
const eventBuffer = 128

// Config tunes the stages.
type Config struct {
	CallGraphSample  time.Duration
	HeapPollInterval time.Duration
	HeapTimeout      time.Duration
	GraphTool        string
	Interpreter      string
	ConnectRetries   uint64
	ConnectBackoff   time.Duration
	// SearchTools are resolved on the target host and their directories
	// prepended to the target's PATH.
	SearchTools []string
}

func (c Config) withDefaults() Config {
	if c.CallGraphSample <= 0 {
		c.CallGraphSample = DefaultCallGraphSample
	}
	if c.HeapPollInterval <= 0 {
		c.HeapPollInterval = DefaultHeapPollInterval
	}
	if c.HeapTimeout <= 0 {
		c.HeapTimeout = DefaultHeapTimeout
	}
	if c.GraphTool == "" {
		c.GraphTool = DefaultGraphTool
	}
	if c.Interpreter == "" {
		c.Interpreter = DefaultInterpreter
	}
	if c.ConnectRetries == 0 {
		c.ConnectRetries = DefaultConnectRetries
	}
	if c.ConnectBackoff <= 0 {
		c.ConnectBackoff = DefaultConnectBackoff
	}
	if c.SearchTools == nil {
		c.SearchTools = []string{"dot", "gdb"}
	}
	return c
}

// Env is everything a run needs to reach its target.
type Env struct {
	PID int32
	// Connect returns the channel for PID, reusing a cached one when possible.
	Connect   func(ctx context.Context) (remote.Channel, error)
	Dialect   remote.Dialect
	Runner    remote.Runner
	FS        remote.FS
	Artifacts remote.Artifacts
	// LocalDir receives fetched artifacts such as the call graph image.
	LocalDir string
	Logger   logger.Logger
}

// Event is one progress update.
type Event struct {
	RunID    uuid.UUID
	Stage    string
	Fraction float64
	Label    string
	Status   Status
}

// StageResult is the outcome of one stage in a Report.
type StageResult struct {
	Name   string  `json:"name" yaml:"name"`
	Start  float64 `json:"start" yaml:"start"`
	End    float64 `json:"end" yaml:"end"`
	Status Status  `json:"status" yaml:"status"`
	Error  string  `json:"error,omitempty" yaml:"error,omitempty"`
}

// Report collects the payloads of a finished run.
type Report struct {
	RunID     uuid.UUID     `json:"run_id" yaml:"run_id"`
	PID       int32         `json:"pid" yaml:"pid"`
	Stages    []StageResult `json:"stages" yaml:"stages"`
	Stacks    string        `json:"stacks,omitempty" yaml:"stacks,omitempty"`
	CallGraph string        `json:"call_graph,omitempty" yaml:"call_graph,omitempty"`
	Heap      *HeapSummary  `json:"heap,omitempty" yaml:"heap,omitempty"`
	Version   string        `json:"version,omitempty" yaml:"version,omitempty"`
	Aborted   bool          `json:"aborted" yaml:"aborted"`
}

// Stage returns the result for name, or false if no such stage ran.
func (r *Report) Stage(name string) (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageResult{}, false
}

// state is shared by the stages of one run. Stages run sequentially.
type state struct {
	env    Env
	cfg    Config
	log    logger.Logger
	ch     remote.Channel
	report *Report
}

// Pipeline starts runs against one target.
type Pipeline struct {
	env    Env
	cfg    Config
	stages []Stage
}

// New creates a pipeline for env.
func New(env Env, cfg Config) *Pipeline {
	if env.Logger == nil {
		env.Logger = logger.NewEnvLogger("[pipeline]")
	}
	if env.Dialect == nil {
		env.Dialect = remote.PythonDialect{}
	}
	if env.Runner == nil {
		env.Runner = remote.NewLocalRunner()
	}
	if env.FS == nil {
		env.FS = remote.LocalFS{}
	}
	return &Pipeline{env: env, cfg: cfg.withDefaults(), stages: Stages()}
}

// Run is one execution of the pipeline.
type Run struct {
	ID uuid.UUID

	events chan Event
	done   chan struct{}
	cancel context.CancelFunc
	log    logger.Logger

	mu       sync.Mutex
	progress float64
	report   *Report
	err      error
}

// Start launches a run on its own goroutine. Cancelling ctx or calling
// Cancel stops it at the next cancellation point.
func (p *Pipeline) Start(ctx context.Context) *Run {
	ctx, cancel := context.WithCancel(ctx)
	r := &Run{
		ID:     uuid.New(),
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
		cancel: cancel,
		log:    p.env.Logger,
	}
	r.report = &Report{RunID: r.ID, PID: p.env.PID}
	for _, s := range p.stages {
		r.report.Stages = append(r.report.Stages, StageResult{
			Name: s.Name, Start: s.Start, End: s.End, Status: StatusPending,
		})
	}

	st := &state{env: p.env, cfg: p.cfg, log: p.env.Logger, report: r.report}
	go r.run(ctx, p.stages, st)
	return r
}

// Events delivers progress updates and closes when the run ends.
func (r *Run) Events() <-chan Event {
	return r.events
}

// Done closes when the run ends.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Cancel stops the run.
func (r *Run) Cancel() {
	r.cancel()
}

// Wait blocks until the run ends. The report is returned even when the run
// was aborted or cancelled; the error says why.
func (r *Run) Wait() (*Report, error) {
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.report, r.err
}

func (r *Run) run(ctx context.Context, stages []Stage, st *state) {
	defer close(r.events)
	defer close(r.done)
	defer r.cancel()

	for i, stage := range stages {
		if err := ctx.Err(); err != nil {
			r.abortFrom(i, err)
			return
		}

		r.setStatus(i, StatusRunning, nil)
		r.emit(ctx, stage.Name, stage.Start, stage.Label, StatusRunning)
		report := func(fraction float64, label string) {
			r.emit(ctx, stage.Name, stage.section(fraction), label, StatusRunning)
		}

		err := runStage(ctx, stage, st, report)
		switch {
		case err == nil:
			r.setStatus(i, StatusDone, nil)
			r.emit(ctx, stage.Name, stage.section(1), "", StatusDone)
		case ctx.Err() != nil:
			r.log.Debug("run %s cancelled during %s", r.ID, stage.Name)
			r.abortFrom(i, ctx.Err())
			return
		case stage.Fatal:
			r.log.Error("%s failed, aborting run: %v", stage.Name, err)
			r.abortFrom(i, err)
			r.emit(ctx, stage.Name, 1, "Aborted", StatusAborted)
			return
		default:
			r.log.Warn("%s failed: %v", stage.Name, err)
			r.setStatus(i, StatusSoftFailed, err)
			r.emit(ctx, stage.Name, stage.section(1), "", StatusSoftFailed)
		}
	}

	r.emit(ctx, "", 1, "Done", StatusDone)
}

// runStage contains panics at the stage boundary.
func runStage(ctx context.Context, stage Stage, st *state, report Reporter) error {
	var err error
	var pc panics.Catcher
	pc.Try(func() { err = stage.Run(ctx, st, report) })
	if rec := pc.Recovered(); rec != nil {
		return fmt.Errorf("%s panicked: %w", stage.Name, rec.AsError())
	}
	return err
}

// abortFrom marks stage i and every later stage aborted.
func (r *Run) abortFrom(i int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Aborted = true
	r.err = err
	for j := i; j < len(r.report.Stages); j++ {
		r.report.Stages[j].Status = StatusAborted
	}
	if i < len(r.report.Stages) && err != nil {
		r.report.Stages[i].Error = err.Error()
	}
}

func (r *Run) setStatus(i int, status Status, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Stages[i].Status = status
	if err != nil {
		r.report.Stages[i].Error = err.Error()
	}
}

// emit sends an event, holding progress at its high-water mark.
func (r *Run) emit(ctx context.Context, stage string, fraction float64, label string, status Status) {
	r.mu.Lock()
	if fraction < r.progress {
		fraction = r.progress
	}
	if fraction > 1 {
		fraction = 1
	}
	r.progress = fraction
	r.mu.Unlock()

	ev := Event{RunID: r.ID, Stage: stage, Fraction: fraction, Label: label, Status: status}
	select {
	case r.events <- ev:
	case <-ctx.Done():
		// The final event of an aborted run still goes out if there is room.
		if status == StatusAborted {
			select {
			case r.events <- ev:
			default:
			}
		}
	}
}
