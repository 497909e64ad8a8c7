package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rileyhilliard/pyscope/internal/logger"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
)

// DefaultInterval is the sampling period and the cpu measurement window.
const DefaultInterval = time.Second

// Sub-poll names, used in logs and failure counters.
const (
	PollCPU         = "cpu"
	PollMemory      = "memory"
	PollIO          = "io"
	PollThreads     = "threads"
	PollConnections = "connections"
	PollFiles       = "files"
)

// ThreadSeries is the published history of one thread.
type ThreadSeries struct {
	ID     int32
	Color  string
	Values []float64
}

// Frame is an immutable copy of the sampler state after one tick.
// Consumers may keep and read it without synchronization.
type Frame struct {
	Tick     uint64
	PID      int32
	State    ConnState
	Status   string
	Snapshot Snapshot
	Series   map[Channel][]float64
	Threads  []ThreadSeries
	Failures map[string]int
}

// clone returns a deep copy so each consumer owns its slices and maps.
func (f Frame) clone() Frame {
	out := f
	out.Snapshot = f.Snapshot.clone()
	if f.Series != nil {
		out.Series = make(map[Channel][]float64, len(f.Series))
		for ch, v := range f.Series {
			out.Series[ch] = append([]float64(nil), v...)
		}
	}
	if f.Threads != nil {
		out.Threads = make([]ThreadSeries, len(f.Threads))
		for i, t := range f.Threads {
			t.Values = append([]float64(nil), t.Values...)
			out.Threads[i] = t
		}
	}
	if f.Failures != nil {
		out.Failures = make(map[string]int, len(f.Failures))
		for k, v := range f.Failures {
			out.Failures[k] = v
		}
	}
	return out
}

// Options configures a Sampler.
type Options struct {
	Interval time.Duration
	Logger   logger.Logger
	// Now overrides the tick clock in tests.
	Now func() time.Time
}

// Sampler polls one target process on a fixed interval and keeps its
// rolling metric windows.
type Sampler struct {
	inspector Inspector
	interval  time.Duration
	log       logger.Logger
	now       func() time.Time

	mu          sync.RWMutex
	pid         int32
	gen         uint64
	state       ConnState
	status      string
	tick        uint64
	store       *Store
	threads     *ThreadTracker
	snapshot    Snapshot
	prevIO      IOCounters
	haveIO      bool
	failures    map[string]int
	frame       Frame
	cycleCancel context.CancelFunc

	wake chan struct{}

	subsMu sync.Mutex
	subs   map[chan Frame]struct{}

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSampler creates a sampler with no target.
func NewSampler(inspector Inspector, opts Options) *Sampler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Sampler{
		inspector: inspector,
		interval:  opts.Interval,
		log:       logger.OrDefault(opts.Logger),
		now:       opts.Now,
		state:     StateUnconnected,
		store:     NewStore(),
		threads:   NewThreadTracker(),
		failures:  make(map[string]int),
		wake:      make(chan struct{}, 1),
		subs:      make(map[chan Frame]struct{}),
	}
	s.frame = s.buildFrameLocked()
	return s
}

// Interval returns the sampling period.
func (s *Sampler) Interval() time.Duration {
	return s.interval
}

// Retarget points the sampler at pid. All rolling state is dropped before
// the first sample of the new target, and any in-flight cycle for the old
// target is cancelled and its results discarded.
func (s *Sampler) Retarget(pid int32) {
	s.mu.Lock()
	s.pid = pid
	s.gen++
	s.state = StateConnected
	s.status = ""
	s.tick = 0
	s.store.ResetAll()
	s.threads.Retarget()
	s.snapshot = Snapshot{}
	s.prevIO = IOCounters{}
	s.haveIO = false
	s.failures = make(map[string]int)
	if s.cycleCancel != nil {
		s.cycleCancel()
		s.cycleCancel = nil
	}
	s.frame = s.buildFrameLocked()
	s.mu.Unlock()

	s.log.Debug("retargeted to pid %d", pid)

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// PID returns the current target.
func (s *Sampler) PID() int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pid
}

// State returns the connection state of the current target.
func (s *Sampler) State() ConnState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Frame returns the latest published frame.
func (s *Sampler) Frame() Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame.clone()
}

// Subscribe returns a channel receiving each new frame. Slow consumers
// only see the newest frame. Call the returned func to unsubscribe.
func (s *Sampler) Subscribe() (<-chan Frame, func()) {
	ch := make(chan Frame, 1)
	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, ch)
			s.subsMu.Unlock()
		})
	}
}

// Start launches the polling goroutine. It is a no-op when already running.
func (s *Sampler) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.done != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

// Stop terminates the polling goroutine and waits for it to exit.
func (s *Sampler) Stop() {
	s.runMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Sampler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		s.mu.RLock()
		idle := s.pid == 0 || s.state == StateLost
		s.mu.RUnlock()

		if idle {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
				continue
			}
		}

		start := time.Now()
		s.SampleOnce(ctx)

		// Keep the cadence when the cpu poll returned early.
		if rest := s.interval - time.Since(start); rest > 0 {
			t := time.NewTimer(rest)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-s.wake:
				t.Stop()
			case <-t.C:
			}
		}
		if ctx.Err() != nil {
			return
		}
	}
}

type pollResults struct {
	cpuPct   float64
	cpuTimes CPUTimes
	memory   MemoryInfo
	io       IOCounters
	threads  []ThreadTimes
	conns    []Connection
	files    []string
	errs     map[string]error
}

// SampleOnce runs one polling cycle against the current target and
// publishes a frame. It does nothing when there is no live target.
func (s *Sampler) SampleOnce(ctx context.Context) {
	s.mu.Lock()
	pid, gen := s.pid, s.gen
	if pid == 0 || s.state == StateLost {
		s.mu.Unlock()
		return
	}
	cctx, cancel := context.WithCancel(ctx)
	s.cycleCancel = cancel
	s.mu.Unlock()
	defer cancel()

	at := s.now()
	res := s.poll(cctx, pid)
	s.commit(pid, gen, at, res)
}

// poll runs the six sub-polls concurrently. A failing or panicking sub-poll
// only loses its own reading.
func (s *Sampler) poll(ctx context.Context, pid int32) *pollResults {
	res := &pollResults{errs: make(map[string]error)}
	var mu sync.Mutex

	run := func(name string, fn func() error) func() {
		return func() {
			var pc panics.Catcher
			var err error
			pc.Try(func() { err = fn() })
			if r := pc.Recovered(); r != nil {
				err = r.AsError()
			}
			mu.Lock()
			res.errs[name] = err
			mu.Unlock()
		}
	}

	p := pool.New()
	p.Go(run(PollCPU, func() error {
		pct, err := s.inspector.CPUPercent(ctx, pid, s.interval)
		if err != nil {
			return err
		}
		times, err := s.inspector.CPUTimes(ctx, pid)
		if err != nil {
			return err
		}
		res.cpuPct, res.cpuTimes = pct, times
		return nil
	}))
	p.Go(run(PollMemory, func() (err error) {
		res.memory, err = s.inspector.Memory(ctx, pid)
		return err
	}))
	p.Go(run(PollIO, func() (err error) {
		res.io, err = s.inspector.IOCounters(ctx, pid)
		return err
	}))
	p.Go(run(PollThreads, func() (err error) {
		res.threads, err = s.inspector.Threads(ctx, pid)
		return err
	}))
	p.Go(run(PollConnections, func() (err error) {
		res.conns, err = s.inspector.Connections(ctx, pid)
		return err
	}))
	p.Go(run(PollFiles, func() (err error) {
		res.files, err = s.inspector.OpenFiles(ctx, pid)
		return err
	}))
	p.Wait()

	return res
}

func (s *Sampler) commit(pid int32, gen uint64, at time.Time, res *pollResults) {
	s.mu.Lock()

	if s.gen != gen {
		s.mu.Unlock()
		s.log.Debug("discarding cycle for pid %d after retarget", pid)
		return
	}
	s.cycleCancel = nil

	for _, name := range []string{PollCPU, PollMemory, PollIO, PollThreads, PollConnections, PollFiles} {
		if errors.Is(res.errs[name], ErrNoSuchProcess) {
			s.state = StateLost
			s.status = TerminatedStatus
			s.frame = s.buildFrameLocked()
			frame := s.frame
			s.mu.Unlock()
			s.log.Info("pid %d terminated", pid)
			s.publish(frame)
			return
		}
	}

	ok := func(name string) bool {
		err := res.errs[name]
		if err != nil {
			s.failures[name]++
			s.log.Debug("%s poll for pid %d failed: %v", name, pid, err)
			return false
		}
		return true
	}

	if ok(PollCPU) {
		s.snapshot.CPUPercent = res.cpuPct
		s.snapshot.CPUTimes = res.cpuTimes
		s.store.Append(ChannelCPU, res.cpuPct)
	}
	if ok(PollMemory) {
		s.snapshot.Memory = res.memory
		s.store.Append(ChannelMemory, float64(res.memory.RSS))
	}
	if ok(PollIO) {
		// Diff against the counters captured on the previous tick.
		var readDelta, writeDelta float64
		if s.haveIO {
			readDelta = counterDelta(s.prevIO.ReadBytes, res.io.ReadBytes)
			writeDelta = counterDelta(s.prevIO.WriteBytes, res.io.WriteBytes)
		}
		s.prevIO = res.io
		s.haveIO = true
		s.snapshot.IO = res.io
		s.store.Append(ChannelRead, readDelta)
		s.store.Append(ChannelWrite, writeDelta)
	}
	if ok(PollThreads) {
		for _, t := range res.threads {
			s.threads.Observe(t.ID, t.User, t.System)
		}
		s.snapshot.Threads = len(res.threads)
	}
	if ok(PollConnections) {
		s.snapshot.Connections = res.conns
	}
	if ok(PollFiles) {
		s.snapshot.OpenFiles = res.files
	}

	s.tick++
	s.snapshot.Time = at
	s.frame = s.buildFrameLocked()
	frame := s.frame
	s.mu.Unlock()

	s.publish(frame)
}

// counterDelta returns cur-prev, or 0 when the counter went backwards.
func counterDelta(prev, cur uint64) float64 {
	if cur < prev {
		return 0
	}
	return float64(cur - prev)
}

func (s *Sampler) buildFrameLocked() Frame {
	f := Frame{
		Tick:     s.tick,
		PID:      s.pid,
		State:    s.state,
		Status:   s.status,
		Snapshot: s.snapshot.clone(),
		Series:   s.store.Copy(),
		Failures: make(map[string]int, len(s.failures)),
	}
	for k, v := range s.failures {
		f.Failures[k] = v
	}
	for _, id := range s.threads.IDs() {
		m, _ := s.threads.Get(id)
		f.Threads = append(f.Threads, ThreadSeries{ID: m.ID, Color: m.Color, Values: m.Series.Values()})
	}
	return f
}

func (s *Sampler) publish(f Frame) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for ch := range s.subs {
		f := f.clone()
		select {
		case ch <- f:
		default:
			// Drop the stale frame and keep the newest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- f:
			default:
			}
		}
	}
}
