package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rileyhilliard/pyscope/internal/logger"
	"github.com/rileyhilliard/pyscope/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPID = 42

var testArtifacts = remote.Artifacts{Dir: "/tmp/pyscope-test"}

const heapDump = `{"address": 1, "type": "str", "size": 40}
{"address": 2, "type": "str", "size": 60}
{"address": 3, "type": "dict", "size": 280}
`

// memFS is an in-memory artifact filesystem.
type memFS struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemFS() *memFS {
	return &memFS{files: make(map[string][]byte)}
}

func (f *memFS) put(path string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = data
}

func (f *memFS) has(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[path]
	return ok
}

func (f *memFS) Exists(_ context.Context, path string) (bool, error) {
	return f.has(path), nil
}

func (f *memFS) ReadFile(_ context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func (f *memFS) Remove(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, path)
	return nil
}

func (f *memFS) Fetch(_ context.Context, path, dst string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[path]
	if !ok {
		return os.ErrNotExist
	}
	f.files[dst] = data
	return nil
}

// fakeChannel answers the python dialect's scripts like a healthy target.
type fakeChannel struct {
	mu      sync.Mutex
	scripts []string
	fs      *memFS
	// override replaces the answer for scripts containing its key.
	override map[string]func(ctx context.Context) (string, error)
}

func newFakeChannel(fs *memFS) *fakeChannel {
	return &fakeChannel{fs: fs, override: make(map[string]func(context.Context) (string, error))}
}

func (c *fakeChannel) Send(ctx context.Context, script string) (string, error) {
	c.mu.Lock()
	c.scripts = append(c.scripts, script)
	c.mu.Unlock()

	for key, fn := range c.override {
		if strings.Contains(script, key) {
			return fn(ctx)
		}
	}
	switch {
	case strings.Contains(script, "pyscope-ok"):
		return "pyscope-ok\n", nil
	case strings.Contains(script, "_current_frames"):
		return "Thread 0x1\n  File \"app.py\", line 3, in main\n", nil
	case strings.Contains(script, "dump_all_objects"):
		c.fs.put(testArtifacts.HeapFinal(testPID), []byte(heapDump))
		return "", nil
	case strings.Contains(script, "_pycallgraph.done()"):
		c.fs.put(testArtifacts.CallGraph(testPID), []byte("png"))
		return "", nil
	case strings.Contains(script, "sys.version"):
		return "Python 3.11.4\n", nil
	}
	return "", nil
}

func (c *fakeChannel) Close() error { return nil }

func (c *fakeChannel) sent(substr string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.scripts {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

// toolRunner resolves a fixed set of tools and one site-packages dir.
type toolRunner struct {
	tools map[string]string
}

func (r *toolRunner) Run(_ context.Context, cmd string, _ io.Reader) ([]byte, []byte, int, error) {
	if strings.HasPrefix(cmd, "command -v ") {
		name := strings.Trim(strings.TrimPrefix(cmd, "command -v "), "'")
		if p, ok := r.tools[name]; ok {
			return []byte(p + "\n"), nil, 0, nil
		}
		return nil, nil, 1, nil
	}
	if strings.Contains(cmd, "getsitepackages") {
		return []byte("/usr/lib/python3/site-packages\n"), nil, 0, nil
	}
	return nil, []byte("unexpected command"), 127, nil
}

type fixture struct {
	fs  *memFS
	ch  *fakeChannel
	log *logger.BufferLogger
	env Env
	cfg Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fs := newMemFS()
	ch := newFakeChannel(fs)
	log := logger.NewBufferLogger()
	return &fixture{
		fs:  fs,
		ch:  ch,
		log: log,
		env: Env{
			PID:       testPID,
			Connect:   func(context.Context) (remote.Channel, error) { return ch, nil },
			Runner:    &toolRunner{tools: map[string]string{"dot": "/usr/bin/dot"}},
			FS:        fs,
			Artifacts: testArtifacts,
			LocalDir:  "/local",
			Logger:    log,
		},
		cfg: Config{
			CallGraphSample:  10 * time.Millisecond,
			HeapPollInterval: 5 * time.Millisecond,
			HeapTimeout:      time.Second,
			ConnectBackoff:   time.Millisecond,
		},
	}
}

func (f *fixture) run(t *testing.T, ctx context.Context) ([]Event, *Report, error) {
	t.Helper()
	r := New(f.env, f.cfg).Start(ctx)
	var events []Event
	for ev := range r.Events() {
		events = append(events, ev)
	}
	report, err := r.Wait()
	return events, report, err
}

func requireMonotonic(t *testing.T, events []Event) {
	t.Helper()
	require.NotEmpty(t, events)
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].Fraction, events[i-1].Fraction,
			"progress went backwards at event %d (%s %q)", i, events[i].Stage, events[i].Label)
	}
}

func statuses(r *Report) map[string]Status {
	out := make(map[string]Status)
	for _, s := range r.Stages {
		out[s.Name] = s.Status
	}
	return out
}

func TestRun_HealthyTarget(t *testing.T) {
	f := newFixture(t)

	events, report, err := f.run(t, context.Background())
	require.NoError(t, err)

	requireMonotonic(t, events)
	last := events[len(events)-1]
	assert.Equal(t, 1.0, last.Fraction)
	assert.Equal(t, StatusDone, last.Status)

	for name, status := range statuses(report) {
		assert.Equal(t, StatusDone, status, name)
	}
	assert.False(t, report.Aborted)
	assert.Equal(t, int32(testPID), report.PID)
	assert.Contains(t, report.Stacks, "Thread 0x1")
	assert.Equal(t, "Python 3.11.4", report.Version)
	assert.Equal(t, "/local/42-callgraph.png", report.CallGraph)
	assert.True(t, f.fs.has("/local/42-callgraph.png"))

	require.NotNil(t, report.Heap)
	assert.Equal(t, 3, report.Heap.Objects)
	assert.Equal(t, "dict", report.Heap.Rows[0].Kind)
	assert.False(t, f.fs.has(testArtifacts.HeapFinal(testPID)), "heap artifact should be removed")

	for _, ev := range events {
		assert.Equal(t, events[0].RunID, ev.RunID)
	}
}

func TestRun_GapLabels(t *testing.T) {
	f := newFixture(t)

	events, _, err := f.run(t, context.Background())
	require.NoError(t, err)

	labels := make(map[string]float64)
	for _, ev := range events {
		if ev.Label != "" {
			if _, seen := labels[ev.Label]; !seen {
				labels[ev.Label] = ev.Fraction
			}
		}
	}
	assert.InDelta(t, 0.1, labels["Analyzing process"], 1e-9)
	assert.InDelta(t, 0.2, labels["Injecting reverse connection"], 1e-9)
	assert.InDelta(t, 0.2, labels["Injecting python paths"], 1e-9)
	assert.InDelta(t, 0.3, labels["Dumping stacks"], 1e-9)
	assert.InDelta(t, 0.65, labels["Dumping all objects"], 1e-9)
	assert.InDelta(t, 0.75, labels["Loading object dump"], 1e-9)
	assert.InDelta(t, 0.9, labels["Determining Python version"], 1e-9)
	assert.Contains(t, labels, "Generating call stack graph")
}

func TestRun_SearchPaths(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.run(t, context.Background())
	require.NoError(t, err)

	assert.True(t, f.ch.sent(`["/usr/bin"]`), "dot directory should be prepended to PATH")
	assert.True(t, f.ch.sent(`sys.path.extend(["/usr/lib/python3/site-packages"])`))
}

func TestRun_ConnectFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.cfg.ConnectRetries = 2
	attempts := 0
	f.env.Connect = func(context.Context) (remote.Channel, error) {
		attempts++
		return nil, errors.New("ptrace: Operation not permitted")
	}

	events, report, err := f.run(t, context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Operation not permitted")
	assert.Equal(t, 3, attempts, "one try plus two retries")

	requireMonotonic(t, events)
	last := events[len(events)-1]
	assert.Equal(t, 1.0, last.Fraction, "aborted runs still finish at 1.0")
	assert.Equal(t, StatusAborted, last.Status)

	assert.True(t, report.Aborted)
	for name, status := range statuses(report) {
		assert.Equal(t, StatusAborted, status, name)
	}
	assert.Empty(t, report.Stacks)
}

func TestRun_ConnectPingMismatchRetries(t *testing.T) {
	f := newFixture(t)
	f.cfg.ConnectRetries = 1
	pings := 0
	f.ch.override["pyscope-ok"] = func(context.Context) (string, error) {
		pings++
		if pings == 1 {
			return "Traceback: injection failed", nil
		}
		return "pyscope-ok", nil
	}

	_, report, err := f.run(t, context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, pings)
	assert.Equal(t, StatusDone, statuses(report)[StageConnect])
}

func TestRun_SoftFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
		stage string
		check func(t *testing.T, f *fixture, r *Report)
	}{
		{
			name: "empty stack dump",
			setup: func(f *fixture) {
				f.ch.override["_current_frames"] = func(context.Context) (string, error) { return "  \n", nil }
			},
			stage: StageStacks,
		},
		{
			name: "graph tool missing",
			setup: func(f *fixture) {
				f.env.Runner = &toolRunner{tools: map[string]string{}}
			},
			stage: StageCallGraph,
			check: func(t *testing.T, f *fixture, r *Report) {
				assert.Empty(t, r.CallGraph)
				assert.False(t, f.ch.sent("PyCallGraph("), "tracing should not start without the tool")
			},
		},
		{
			name: "heap exporter missing",
			setup: func(f *fixture) {
				f.ch.override["dump_all_objects"] = func(context.Context) (string, error) {
					return "ImportError: No module named meliae\n", nil
				}
			},
			stage: StageHeap,
			check: func(t *testing.T, f *fixture, r *Report) {
				assert.Nil(t, r.Heap)
				assert.True(t, f.log.Contains("error", "No module named meliae"))
			},
		},
		{
			name: "version check fails",
			setup: func(f *fixture) {
				f.ch.override["sys.version"] = func(context.Context) (string, error) {
					return "", errors.New("target hung")
				}
			},
			stage: StageShell,
		},
		{
			name: "dialect panics",
			setup: func(f *fixture) {
				f.env.Dialect = panickyDialect{}
			},
			stage: StageStacks,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)

			events, report, err := f.run(t, context.Background())
			require.NoError(t, err)
			requireMonotonic(t, events)
			assert.Equal(t, 1.0, events[len(events)-1].Fraction)

			for name, status := range statuses(report) {
				if name == tt.stage {
					assert.Equal(t, StatusSoftFailed, status, name)
				} else {
					assert.Equal(t, StatusDone, status, name)
				}
			}
			res, ok := report.Stage(tt.stage)
			require.True(t, ok)
			assert.NotEmpty(t, res.Error)
			if tt.check != nil {
				tt.check(t, f, report)
			}
		})
	}
}

type panickyDialect struct {
	remote.PythonDialect
}

func (panickyDialect) DumpStacks() string {
	panic("boom")
}

func TestRun_HeapTimeout(t *testing.T) {
	f := newFixture(t)
	f.cfg.HeapTimeout = 30 * time.Millisecond
	f.ch.override["dump_all_objects"] = func(context.Context) (string, error) {
		f.fs.put(testArtifacts.HeapRaw(testPID), []byte("{}"))
		return "", nil
	}

	_, report, err := f.run(t, context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusSoftFailed, statuses(report)[StageHeap])
	assert.Equal(t, StatusDone, statuses(report)[StageShell])
	assert.True(t, f.log.Contains("info", "not ready"))
}

func TestRun_HeapDumpNeverStarted(t *testing.T) {
	f := newFixture(t)
	f.ch.override["dump_all_objects"] = func(context.Context) (string, error) { return "", nil }

	_, report, err := f.run(t, context.Background())
	require.NoError(t, err)

	res, _ := report.Stage(StageHeap)
	assert.Equal(t, StatusSoftFailed, res.Status)
	assert.Contains(t, res.Error, "never started")
}

func TestRun_Cancel(t *testing.T) {
	f := newFixture(t)
	f.cfg.CallGraphSample = time.Minute
	started := make(chan struct{})
	f.ch.override["PyCallGraph("] = func(context.Context) (string, error) {
		close(started)
		return "", nil
	}

	r := New(f.env, f.cfg).Start(context.Background())
	var events []Event
	collected := make(chan struct{})
	go func() {
		for ev := range r.Events() {
			events = append(events, ev)
		}
		close(collected)
	}()

	<-started
	r.Cancel()

	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after Cancel")
	}
	<-collected

	report, err := r.Wait()
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, report.Aborted)

	st := statuses(report)
	assert.Equal(t, StatusDone, st[StageStacks])
	assert.Equal(t, StatusAborted, st[StageCallGraph])
	assert.Equal(t, StatusAborted, st[StageHeap])
	assert.False(t, f.ch.sent("dump_all_objects"))
	requireMonotonic(t, events)
}

func TestRun_Connectless(t *testing.T) {
	f := newFixture(t)
	f.env.Connect = nil

	_, report, err := f.run(t, context.Background())
	require.Error(t, err)
	assert.True(t, report.Aborted)
}

func TestStage_Section(t *testing.T) {
	s := Stage{Start: 0.65, End: 0.85}
	assert.InDelta(t, 0.65, s.section(0), 1e-9)
	assert.InDelta(t, 0.75, s.section(0.5), 1e-9)
	assert.InDelta(t, 0.85, s.section(1), 1e-9)
	assert.InDelta(t, 0.85, s.section(7), 1e-9)
	assert.InDelta(t, 0.65, s.section(-1), 1e-9)
}

func TestStages_Ranges(t *testing.T) {
	stages := Stages()
	require.Len(t, stages, 6)
	for i, s := range stages {
		assert.Less(t, s.Start, s.End, s.Name)
		if i > 0 {
			assert.GreaterOrEqual(t, s.Start, stages[i-1].End, s.Name)
		}
		assert.Equal(t, s.Name == StageConnect, s.Fatal, s.Name)
	}
}

func TestSoftFailure(t *testing.T) {
	cause := errors.New("no such file")
	err := soft("reading heap dump", cause)

	assert.ErrorIs(t, err, ErrSoftFailure)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "reading heap dump: no such file", err.Error())
	assert.Equal(t, "stack dump was empty", soft("stack dump was empty", nil).Error())
}
