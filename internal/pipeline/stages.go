package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	pserrors "github.com/rileyhilliard/pyscope/internal/errors"
	"github.com/rileyhilliard/pyscope/internal/remote"
	"github.com/sethvargo/go-retry"
)

// Stages returns the inspection stages in run order.
func Stages() []Stage {
	return []Stage{
		{Name: StageConnect, Start: 0.1, End: 0.2, Label: "Analyzing process", Fatal: true, Run: connect},
		{Name: StageSearchPaths, Start: 0.2, End: 0.25, Label: "Injecting python paths", Run: injectSearchPaths},
		{Name: StageStacks, Start: 0.3, End: 0.4, Label: "Dumping stacks", Run: dumpStacks},
		{Name: StageCallGraph, Start: 0.45, End: 0.6, Label: "Tracing call stack", Run: captureCallGraph},
		{Name: StageHeap, Start: 0.65, End: 0.85, Label: "Dumping all objects", Run: dumpHeap},
		{Name: StageShell, Start: 0.9, End: 1.0, Label: "Determining Python version", Run: checkShell},
	}
}

func connect(ctx context.Context, st *state, report Reporter) error {
	if st.env.Connect == nil {
		return pserrors.New(pserrors.ErrChannel, "No channel configured for this target", "")
	}
	script, marker := st.env.Dialect.Ping()

	backoff := retry.NewExponential(st.cfg.ConnectBackoff)
	backoff = retry.WithMaxRetries(st.cfg.ConnectRetries, backoff)

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		ch, err := st.env.Connect(ctx)
		if err != nil {
			if pserrors.IsCode(err, pserrors.ErrConfig) {
				return err
			}
			st.log.Debug("connect attempt %d to pid %d failed: %v", attempt, st.env.PID, err)
			return retry.RetryableError(err)
		}
		report(1, "Injecting reverse connection")
		out, err := ch.Send(ctx, script)
		if err != nil {
			st.log.Debug("ping attempt %d to pid %d failed: %v", attempt, st.env.PID, err)
			return retry.RetryableError(err)
		}
		if !strings.Contains(out, marker) {
			return retry.RetryableError(fmt.Errorf("unexpected ping reply %q", strings.TrimSpace(out)))
		}
		st.ch = ch
		return nil
	})
	if err != nil {
		return pserrors.WrapWithCode(err, pserrors.ErrChannel,
			fmt.Sprintf("Couldn't attach to process %d after %d attempts", st.env.PID, attempt),
			"Check that the process is a Python interpreter and that you may ptrace it")
	}
	return nil
}

func injectSearchPaths(ctx context.Context, st *state, _ Reporter) error {
	var binDirs []string
	for _, tool := range st.cfg.SearchTools {
		p, err := remote.LookPath(ctx, st.env.Runner, tool)
		if err != nil {
			st.log.Debug("%s not found: %v", tool, err)
			continue
		}
		binDirs = appendUnique(binDirs, path.Dir(p))
	}
	libDirs, err := remote.SitePackages(ctx, st.env.Runner, st.cfg.Interpreter)
	if err != nil {
		st.log.Debug("site-packages of %s: %v", st.cfg.Interpreter, err)
	}

	if _, err := st.ch.Send(ctx, st.env.Dialect.ExtendSearchPaths(binDirs, libDirs)); err != nil {
		return soft("extending search paths", err)
	}
	return nil
}

func dumpStacks(ctx context.Context, st *state, _ Reporter) error {
	out, err := st.ch.Send(ctx, st.env.Dialect.DumpStacks())
	if err != nil {
		return soft("dumping stacks", err)
	}
	if strings.TrimSpace(out) == "" {
		return soft("stack dump was empty", nil)
	}
	st.report.Stacks = out
	return nil
}

func captureCallGraph(ctx context.Context, st *state, report Reporter) error {
	sample := st.cfg.CallGraphSample
	report(0, fmt.Sprintf("Tracing call stack for %s", sample))

	tool, err := remote.LookPath(ctx, st.env.Runner, st.cfg.GraphTool)
	if err != nil {
		return soft("graph tool unavailable", err)
	}

	image := st.env.Artifacts.CallGraph(st.env.PID)
	if _, err := st.ch.Send(ctx, st.env.Dialect.StartCallGraph(tool, image)); err != nil {
		return soft("starting call graph", err)
	}
	report(0.5, "")

	timer := time.NewTimer(sample)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
	}

	report(1, "Generating call stack graph")
	if _, err := st.ch.Send(ctx, st.env.Dialect.StopCallGraph()); err != nil {
		return soft("stopping call graph", err)
	}

	local := filepath.Join(st.env.LocalDir, filepath.Base(image))
	if st.env.LocalDir == "" {
		local = image
	}
	if err := st.env.FS.Fetch(ctx, image, local); err != nil {
		return soft("fetching call graph", err)
	}
	st.report.CallGraph = local
	return nil
}

func dumpHeap(ctx context.Context, st *state, report Reporter) error {
	raw := st.env.Artifacts.HeapRaw(st.env.PID)
	final := st.env.Artifacts.HeapFinal(st.env.PID)

	out, err := st.ch.Send(ctx, st.env.Dialect.DumpHeap(raw, final))
	if err != nil {
		return soft("starting heap dump", err)
	}
	if st.env.Dialect.HeapExporterMissing(out) {
		st.log.Error("heap exporter missing in pid %d: %s", st.env.PID, strings.TrimSpace(out))
		return soft("heap exporter not installed in target", nil)
	}
	report(0.25, "")

	report(0.5, "Loading object dump")
	err = WaitFor(ctx, st.cfg.HeapPollInterval, st.cfg.HeapTimeout, heapDumpReady(st.env.FS, raw, final))
	if errors.Is(err, ErrStageTimeout) {
		st.log.Info("heap dump of pid %d not ready after %s, giving up", st.env.PID, st.cfg.HeapTimeout)
		return soft("waiting for heap dump", err)
	}
	if err != nil {
		return soft("waiting for heap dump", err)
	}

	data, err := st.env.FS.ReadFile(ctx, final)
	if err != nil {
		return soft("reading heap dump", err)
	}
	report(0.75, "")

	summary, err := SummarizeHeap(bytes.NewReader(data))
	if err != nil {
		return soft("parsing heap dump", err)
	}
	if summary.Skipped > 0 {
		st.log.Debug("skipped %d malformed heap records", summary.Skipped)
	}
	st.report.Heap = summary
	report(0.9, "")

	if err := st.env.FS.Remove(ctx, final); err != nil {
		st.log.Warn("removing %s: %v", final, err)
	}
	report(1, "")
	return nil
}

func checkShell(ctx context.Context, st *state, _ Reporter) error {
	out, err := st.ch.Send(ctx, st.env.Dialect.Version())
	if err != nil {
		return soft("probing interpreter version", err)
	}
	st.report.Version = strings.TrimSpace(out)
	return nil
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
