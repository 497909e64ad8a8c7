package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rileyhilliard/pyscope/internal/errors"
	"github.com/rileyhilliard/pyscope/internal/pipeline"
	"github.com/rileyhilliard/pyscope/internal/session"
	"github.com/rileyhilliard/pyscope/internal/telemetry"
	"github.com/rileyhilliard/pyscope/internal/ui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by --format.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

var (
	inspectSample time.Duration
	inspectFormat string
)

// InspectResult is everything inspect collected about one target.
type InspectResult struct {
	Details  telemetry.Details  `json:"details" yaml:"details"`
	Snapshot telemetry.Snapshot `json:"snapshot" yaml:"snapshot"`
	Report   *pipeline.Report   `json:"report" yaml:"report"`
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <pid>",
	Short: "Run a one-shot inspection of a Python process",
	Long: `Attach to a running Python process and run every inspection stage:
thread stacks, a sampled call graph and a heap summary by type.

Stage progress goes to stderr; the result goes to stdout.

Examples:
  pyscope inspect 4242
  pyscope inspect 4242 --sample 5s
  pyscope inspect 4242 --format json | jq .data.report.heap.rows`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(cmd.OutOrStdout(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().DurationVar(&inspectSample, "sample", 0, "how long to trace the call graph (default from config)")
	inspectCmd.Flags().StringVarP(&inspectFormat, "format", "f", FormatText, "output format: text, json or yaml")
}

func runInspect(out io.Writer, arg string) error {
	if err := validateFormat(inspectFormat); err != nil {
		return err
	}
	pid, err := parsePID(arg)
	if err != nil {
		return err
	}

	t, err := openTarget(func(o *session.Options) {
		o.KeepLocal = true
		if inspectSample > 0 {
			o.Pipeline.CallGraphSample = inspectSample
		}
	})
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
	// Ctrl-C cancels the run but still prints what was collected.
	go func() {
		select {
		case <-ctx.Done():
			run.Cancel()
		case <-run.Done():
		}
	}()

	if inspectFormat == FormatText {
		display := ui.NewStageDisplay(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())))
		for ev := range run.Events() {
			display.Handle(ev)
		}
		display.Close()
	} else {
		for range run.Events() {
		}
	}

	report, runErr := run.Wait()
	details, detailsErr := t.session.Details(ctx)
	if detailsErr != nil {
		details.PID = pid
	}
	result := InspectResult{
		Details:  details,
		Snapshot: t.session.Frame().Snapshot,
		Report:   report,
	}

	if err := writeResult(out, inspectFormat, result, runErr); err != nil {
		return err
	}
	if stderrors.Is(runErr, context.Canceled) {
		return errors.New(errors.ErrStage, "Inspection cancelled",
			"Stages that finished before the interrupt are shown above")
	}
	return runErr
}

func validateFormat(format string) error {
	switch format {
	case FormatText, FormatJSON, FormatYAML:
		return nil
	}
	return errors.New(errors.ErrConfig,
		fmt.Sprintf("Unknown output format '%s'", format),
		"Use --format text, json or yaml")
}

// writeResult renders result in format. runErr, when set, is reported
// alongside the partial result.
func writeResult(w io.Writer, format string, result InspectResult, runErr error) error {
	switch format {
	case FormatJSON:
		if runErr != nil {
			return WriteJSONFromError(w, runErr, result)
		}
		return WriteJSONSuccess(w, result)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(result); err != nil {
			return err
		}
		return enc.Close()
	}
	_, err := io.WriteString(w, renderResult(result))
	return err
}

// renderResult formats a result for a terminal.
func renderResult(r InspectResult) string {
	var b strings.Builder

	d := r.Details
	pairs := [][2]string{
		{"PID", strconv.Itoa(int(d.PID))},
		{"Status", d.Status},
		{"Command", d.Cmdline},
		{"Cwd", d.Cwd},
		{"User", d.Username},
	}
	if !d.Created.IsZero() {
		pairs = append(pairs, [2]string{"Started", humanize.Time(d.Created)})
	}
	pairs = append(pairs,
		[2]string{"CPU", r.Snapshot.CPUDetails()},
		[2]string{"Memory", r.Snapshot.MemDetails()},
		[2]string{"Threads", strconv.Itoa(r.Snapshot.Threads)},
	)
	if r.Report != nil && r.Report.Version != "" {
		pairs = append(pairs, [2]string{"Python", r.Report.Version})
	}
	if r.Report != nil && r.Report.CallGraph != "" {
		pairs = append(pairs, [2]string{"Call graph", r.Report.CallGraph})
	}
	b.WriteString(ui.RenderKeyValues(pairs))

	if r.Report == nil {
		return b.String()
	}

	b.WriteString("\n")
	for _, s := range r.Report.Stages {
		sym, color := ui.StatusSymbol(s.Status)
		detail := ""
		if s.Error != "" {
			detail = firstLine(s.Error)
		}
		b.WriteString(ui.FormatStage(sym, color, s.Name, detail))
		b.WriteString("\n")
	}

	if r.Report.Stacks != "" {
		b.WriteString("\n")
		b.WriteString(ui.FormatDivider(ui.DividerWidth))
		b.WriteString("\n")
		b.WriteString(strings.TrimRight(r.Report.Stacks, "\n"))
		b.WriteString("\n")
	}

	if h := r.Report.Heap; h != nil {
		b.WriteString("\n")
		b.WriteString(ui.FormatDivider(ui.DividerWidth))
		b.WriteString("\n")
		b.WriteString(h.Totals())
		b.WriteString("\n\n")
		b.WriteString(ui.RenderHeapTable(h))
	}
	return b.String()
}

// firstLine returns the headline of a rendered error.
func firstLine(msg string) string {
	line, _, _ := strings.Cut(msg, "\n")
	return strings.TrimPrefix(line, "✗ ")
}
