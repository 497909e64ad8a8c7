package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rileyhilliard/pyscope/internal/pipeline"
)

// DividerWidth is the default width for divider lines.
const DividerWidth = 64

// progressWidth is the width of the bar shown next to a running stage.
const progressWidth = 20

// StageDisplay renders the event stream of an inspection run as one line
// per stage. In live mode the running stage is animated with a spinner and
// a progress bar; otherwise only finished stages are written.
type StageDisplay struct {
	w    io.Writer
	live bool
	now  func() time.Time

	spinner *stageSpinner
	stage   string
	title   string
	started time.Time
}

// NewStageDisplay creates a display writing to w. Use live only when w is
// a terminal.
func NewStageDisplay(w io.Writer, live bool) *StageDisplay {
	return &StageDisplay{w: w, live: live, now: time.Now}
}

// Handle renders one event.
func (d *StageDisplay) Handle(ev pipeline.Event) {
	if ev.Stage == "" {
		d.stopSpinner()
		return
	}

	switch ev.Status {
	case pipeline.StatusRunning:
		if ev.Stage != d.stage {
			d.begin(ev)
			return
		}
		if d.spinner != nil {
			d.spinner.update(ev.Label, ev.Fraction)
		}
	case pipeline.StatusDone, pipeline.StatusSoftFailed, pipeline.StatusAborted:
		if ev.Stage != d.stage {
			d.begin(ev)
		}
		d.finish(ev.Status)
	}
}

// Close stops any running animation. It is safe to call more than once.
func (d *StageDisplay) Close() {
	d.stopSpinner()
}

func (d *StageDisplay) begin(ev pipeline.Event) {
	d.stopSpinner()
	d.stage = ev.Stage
	d.title = ev.Label
	d.started = d.now()
	if !d.live || ev.Status != pipeline.StatusRunning {
		return
	}
	d.spinner = startStageSpinner(d.w, ev.Label, ev.Fraction)
}

func (d *StageDisplay) finish(status pipeline.Status) {
	d.stopSpinner()
	symbol, color := StatusSymbol(status)
	line := FormatStage(symbol, color, d.title, formatDuration(d.now().Sub(d.started)))
	fmt.Fprintln(d.w, line)
}

func (d *StageDisplay) stopSpinner() {
	if d.spinner != nil {
		d.spinner.halt()
		d.spinner = nil
	}
}

// FormatStage returns a formatted stage line, e.g. "● Dumping stacks 0.3s".
func FormatStage(symbol string, symbolColor lipgloss.Color, name string, timing string) string {
	symbolStyle := lipgloss.NewStyle().Foreground(symbolColor)
	if timing == "" {
		return fmt.Sprintf("%s %s", symbolStyle.Render(symbol), name)
	}
	return fmt.Sprintf("%s %s %s", symbolStyle.Render(symbol), name, MutedStyle().Render(timing))
}

// FormatDivider returns a divider line as a string.
func FormatDivider(width int) string {
	return MutedStyle().Render(strings.Repeat("━", width))
}
