package dashboard

import (
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rileyhilliard/pyscope/internal/errors"
	"github.com/rileyhilliard/pyscope/internal/pipeline"
	"github.com/rileyhilliard/pyscope/internal/telemetry"
)

// FrameSource publishes telemetry frames for the selected target.
type FrameSource interface {
	Frame() telemetry.Frame
	Subscribe() (<-chan telemetry.Frame, func(), error)
}

// Options configures a dashboard Model.
type Options struct {
	Frames FrameSource
	// Run is the inspection run to follow. It may be nil.
	Run *pipeline.Run
	// Details is shown on the Info tab.
	Details telemetry.Details
}

// stageLine is the latest known state of one pipeline stage.
type stageLine struct {
	name   string
	label  string
	status pipeline.Status
}

// Model is the Bubble Tea model for the dashboard.
type Model struct {
	frames      <-chan telemetry.Frame
	unsubscribe func()
	frame       telemetry.Frame
	lastUpdate  time.Time
	framesDone  bool

	run      *pipeline.Run
	fraction float64
	label    string
	stages   []stageLine
	report   *pipeline.Report
	runErr   error
	runDone  bool

	details telemetry.Details

	tab      Tab
	progress progress.Model
	viewport viewport.Model
	ready    bool
	width    int
	height   int
	showHelp bool
	quitting bool
}

// frameMsg carries one published telemetry frame.
type frameMsg telemetry.Frame

// framesClosedMsg signals that the frame subscription ended.
type framesClosedMsg struct{}

// eventMsg carries one pipeline progress event.
type eventMsg pipeline.Event

// runDoneMsg carries the outcome of the inspection run.
type runDoneMsg struct {
	report *pipeline.Report
	err    error
}

// Layout constants
const (
	headerHeight = 4 // title, progress, tab bar, blank
	footerHeight = 2
	graphHeight  = 3
)

// NewModel subscribes to the frame source and returns the initial model.
func NewModel(opts Options) (Model, error) {
	if opts.Frames == nil {
		return Model{}, errors.New(errors.ErrConfig, "Dashboard has no frame source", "")
	}
	ch, unsubscribe, err := opts.Frames.Subscribe()
	if err != nil {
		return Model{}, err
	}
	m := Model{
		frames:      ch,
		unsubscribe: unsubscribe,
		frame:       opts.Frames.Frame(),
		run:         opts.Run,
		details:     opts.Details,
		progress:    progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
	if m.run == nil {
		m.runDone = true
	}
	return m, nil
}

// Init starts listening for frames and progress events.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{waitFrame(m.frames)}
	if m.run != nil {
		cmds = append(cmds, waitEvent(m.run))
	}
	return tea.Batch(cmds...)
}

// Update handles messages and updates the model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		handled, cmd := m.HandleKeyMsg(msg)
		if handled {
			if m.quitting {
				m.Close()
			}
			return m, cmd
		}
		if m.ready && m.tab.scrolls() {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vh := m.height - headerHeight - footerHeight
		if vh < 1 {
			vh = 1
		}
		if !m.ready {
			m.viewport = viewport.New(m.width, vh)
			m.viewport.YPosition = headerHeight
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = vh
		}
		m.progress.Width = m.progressWidth()
		m.refreshViewport()

	case frameMsg:
		m.frame = telemetry.Frame(msg)
		m.lastUpdate = time.Now()
		if m.tab == TabConnections || m.tab == TabFiles {
			m.refreshViewport()
		}
		return m, waitFrame(m.frames)

	case framesClosedMsg:
		m.framesDone = true

	case eventMsg:
		m.applyEvent(pipeline.Event(msg))
		return m, waitEvent(m.run)

	case runDoneMsg:
		m.runDone = true
		m.report = msg.report
		m.runErr = msg.err
		if m.report != nil {
			for _, r := range m.report.Stages {
				m.setStage(r.Name, "", r.Status)
			}
		}
		m.refreshViewport()
	}

	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.showHelp {
		return m.renderHelpOverlay()
	}
	return m.renderDashboard()
}

// Close releases the frame subscription. It is safe to call more than once.
func (m *Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// Tab returns the active tab.
func (m Model) Tab() Tab { return m.tab }

// Fraction returns the latest reported inspection progress.
func (m Model) Fraction() float64 { return m.fraction }

// Report returns the inspection report once the run has finished.
func (m Model) Report() *pipeline.Report { return m.report }

func (m *Model) setTab(t Tab) {
	m.tab = t
	m.refreshViewport()
	m.viewport.GotoTop()
}

func (m *Model) applyEvent(ev pipeline.Event) {
	if ev.Fraction > m.fraction {
		m.fraction = ev.Fraction
	}
	if ev.Label != "" {
		m.label = ev.Label
	}
	if ev.Stage != "" {
		m.setStage(ev.Stage, ev.Label, ev.Status)
	}
}

// setStage records the status of a stage, keeping the first label seen as
// its title.
func (m *Model) setStage(name, label string, status pipeline.Status) {
	for i := range m.stages {
		if m.stages[i].name == name {
			m.stages[i].status = status
			return
		}
	}
	if label == "" {
		label = name
	}
	m.stages = append(m.stages, stageLine{name: name, label: label, status: status})
}

func (m *Model) refreshViewport() {
	if !m.ready || !m.tab.scrolls() {
		return
	}
	m.viewport.SetContent(m.tabContent())
}

func (m Model) progressWidth() int {
	w := m.width - 40
	if w < 10 {
		w = 10
	}
	return w
}

// waitFrame returns a command that receives the next frame.
func waitFrame(ch <-chan telemetry.Frame) tea.Cmd {
	return func() tea.Msg {
		f, ok := <-ch
		if !ok {
			return framesClosedMsg{}
		}
		return frameMsg(f)
	}
}

// waitEvent returns a command that receives the next progress event, or
// the run outcome once the event channel closes.
func waitEvent(run *pipeline.Run) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-run.Events()
		if !ok {
			report, err := run.Wait()
			return runDoneMsg{report: report, err: err}
		}
		return eventMsg(ev)
	}
}
