package dashboard

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/rileyhilliard/pyscope/internal/pipeline"
	"github.com/rileyhilliard/pyscope/internal/telemetry"
	"github.com/rileyhilliard/pyscope/internal/ui"
	"github.com/rileyhilliard/pyscope/internal/util"
)

// defaultWidth is used before the first WindowSizeMsg.
const defaultWidth = 80

// renderDashboard renders the complete dashboard view.
func (m Model) renderDashboard() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderProgress())
	b.WriteString("\n")
	b.WriteString(m.renderTabs())
	b.WriteString("\n\n")

	if m.tab.scrolls() && m.ready {
		b.WriteString(m.viewport.View())
	} else {
		b.WriteString(m.tabContent())
	}

	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

// renderHeader renders the title line with the target state.
func (m Model) renderHeader() string {
	title := lipgloss.NewStyle().Foreground(ColorAccent).Bold(true).Render("pyscope")

	var state string
	switch m.frame.State {
	case telemetry.StateConnected:
		state = ConnectedStyle.Render("connected")
	case telemetry.StateLost:
		status := m.frame.Status
		if status == "" {
			status = "lost"
		}
		state = LostStyle.Render(status)
	default:
		state = WaitingStyle.Render("waiting for first sample")
	}

	updated := "never"
	if !m.lastUpdate.IsZero() {
		updated = humanize.Time(m.lastUpdate)
	}
	stats := lipgloss.NewStyle().Foreground(ColorTextSecondary).
		Render(fmt.Sprintf(" | pid %d | ", m.frame.PID)) + state +
		lipgloss.NewStyle().Foreground(ColorTextSecondary).
			Render(" | " + util.Pluralize(m.frame.Snapshot.Threads, "thread", "threads") + " | updated " + updated)
	return HeaderStyle.Render(title + stats)
}

// renderProgress renders the inspection progress line.
func (m Model) renderProgress() string {
	if m.run == nil {
		return LabelStyle.Render(" no inspection run")
	}
	label := m.label
	switch {
	case m.runDone && stderrors.Is(m.runErr, context.Canceled):
		label = LabelStyle.Render("Inspection cancelled")
	case m.runDone && m.runErr != nil:
		label = ui.ErrorStyle().Render("Inspection aborted: " + firstLine(m.runErr))
	case m.runDone:
		label = ui.SuccessStyle().Render("Inspection done")
	}
	return " " + m.progress.ViewAs(m.fraction) + fmt.Sprintf(" %3.0f%% ", m.fraction*100) + label
}

// renderTabs renders the tab bar.
func (m Model) renderTabs() string {
	parts := make([]string, 0, tabCount)
	for t := Tab(0); t < tabCount; t++ {
		name := fmt.Sprintf("%d %s", t+1, t)
		if t == m.tab {
			parts = append(parts, TabActiveStyle.Render(name))
		} else {
			parts = append(parts, TabStyle.Render(name))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

// renderFooter renders the keyboard hints.
func (m Model) renderFooter() string {
	hints := []string{"q quit", "tab/←→ switch", "↑↓ scroll", "? help"}
	return FooterStyle.Render(strings.Join(hints, " | "))
}

// tabContent renders the body of the active tab.
func (m Model) tabContent() string {
	switch m.tab {
	case TabResources:
		return m.renderResources()
	case TabThreads:
		return m.renderThreads()
	case TabConnections:
		return m.renderConnections()
	case TabFiles:
		return m.renderFiles()
	case TabStacks:
		return m.renderStacks()
	case TabObjects:
		return m.renderObjects()
	case TabInfo:
		return m.renderInfo()
	}
	return ""
}

func (m Model) contentWidth() int {
	if m.width == 0 {
		return defaultWidth
	}
	return m.width
}

// renderPanel renders a bordered graph panel.
func renderPanel(title, value string, data []float64, scale Scale, color lipgloss.Color, width int) string {
	lines := []string{SectionHeader(title, value, width)}
	graph := RenderGraph(data, width-4, graphHeight, scale, color)
	for _, line := range strings.Split(graph, "\n") {
		lines = append(lines, SectionContentLine(line, width))
	}
	lines = append(lines, SectionFooter(width))
	return strings.Join(lines, "\n")
}

func (m Model) renderResources() string {
	s := m.frame.Snapshot
	width := m.contentWidth()
	panels := []string{
		renderPanel("CPU", s.CPUDetails(), m.frame.Series[telemetry.ChannelCPU], ScalePercent, ColorGraph, width),
		renderPanel("Memory", s.MemDetails(), m.frame.Series[telemetry.ChannelMemory], ScaleAuto, MetricColor(s.Memory.Percent), width),
		renderPanel("Read", s.ReadDetails(), m.frame.Series[telemetry.ChannelRead], ScaleAuto, ColorGraph, width),
		renderPanel("Write", s.WriteDetails(), m.frame.Series[telemetry.ChannelWrite], ScaleAuto, ColorGraph, width),
	}
	return strings.Join(panels, "\n")
}

func (m Model) renderThreads() string {
	if len(m.frame.Threads) == 0 {
		return LabelStyle.Render("No thread samples yet")
	}
	width := m.contentWidth()
	lines := []string{SectionHeader("Threads", strconv.Itoa(len(m.frame.Threads)), width)}
	graphWidth := width - 4 - 10
	if graphWidth < 1 {
		graphWidth = 1
	}
	for _, t := range m.frame.Threads {
		label := ui.SeriesStyle(t.Color).Render(fmt.Sprintf("%-9d", t.ID))
		graph := RenderGraph(t.Values, graphWidth, 1, ScaleAuto, lipgloss.Color(t.Color))
		lines = append(lines, SectionContentLine(label+" "+graph, width))
	}
	lines = append(lines, SectionFooter(width))
	return strings.Join(lines, "\n")
}

func (m Model) renderConnections() string {
	conns := m.frame.Snapshot.Connections
	if len(conns) == 0 {
		return LabelStyle.Render("No open connections")
	}
	rows := make([][]string, len(conns))
	for i, c := range conns {
		rows[i] = []string{c.Protocol, c.Local, c.Remote, c.Status}
	}
	return ui.RenderSimpleTable([]ui.TableColumn{
		{Title: "Protocol", Width: 10},
		{Title: "Local", Width: 24},
		{Title: "Remote", Width: 24},
		{Title: "Status", Width: 12},
	}, rows)
}

func (m Model) renderFiles() string {
	files := append([]string(nil), m.frame.Snapshot.OpenFiles...)
	if len(files) == 0 {
		return LabelStyle.Render("No open files")
	}
	sort.Strings(files)
	return strings.Join(files, "\n")
}

// pendingText describes a stage whose payload is not available.
func (m Model) pendingText(stage, what string) string {
	for _, s := range m.stages {
		if s.name != stage {
			continue
		}
		switch s.status {
		case pipeline.StatusSoftFailed:
			return LabelStyle.Render(what + " could not be captured")
		case pipeline.StatusAborted:
			return LabelStyle.Render("Inspection aborted")
		}
	}
	if m.runDone {
		return LabelStyle.Render(what + " not available")
	}
	return LabelStyle.Render("Waiting for " + strings.ToLower(what) + "...")
}

func (m Model) renderStacks() string {
	if m.report == nil || m.report.Stacks == "" {
		return m.pendingText(pipeline.StageStacks, "Stacks")
	}
	return m.report.Stacks
}

func (m Model) renderObjects() string {
	if m.report == nil || m.report.Heap == nil {
		return m.pendingText(pipeline.StageHeap, "Heap summary")
	}
	h := m.report.Heap
	return ValueStyle.Render(h.Totals()) + "\n\n" + ui.RenderHeapTable(h)
}

func (m Model) renderInfo() string {
	d := m.details
	pairs := [][2]string{
		{"PID", strconv.Itoa(int(d.PID))},
		{"Status", d.Status},
		{"Command", d.Cmdline},
		{"Cwd", d.Cwd},
		{"User", d.Username},
		{"UIDs", util.JoinIDs(d.UIDs)},
		{"GIDs", util.JoinIDs(d.GIDs)},
		{"Terminal", d.Terminal},
		{"Nice", strconv.Itoa(int(d.Nice))},
	}
	if !d.Created.IsZero() {
		pairs = append(pairs, [2]string{"Started", d.Created.Format(time.RFC3339) + " (" + humanize.Time(d.Created) + ")"})
	}
	if m.report != nil {
		if m.report.Version != "" {
			pairs = append(pairs, [2]string{"Python", m.report.Version})
		}
		if m.report.CallGraph != "" {
			pairs = append(pairs, [2]string{"Call graph", m.report.CallGraph})
		}
		pairs = append(pairs, [2]string{"Run", m.report.RunID.String()})
	}

	var b strings.Builder
	b.WriteString(ui.RenderKeyValues(pairs))
	if len(m.stages) > 0 {
		b.WriteString("\n")
		for _, s := range m.stages {
			sym, color := ui.StatusSymbol(s.status)
			b.WriteString(ui.FormatStage(sym, color, s.label, ""))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// firstLine returns the headline of err without the failure symbol.
func firstLine(err error) string {
	line, _, _ := strings.Cut(err.Error(), "\n")
	return strings.TrimPrefix(line, "✗ ")
}
