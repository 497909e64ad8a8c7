package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

// TableColumn defines a table column with name and width.
type TableColumn struct {
	Title string
	Width int
}

// NewTable creates a Bubbles table with the CLI's styling. focused makes
// the table scrollable with the keyboard.
func NewTable(columns []TableColumn, rows []table.Row, height int, focused bool) table.Model {
	cols := make([]table.Column, len(columns))
	for i, c := range columns {
		cols[i] = table.Column{Title: c.Title, Width: c.Width}
	}
	if height <= 0 {
		height = len(rows) + 1
	}

	t := table.New(
		table.WithColumns(cols),
		table.WithRows(rows),
		table.WithFocused(focused),
		table.WithHeight(height),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorMuted).
		BorderBottom(true).
		Bold(true).
		Foreground(ColorPrimary)
	s.Cell = s.Cell.Foreground(ColorPrimary)
	if focused {
		s.Selected = s.Selected.Foreground(ColorPrimary).Background(ColorSecondary).Bold(false)
	} else {
		s.Selected = s.Cell
	}
	t.SetStyles(s)
	return t
}

// RenderSimpleTable renders a non-interactive table for CLI output.
func RenderSimpleTable(columns []TableColumn, rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	tableRows := make([]table.Row, len(rows))
	for i, row := range rows {
		tableRows[i] = table.Row(row)
	}
	return NewTable(columns, tableRows, 0, false).View()
}

// RenderKeyValues renders label/value pairs with the values aligned.
func RenderKeyValues(pairs [][2]string) string {
	width := 0
	for _, p := range pairs {
		if w := lipgloss.Width(p[0]); w > width {
			width = w
		}
	}
	label := lipgloss.NewStyle().Bold(true)
	var sb strings.Builder
	for _, p := range pairs {
		sb.WriteString(padRight(label.Render(p[0]), width+2))
		sb.WriteString(p[1])
		sb.WriteByte('\n')
	}
	return sb.String()
}

// padRight pads s to width visible columns, ignoring ANSI codes.
func padRight(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}
