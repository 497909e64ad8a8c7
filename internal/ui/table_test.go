package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestNewTable(t *testing.T) {
	columns := []TableColumn{{Title: "Type", Width: 10}, {Title: "Count", Width: 6}}
	rows := []table.Row{{"dict", "12"}, {"str", "40"}}

	view := NewTable(columns, rows, 0, false).View()
	for _, want := range []string{"Type", "Count", "dict", "str", "40"} {
		assert.Contains(t, view, want)
	}
}

func TestNewTable_Focused(t *testing.T) {
	tbl := NewTable([]TableColumn{{Title: "Local", Width: 20}}, []table.Row{{"127.0.0.1:8000"}}, 5, true)
	assert.True(t, tbl.Focused())
	assert.Contains(t, tbl.View(), "127.0.0.1:8000")
}

func TestRenderSimpleTable(t *testing.T) {
	assert.Empty(t, RenderSimpleTable([]TableColumn{{Title: "Type", Width: 8}}, nil))

	out := RenderSimpleTable(
		[]TableColumn{{Title: "Type", Width: 8}, {Title: "Size", Width: 8}},
		[][]string{{"list", "72 B"}},
	)
	assert.Contains(t, out, "list")
	assert.Contains(t, out, "72 B")
}

func TestRenderKeyValues(t *testing.T) {
	out := stripANSI(RenderKeyValues([][2]string{
		{"PID", "4242"},
		{"Cmdline", "python app.py"},
	}))
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Equal(t, []string{"PID      4242", "Cmdline  python app.py"}, lines)
}

func TestPadRight(t *testing.T) {
	assert.Equal(t, "ab   ", padRight("ab", 5))
	assert.Equal(t, "abcdef", padRight("abcdef", 3))
	assert.Equal(t, 6, lipgloss.Width(padRight(SuccessStyle().Render("ok"), 6)))
}
