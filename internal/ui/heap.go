package ui

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/rileyhilliard/pyscope/internal/pipeline"
)

var heapColumns = []TableColumn{
	{Title: "Type", Width: 24},
	{Title: "Count", Width: 8},
	{Title: "%", Width: 8},
	{Title: "Size", Width: 10},
	{Title: "%", Width: 8},
	{Title: "Cumulative", Width: 10},
	{Title: "Max", Width: 10},
}

// RenderHeapTable renders the per-type heap summary, largest first.
func RenderHeapTable(h *pipeline.HeapSummary) string {
	rows := make([][]string, len(h.Rows))
	for i, r := range h.Rows {
		rows[i] = []string{
			r.Kind,
			strconv.Itoa(r.Count),
			fmt.Sprintf("%.2f%%", r.CountPercent),
			humanize.IBytes(r.Size),
			fmt.Sprintf("%.2f%%", r.SizePercent),
			fmt.Sprintf("%.2f%%", r.Cumulative),
			humanize.IBytes(r.Max),
		}
	}
	return RenderSimpleTable(heapColumns, rows)
}
