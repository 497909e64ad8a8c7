package dashboard

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Braille patterns use a 2x4 dot matrix per character:
//
//	  Col 0  Col 1
//	Row 0:   ⠁      ⠈     (dots 1, 4)
//	Row 1:   ⠂      ⠐     (dots 2, 5)
//	Row 2:   ⠄      ⠠     (dots 3, 6)
//	Row 3:   ⡀      ⢀     (dots 7, 8)
//
// Unicode braille starts at U+2800 and sets bit n-1 for dot n.
const brailleBase = '\u2800'

// brailleDots maps [row][col] of the dot matrix to its bit offset.
var brailleDots = [4][2]uint8{
	{0, 3},
	{1, 4},
	{2, 5},
	{6, 7},
}

// Scale selects how a graph maps values to dot height.
type Scale int

const (
	// ScalePercent plots 0-100 and colors each column by threshold.
	ScalePercent Scale = iota
	// ScaleAuto plots 0 to the window maximum in a single color.
	ScaleAuto
)

// RenderGraph renders data as a braille area graph of width characters and
// height rows. Each character holds two samples; when there are fewer
// samples than fit, the graph is right-aligned so the newest sample is
// always at the right edge.
func RenderGraph(data []float64, width, height int, scale Scale, color lipgloss.Color) string {
	if width <= 0 || height <= 0 {
		return ""
	}

	grid := make([][]rune, height)
	for i := range grid {
		grid[i] = []rune(strings.Repeat(string(brailleBase), width))
	}
	colMax := make([]float64, width)

	points := width * 2
	if len(data) > points {
		data = resampleMax(data, points)
	}
	ceiling := 100.0
	if scale == ScaleAuto {
		ceiling = 0
		for _, v := range data {
			if v > ceiling {
				ceiling = v
			}
		}
	}

	totalDots := height * 4
	offset := points - len(data)
	for i, v := range data {
		col := (i + offset) / 2
		sub := (i + offset) % 2
		if v > colMax[col] {
			colMax[col] = v
		}
		dots := 0
		if ceiling > 0 {
			dots = clampInt(int(v/ceiling*float64(totalDots)+0.5), totalDots)
		}
		for dot := 0; dot < dots; dot++ {
			row := height - 1 - dot/4
			grid[row][col] |= rune(1) << brailleDots[3-dot%4][sub]
		}
	}

	lines := make([]string, height)
	for r, row := range grid {
		var sb strings.Builder
		for c, ch := range row {
			fg := color
			if scale == ScalePercent {
				fg = MetricColor(colMax[c])
			}
			sb.WriteString(lipgloss.NewStyle().Foreground(fg).Render(string(ch)))
		}
		lines[r] = sb.String()
	}
	return strings.Join(lines, "\n")
}

// resampleMax compresses data to size buckets, keeping each bucket's peak.
func resampleMax(data []float64, size int) []float64 {
	out := make([]float64, size)
	bucket := float64(len(data)) / float64(size)
	for i := range out {
		start := int(float64(i) * bucket)
		end := int(float64(i+1) * bucket)
		if end > len(data) {
			end = len(data)
		}
		if start >= end {
			start = end - 1
		}
		peak := data[start]
		for _, v := range data[start+1 : end] {
			if v > peak {
				peak = v
			}
		}
		out[i] = peak
	}
	return out
}

// clampInt clamps val to [0, maxVal].
func clampInt(val, maxVal int) int {
	if val < 0 {
		return 0
	}
	if val > maxVal {
		return maxVal
	}
	return val
}
