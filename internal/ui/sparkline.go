package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Sparkline block characters representing 8 vertical levels (lowest to highest).
const sparklineBlocks = "▁▂▃▄▅▆▇█"

var sparklineBlockRunes = []rune(sparklineBlocks)

// RenderSparkline renders the most recent width points of a percentage
// series. Values are scaled to the min/max of the visible window and the
// line is colored by the last value's threshold.
func RenderSparkline(data []float64, width int) string {
	if len(data) == 0 || width <= 0 {
		return ""
	}
	data = tail(data, width)
	lo, hi := bounds(data)
	line := sparkline(data, lo, hi)
	return lipgloss.NewStyle().Foreground(getThresholdColor(data[len(data)-1])).Render(line)
}

// RenderSparklineColor renders a series that has no natural ceiling, such
// as bytes per tick or per-thread cpu, on a scale from zero to the window
// maximum.
func RenderSparklineColor(data []float64, width int, color lipgloss.Color) string {
	if len(data) == 0 || width <= 0 {
		return ""
	}
	data = tail(data, width)
	_, hi := bounds(data)
	if hi < 0 {
		hi = 0
	}
	return lipgloss.NewStyle().Foreground(color).Render(sparkline(data, 0, hi))
}

func sparkline(data []float64, lo, hi float64) string {
	var sb strings.Builder
	sb.Grow(len(data) * 3)

	levels := len(sparklineBlockRunes)
	span := hi - lo
	for _, v := range data {
		level := 0
		if span == 0 {
			if hi != 0 || lo != 0 {
				level = levels / 2
			}
		} else {
			level = int((v - lo) / span * float64(levels-1))
			if level < 0 {
				level = 0
			} else if level >= levels {
				level = levels - 1
			}
		}
		sb.WriteRune(sparklineBlockRunes[level])
	}
	return sb.String()
}

func tail(data []float64, n int) []float64 {
	if len(data) > n {
		return data[len(data)-n:]
	}
	return data
}

func bounds(data []float64) (lo, hi float64) {
	lo, hi = data[0], data[0]
	for _, v := range data[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// getThresholdColor returns a color based on percentage thresholds.
//   - 0-60%: green (success)
//   - 60-80%: yellow/amber (warning)
//   - 80-100%: red (error)
func getThresholdColor(percent float64) lipgloss.Color {
	switch {
	case percent >= 80:
		return ColorError
	case percent >= 60:
		return ColorWarning
	default:
		return ColorSuccess
	}
}
