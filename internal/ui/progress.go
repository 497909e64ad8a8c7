package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Progress bar block characters.
const (
	progressFilled = '█'
	progressEmpty  = '░'
)

// RenderProgressBar renders a usage gauge such as CPU or memory percent.
// percent is clamped to 0-100 and width is the bar width excluding the
// brackets and the percentage.
// Output format: [████████░░░░]  67%
// The bar is green below 60%, yellow below 80% and red above.
func RenderProgressBar(percent float64, width int) string {
	if width <= 0 {
		return ""
	}
	percent = clampPercent(percent)
	style := lipgloss.NewStyle().Foreground(getThresholdColor(percent))
	return style.Render("["+bar(percent, width)+"]") + fmt.Sprintf(" %3.0f%%", percent)
}

// RenderFractionBar renders inspection progress, fraction in [0, 1], in a
// single color.
// Output format: ████████░░░░  67%
func RenderFractionBar(fraction float64, width int, color lipgloss.Color) string {
	if width <= 0 {
		return ""
	}
	percent := clampPercent(fraction * 100)
	style := lipgloss.NewStyle().Foreground(color)
	return style.Render(bar(percent, width)) + fmt.Sprintf(" %3.0f%%", percent)
}

func bar(percent float64, width int) string {
	filled := int((percent / 100.0) * float64(width))
	var sb strings.Builder
	sb.Grow(width * 3)
	sb.WriteString(strings.Repeat(string(progressFilled), filled))
	sb.WriteString(strings.Repeat(string(progressEmpty), width-filled))
	return sb.String()
}

func clampPercent(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
