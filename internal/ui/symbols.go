package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/rileyhilliard/pyscope/internal/pipeline"
)

// Unicode symbols for status indicators.
const (
	SymbolSuccess  = "✓" // Stage completed successfully
	SymbolFail     = "✗" // Stage failed
	SymbolPending  = "○" // Stage not yet started
	SymbolProgress = "◐" // Stage in progress
	SymbolComplete = "●" // Stage done (alternative to success)
	SymbolSkipped  = "⊘" // Stage skipped or soft-failed
)

// StatusSymbol maps a stage status to its symbol and color.
func StatusSymbol(status pipeline.Status) (string, lipgloss.Color) {
	switch status {
	case pipeline.StatusDone:
		return SymbolComplete, ColorSuccess
	case pipeline.StatusSoftFailed:
		return SymbolSkipped, ColorWarning
	case pipeline.StatusAborted:
		return SymbolFail, ColorError
	case pipeline.StatusRunning:
		return SymbolProgress, ColorSecondary
	default:
		return SymbolPending, ColorMuted
	}
}
