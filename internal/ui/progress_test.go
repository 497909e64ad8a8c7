package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		name    string
		percent float64
		width   int
		want    string
	}{
		{"zero", 0, 10, "[░░░░░░░░░░]   0%"},
		{"half", 50, 10, "[█████░░░░░]  50%"},
		{"full", 100, 10, "[██████████] 100%"},
		{"clamped low", -10, 4, "[░░░░]   0%"},
		{"clamped high", 150, 4, "[████] 100%"},
		{"partial block", 67.4, 4, "[██░░]  67%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripANSI(RenderProgressBar(tt.percent, tt.width)))
		})
	}
}

func TestRenderProgressBar_NoWidth(t *testing.T) {
	assert.Empty(t, RenderProgressBar(50, 0))
	assert.Empty(t, RenderProgressBar(50, -5))
}

func TestRenderFractionBar(t *testing.T) {
	assert.Equal(t, "██░░░░░░  25%", stripANSI(RenderFractionBar(0.25, 8, ColorSecondary)))
	assert.Equal(t, "████████ 100%", stripANSI(RenderFractionBar(1.2, 8, ColorSecondary)))
	assert.Empty(t, RenderFractionBar(0.5, 0, ColorSecondary))
}
