package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const spinnerTick = 80 * time.Millisecond

var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

// stageSpinner redraws one terminal line for the running stage:
//
//	⣽ Dumping all objects... ██████░░░░  65%
//
// The line is rewritten in place on every tick and every update.
type stageSpinner struct {
	mu       sync.Mutex
	w        io.Writer
	label    string
	fraction float64
	frame    int
	drawn    int // visible width of the current line

	stop chan struct{}
	done chan struct{}
}

func startStageSpinner(w io.Writer, label string, fraction float64) *stageSpinner {
	s := &stageSpinner{
		w:        w,
		label:    label,
		fraction: fraction,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.mu.Lock()
	s.drawLocked()
	s.mu.Unlock()
	go s.animate()
	return s
}

// update moves the bar. An empty label keeps the current one.
func (s *stageSpinner) update(label string, fraction float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if label != "" {
		s.label = label
	}
	if fraction > s.fraction {
		s.fraction = fraction
	}
	s.drawLocked()
}

// halt stops the animation and erases the line. Safe to call twice.
func (s *stageSpinner) halt() {
	s.mu.Lock()
	select {
	case <-s.stop:
		s.mu.Unlock()
		return
	default:
		close(s.stop)
	}
	s.mu.Unlock()

	<-s.done
	s.mu.Lock()
	s.clearLocked()
	s.mu.Unlock()
}

func (s *stageSpinner) animate() {
	ticker := time.NewTicker(spinnerTick)
	defer ticker.Stop()
	defer close(s.done)

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.frame = (s.frame + 1) % len(spinnerFrames)
			s.drawLocked()
			s.mu.Unlock()
		}
	}
}

func (s *stageSpinner) drawLocked() {
	color := SpinnerColors[(s.frame/2)%len(SpinnerColors)]
	line := fmt.Sprintf("%s %s... %s",
		lipgloss.NewStyle().Foreground(color).Render(spinnerFrames[s.frame]),
		s.label,
		RenderFractionBar(s.fraction, progressWidth, ColorSecondary))
	s.clearLocked()
	fmt.Fprint(s.w, line)
	s.drawn = lipgloss.Width(line)
}

func (s *stageSpinner) clearLocked() {
	if s.drawn == 0 {
		return
	}
	fmt.Fprint(s.w, "\r"+strings.Repeat(" ", s.drawn)+"\r")
	s.drawn = 0
}

// formatDuration formats a duration for display (e.g., "0.3s", "1.2s").
func formatDuration(d time.Duration) string {
	secs := d.Seconds()
	if secs < 0.1 {
		return fmt.Sprintf("%.2fs", secs)
	}
	return fmt.Sprintf("%.1fs", secs)
}
