package telemetry

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Palette is the fixed set of thread colors, handed out in first-seen order.
var Palette = []string{
	"c4a000", "ce5c00", "8f5902", "4e9a06",
	"204a87", "5c3566", "a40000", "555753",
}

// ThreadMetric is the rolling cpu-time history of one thread.
type ThreadMetric struct {
	ID     int32
	Color  string
	Total  float64
	Series *Series
}

// ThreadTracker turns cumulative per-thread cpu times into per-tick deltas.
// It is not safe for concurrent use; the Sampler guards it.
type ThreadTracker struct {
	threads map[int32]*ThreadMetric
	used    map[string]bool
	randU32 func() uint32
}

// NewThreadTracker returns an empty tracker.
func NewThreadTracker() *ThreadTracker {
	return &ThreadTracker{
		threads: make(map[int32]*ThreadMetric),
		used:    make(map[string]bool),
		randU32: rand.Uint32,
	}
}

// Observe records the cumulative user and system time of a thread and
// returns the delta appended to its series. The first observation only sets
// the baseline and appends 0. A total that moved backwards appends 0.
func (t *ThreadTracker) Observe(id int32, user, system float64) float64 {
	total := user + system

	m, ok := t.threads[id]
	if !ok {
		m = &ThreadMetric{
			ID:     id,
			Color:  t.nextColor(),
			Total:  total,
			Series: NewSeries(),
		}
		t.threads[id] = m
		m.Series.Append(0)
		return 0
	}

	delta := total - m.Total
	if delta < 0 {
		delta = 0
	}
	delta = math.Round(delta*100) / 100
	m.Total = total
	m.Series.Append(delta)
	return delta
}

// Get returns the metric for a thread id.
func (t *ThreadTracker) Get(id int32) (*ThreadMetric, bool) {
	m, ok := t.threads[id]
	return m, ok
}

// Len returns the number of tracked threads.
func (t *ThreadTracker) Len() int {
	return len(t.threads)
}

// IDs returns tracked thread ids in ascending order.
func (t *ThreadTracker) IDs() []int32 {
	ids := make([]int32, 0, len(t.threads))
	for id := range t.threads {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Retarget forgets every thread and frees the palette.
func (t *ThreadTracker) Retarget() {
	t.threads = make(map[int32]*ThreadMetric)
	t.used = make(map[string]bool)
}

func (t *ThreadTracker) nextColor() string {
	for _, c := range Palette {
		if !t.used[c] {
			t.used[c] = true
			return c
		}
	}
	// Palette exhausted; random colors may repeat.
	n := t.randU32()
	return fmt.Sprintf("%02x%02x%02x", byte(n>>16), byte(n>>8), byte(n))
}
