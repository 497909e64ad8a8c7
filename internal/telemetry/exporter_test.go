package telemetry

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct{ frame Frame }

func (s staticSource) Frame() Frame { return s.frame }

func TestExporter_NoTarget(t *testing.T) {
	e := NewExporter(staticSource{})
	assert.Equal(t, 0, testutil.CollectAndCount(e))
}

func TestExporter_BeforeFirstTick(t *testing.T) {
	e := NewExporter(staticSource{Frame{PID: 12, State: StateConnected}})

	expected := `
# HELP pyscope_target_up 1 while the target process is being sampled.
# TYPE pyscope_target_up gauge
pyscope_target_up{pid="12"} 1
`
	require.NoError(t, testutil.CollectAndCompare(e, strings.NewReader(expected)))
}

func TestExporter_Snapshot(t *testing.T) {
	frame := Frame{
		Tick:  3,
		PID:   42,
		State: StateLost,
		Snapshot: Snapshot{
			CPUPercent:  25,
			Memory:      MemoryInfo{RSS: 2048, VMS: 4096, Percent: 0.5},
			IO:          IOCounters{ReadBytes: 100, WriteBytes: 200},
			Threads:     4,
			Connections: []Connection{{Protocol: "TCP"}},
			OpenFiles:   []string{"/a", "/b"},
		},
		Failures: map[string]int{PollIO: 2},
	}
	e := NewExporter(staticSource{frame})

	expected := `
# HELP pyscope_target_cpu_percent CPU usage over the last sampling interval.
# TYPE pyscope_target_cpu_percent gauge
pyscope_target_cpu_percent{pid="42"} 25
# HELP pyscope_target_io_read_bytes_total Cumulative bytes read.
# TYPE pyscope_target_io_read_bytes_total counter
pyscope_target_io_read_bytes_total{pid="42"} 100
# HELP pyscope_target_open_files Number of open regular files.
# TYPE pyscope_target_open_files gauge
pyscope_target_open_files{pid="42"} 2
# HELP pyscope_target_sample_failures_total Failed sub-polls since the last retarget.
# TYPE pyscope_target_sample_failures_total counter
pyscope_target_sample_failures_total{pid="42",poll="io"} 2
# HELP pyscope_target_up 1 while the target process is being sampled.
# TYPE pyscope_target_up gauge
pyscope_target_up{pid="42"} 0
`
	require.NoError(t, testutil.CollectAndCompare(e, strings.NewReader(expected),
		"pyscope_target_cpu_percent",
		"pyscope_target_io_read_bytes_total",
		"pyscope_target_open_files",
		"pyscope_target_sample_failures_total",
		"pyscope_target_up",
	))
	assert.Equal(t, 11, testutil.CollectAndCount(e))
}
