package telemetry

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// ConnState is the lifecycle state of the sampled target.
type ConnState string

const (
	StateUnconnected ConnState = "unconnected"
	StateConnected   ConnState = "connected"
	StateLost        ConnState = "lost"
)

// TerminatedStatus is shown once the target process has exited.
const TerminatedStatus = "[Terminated]"

// CPUTimes holds cumulative cpu seconds.
type CPUTimes struct {
	User   float64 `json:"user" yaml:"user"`
	System float64 `json:"system" yaml:"system"`
}

// MemoryInfo holds resident and virtual size in bytes.
type MemoryInfo struct {
	RSS     uint64  `json:"rss" yaml:"rss"`
	VMS     uint64  `json:"vms" yaml:"vms"`
	Percent float64 `json:"percent" yaml:"percent"`
}

// IOCounters holds cumulative I/O counters.
type IOCounters struct {
	ReadBytes  uint64 `json:"read_bytes" yaml:"read_bytes"`
	WriteBytes uint64 `json:"write_bytes" yaml:"write_bytes"`
	ReadCount  uint64 `json:"read_count" yaml:"read_count"`
	WriteCount uint64 `json:"write_count" yaml:"write_count"`
}

// ThreadTimes is the cumulative cpu time of one thread.
type ThreadTimes struct {
	ID     int32
	User   float64
	System float64
}

// Connection describes one socket held by the target.
type Connection struct {
	Protocol string `json:"protocol" yaml:"protocol"`
	Local    string `json:"local" yaml:"local"`
	Remote   string `json:"remote" yaml:"remote"`
	Status   string `json:"status" yaml:"status"`
}

// Snapshot is the most recent reading of every sub-poll.
type Snapshot struct {
	Time        time.Time    `json:"time" yaml:"time"`
	CPUPercent  float64      `json:"cpu_percent" yaml:"cpu_percent"`
	CPUTimes    CPUTimes     `json:"cpu_times" yaml:"cpu_times"`
	Memory      MemoryInfo   `json:"memory" yaml:"memory"`
	IO          IOCounters   `json:"io" yaml:"io"`
	Threads     int          `json:"threads" yaml:"threads"`
	Connections []Connection `json:"connections" yaml:"connections"`
	OpenFiles   []string     `json:"open_files" yaml:"open_files"`
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Connections = append([]Connection(nil), s.Connections...)
	out.OpenFiles = append([]string(nil), s.OpenFiles...)
	return out
}

// CPUDetails formats the cpu summary, e.g. "12.50% (1.2 user, 0.3 system)".
func (s Snapshot) CPUDetails() string {
	return fmt.Sprintf("%0.2f%% (%s user, %s system)",
		s.CPUPercent,
		humanize.Ftoa(s.CPUTimes.User),
		humanize.Ftoa(s.CPUTimes.System))
}

// MemDetails formats the memory summary, e.g. "3.10% (12 MiB RSS, 200 MiB VMS)".
func (s Snapshot) MemDetails() string {
	return fmt.Sprintf("%0.2f%% (%s RSS, %s VMS)",
		s.Memory.Percent,
		humanize.IBytes(s.Memory.RSS),
		humanize.IBytes(s.Memory.VMS))
}

// ReadDetails formats cumulative bytes read.
func (s Snapshot) ReadDetails() string {
	return fmt.Sprintf("%s (%d reads)", humanize.IBytes(s.IO.ReadBytes), s.IO.ReadCount)
}

// WriteDetails formats cumulative bytes written.
func (s Snapshot) WriteDetails() string {
	return fmt.Sprintf("%s (%d writes)", humanize.IBytes(s.IO.WriteBytes), s.IO.WriteCount)
}

// Details is the static description of the target process.
type Details struct {
	PID      int32     `json:"pid" yaml:"pid"`
	Status   string    `json:"status" yaml:"status"`
	Cwd      string    `json:"cwd" yaml:"cwd"`
	Cmdline  string    `json:"cmdline" yaml:"cmdline"`
	Terminal string    `json:"terminal" yaml:"terminal"`
	Created  time.Time `json:"created" yaml:"created"`
	Username string    `json:"username" yaml:"username"`
	UIDs     []int32   `json:"uids" yaml:"uids"`
	GIDs     []int32   `json:"gids" yaml:"gids"`
	Nice     int32     `json:"nice" yaml:"nice"`
}
