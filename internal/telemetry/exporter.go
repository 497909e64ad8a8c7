package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// FrameSource provides the latest sampler frame.
type FrameSource interface {
	Frame() Frame
}

// Exporter exposes the latest frame as Prometheus metrics.
type Exporter struct {
	source FrameSource

	up          *prometheus.Desc
	cpuPercent  *prometheus.Desc
	rssBytes    *prometheus.Desc
	vmsBytes    *prometheus.Desc
	memPercent  *prometheus.Desc
	readBytes   *prometheus.Desc
	writeBytes  *prometheus.Desc
	threads     *prometheus.Desc
	connections *prometheus.Desc
	openFiles   *prometheus.Desc
	failures    *prometheus.Desc
}

// NewExporter creates a collector reading from source.
func NewExporter(source FrameSource) *Exporter {
	labels := []string{"pid"}
	desc := func(name, help string, extra ...string) *prometheus.Desc {
		return prometheus.NewDesc("pyscope_target_"+name, help, append(labels, extra...), nil)
	}
	return &Exporter{
		source:      source,
		up:          desc("up", "1 while the target process is being sampled."),
		cpuPercent:  desc("cpu_percent", "CPU usage over the last sampling interval."),
		rssBytes:    desc("memory_rss_bytes", "Resident set size."),
		vmsBytes:    desc("memory_vms_bytes", "Virtual memory size."),
		memPercent:  desc("memory_percent", "Resident memory as a share of host memory."),
		readBytes:   desc("io_read_bytes_total", "Cumulative bytes read."),
		writeBytes:  desc("io_write_bytes_total", "Cumulative bytes written."),
		threads:     desc("threads", "Number of threads."),
		connections: desc("connections", "Number of open sockets."),
		openFiles:   desc("open_files", "Number of open regular files."),
		failures:    desc("sample_failures_total", "Failed sub-polls since the last retarget.", "poll"),
	}
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		e.up, e.cpuPercent, e.rssBytes, e.vmsBytes, e.memPercent,
		e.readBytes, e.writeBytes, e.threads, e.connections, e.openFiles, e.failures,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	f := e.source.Frame()
	if f.PID == 0 {
		return
	}
	pid := strconv.Itoa(int(f.PID))

	up := 0.0
	if f.State == StateConnected {
		up = 1
	}
	ch <- prometheus.MustNewConstMetric(e.up, prometheus.GaugeValue, up, pid)
	if f.Tick == 0 {
		return
	}

	s := f.Snapshot
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, pid)
	}
	counter := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, pid)
	}
	gauge(e.cpuPercent, s.CPUPercent)
	gauge(e.rssBytes, float64(s.Memory.RSS))
	gauge(e.vmsBytes, float64(s.Memory.VMS))
	gauge(e.memPercent, s.Memory.Percent)
	counter(e.readBytes, float64(s.IO.ReadBytes))
	counter(e.writeBytes, float64(s.IO.WriteBytes))
	gauge(e.threads, float64(s.Threads))
	gauge(e.connections, float64(len(s.Connections)))
	gauge(e.openFiles, float64(len(s.OpenFiles)))
	for poll, n := range f.Failures {
		ch <- prometheus.MustNewConstMetric(e.failures, prometheus.CounterValue, float64(n), pid, poll)
	}
}
