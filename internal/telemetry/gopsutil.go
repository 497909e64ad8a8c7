package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// GopsutilInspector reads process facts of the local machine.
type GopsutilInspector struct{}

// NewGopsutilInspector returns an inspector backed by gopsutil.
func NewGopsutilInspector() *GopsutilInspector {
	return &GopsutilInspector{}
}

func (g *GopsutilInspector) proc(ctx context.Context, pid int32) (*process.Process, error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return nil, ErrNoSuchProcess
		}
		return nil, err
	}
	return p, nil
}

// classify turns a failed read into ErrNoSuchProcess when the pid is gone.
func (g *GopsutilInspector) classify(ctx context.Context, pid int32, err error) error {
	if err == nil {
		return nil
	}
	if exists, existsErr := process.PidExistsWithContext(ctx, pid); existsErr == nil && !exists {
		return ErrNoSuchProcess
	}
	return err
}

func (g *GopsutilInspector) CPUPercent(ctx context.Context, pid int32, interval time.Duration) (float64, error) {
	p, err := g.proc(ctx, pid)
	if err != nil {
		return 0, err
	}
	pct, err := p.PercentWithContext(ctx, interval)
	return pct, g.classify(ctx, pid, err)
}

func (g *GopsutilInspector) CPUTimes(ctx context.Context, pid int32) (CPUTimes, error) {
	p, err := g.proc(ctx, pid)
	if err != nil {
		return CPUTimes{}, err
	}
	t, err := p.TimesWithContext(ctx)
	if err != nil {
		return CPUTimes{}, g.classify(ctx, pid, err)
	}
	return CPUTimes{User: t.User, System: t.System}, nil
}

func (g *GopsutilInspector) Memory(ctx context.Context, pid int32) (MemoryInfo, error) {
	p, err := g.proc(ctx, pid)
	if err != nil {
		return MemoryInfo{}, err
	}
	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return MemoryInfo{}, g.classify(ctx, pid, err)
	}
	pct, err := p.MemoryPercentWithContext(ctx)
	if err != nil {
		return MemoryInfo{}, g.classify(ctx, pid, err)
	}
	return MemoryInfo{RSS: mem.RSS, VMS: mem.VMS, Percent: float64(pct)}, nil
}

func (g *GopsutilInspector) IOCounters(ctx context.Context, pid int32) (IOCounters, error) {
	p, err := g.proc(ctx, pid)
	if err != nil {
		return IOCounters{}, err
	}
	io, err := p.IOCountersWithContext(ctx)
	if err != nil {
		return IOCounters{}, g.classify(ctx, pid, err)
	}
	return IOCounters{
		ReadBytes:  io.ReadBytes,
		WriteBytes: io.WriteBytes,
		ReadCount:  io.ReadCount,
		WriteCount: io.WriteCount,
	}, nil
}

func (g *GopsutilInspector) Threads(ctx context.Context, pid int32) ([]ThreadTimes, error) {
	p, err := g.proc(ctx, pid)
	if err != nil {
		return nil, err
	}
	threads, err := p.ThreadsWithContext(ctx)
	if err != nil {
		return nil, g.classify(ctx, pid, err)
	}
	out := make([]ThreadTimes, 0, len(threads))
	for tid, t := range threads {
		if t == nil {
			continue
		}
		out = append(out, ThreadTimes{ID: tid, User: t.User, System: t.System})
	}
	return out, nil
}

func (g *GopsutilInspector) Connections(ctx context.Context, pid int32) ([]Connection, error) {
	p, err := g.proc(ctx, pid)
	if err != nil {
		return nil, err
	}
	conns, err := p.ConnectionsWithContext(ctx)
	if err != nil {
		return nil, g.classify(ctx, pid, err)
	}
	out := make([]Connection, 0, len(conns))
	for _, c := range conns {
		remote := anyAddr
		if c.Raddr.IP != "" {
			remote = formatAddr(c.Raddr.IP, c.Raddr.Port)
		}
		out = append(out, Connection{
			Protocol: protocolName(c.Family, c.Type),
			Local:    formatAddr(c.Laddr.IP, c.Laddr.Port),
			Remote:   remote,
			Status:   c.Status,
		})
	}
	return out, nil
}

func (g *GopsutilInspector) OpenFiles(ctx context.Context, pid int32) ([]string, error) {
	p, err := g.proc(ctx, pid)
	if err != nil {
		return nil, err
	}
	files, err := p.OpenFilesWithContext(ctx)
	if err != nil {
		return nil, g.classify(ctx, pid, err)
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Path)
	}
	return out, nil
}

// Details collects what it can; individual fields that cannot be read stay empty.
func (g *GopsutilInspector) Details(ctx context.Context, pid int32) (Details, error) {
	p, err := g.proc(ctx, pid)
	if err != nil {
		return Details{}, err
	}
	d := Details{PID: pid}
	if st, err := p.StatusWithContext(ctx); err == nil {
		d.Status = strings.Join(st, ",")
	}
	d.Cwd, _ = p.CwdWithContext(ctx)
	d.Cmdline, _ = p.CmdlineWithContext(ctx)
	d.Terminal, _ = p.TerminalWithContext(ctx)
	if ms, err := p.CreateTimeWithContext(ctx); err == nil {
		d.Created = time.UnixMilli(ms)
	}
	d.Username, _ = p.UsernameWithContext(ctx)
	d.UIDs, _ = p.UidsWithContext(ctx)
	d.GIDs, _ = p.GidsWithContext(ctx)
	d.Nice, _ = p.NiceWithContext(ctx)
	return d, nil
}

func formatAddr(ip string, port uint32) string {
	if port == 0 {
		return ip
	}
	return fmt.Sprintf("%s:%d", ip, port)
}
