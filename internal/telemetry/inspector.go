package telemetry

import (
	"context"
	"errors"
	"time"
)

// ErrNoSuchProcess is returned by an Inspector once the target has exited.
var ErrNoSuchProcess = errors.New("no such process")

// Inspector reads OS-level facts about a process.
type Inspector interface {
	// CPUPercent blocks for interval and returns the cpu usage over it.
	CPUPercent(ctx context.Context, pid int32, interval time.Duration) (float64, error)
	CPUTimes(ctx context.Context, pid int32) (CPUTimes, error)
	Memory(ctx context.Context, pid int32) (MemoryInfo, error)
	IOCounters(ctx context.Context, pid int32) (IOCounters, error)
	Threads(ctx context.Context, pid int32) ([]ThreadTimes, error)
	Connections(ctx context.Context, pid int32) ([]Connection, error)
	OpenFiles(ctx context.Context, pid int32) ([]string, error)
	Details(ctx context.Context, pid int32) (Details, error)
}

const (
	afUnix     = 1
	sockStream = 1
	sockDgram  = 2
)

// protocolName maps a socket family and type to the label shown for a connection.
func protocolName(family, sockType uint32) string {
	if family == afUnix {
		return "UNIX"
	}
	switch sockType {
	case sockStream:
		return "TCP"
	case sockDgram:
		return "UDP"
	default:
		return "UNIX"
	}
}

// anyAddr is shown for sockets without a peer.
const anyAddr = "*:*"
