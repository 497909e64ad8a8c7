package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rileyhilliard/pyscope/internal/remote"
)

// errDumpNeverStarted means neither heap artifact appeared after the dump
// was requested.
var errDumpNeverStarted = errors.New("heap dump never started")

// WaitFor calls check every interval until it reports done, returns an error,
// or ceiling elapses. The first check runs immediately. Hitting the ceiling
// returns ErrStageTimeout.
func WaitFor(ctx context.Context, interval, ceiling time.Duration, check func(ctx context.Context) (bool, error)) error {
	deadline := time.NewTimer(ceiling)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrStageTimeout
		case <-ticker.C:
		}
	}
}

// heapDumpReady checks the artifacts of an in-progress dump: the final file
// means done, the raw file means still writing. Neither, once the first
// poll has passed, means the dump never started.
func heapDumpReady(fs remote.FS, raw, final string) func(ctx context.Context) (bool, error) {
	polls := 0
	return func(ctx context.Context) (bool, error) {
		polls++
		ok, err := fs.Exists(ctx, final)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		ok, err = fs.Exists(ctx, raw)
		if err != nil {
			return false, err
		}
		if ok || polls == 1 {
			return false, nil
		}
		return false, errDumpNeverStarted
	}
}
