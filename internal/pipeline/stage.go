package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Status is the outcome of one stage.
type Status string

const (
	StatusPending    Status = "pending"
	StatusRunning    Status = "running"
	StatusDone       Status = "done"
	StatusSoftFailed Status = "soft_failed"
	StatusAborted    Status = "aborted"
)

// Stage names.
const (
	StageConnect     = "connect"
	StageSearchPaths = "inject_search_paths"
	StageStacks      = "dump_stacks"
	StageCallGraph   = "call_graph"
	StageHeap        = "heap_objects"
	StageShell       = "shell_version"
)

// ErrSoftFailure matches every SoftFailure.
var ErrSoftFailure = errors.New("stage soft failure")

// ErrStageTimeout is returned when a bounded wait hits its ceiling.
var ErrStageTimeout = errors.New("stage timed out")

// SoftFailure is a non-fatal stage error. The run continues.
type SoftFailure struct {
	Reason string
	Err    error
}

func (e *SoftFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *SoftFailure) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrSoftFailure) hold for any SoftFailure.
func (e *SoftFailure) Is(target error) bool {
	return target == ErrSoftFailure
}

func soft(reason string, err error) error {
	return &SoftFailure{Reason: reason, Err: err}
}

// Reporter reports progress inside a stage. fraction is in [0,1] of the
// stage's range; an empty label keeps the current one.
type Reporter func(fraction float64, label string)

// Stage is one weighted step of a run.
type Stage struct {
	Name  string
	Start float64
	End   float64
	// Label is shown when the stage begins.
	Label string
	// Fatal stages abort the run when they fail.
	Fatal bool
	Run   func(ctx context.Context, st *state, report Reporter) error
}

// section maps a stage-local fraction into the overall progress range.
func (s Stage) section(fraction float64) float64 {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return s.Start + (s.End-s.Start)*fraction
}
