package remote

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rileyhilliard/pyscope/internal/errors"
	"github.com/rileyhilliard/pyscope/internal/util"
)

// Artifacts names the files a target leaves in its temp directory.
type Artifacts struct {
	Dir string
}

// HeapRaw is the in-progress heap dump of pid.
func (a Artifacts) HeapRaw(pid int32) string {
	return filepath.Join(a.Dir, strconv.Itoa(int(pid))+".json")
}

// HeapFinal is the completed heap dump of pid.
func (a Artifacts) HeapFinal(pid int32) string {
	return filepath.Join(a.Dir, strconv.Itoa(int(pid))+".objects")
}

// CallGraph is the rendered call graph image of pid.
func (a Artifacts) CallGraph(pid int32) string {
	return filepath.Join(a.Dir, fmt.Sprintf("%d-callgraph.png", pid))
}

// All lists every artifact path of pid.
func (a Artifacts) All(pid int32) []string {
	return []string{a.HeapRaw(pid), a.HeapFinal(pid), a.CallGraph(pid)}
}

// FS is the filesystem the target writes artifacts to.
type FS interface {
	Exists(ctx context.Context, path string) (bool, error)
	ReadFile(ctx context.Context, path string) ([]byte, error)
	Remove(ctx context.Context, path string) error
	// Fetch makes the file at path available locally at dst.
	Fetch(ctx context.Context, path, dst string) error
}

// LocalFS is the local filesystem.
type LocalFS struct{}

func (LocalFS) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (LocalFS) ReadFile(_ context.Context, path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (LocalFS) Remove(_ context.Context, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (LocalFS) Fetch(_ context.Context, path, dst string) error {
	if filepath.Clean(path) == filepath.Clean(dst) {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// RunnerFS reaches the target's filesystem through a Runner.
type RunnerFS struct {
	Runner Runner
}

func (r RunnerFS) Exists(ctx context.Context, path string) (bool, error) {
	_, stderr, code, err := r.Runner.Run(ctx, "test -e "+util.ShellQuotePath(path), nil)
	if err != nil {
		return false, err
	}
	switch code {
	case 0:
		return true, nil
	case 1:
		return false, nil
	default:
		return false, fmt.Errorf("test -e %s: exit %d: %s", path, code, bytes.TrimSpace(stderr))
	}
}

func (r RunnerFS) ReadFile(ctx context.Context, path string) ([]byte, error) {
	stdout, stderr, code, err := r.Runner.Run(ctx, "cat "+util.ShellQuotePath(path), nil)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, errors.New(errors.ErrExec,
			fmt.Sprintf("Couldn't read %s", path),
			string(bytes.TrimSpace(stderr)))
	}
	return stdout, nil
}

func (r RunnerFS) Remove(ctx context.Context, path string) error {
	_, stderr, code, err := r.Runner.Run(ctx, "rm -f "+util.ShellQuotePath(path), nil)
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("rm %s: exit %d: %s", path, code, bytes.TrimSpace(stderr))
	}
	return nil
}

func (r RunnerFS) Fetch(ctx context.Context, path, dst string) error {
	data, err := r.ReadFile(ctx, path)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
