// Package remote carries scripts into the target interpreter and reads the
// artifacts it leaves behind. Commands run either on this machine or on the
// host reached over SSH.
package remote

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/rileyhilliard/pyscope/internal/errors"
)

// Runner executes shell commands. A non-zero exit code with a nil error
// means the command ran and failed.
type Runner interface {
	Run(ctx context.Context, cmd string, stdin io.Reader) (stdout, stderr []byte, exitCode int, err error)
}

// LocalRunner runs commands through the user's shell on this machine.
type LocalRunner struct {
	Shell string
}

// NewLocalRunner uses $SHELL, falling back to /bin/sh.
func NewLocalRunner() *LocalRunner {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}
	return &LocalRunner{Shell: shell}
}

func (r *LocalRunner) Run(ctx context.Context, cmd string, stdin io.Reader) ([]byte, []byte, int, error) {
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, r.Shell, "-c", cmd)
	command.Stdin = stdin
	command.Stdout = &stdout
	command.Stderr = &stderr
	command.WaitDelay = 100 * time.Millisecond

	if err := command.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, nil, -1, ctx.Err()
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			return stdout.Bytes(), stderr.Bytes(), exitErr.ExitCode(), nil
		}
		return nil, nil, -1, errors.WrapWithCode(err, errors.ErrExec,
			"Couldn't run the command locally",
			"Make sure the command exists and is executable.")
	}
	return stdout.Bytes(), stderr.Bytes(), 0, nil
}

// SSHRunner runs commands on a remote host through a pooled connection.
type SSHRunner struct {
	pool *Pool
	host string
}

// NewSSHRunner creates a runner for host using connections from pool.
func NewSSHRunner(pool *Pool, host string) *SSHRunner {
	return &SSHRunner{pool: pool, host: host}
}

func (r *SSHRunner) Run(ctx context.Context, cmd string, stdin io.Reader) ([]byte, []byte, int, error) {
	client, err := r.pool.Get(r.host)
	if err != nil {
		return nil, nil, -1, err
	}
	stdout, stderr, code, err := client.Exec(ctx, cmd, stdin)
	if err != nil && errors.IsCode(err, errors.ErrSSH) {
		// Broken connection; redial on the next call.
		r.pool.CloseOne(r.host)
	}
	return stdout, stderr, code, err
}
