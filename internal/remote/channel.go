package remote

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rileyhilliard/pyscope/internal/errors"
)

// PIDPlaceholder is replaced by the target pid in injector commands.
const PIDPlaceholder = "{pid}"

// DefaultTimeout bounds a single round trip to the target.
const DefaultTimeout = 30 * time.Second

// Channel sends a script to the target interpreter and returns whatever it
// printed.
type Channel interface {
	Send(ctx context.Context, script string) (string, error)
	Close() error
}

// Dialer opens a channel to pid.
type Dialer interface {
	Dial(ctx context.Context, pid int32) (Channel, error)
}

// CommandChannel feeds scripts on stdin to an injector command such as
// "pyrasite-exec {pid}", which executes them inside the target.
type CommandChannel struct {
	runner  Runner
	command string
	pid     int32
	timeout time.Duration
}

// Send runs the injector with script on stdin. The combined stdout and
// stderr of the target is returned. Each call is bounded by the channel
// timeout; a hung target yields a CHANNEL error wrapping
// context.DeadlineExceeded.
func (c *CommandChannel) Send(ctx context.Context, script string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	stdout, stderr, code, err := c.runner.Run(ctx, c.command, strings.NewReader(script))
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return "", errors.WrapWithCode(err, errors.ErrChannel,
				fmt.Sprintf("Process %d didn't answer within %s", c.pid, c.timeout),
				"The target may be blocked holding the GIL. Raise channel.timeout if it is just slow.")
		}
		return "", errors.WrapWithCode(err, errors.ErrChannel,
			fmt.Sprintf("Couldn't send to process %d", c.pid),
			"Check the injector command works: "+c.command)
	}
	if code != 0 {
		return "", errors.WrapWithCode(
			fmt.Errorf("%s", strings.TrimSpace(string(stderr))), errors.ErrChannel,
			fmt.Sprintf("Injector for process %d exited with code %d", c.pid, code),
			"Attaching usually needs ptrace rights: run as the target's user or set kernel.yama.ptrace_scope=0")
	}
	return string(stdout) + string(stderr), nil
}

// Close is a no-op; each Send is a separate injection.
func (c *CommandChannel) Close() error {
	return nil
}

// CommandDialer builds CommandChannels from a command template.
type CommandDialer struct {
	Runner   Runner
	Template string
	Timeout  time.Duration
}

// Dial substitutes pid into the template. No command runs until Send.
func (d *CommandDialer) Dial(_ context.Context, pid int32) (Channel, error) {
	if !strings.Contains(d.Template, PIDPlaceholder) {
		return nil, errors.New(errors.ErrConfig,
			fmt.Sprintf("Injector command %q has no %s placeholder", d.Template, PIDPlaceholder),
			"Set channel.command to something like: pyrasite-exec {pid}")
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &CommandChannel{
		runner:  d.Runner,
		command: strings.ReplaceAll(d.Template, PIDPlaceholder, strconv.Itoa(int(pid))),
		pid:     pid,
		timeout: timeout,
	}, nil
}
