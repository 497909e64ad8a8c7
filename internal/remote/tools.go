package remote

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/rileyhilliard/pyscope/internal/util"
)

// LookPath resolves a tool on the runner's host, like which(1).
func LookPath(ctx context.Context, r Runner, name string) (string, error) {
	stdout, _, code, err := r.Run(ctx, "command -v "+util.ShellQuote(name), nil)
	if err != nil {
		return "", err
	}
	path := strings.TrimSpace(string(stdout))
	if code != 0 || path == "" {
		return "", fmt.Errorf("%s: not found", name)
	}
	return path, nil
}

// SitePackages lists the module roots of interpreter on the runner's host.
func SitePackages(ctx context.Context, r Runner, interpreter string) ([]string, error) {
	cmd := util.ShellCommand(interpreter, "-c", `import site; print("\n".join(site.getsitepackages()))`)
	stdout, stderr, code, err := r.Run(ctx, cmd, nil)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, fmt.Errorf("%s exited with %d: %s", interpreter, code, bytes.TrimSpace(stderr))
	}
	var dirs []string
	for _, line := range strings.Split(string(stdout), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			dirs = append(dirs, line)
		}
	}
	return dirs, nil
}
