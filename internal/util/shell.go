// Package util holds small helpers shared by the runner and the renderers.
package util

import "strings"

// ShellQuote wraps s in single quotes so a POSIX shell treats it literally.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ShellQuotePath quotes a path but leaves a leading ~/ for the remote shell
// to expand, so artifact dirs like ~/.cache/pyscope resolve per user.
func ShellQuotePath(path string) string {
	switch {
	case path == "~":
		return path
	case strings.HasPrefix(path, "~/"):
		return "~/" + ShellQuote(path[2:])
	}
	return ShellQuote(path)
}

// ShellCommand joins argv into one shell-safe command line.
func ShellCommand(argv ...string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = ShellQuote(a)
	}
	return strings.Join(quoted, " ")
}
