package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/rileyhilliard/pyscope/internal/logger"
	"github.com/rileyhilliard/pyscope/internal/ui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Global flags
var (
	cfgFile string
	verbose bool
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "pyscope",
	Short: "Inspect a running Python process",
	Long: `pyscope attaches to a running Python interpreter, samples its cpu, memory,
I/O, threads, sockets and open files, and runs an inspection that dumps
thread stacks, traces a call graph and summarizes the heap by type.

Code reaches the target through an injector command (channel.command in
.pyscope.yaml) that reads a script on stdin and prints the target's output.

Examples:
  pyscope inspect 4242
  pyscope inspect 4242 --format json
  pyscope watch 4242 --metrics-addr :9464
  pyscope shell 4242`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			os.Setenv(logger.DebugEnv, "1")
		}
		if noColor || !term.IsTerminal(int(os.Stdout.Fd())) {
			ui.DisableColors()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .pyscope.yaml in this or a parent directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}

func printError(err error) {
	msg := err.Error()
	if isUnknownCommandError(err) {
		if name := extractUnknownCommand(err); name != "" {
			msg = fmt.Sprintf("✗ Unknown command %q\n\n  Run 'pyscope --help' to see the available commands.\n", name)
		} else {
			msg = "✗ " + msg + "\n"
		}
	} else if !strings.HasPrefix(msg, "✗") {
		msg = "✗ " + msg + "\n"
	}
	fmt.Fprint(os.Stderr, ui.ErrorStyle().Render(strings.TrimRight(msg, "\n"))+"\n")
}

// isUnknownCommandError reports whether cobra rejected the command line.
func isUnknownCommandError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") || strings.HasPrefix(msg, "unknown flag")
}

// extractUnknownCommand pulls the command name out of cobra's
// `unknown command "foo" for "pyscope"` message.
func extractUnknownCommand(err error) string {
	msg := err.Error()
	start := strings.Index(msg, `"`)
	if start < 0 {
		return ""
	}
	end := strings.Index(msg[start+1:], `"`)
	if end < 0 {
		return ""
	}
	return msg[start+1 : start+1+end]
}
