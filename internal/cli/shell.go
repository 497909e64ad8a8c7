package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rileyhilliard/pyscope/internal/ui"
	"github.com/spf13/cobra"
)

const shellPrompt = ">>> "

var shellCmd = &cobra.Command{
	Use:   "shell <pid>",
	Short: "Evaluate Python statements inside a running process",
	Long: `Open a line-oriented shell whose input runs inside the target interpreter.
Each line is executed in the target and whatever it prints is echoed back.
The inspection stages run in the background while the shell is open.

Type exit, quit or press Ctrl-D to leave.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return shellCommand(cmd.InOrStdin(), cmd.OutOrStdout(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

func shellCommand(in io.Reader, out io.Writer, arg string) error {
	pid, err := parsePID(arg)
	if err != nil {
		return err
	}

	t, err := openTarget(nil)
	if err != nil {
		return err
	}
	defer t.Close()

	ctx, stop := signalContext()
	defer stop()

	run, err := t.session.Select(ctx, pid)
	if err != nil {
		return err
	}
	defer run.Cancel()
	go func() {
		for range run.Events() {
		}
	}()

	fmt.Fprintln(out, ui.MutedStyle().Render(fmt.Sprintf("pid %d: type exit or press Ctrl-D to leave", pid)))
	return repl(ctx, in, out, t.session)
}

// evaluator runs one line of input in the target.
type evaluator interface {
	Shell(ctx context.Context, line string) (string, error)
}

// repl reads lines from in until EOF, exit or quit. Errors from a single
// line are printed and the loop continues.
func repl(ctx context.Context, in io.Reader, out io.Writer, ev evaluator) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, shellPrompt)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := scanner.Text()
		switch strings.TrimSpace(line) {
		case "":
			continue
		case "exit", "quit", "exit()", "quit()":
			return nil
		}

		output, err := ev.Shell(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(os.Stderr, ui.ErrorStyle().Render(firstLine(err.Error())))
			continue
		}
		if output != "" {
			fmt.Fprint(out, output)
			if !strings.HasSuffix(output, "\n") {
				fmt.Fprintln(out)
			}
		}
	}
}
