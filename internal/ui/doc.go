// Package ui provides terminal rendering shared by the pyscope commands.
//
// StageDisplay turns the event stream of an inspection run into one line
// per stage:
//
//	d := ui.NewStageDisplay(os.Stderr, isTerminal)
//	for ev := range run.Events() {
//		d.Handle(ev)
//	}
//	d.Close()
//
// On a terminal the running stage is animated with a spinner and a
// fraction bar. Finished stages are marked with the symbol returned by
// StatusSymbol.
//
// Sparklines render telemetry windows. RenderSparkline colors percentage
// series by threshold: green below 60%, yellow below 80%, red above.
// RenderSparklineColor draws unbounded series, such as bytes per tick or
// per-thread cpu, in a fixed color.
//
// Use DisableColors() for --no-color and non-terminal output.
package ui
